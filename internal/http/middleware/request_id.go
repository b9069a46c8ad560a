package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-Id"

// RequestID tags each request with an id, echoes it back and puts a logger
// carrying it into the request context, so downstream logs correlate.
func RequestID(l zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = "req_" + uuid.NewString()
		}
		c.Set(RequestIDHeader, rid)
		c.Writer.Header().Set(RequestIDHeader, rid)

		reqLog := l.With().Str("request_id", rid).Logger()
		c.Request = c.Request.WithContext(reqLog.WithContext(c.Request.Context()))
		c.Next()
	}
}

// RequestLogger returns the logger RequestID stored for this request, or
// fallback when there is none.
func RequestLogger(c *gin.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(c.Request.Context()); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}
