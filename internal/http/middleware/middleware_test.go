package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newEngine(adminKey string, l zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(l), Logger(l))
	r.POST("/guarded", AdminKey(adminKey), func(c *gin.Context) {
		log := RequestLogger(c, zerolog.Nop())
		log.Info().Msg("inside handler")
		c.String(http.StatusOK, c.GetString(RequestIDHeader))
	})
	return r
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	r := newEngine("", zerolog.Nop())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/guarded", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get(RequestIDHeader), "req_")
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get(RequestIDHeader))
}

func TestRequestLoggerCarriesRequestID(t *testing.T) {
	var buf bytes.Buffer
	r := newEngine("", zerolog.New(&buf))

	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	r.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if assert.Len(t, lines, 2) {
		assert.Contains(t, lines[0], `"message":"inside handler"`)
		assert.Contains(t, lines[0], `"request_id":"req-42"`)
		assert.Contains(t, lines[1], `"message":"request"`)
		assert.Contains(t, lines[1], `"request_id":"req-42"`)
	}
}

func TestRequestLoggerFallsBackWithoutRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	log := RequestLogger(c, zerolog.New(&buf))
	log.Info().Msg("fallback")
	assert.Contains(t, buf.String(), "fallback")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestAdminKey(t *testing.T) {
	r := newEngine("s3cret", zerolog.Nop())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/guarded", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "UNAUTHORIZED")

	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set("X-Admin-Key", "s3cret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
