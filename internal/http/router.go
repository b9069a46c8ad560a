package httpapi

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/omnisense/dispatch/internal/config"
	"github.com/omnisense/dispatch/internal/db"
	"github.com/omnisense/dispatch/internal/http/handlers"
	"github.com/omnisense/dispatch/internal/http/middleware"
	"github.com/omnisense/dispatch/internal/service"

	_ "github.com/omnisense/dispatch/docs"
)

func Router(cfg config.Config, orch *service.Orchestrator, sw *service.Switch, store *db.Store, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID(logger))
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" || cfg.CORSAllowed == "" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = strings.Split(cfg.CORSAllowed, ",")
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Orchestrator:   orch,
		Switch:         sw,
		Store:          store,
		Validator:      validator.New(),
		Logger:         logger,
		RequestTimeout: cfg.RequestTimeout,
	}

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	{
		api.GET("/state", h.State)
		api.GET("/calls", h.ListCalls)
		api.POST("/calls", h.CreateCall)
		api.GET("/calls/:id", h.GetCall)
		api.POST("/calls/:id/message", h.SendMessage)
		api.POST("/calls/:id/disconnect", h.Disconnect)
		api.GET("/operators", h.ListOperators)
		api.POST("/operators", h.RegisterOperator)
		api.POST("/operators/:id/complete", h.CompleteCall)
		api.GET("/records", h.Records)
		api.GET("/records/:id/transcript", h.RecordTranscript)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/calls/:id/assign", h.AssignCall)
		admin.POST("/calls/:id/archive", h.ArchiveCall)
		admin.DELETE("/operators/:id", h.UnregisterOperator)
	}

	ws := r.Group("/ws")
	{
		ws.GET("/dashboard", h.DashboardSocket)
		ws.GET("/audio/:call_id", h.CallerAudio)
		ws.GET("/operator/:operator_id", h.OperatorSocket)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
