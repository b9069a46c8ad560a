package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/omnisense/dispatch/internal/ai"
	"github.com/omnisense/dispatch/internal/config"
	"github.com/omnisense/dispatch/internal/db"
	"github.com/omnisense/dispatch/internal/geocode"
	httpapi "github.com/omnisense/dispatch/internal/http"
	"github.com/omnisense/dispatch/internal/service"
	"github.com/omnisense/dispatch/internal/stt"
)

// @title Dispatch Orchestrator
// @version 1.0
// @description Emergency call triage, queueing and operator assignment
// @BasePath /
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := log.Level(level).With().Str("service", "dispatch-orchestrator").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store *db.Store
	var archiver service.Archiver
	if cfg.DatabaseURL != "" {
		store, err = db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect db")
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("failed to migrate db")
		}
		archiver = store
	} else {
		logger.Info().Msg("DATABASE_URL not set, call archive disabled")
	}

	agent := &ai.TriageAgent{
		Region: cfg.GeocodeRegion,
		Logger: logger.With().Str("component", "triage").Logger(),
	}
	if cfg.AssistantBaseURL != "" {
		agent.Assistant = ai.OpenAICompatAssistant{
			BaseURL:     cfg.AssistantBaseURL,
			Model:       cfg.AssistantModel,
			APIKey:      cfg.AssistantAPIKey,
			MaxTokens:   cfg.AssistantMaxTokens,
			Temperature: 0.3,
			Client:      &http.Client{Timeout: cfg.RequestTimeout},
		}
	} else {
		logger.Info().Msg("ASSISTANT_BASE_URL not set, using scripted follow-ups")
	}
	if cfg.GeocodeURL != "" {
		agent.Geocoder = &geocode.NominatimGeocoder{BaseURL: cfg.GeocodeURL}
	}

	var engine stt.Engine = stt.NopEngine{}
	if cfg.STTURL != "" {
		engine = stt.NewHTTPEngine(cfg.STTURL, cfg.STTTimeout, logger)
	} else {
		logger.Info().Msg("STT_URL not set, caller audio will not be transcribed")
	}

	orch := service.NewOrchestrator(service.Options{
		QueueInterval:    cfg.QueueInterval,
		EscalationDelta:  cfg.EscalationDelta,
		PatternThreshold: cfg.PatternThreshold,
		HistoryLimit:     cfg.HistoryLimit,
		QueuePolicy:      service.QueuePolicy(cfg.QueuePolicy),
		AutoArchiveAfter: cfg.AutoArchiveAfter,
		AgentTimeout:     cfg.RequestTimeout,
	}, agent, archiver, logger)

	sw := service.NewSwitch(orch, engine, orch.SendMessage, cfg.SuppressPerWord, logger)
	orch.OnCallEnded(sw.DetachCaller)

	router := httpapi.Router(cfg, orch, sw, store, logger)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	orch.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		orch.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
	}
	logger.Info().Msg("server stopped")
}
