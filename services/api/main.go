package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tombeihofer23/Projekt/services/api/config"
	"github.com/tombeihofer23/Projekt/services/api/db"
	httpserver "github.com/tombeihofer23/Projekt/services/api/http"
	"github.com/tombeihofer23/Projekt/services/internal/forecast"
	"github.com/tombeihofer23/Projekt/services/internal/ingest"
	"github.com/tombeihofer23/Projekt/services/internal/live"
	"github.com/tombeihofer23/Projekt/services/internal/logging"
	"github.com/tombeihofer23/Projekt/services/internal/profile"
	"github.com/tombeihofer23/Projekt/services/internal/sensebox"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("api failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	prof, err := profile.Load(cfg.ProfilePath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.Open(ctx, cfg.StoreDriver, cfg.StoreDSN())
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := sensebox.NewClient(prof.APIBaseURL, prof.BoxID,
		sensebox.WithLogger(logger),
		sensebox.WithLocation(prof.Location()),
	)
	if err != nil {
		return err
	}

	syncSensors(ctx, client, store, logger)

	pipeline := loadForecast(ctx, cfg, logger)
	hub := live.NewHub(logger)
	poller := ingest.NewPoller(client, store, hub, logger)

	if cfg.PollEnabled {
		interval := cfg.PollInterval
		if interval <= 0 {
			interval = prof.PollInterval
		}
		logger.Infow("live polling enabled", "interval", interval.String())
		go poller.Run(ctx, interval)
	}

	srv := httpserver.New(cfg, httpserver.Deps{
		Store:    store,
		Profile:  prof,
		Box:      client,
		Poller:   poller,
		Hub:      hub,
		Forecast: pipeline,
		Logger:   logger,
	})
	logger.Infow("REST API listening", "addr", cfg.ListenAddr(), "profile", prof.Name, "box_id", prof.BoxID)

	return srv.Run(ctx)
}

// syncSensors writes the box's sensor metadata once at startup.
func syncSensors(ctx context.Context, client *sensebox.Client, store db.Store, logger *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	sensors, err := client.FetchSensors(ctx)
	if err != nil {
		logger.Warnw("sensor metadata sync skipped", "error", err)
		return
	}
	if err := store.UpsertSensors(ctx, sensors); err != nil {
		logger.Warnw("sensor metadata upsert failed", "error", err)
		return
	}
	logger.Infow("sensor metadata synced", "sensors", len(sensors))
}

// loadForecast returns nil when no model is configured or it fails to load;
// the forecast endpoints then answer 503.
func loadForecast(ctx context.Context, cfg config.Config, logger *zap.SugaredLogger) *forecast.Pipeline {
	reg, err := forecast.NewRegressor(ctx, forecast.ModelConfig{
		ModelPath:         cfg.ModelPath,
		SageMakerEndpoint: cfg.SageMakerEndpoint,
		AWSRegion:         cfg.AWSRegion,
		Horizon:           forecast.DefaultHorizon,
	})
	switch {
	case errors.Is(err, forecast.ErrNoModel):
		logger.Infow("forecast disabled: no model configured")
		return nil
	case err != nil:
		logger.Errorw("forecast model unavailable", "error", err)
		return nil
	}
	return forecast.NewPipeline(reg)
}
