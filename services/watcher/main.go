package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tombeihofer23/Projekt/services/api/db"
	"github.com/tombeihofer23/Projekt/services/internal/ingest"
	"github.com/tombeihofer23/Projekt/services/internal/logging"
	"github.com/tombeihofer23/Projekt/services/internal/metrics"
	"github.com/tombeihofer23/Projekt/services/internal/models"
	"github.com/tombeihofer23/Projekt/services/internal/profile"
	"github.com/tombeihofer23/Projekt/services/internal/sensebox"
	"github.com/tombeihofer23/Projekt/services/watcher/internal/config"
)

// stepSlack is added to RequestTimeout for the store work around each call.
const stepSlack = 10 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatalf("watcher failed: %v", err)
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

	metrics.Init()
	defer func() {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warnw("metrics textfile not written", "path", cfg.MetricsFile, "error", err)
		}
	}()

	prof, err := profile.Load(cfg.ProfilePath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client, err := sensebox.NewClient(prof.APIBaseURL, prof.BoxID, sensebox.WithLogger(logger))
	if err != nil {
		return err
	}

	budget := cfg.RequestTimeout + stepSlack

	var inserter ingest.Inserter
	if cfg.DryRun {
		inserter = dryRun{logger: logger}
	} else {
		openCtx, openCancel := context.WithTimeout(ctx, stepSlack)
		store, err := db.Open(openCtx, cfg.StoreDriver, cfg.StoreDSN())
		openCancel()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := syncSensors(ctx, budget, client, store); err != nil {
			return err
		}
		inserter = store
	}

	res, err := pollOnce(ctx, budget, ingest.NewPoller(client, inserter, nil, logger))
	if err != nil {
		return err
	}

	if res.Fetched == 0 {
		logger.Infow("no new measurements", "box_id", prof.BoxID, "retrieval", res.At.Format(time.RFC3339))
		return nil
	}
	logger.Infow("watcher run complete",
		"box_id", prof.BoxID,
		"fetched", res.Fetched,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"invalid", res.Invalid,
		"dry_run", cfg.DryRun,
	)
	return nil
}

type sensorSource interface {
	FetchSensors(ctx context.Context) ([]models.SensorMetadata, error)
}

type sensorSink interface {
	UpsertSensors(ctx context.Context, sensors []models.SensorMetadata) error
}

type poller interface {
	PollOnce(ctx context.Context) (ingest.Result, error)
}

// syncSensors refreshes sensor metadata within its own timeout.
func syncSensors(parent context.Context, timeout time.Duration, src sensorSource, dst sensorSink) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	sensors, err := src.FetchSensors(ctx)
	if err != nil {
		return err
	}
	return dst.UpsertSensors(ctx, sensors)
}

// pollOnce runs one poll within its own timeout.
func pollOnce(parent context.Context, timeout time.Duration, p poller) (ingest.Result, error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	return p.PollOnce(ctx)
}

// dryRun reports every reading as new without storing it.
type dryRun struct {
	logger *zap.SugaredLogger
}

func (d dryRun) InsertIfAbsent(_ context.Context, r models.SensorReading) (bool, error) {
	d.logger.Infow("dry-run: would insert",
		"sensor_id", r.SensorID,
		"ts", r.Timestamp.Format(time.RFC3339),
		"value", r.Measurement,
	)
	return true, nil
}
