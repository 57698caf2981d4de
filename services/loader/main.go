// Command loader runs the historical acquisition of a SenseBox into the
// partitioned dataset and bulk-loads the dataset into storage.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tombeihofer23/Projekt/services/api/db"
	"github.com/tombeihofer23/Projekt/services/internal/acquisition"
	"github.com/tombeihofer23/Projekt/services/internal/logging"
	"github.com/tombeihofer23/Projekt/services/internal/metrics"
	"github.com/tombeihofer23/Projekt/services/internal/profile"
	"github.com/tombeihofer23/Projekt/services/internal/sensebox"
)

type options struct {
	profilePath string
	output      string
	stepDays    int
	chunkSize   int
	skipFetch   bool
	skipLoad    bool
	keep        bool
	driver      string
	dsn         string
	logLevel    string
	metricsFile string
}

func main() {
	_ = godotenv.Load(".env")

	var opts options
	flag.StringVar(&opts.profilePath, "profile", envOr("DASHBOARD_PROFILE", "configs/ffm.yaml"), "dashboard profile (YAML)")
	flag.StringVar(&opts.output, "output", "data/sensor_data", "dataset directory")
	flag.IntVar(&opts.stepDays, "step-days", sensebox.DefaultStepDays, "days per request window")
	flag.IntVar(&opts.chunkSize, "chunk-size", acquisition.DefaultChunkSize, "rows per bulk insert")
	flag.BoolVar(&opts.skipFetch, "skip-fetch", false, "only load the existing dataset")
	flag.BoolVar(&opts.skipLoad, "skip-load", false, "only fetch into the dataset")
	flag.BoolVar(&opts.keep, "keep", false, "keep partitions after loading them")
	flag.StringVar(&opts.driver, "store", envOr("STORE_DRIVER", "pgx"), "store driver (pgx or sqlite)")
	flag.StringVar(&opts.dsn, "dsn", "", "store DSN (defaults to DATABASE_URL or SQLITE_PATH)")
	flag.StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level")
	flag.StringVar(&opts.metricsFile, "metrics-file", os.Getenv("METRICS_FILE"), "write Prometheus counters to this textfile on exit")
	flag.Parse()

	if opts.dsn == "" {
		if opts.driver == "sqlite" {
			opts.dsn = envOr("SQLITE_PATH", "sensebox.db")
		} else {
			opts.dsn = os.Getenv("DATABASE_URL")
		}
	}

	if err := run(opts); err != nil {
		log.Fatalf("loader failed: %v", err)
	}
}

func run(opts options) error {
	logger, err := logging.New(opts.logLevel, "console")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init()
	defer func() {
		if err := metrics.WriteTextfile(opts.metricsFile); err != nil {
			logger.Warnw("metrics textfile not written", "path", opts.metricsFile, "error", err)
		}
	}()

	prof, err := profile.Load(opts.profilePath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !opts.skipFetch {
		client, err := sensebox.NewClient(prof.APIBaseURL, prof.BoxID, sensebox.WithLogger(logger))
		if err != nil {
			return err
		}
		report, err := acquisition.NewLoader(client, opts.stepDays, logger).FetchAllHistory(ctx, opts.output)
		if err != nil {
			return err
		}
		logger.Infow("history fetched",
			"run_id", report.RunID,
			"box_id", report.BoxID,
			"sensors", report.Sensors,
			"windows", report.Windows,
			"partitions", report.Partitions,
			"failed_windows", report.FailedWindows,
			"empty_windows", report.EmptyWindows,
			"duration", report.Duration.Round(time.Millisecond).String(),
		)
	}

	if opts.skipLoad {
		return nil
	}

	store, err := db.Open(ctx, opts.driver, opts.dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	bulk, err := acquisition.BulkLoader{
		Store:         store,
		ChunkSize:     opts.chunkSize,
		ClearConsumed: !opts.keep,
		Logger:        logger,
	}.Load(ctx, opts.output)
	if err != nil {
		return err
	}
	logger.Infow("dataset loaded",
		"partitions", bulk.Partitions,
		"read", bulk.Read,
		"invalid", bulk.Invalid,
		"appended", bulk.Appended,
		"duplicates", bulk.Duplicates,
	)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
