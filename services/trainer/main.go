// Command trainer fits the forecast model on the stored series of the
// profile's forecast sensor and writes the model artifact.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tombeihofer23/Projekt/services/api/db"
	"github.com/tombeihofer23/Projekt/services/internal/forecast"
	"github.com/tombeihofer23/Projekt/services/internal/logging"
	"github.com/tombeihofer23/Projekt/services/internal/profile"
)

type options struct {
	profilePath string
	sensorID    string
	output      string
	region      string
	trainRatio  float64
	lambda      float64
	driver      string
	dsn         string
	logLevel    string
}

func main() {
	_ = godotenv.Load(".env")

	var opts options
	flag.StringVar(&opts.profilePath, "profile", envOr("DASHBOARD_PROFILE", "configs/ffm.yaml"), "dashboard profile (YAML)")
	flag.StringVar(&opts.sensorID, "sensor", "", "sensor to train on (defaults to the profile's forecast sensor)")
	flag.StringVar(&opts.output, "output", envOr("FORECAST_MODEL_PATH", "models/forecast.json"), "model artifact path or s3://bucket/key")
	flag.StringVar(&opts.region, "region", envOr("AWS_REGION", "eu-central-1"), "AWS region for s3:// outputs")
	flag.Float64Var(&opts.trainRatio, "train-ratio", forecast.DefaultTrainRatio, "share of rows used for training")
	flag.Float64Var(&opts.lambda, "lambda", forecast.DefaultLambda, "ridge penalty")
	flag.StringVar(&opts.driver, "store", envOr("STORE_DRIVER", "pgx"), "store driver (pgx or sqlite)")
	flag.StringVar(&opts.dsn, "dsn", "", "store DSN (defaults to DATABASE_URL or SQLITE_PATH)")
	flag.StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "log level")
	flag.Parse()

	if opts.dsn == "" {
		if opts.driver == "sqlite" {
			opts.dsn = envOr("SQLITE_PATH", "sensebox.db")
		} else {
			opts.dsn = os.Getenv("DATABASE_URL")
		}
	}

	if err := run(opts); err != nil {
		log.Fatalf("trainer failed: %v", err)
	}
}

func run(opts options) error {
	logger, err := logging.New(opts.logLevel, "console")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sensorID := opts.sensorID
	if sensorID == "" {
		prof, err := profile.Load(opts.profilePath)
		if err != nil {
			return err
		}
		if !prof.Forecast.Enabled() {
			return errors.New("profile has no forecast sensor; pass -sensor")
		}
		sensorID = prof.Forecast.SensorID
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := db.Open(ctx, opts.driver, opts.dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	series, err := store.QueryTrainingSeries(ctx, sensorID)
	if err != nil {
		return err
	}
	logger.Infow("training series loaded", "sensor_id", sensorID, "points", len(series))

	model, report, err := forecast.Train(series, forecast.TrainOptions{
		Horizon:    forecast.DefaultHorizon,
		TrainRatio: opts.trainRatio,
		Lambda:     opts.lambda,
	})
	if err != nil {
		return err
	}

	var objects forecast.ObjectStore
	if _, _, ok := forecast.ParseS3URI(opts.output); ok {
		client, err := forecast.NewS3(opts.region)
		if err != nil {
			return err
		}
		objects = client
	}
	if err := forecast.SaveLinearModel(ctx, opts.output, model, objects); err != nil {
		return err
	}

	logger.Infow("model written",
		"output", opts.output,
		"rows", report.Rows,
		"train_rows", report.TrainRows,
		"test_rows", report.TestRows,
		"test_mae", report.TestMAE,
	)
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
