// Package acquisition pulls the complete measurement history of a box into
// the partitioned dataset and moves that dataset into storage.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tombeihofer23/Projekt/services/internal/dataset"
	"github.com/tombeihofer23/Projekt/services/internal/logging"
	"github.com/tombeihofer23/Projekt/services/internal/metrics"
	"github.com/tombeihofer23/Projekt/services/internal/models"
	"github.com/tombeihofer23/Projekt/services/internal/sensebox"
)

// Source is the part of the SenseBox client the history run needs.
type Source interface {
	FetchBox(ctx context.Context) (models.BoxInfo, error)
	FetchWindow(ctx context.Context, sensorID string, window models.TimeInterval) ([]models.SensorReading, error)
	Now() time.Time
}

// Report summarises one history run.
type Report struct {
	RunID         string         `json:"run_id"`
	BoxID         string         `json:"box_id"`
	Sensors       int            `json:"sensors"`
	Windows       int            `json:"windows"`
	Partitions    int            `json:"partitions"`
	Readings      map[string]int `json:"readings"`
	FailedWindows int            `json:"failed_windows"`
	EmptyWindows  int            `json:"empty_windows"`
	Duration      time.Duration  `json:"duration"`
}

// Loader runs the historical acquisition.
type Loader struct {
	source   Source
	stepDays int
	logger   *zap.SugaredLogger
}

// NewLoader returns a loader paging the API in windows of stepDays days.
func NewLoader(source Source, stepDays int, logger *zap.SugaredLogger) *Loader {
	if stepDays <= 0 {
		stepDays = sensebox.DefaultStepDays
	}
	return &Loader{source: source, stepDays: stepDays, logger: logging.OrNop(logger)}
}

// FetchAllHistory fetches every sensor of the box from the box's creation day
// until now and writes one partition per sensor with data to outputPath.
//
// Failed or empty windows are logged and skipped. The run fails only when the
// output directory cannot be created, the box metadata cannot be fetched, a
// partition cannot be written, or ctx is done. ctx is checked between sensors.
func (l *Loader) FetchAllHistory(ctx context.Context, outputPath string) (Report, error) {
	started := time.Now()
	report := Report{RunID: uuid.NewString(), Readings: map[string]int{}}
	log := l.logger.With("run_id", report.RunID)

	if err := os.MkdirAll(outputPath, 0o755); err != nil {
		return report, fmt.Errorf("create output dir: %w", err)
	}

	box, err := l.source.FetchBox(ctx)
	if err != nil {
		return report, fmt.Errorf("fetch box metadata: %w", err)
	}
	report.BoxID = box.ID
	report.Sensors = len(box.Sensors)

	now := l.source.Now()
	intervals := sensebox.ListIntervals(box.CreatedAt, l.stepDays, now)
	report.Windows = len(intervals)
	log.Infow("starting history run",
		"box_id", box.ID,
		"sensors", len(box.Sensors),
		"created_at", box.CreatedAt,
		"windows", len(intervals),
	)

	for _, sensor := range box.Sensors {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(started)
			return report, err
		}

		readings, err := l.fetchSensor(ctx, log, sensor.SensorID, intervals, &report)
		if err != nil {
			report.Duration = time.Since(started)
			return report, err
		}
		if len(readings) == 0 {
			log.Infow("no data for sensor, skipping partition", "sensor_id", sensor.SensorID, "title", sensor.Title)
			continue
		}

		for i := range readings {
			readings[i] = sensor.Apply(readings[i])
		}
		path, err := dataset.WritePartition(outputPath, sensor.SensorID, readings)
		if err != nil {
			report.Duration = time.Since(started)
			return report, fmt.Errorf("write partition %s: %w", sensor.SensorID, err)
		}

		report.Partitions++
		report.Readings[sensor.SensorID] = len(readings)
		metrics.AddPartition(len(readings))

		first, last := dataset.Span(readings)
		log.Infow("partition written",
			"sensor_id", sensor.SensorID,
			"rows", len(readings),
			"first", first,
			"last", last,
			"path", path,
		)
	}

	report.Duration = time.Since(started)
	log.Infow("history run finished",
		"partitions", report.Partitions,
		"failed_windows", report.FailedWindows,
		"empty_windows", report.EmptyWindows,
		"duration", report.Duration,
	)
	return report, nil
}

// fetchSensor walks every window of one sensor. Only a done ctx aborts it.
func (l *Loader) fetchSensor(ctx context.Context, log *zap.SugaredLogger, sensorID string, intervals []models.TimeInterval, report *Report) ([]models.SensorReading, error) {
	var out []models.SensorReading
	for _, window := range intervals {
		rows, err := l.source.FetchWindow(ctx, sensorID, window)
		switch {
		case err == nil:
			metrics.IncWindow(metrics.WindowOK)
			out = append(out, rows...)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, sensebox.ErrNoDataFound):
			report.EmptyWindows++
			metrics.IncWindow(metrics.WindowNoData)
			log.Debugw("no data in window", "sensor_id", sensorID, "start", window.Start, "end", window.End)
		case errors.Is(err, sensebox.ErrParse):
			report.FailedWindows++
			metrics.IncWindow(metrics.WindowParse)
			log.Warnw("unreadable window skipped", "sensor_id", sensorID, "start", window.Start, "end", window.End, "error", err)
		default:
			report.FailedWindows++
			metrics.IncWindow(metrics.WindowTransport)
			log.Warnw("window fetch failed, skipping", "sensor_id", sensorID, "start", window.Start, "end", window.End, "error", err)
		}
	}
	return out, nil
}
