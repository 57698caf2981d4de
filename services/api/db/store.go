package db

import (
	"context"
	"fmt"
	"time"

	"github.com/tombeihofer23/Projekt/services/internal/models"
)

// Plot resolutions returned by QuerySeries.
const (
	ResolutionRaw    = "raw"
	ResolutionHourly = "hourly"
	ResolutionDaily  = "daily"
)

const (
	rawSpanLimit    = 3 * 24 * time.Hour
	hourlySpanLimit = 31 * 24 * time.Hour
)

// Store is the persistence surface shared by the API, the watcher, the
// loader and the trainer.
type Store interface {
	EnsureSchema(ctx context.Context) error
	InsertIfAbsent(ctx context.Context, r models.SensorReading) (bool, error)
	BulkAppend(ctx context.Context, readings []models.SensorReading) (int, error)
	UpsertSensors(ctx context.Context, sensors []models.SensorMetadata) error
	QueryMetadata(ctx context.Context) ([]models.SensorMetadata, error)
	QuerySeries(ctx context.Context, sensorIDs []string, from, to time.Time) (map[string]models.Series, error)
	QueryTrainingSeries(ctx context.Context, sensorID string) ([]models.Point, error)
	Close()
}

// Open connects to the configured driver ("pgx" or "sqlite") and makes sure
// the schema exists.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	var (
		store Store
		err   error
	)
	switch driver {
	case "pgx", "postgres", "":
		store, err = NewPostgres(ctx, dsn)
	case "sqlite":
		store, err = NewSQLite(ctx, dsn)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, nil
}

// ResolutionFor picks the plot resolution for a time range.
func ResolutionFor(from, to time.Time) string {
	span := to.Sub(from)
	switch {
	case span <= rawSpanLimit:
		return ResolutionRaw
	case span <= hourlySpanLimit:
		return ResolutionHourly
	default:
		return ResolutionDaily
	}
}

// emptySeries seeds one series per requested sensor so callers always get
// an entry, titled from the stored metadata when available.
func emptySeries(sensorIDs []string, meta []models.SensorMetadata, resolution string) map[string]models.Series {
	byID := make(map[string]models.SensorMetadata, len(meta))
	for _, m := range meta {
		byID[m.SensorID] = m
	}
	out := make(map[string]models.Series, len(sensorIDs))
	for _, id := range sensorIDs {
		m := byID[id]
		title := m.Title
		if title == "" {
			title = id
		}
		out[id] = models.Series{
			SensorID:   id,
			Title:      title,
			Unit:       m.Unit,
			Resolution: resolution,
			Points:     make([]models.Point, 0),
		}
	}
	return out
}

func appendPoint(series map[string]models.Series, sensorID string, p models.Point) {
	s, ok := series[sensorID]
	if !ok {
		return
	}
	s.Points = append(s.Points, p)
	series[sensorID] = s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
