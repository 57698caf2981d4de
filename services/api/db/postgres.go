package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tombeihofer23/Projekt/services/internal/models"
)

// PGStore wraps database access helpers backed by a pgx pool.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPostgres creates a PGStore backed by a pgx pool.
func NewPostgres(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

// Close releases the pool resources.
func (s *PGStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS sensor_data (
    timestamp   TIMESTAMPTZ NOT NULL,
    box_id      TEXT NOT NULL,
    sensor_id   TEXT NOT NULL,
    measurement DOUBLE PRECISION NOT NULL,
    unit        TEXT,
    sensor_type TEXT,
    icon        TEXT,
    title       TEXT,
    UNIQUE (timestamp, box_id, sensor_id)
)`,
	`CREATE INDEX IF NOT EXISTS sensor_data_sensor_ts_idx ON sensor_data (sensor_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS sensor_metadata (
    sensor_id   TEXT PRIMARY KEY,
    box_id      TEXT NOT NULL,
    unit        TEXT,
    sensor_type TEXT,
    icon        TEXT,
    title       TEXT
)`,
}

// EnsureSchema creates the tables when missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range pgSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const pgInsertReadingSQL = `
INSERT INTO sensor_data (timestamp, box_id, sensor_id, measurement, unit, sensor_type, icon, title)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (timestamp, box_id, sensor_id) DO NOTHING`

func readingArgs(r models.SensorReading) []any {
	return []any{
		r.Timestamp.UTC(), r.BoxID, r.SensorID, r.Measurement,
		nullable(r.Unit), nullable(r.SensorType), nullable(r.Icon), nullable(r.Title),
	}
}

// InsertIfAbsent stores a reading and reports whether it was new.
func (s *PGStore) InsertIfAbsent(ctx context.Context, r models.SensorReading) (bool, error) {
	tag, err := s.pool.Exec(ctx, pgInsertReadingSQL, readingArgs(r)...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// BulkAppend inserts readings in one batch and returns how many were new.
func (s *PGStore) BulkAppend(ctx context.Context, readings []models.SensorReading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, r := range readings {
		batch.Queue(pgInsertReadingSQL, readingArgs(r)...)
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	inserted := 0
	for range readings {
		tag, err := res.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// UpsertSensors inserts/updates sensor metadata records.
func (s *PGStore) UpsertSensors(ctx context.Context, sensors []models.SensorMetadata) error {
	if len(sensors) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `INSERT INTO sensor_metadata (sensor_id, box_id, unit, sensor_type, icon, title)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (sensor_id) DO UPDATE
SET box_id = EXCLUDED.box_id,
    unit = EXCLUDED.unit,
    sensor_type = EXCLUDED.sensor_type,
    icon = EXCLUDED.icon,
    title = EXCLUDED.title`

	for _, m := range sensors {
		batch.Queue(query, m.SensorID, m.BoxID, nullable(m.Unit), nullable(m.SensorType), nullable(m.Icon), nullable(m.Title))
	}

	res := s.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range sensors {
		if _, err := res.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// QueryMetadata returns all stored sensor metadata.
func (s *PGStore) QueryMetadata(ctx context.Context) ([]models.SensorMetadata, error) {
	rows, err := s.pool.Query(ctx, `
SELECT sensor_id, box_id, unit, sensor_type, icon, title
FROM sensor_metadata
ORDER BY sensor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.SensorMetadata, 0)
	for rows.Next() {
		var m models.SensorMetadata
		var unit, typ, icon, title *string
		if err := rows.Scan(&m.SensorID, &m.BoxID, &unit, &typ, &icon, &title); err != nil {
			return nil, err
		}
		m.Unit, m.SensorType, m.Icon, m.Title = deref(unit), deref(typ), deref(icon), deref(title)
		out = append(out, m)
	}
	return out, rows.Err()
}

var pgBucket = map[string]string{
	ResolutionHourly: "hour",
	ResolutionDaily:  "day",
}

// QuerySeries returns one series per requested sensor between from and to,
// aggregated according to ResolutionFor.
func (s *PGStore) QuerySeries(ctx context.Context, sensorIDs []string, from, to time.Time) (map[string]models.Series, error) {
	meta, err := s.QueryMetadata(ctx)
	if err != nil {
		return nil, err
	}
	resolution := ResolutionFor(from, to)
	out := emptySeries(sensorIDs, meta, resolution)
	if len(sensorIDs) == 0 {
		return out, nil
	}

	sql := `
SELECT sensor_id, timestamp, measurement
FROM sensor_data
WHERE sensor_id = ANY($1) AND timestamp BETWEEN $2 AND $3
ORDER BY sensor_id, timestamp`
	if unit, ok := pgBucket[resolution]; ok {
		sql = fmt.Sprintf(`
SELECT sensor_id, date_trunc('%s', "timestamp") AS bucket, AVG(measurement)
FROM sensor_data
WHERE sensor_id = ANY($1) AND timestamp BETWEEN $2 AND $3
GROUP BY sensor_id, bucket
ORDER BY sensor_id, bucket`, unit)
	}

	rows, err := s.pool.Query(ctx, sql, sensorIDs, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			p  models.Point
		)
		if err := rows.Scan(&id, &p.Timestamp, &p.Value); err != nil {
			return nil, err
		}
		p.Timestamp = p.Timestamp.UTC()
		appendPoint(out, id, p)
	}
	return out, rows.Err()
}

// QueryTrainingSeries returns the full raw series of one sensor.
func (s *PGStore) QueryTrainingSeries(ctx context.Context, sensorID string) ([]models.Point, error) {
	rows, err := s.pool.Query(ctx, `
SELECT timestamp, measurement
FROM sensor_data
WHERE sensor_id = $1
ORDER BY timestamp`, sensorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Point, 0)
	for rows.Next() {
		var p models.Point
		if err := rows.Scan(&p.Timestamp, &p.Value); err != nil {
			return nil, err
		}
		p.Timestamp = p.Timestamp.UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}
