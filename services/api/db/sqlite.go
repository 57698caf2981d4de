package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tombeihofer23/Projekt/services/internal/models"
)

// SQLiteStore is the embedded store used for local runs. Timestamps are kept
// as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens (or creates) the database file at path.
func NewSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One physical connection serialises writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS sensor_data (
    timestamp   INTEGER NOT NULL,
    box_id      TEXT NOT NULL,
    sensor_id   TEXT NOT NULL,
    measurement REAL NOT NULL,
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
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range sqliteSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

const sqliteInsertReadingSQL = `
INSERT OR IGNORE INTO sensor_data (timestamp, box_id, sensor_id, measurement, unit, sensor_type, icon, title)
VALUES (?,?,?,?,?,?,?,?)`

func sqliteReadingArgs(r models.SensorReading) []any {
	return []any{
		r.Timestamp.UnixMilli(), r.BoxID, r.SensorID, r.Measurement,
		nullable(r.Unit), nullable(r.SensorType), nullable(r.Icon), nullable(r.Title),
	}
}

// InsertIfAbsent stores a reading and reports whether it was new.
func (s *SQLiteStore) InsertIfAbsent(ctx context.Context, r models.SensorReading) (bool, error) {
	res, err := s.db.ExecContext(ctx, sqliteInsertReadingSQL, sqliteReadingArgs(r)...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// BulkAppend inserts readings in one transaction and returns how many were new.
func (s *SQLiteStore) BulkAppend(ctx context.Context, readings []models.SensorReading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, sqliteInsertReadingSQL)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range readings {
		res, err := stmt.ExecContext(ctx, sqliteReadingArgs(r)...)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// UpsertSensors inserts/updates sensor metadata records.
func (s *SQLiteStore) UpsertSensors(ctx context.Context, sensors []models.SensorMetadata) error {
	if len(sensors) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range sensors {
		if _, err := tx.ExecContext(ctx, `INSERT INTO sensor_metadata (sensor_id, box_id, unit, sensor_type, icon, title)
VALUES (?,?,?,?,?,?)
ON CONFLICT (sensor_id) DO UPDATE
SET box_id = excluded.box_id,
    unit = excluded.unit,
    sensor_type = excluded.sensor_type,
    icon = excluded.icon,
    title = excluded.title`,
			m.SensorID, m.BoxID, nullable(m.Unit), nullable(m.SensorType), nullable(m.Icon), nullable(m.Title)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// QueryMetadata returns all stored sensor metadata.
func (s *SQLiteStore) QueryMetadata(ctx context.Context) ([]models.SensorMetadata, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var unit, typ, icon, title sql.NullString
		if err := rows.Scan(&m.SensorID, &m.BoxID, &unit, &typ, &icon, &title); err != nil {
			return nil, err
		}
		m.Unit, m.SensorType, m.Icon, m.Title = unit.String, typ.String, icon.String, title.String
		out = append(out, m)
	}
	return out, rows.Err()
}

var sqliteBucketMillis = map[string]int64{
	ResolutionHourly: int64(time.Hour / time.Millisecond),
	ResolutionDaily:  int64(24 * time.Hour / time.Millisecond),
}

// QuerySeries returns one series per requested sensor between from and to,
// aggregated according to ResolutionFor.
func (s *SQLiteStore) QuerySeries(ctx context.Context, sensorIDs []string, from, to time.Time) (map[string]models.Series, error) {
	meta, err := s.QueryMetadata(ctx)
	if err != nil {
		return nil, err
	}
	resolution := ResolutionFor(from, to)
	out := emptySeries(sensorIDs, meta, resolution)
	if len(sensorIDs) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(sensorIDs)), ",")
	args := make([]any, 0, len(sensorIDs)+2)
	for _, id := range sensorIDs {
		args = append(args, id)
	}
	args = append(args, from.UnixMilli(), to.UnixMilli())

	query := fmt.Sprintf(`
SELECT sensor_id, timestamp, measurement
FROM sensor_data
WHERE sensor_id IN (%s) AND timestamp BETWEEN ? AND ?
ORDER BY sensor_id, timestamp`, placeholders)
	if width, ok := sqliteBucketMillis[resolution]; ok {
		query = fmt.Sprintf(`
SELECT sensor_id, (timestamp / %d) * %d AS bucket, AVG(measurement)
FROM sensor_data
WHERE sensor_id IN (%s) AND timestamp BETWEEN ? AND ?
GROUP BY sensor_id, bucket
ORDER BY sensor_id, bucket`, width, width, placeholders)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    string
			ms    int64
			value float64
		)
		if err := rows.Scan(&id, &ms, &value); err != nil {
			return nil, err
		}
		appendPoint(out, id, models.Point{Timestamp: time.UnixMilli(ms).UTC(), Value: value})
	}
	return out, rows.Err()
}

// QueryTrainingSeries returns the full raw series of one sensor.
func (s *SQLiteStore) QueryTrainingSeries(ctx context.Context, sensorID string) ([]models.Point, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT timestamp, measurement
FROM sensor_data
WHERE sensor_id = ?
ORDER BY timestamp`, sensorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Point, 0)
	for rows.Next() {
		var ms int64
		var value float64
		if err := rows.Scan(&ms, &value); err != nil {
			return nil, err
		}
		out = append(out, models.Point{Timestamp: time.UnixMilli(ms).UTC(), Value: value})
	}
	return out, rows.Err()
}
