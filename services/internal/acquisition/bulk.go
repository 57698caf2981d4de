package acquisition

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tombeihofer23/Projekt/services/internal/dataset"
	"github.com/tombeihofer23/Projekt/services/internal/logging"
	"github.com/tombeihofer23/Projekt/services/internal/metrics"
	"github.com/tombeihofer23/Projekt/services/internal/models"
)

// DefaultChunkSize is the number of rows appended per batch.
const DefaultChunkSize = 5000

// Appender is the storage side of the bulk loader.
type Appender interface {
	BulkAppend(ctx context.Context, readings []models.SensorReading) (int, error)
}

// SensorWriter is implemented by stores that keep sensor metadata.
type SensorWriter interface {
	UpsertSensors(ctx context.Context, sensors []models.SensorMetadata) error
}

// BulkReport summarises one bulk load.
type BulkReport struct {
	Partitions int `json:"partitions"`
	Read       int `json:"read"`
	Invalid    int `json:"invalid"`
	Appended   int `json:"appended"`
	Duplicates int `json:"duplicates"`
}

// BulkLoader moves a partitioned dataset into storage.
type BulkLoader struct {
	Store     Appender
	ChunkSize int
	// ClearConsumed removes each partition once it has been stored.
	ClearConsumed bool
	Logger        *zap.SugaredLogger
	Now           func() time.Time
}

// BulkLoad loads every partition under dir into store.
func BulkLoad(ctx context.Context, dir string, store Appender, chunkSize int) (BulkReport, error) {
	return BulkLoader{Store: store, ChunkSize: chunkSize}.Load(ctx, dir)
}

// Load reads each partition, drops invalid rows and appends the rest in
// chunks. Sensor metadata is upserted first when the store supports it.
func (b BulkLoader) Load(ctx context.Context, dir string) (BulkReport, error) {
	var report BulkReport
	log := logging.OrNop(b.Logger)
	chunk := b.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	ids, err := dataset.Partitions(dir)
	if err != nil {
		return report, err
	}
	if len(ids) == 0 {
		log.Infow("no partitions to load", "dir", dir)
		return report, nil
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		rows, err := dataset.ReadPartition(ctx, dir, id)
		if err != nil {
			return report, fmt.Errorf("read partition %s: %w", id, err)
		}
		report.Partitions++
		report.Read += len(rows)

		valid, invalid := models.FilterValid(rows, now())
		report.Invalid += invalid
		if invalid > 0 {
			log.Warnw("dropped invalid rows", "sensor_id", id, "invalid", invalid)
		}

		if sw, ok := b.Store.(SensorWriter); ok && len(valid) > 0 {
			if err := sw.UpsertSensors(ctx, []models.SensorMetadata{metadataOf(valid[0])}); err != nil {
				return report, fmt.Errorf("upsert sensor %s: %w", id, err)
			}
		}

		appended := 0
		for start := 0; start < len(valid); start += chunk {
			end := start + chunk
			if end > len(valid) {
				end = len(valid)
			}
			n, err := b.Store.BulkAppend(ctx, valid[start:end])
			if err != nil {
				return report, fmt.Errorf("append partition %s: %w", id, err)
			}
			appended += n
		}
		report.Appended += appended
		report.Duplicates += len(valid) - appended
		metrics.AddBulkRows(appended)

		log.Infow("partition loaded", "sensor_id", id, "rows", len(rows), "appended", appended)

		if b.ClearConsumed {
			if err := dataset.ClearPartition(dir, id); err != nil {
				return report, fmt.Errorf("clear partition %s: %w", id, err)
			}
		}
	}
	return report, nil
}

func metadataOf(r models.SensorReading) models.SensorMetadata {
	return models.SensorMetadata{
		SensorID:   r.SensorID,
		BoxID:      r.BoxID,
		Unit:       r.Unit,
		SensorType: r.SensorType,
		Icon:       r.Icon,
		Title:      r.Title,
	}
}
