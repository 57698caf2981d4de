// Package dataset stores sensor readings as a hive-partitioned Parquet
// dataset with one directory per sensor.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/apache/arrow/go/v17/parquet"
	"github.com/apache/arrow/go/v17/parquet/compress"
	"github.com/apache/arrow/go/v17/parquet/pqarrow"
	"github.com/google/uuid"

	"github.com/tombeihofer23/Projekt/services/internal/models"
)

// PartitionKey is the hive partition column.
const PartitionKey = "sensor_partition"

const (
	colTimestamp   = "timestamp"
	colMeasurement = "measurement"
	colBoxID       = "box_id"
	colSensorID    = "sensor_id"
	colUnit        = "unit"
	colSensorType  = "sensor_type"
	colIcon        = "icon"
	colTitle       = "title"
)

var schema = arrow.NewSchema([]arrow.Field{
	{Name: colTimestamp, Type: &arrow.TimestampType{Unit: arrow.Millisecond, TimeZone: "UTC"}},
	{Name: colMeasurement, Type: arrow.PrimitiveTypes.Float64},
	{Name: colBoxID, Type: arrow.BinaryTypes.String},
	{Name: colSensorID, Type: arrow.BinaryTypes.String},
	{Name: colUnit, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: colSensorType, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: colIcon, Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: colTitle, Type: arrow.BinaryTypes.String, Nullable: true},
}, nil)

// PartitionDir returns the directory holding one sensor's files.
func PartitionDir(root, sensorID string) string {
	return filepath.Join(root, PartitionKey+"="+sensorID)
}

// WritePartition appends readings of one sensor as a new snappy-compressed
// Parquet file and returns its path. Existing files are never rewritten.
func WritePartition(root, sensorID string, readings []models.SensorReading) (string, error) {
	if strings.TrimSpace(sensorID) == "" {
		return "", errors.New("sensor id is required")
	}
	if len(readings) == 0 {
		return "", errors.New("no readings to write")
	}

	dir := PartitionDir(root, sensorID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create partition dir: %w", err)
	}
	path := filepath.Join(dir, uuid.NewString()+"-0.parquet")

	rec := buildRecord(memory.DefaultAllocator, sensorID, readings)
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create parquet file: %w", err)
	}
	defer f.Close()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	fw, err := pqarrow.NewFileWriter(schema, f, props, pqarrow.DefaultWriterProps())
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("open parquet writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		os.Remove(path)
		return "", fmt.Errorf("write parquet: %w", err)
	}
	if err := fw.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close parquet: %w", err)
	}
	return path, nil
}

func buildRecord(mem memory.Allocator, sensorID string, readings []models.SensorReading) arrow.Record {
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()

	ts := b.Field(0).(*array.TimestampBuilder)
	meas := b.Field(1).(*array.Float64Builder)
	strs := make([]*array.StringBuilder, 0, 6)
	for i := 2; i < len(schema.Fields()); i++ {
		strs = append(strs, b.Field(i).(*array.StringBuilder))
	}

	for _, r := range readings {
		ts.Append(arrow.Timestamp(r.Timestamp.UTC().UnixMilli()))
		meas.Append(r.Measurement)

		sid := r.SensorID
		if sid == "" {
			sid = sensorID
		}
		strs[0].Append(r.BoxID)
		strs[1].Append(sid)
		appendOptional(strs[2], r.Unit)
		appendOptional(strs[3], r.SensorType)
		appendOptional(strs[4], r.Icon)
		appendOptional(strs[5], r.Title)
	}
	return b.NewRecord()
}

func appendOptional(b *array.StringBuilder, v string) {
	if v == "" {
		b.AppendNull()
		return
	}
	b.Append(v)
}

// Partitions lists the sensor ids that have a partition directory under root,
// sorted. A missing root has no partitions.
func Partitions(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}

	prefix := PartitionKey + "="
	var ids []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), prefix) {
			continue
		}
		if id := strings.TrimPrefix(e.Name(), prefix); id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ReadPartition reads every file of one sensor partition, ordered by
// timestamp.
func ReadPartition(ctx context.Context, root, sensorID string) ([]models.SensorReading, error) {
	files, err := filepath.Glob(filepath.Join(PartitionDir(root, sensorID), "*.parquet"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var out []models.SensorReading
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := readFile(ctx, path, sensorID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, rows...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// ReadPartitions reads the whole dataset keyed by sensor id.
func ReadPartitions(ctx context.Context, root string) (map[string][]models.SensorReading, error) {
	ids, err := Partitions(root)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]models.SensorReading, len(ids))
	for _, id := range ids {
		rows, err := ReadPartition(ctx, root, id)
		if err != nil {
			return nil, err
		}
		out[id] = rows
	}
	return out, nil
}

// ClearPartition removes one sensor partition.
func ClearPartition(root, sensorID string) error {
	return os.RemoveAll(PartitionDir(root, sensorID))
}

// Clear removes every partition under root and leaves root in place.
func Clear(root string) error {
	ids, err := Partitions(root)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := ClearPartition(root, id); err != nil {
			return err
		}
	}
	return nil
}

func readFile(ctx context.Context, path, partition string) ([]models.SensorReading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	mem := memory.DefaultAllocator
	tbl, err := pqarrow.ReadTable(ctx, f, parquet.NewReaderProperties(mem), pqarrow.ArrowReadProperties{}, mem)
	if err != nil {
		return nil, err
	}
	defer tbl.Release()

	tr := array.NewTableReader(tbl, 0)
	defer tr.Release()

	var out []models.SensorReading
	for tr.Next() {
		rows, err := decodeRecord(tr.Record(), partition)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func decodeRecord(rec arrow.Record, partition string) ([]models.SensorReading, error) {
	col := func(name string) arrow.Array {
		idx := rec.Schema().FieldIndices(name)
		if len(idx) == 0 {
			return nil
		}
		return rec.Column(idx[0])
	}

	ts, ok := col(colTimestamp).(*array.Timestamp)
	if !ok {
		return nil, fmt.Errorf("column %q missing or not a timestamp", colTimestamp)
	}
	meas, ok := col(colMeasurement).(*array.Float64)
	if !ok {
		return nil, fmt.Errorf("column %q missing or not float64", colMeasurement)
	}
	unit, _ := ts.DataType().(*arrow.TimestampType)
	tsUnit := arrow.Millisecond
	if unit != nil {
		tsUnit = unit.Unit
	}

	boxID := col(colBoxID)
	sensorID := col(colSensorID)
	unitCol := col(colUnit)
	typeCol := col(colSensorType)
	iconCol := col(colIcon)
	titleCol := col(colTitle)

	n := int(rec.NumRows())
	out := make([]models.SensorReading, 0, n)
	for i := 0; i < n; i++ {
		if ts.IsNull(i) || meas.IsNull(i) {
			continue
		}
		r := models.SensorReading{
			Timestamp:   ts.Value(i).ToTime(tsUnit).UTC(),
			Measurement: meas.Value(i),
			BoxID:       stringAt(boxID, i),
			SensorID:    stringAt(sensorID, i),
			Unit:        stringAt(unitCol, i),
			SensorType:  stringAt(typeCol, i),
			Icon:        stringAt(iconCol, i),
			Title:       stringAt(titleCol, i),
		}
		if r.SensorID == "" {
			r.SensorID = partition
		}
		out = append(out, r)
	}
	return out, nil
}

func stringAt(a arrow.Array, i int) string {
	if a == nil || a.IsNull(i) {
		return ""
	}
	switch v := a.(type) {
	case *array.String:
		return v.Value(i)
	case *array.LargeString:
		return v.Value(i)
	case *array.Binary:
		return string(v.Value(i))
	}
	return ""
}

// Span returns the first and last timestamp of readings.
func Span(readings []models.SensorReading) (time.Time, time.Time) {
	if len(readings) == 0 {
		return time.Time{}, time.Time{}
	}
	first, last := readings[0].Timestamp, readings[0].Timestamp
	for _, r := range readings[1:] {
		if r.Timestamp.Before(first) {
			first = r.Timestamp
		}
		if r.Timestamp.After(last) {
			last = r.Timestamp
		}
	}
	return first, last
}
