package models

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validReading(now time.Time) SensorReading {
	return SensorReading{
		Timestamp:   now.Add(-time.Minute),
		BoxID:       "box",
		SensorID:    "temp",
		Measurement: 21.5,
	}
}

func TestValidate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, Validate(validReading(now), now))

	r := validReading(now)
	r.Timestamp = time.Time{}
	assert.ErrorIs(t, Validate(r, now), ErrMissingTimestamp)

	r = validReading(now)
	r.Timestamp = now.Add(time.Hour)
	assert.ErrorIs(t, Validate(r, now), ErrFutureTimestamp)

	r = validReading(now)
	r.BoxID = " "
	assert.ErrorIs(t, Validate(r, now), ErrMissingBoxID)

	r = validReading(now)
	r.SensorID = ""
	assert.ErrorIs(t, Validate(r, now), ErrMissingSensorID)

	r = validReading(now)
	r.Measurement = math.NaN()
	assert.ErrorIs(t, Validate(r, now), ErrInvalidValue)

	r = validReading(now)
	r.Measurement = math.Inf(1)
	assert.ErrorIs(t, Validate(r, now), ErrInvalidValue)
}

func TestFilterValid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	bad := validReading(now)
	bad.Measurement = math.NaN()

	out, rejected := FilterValid([]SensorReading{validReading(now), bad, validReading(now)}, now)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, rejected)
}

func TestParseMeasurement(t *testing.T) {
	cases := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{raw: `"21.34"`, want: 21.34},
		{raw: `12.5`, want: 12.5},
		{raw: `" 7 "`, want: 7},
		{raw: `null`, wantErr: true},
		{raw: ``, wantErr: true},
		{raw: `"abc"`, wantErr: true},
		{raw: `"NaN"`, wantErr: true},
		{raw: `{"x":1}`, wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseMeasurement(json.RawMessage(tc.raw))
		if tc.wantErr {
			assert.ErrorIs(t, err, ErrInvalidValue, "raw=%s", tc.raw)
			continue
		}
		require.NoError(t, err, "raw=%s", tc.raw)
		assert.InDelta(t, tc.want, got, 1e-12)
	}
}

func TestMetadataApply(t *testing.T) {
	meta := SensorMetadata{SensorID: "temp", BoxID: "box", Unit: "°C", SensorType: "HDC1080", Icon: "osem-thermometer", Title: "Temperatur"}
	r := meta.Apply(SensorReading{SensorID: "temp", Measurement: 1})

	assert.Equal(t, "box", r.BoxID)
	assert.Equal(t, "°C", r.Unit)
	assert.Equal(t, "HDC1080", r.SensorType)
	assert.Equal(t, "osem-thermometer", r.Icon)
	assert.Equal(t, "Temperatur", r.Title)
}
