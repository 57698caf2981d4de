package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Validation errors returned by Validate. Callers match them with errors.Is.
var (
	ErrMissingTimestamp = errors.New("timestamp is required")
	ErrFutureTimestamp  = errors.New("timestamp must be in the past")
	ErrMissingBoxID     = errors.New("box_id is required")
	ErrMissingSensorID  = errors.New("sensor_id is required")
	ErrInvalidValue     = errors.New("measurement is not a finite number")
)

// Validate checks a reading before it is written to storage.
func Validate(r SensorReading, now time.Time) error {
	switch {
	case r.Timestamp.IsZero():
		return ErrMissingTimestamp
	case !r.Timestamp.Before(now):
		return ErrFutureTimestamp
	case strings.TrimSpace(r.BoxID) == "":
		return ErrMissingBoxID
	case strings.TrimSpace(r.SensorID) == "":
		return ErrMissingSensorID
	case math.IsNaN(r.Measurement) || math.IsInf(r.Measurement, 0):
		return ErrInvalidValue
	}
	return nil
}

// FilterValid splits readings into valid ones and the number rejected.
func FilterValid(readings []SensorReading, now time.Time) ([]SensorReading, int) {
	out := make([]SensorReading, 0, len(readings))
	rejected := 0
	for _, r := range readings {
		if Validate(r, now) != nil {
			rejected++
			continue
		}
		out = append(out, r)
	}
	return out, rejected
}

// IsNull reports whether a raw JSON value is absent or null.
func IsNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// ParseMeasurement converts a JSON number or numeric string into a float.
// The SenseBox API reports values as strings.
func ParseMeasurement(raw json.RawMessage) (float64, error) {
	if IsNull(raw) {
		return 0, ErrInvalidValue
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidValue, string(raw))
		}
		v, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidValue, s)
		}
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidValue
	}
	return v, nil
}
