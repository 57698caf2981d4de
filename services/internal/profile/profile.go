// Package profile loads dashboard profiles. A profile binds one SenseBox
// installation to its display settings and forecast sensor.
package profile

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Forecast configures the forecast panel. An empty SensorID disables it.
type Forecast struct {
	SensorID string        `yaml:"sensor_id"`
	Title    string        `yaml:"title"`
	Unit     string        `yaml:"unit"`
	Headline string        `yaml:"headline"`
	Lookback time.Duration `yaml:"lookback"`
}

// Enabled reports whether a forecast sensor is configured.
func (f Forecast) Enabled() bool { return f.SensorID != "" }

// Profile is one dashboard.
type Profile struct {
	Name           string        `yaml:"name"`
	Title          string        `yaml:"title"`
	BoxID          string        `yaml:"box_id"`
	APIBaseURL     string        `yaml:"api_base_url"`
	Timezone       string        `yaml:"timezone"`
	DefaultSensors []string      `yaml:"default_sensors"`
	DefaultRange   time.Duration `yaml:"default_range"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	Forecast       Forecast      `yaml:"forecast"`

	location *time.Location
}

// Location returns the display time zone.
func (p *Profile) Location() *time.Location {
	if p.location == nil {
		return time.UTC
	}
	return p.location
}

// Load reads and validates a profile file.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	return Parse(data)
}

// Parse decodes a profile and fills defaults.
func Parse(data []byte) (*Profile, error) {
	p := &Profile{
		APIBaseURL:   "https://api.opensensemap.org",
		Timezone:     "UTC",
		DefaultRange: 48 * time.Hour,
		PollInterval: 4 * time.Minute,
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	p.BoxID = strings.TrimSpace(p.BoxID)
	if p.BoxID == "" {
		return nil, errors.New("profile: box_id is required")
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("profile: invalid timezone %q: %w", p.Timezone, err)
	}
	p.location = loc

	if p.Name == "" {
		p.Name = p.BoxID
	}
	if p.Title == "" {
		p.Title = p.Name
	}
	if p.DefaultRange <= 0 {
		return nil, errors.New("profile: default_range must be positive")
	}
	if p.PollInterval <= 0 {
		return nil, errors.New("profile: poll_interval must be positive")
	}
	if p.Forecast.Enabled() {
		if p.Forecast.Lookback <= 0 {
			p.Forecast.Lookback = 8 * time.Hour
		}
		if p.Forecast.Title == "" {
			p.Forecast.Title = "Temperatur"
		}
		if p.Forecast.Headline == "" {
			p.Forecast.Headline = p.Forecast.Title + "entwicklung"
		}
	}
	return p, nil
}
