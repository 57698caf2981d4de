package models

import "time"

// SensorReading is one measurement of one sensor on a box.
type SensorReading struct {
	Timestamp   time.Time `json:"timestamp"`
	BoxID       string    `json:"box_id"`
	SensorID    string    `json:"sensor_id"`
	Measurement float64   `json:"measurement"`
	Unit        string    `json:"unit,omitempty"`
	SensorType  string    `json:"sensor_type,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Title       string    `json:"title,omitempty"`
}

// SensorMetadata holds the static description of a sensor channel.
type SensorMetadata struct {
	SensorID   string `json:"sensor_id"`
	BoxID      string `json:"box_id"`
	Unit       string `json:"unit"`
	SensorType string `json:"sensor_type"`
	Icon       string `json:"icon"`
	Title      string `json:"title"`
}

// Apply copies the descriptive metadata onto a reading.
func (m SensorMetadata) Apply(r SensorReading) SensorReading {
	r.Unit = m.Unit
	r.SensorType = m.SensorType
	r.Icon = m.Icon
	r.Title = m.Title
	if r.BoxID == "" {
		r.BoxID = m.BoxID
	}
	return r
}

// Location is a lon/lat pair as reported by the box endpoint.
type Location struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// BoxInfo describes a SenseBox station.
type BoxInfo struct {
	ID        string           `json:"box_id"`
	Name      string           `json:"name"`
	Exposure  string           `json:"exposure,omitempty"`
	Model     string           `json:"model,omitempty"`
	Image     string           `json:"image,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	Location  *Location        `json:"location,omitempty"`
	Sensors   []SensorMetadata `json:"sensors"`
}

// TimeInterval is a closed range used to page the data endpoint.
type TimeInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Point is a single (timestamp, value) sample of a sensor series.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Series is a titled sensor series ready for plotting.
type Series struct {
	SensorID   string  `json:"sensor_id"`
	Title      string  `json:"title"`
	Unit       string  `json:"unit"`
	Resolution string  `json:"resolution"`
	Points     []Point `json:"points"`
}
