// Package sensebox talks to the openSenseMap REST API for a single box.
package sensebox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tombeihofer23/Projekt/services/internal/logging"
	"github.com/tombeihofer23/Projekt/services/internal/metrics"
	"github.com/tombeihofer23/Projekt/services/internal/models"
	"github.com/tombeihofer23/Projekt/services/internal/retry"
)

// DefaultBaseURL is the public openSenseMap API.
const DefaultBaseURL = "https://api.opensensemap.org"

// queryTimeLayout is the timestamp format accepted by from-date/to-date.
const queryTimeLayout = "2006-01-02T15:04:05Z"

var (
	// ErrNoDataFound means the API answered with an empty payload.
	ErrNoDataFound = errors.New("no data found")
	// ErrParse means the payload could not be decoded or lacked required fields.
	ErrParse = errors.New("unexpected payload")
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the status is worth another attempt.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client fetches box metadata and measurements for one box.
type Client struct {
	baseURL    string
	boxID      string
	httpClient *http.Client
	policy     retry.Policy
	logger     *zap.SugaredLogger
	now        func() time.Time
	location   *time.Location
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRetryPolicy replaces the default 3 x 10s policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = logging.OrNop(l) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the zone FetchRecent converts timestamps to.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.location = loc
		}
	}
}

// NewClient returns a client for boxID. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, boxID string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(boxID) == "" {
		return nil, errors.New("box id is required")
	}
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		boxID:      boxID,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		policy:     retry.Default(),
		logger:     zap.NewNop().Sugar(),
		now:        time.Now,
		location:   time.UTC,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BoxID returns the box this client is bound to.
func (c *Client) BoxID() string { return c.boxID }

// Now returns the client's current time.
func (c *Client) Now() time.Time { return c.now() }

type lastMeasurement struct {
	Value     json.RawMessage `json:"value"`
	CreatedAt *string         `json:"createdAt"`
}

type sensorPayload struct {
	ID              string           `json:"_id"`
	Title           string           `json:"title"`
	Unit            string           `json:"unit"`
	SensorType      string           `json:"sensorType"`
	Icon            string           `json:"icon"`
	LastMeasurement *lastMeasurement `json:"lastMeasurement"`
}

type boxPayload struct {
	ID              string `json:"_id"`
	Name            string `json:"name"`
	Exposure        string `json:"exposure"`
	Model           string `json:"model"`
	Image           string `json:"image"`
	CreatedAt       string `json:"createdAt"`
	CurrentLocation *struct {
		Coordinates []float64 `json:"coordinates"`
	} `json:"currentLocation"`
	Sensors []sensorPayload `json:"sensors"`
}

func (c *Client) fetchBoxPayload(ctx context.Context) (boxPayload, error) {
	body, err := c.get(ctx, "box", "/boxes/"+url.PathEscape(c.boxID), nil)
	if err != nil {
		return boxPayload{}, err
	}
	var payload boxPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return boxPayload{}, fmt.Errorf("%w: decode box: %v", ErrParse, err)
	}
	return payload, nil
}

// FetchBox returns the box description including its sensor list.
func (c *Client) FetchBox(ctx context.Context) (models.BoxInfo, error) {
	payload, err := c.fetchBoxPayload(ctx)
	if err != nil {
		return models.BoxInfo{}, err
	}
	created, err := parseTime(payload.CreatedAt)
	if err != nil {
		return models.BoxInfo{}, fmt.Errorf("%w: box createdAt: %v", ErrParse, err)
	}

	info := models.BoxInfo{
		ID:        payload.ID,
		Name:      payload.Name,
		Exposure:  payload.Exposure,
		Model:     payload.Model,
		Image:     payload.Image,
		CreatedAt: created,
		Sensors:   c.metadata(payload.Sensors),
	}
	if info.ID == "" {
		info.ID = c.boxID
	}
	if loc := payload.CurrentLocation; loc != nil && len(loc.Coordinates) >= 2 {
		info.Location = &models.Location{Lon: loc.Coordinates[0], Lat: loc.Coordinates[1]}
	}
	return info, nil
}

// FetchSensors returns the metadata of every sensor on the box.
func (c *Client) FetchSensors(ctx context.Context) ([]models.SensorMetadata, error) {
	payload, err := c.fetchBoxPayload(ctx)
	if err != nil {
		return nil, err
	}
	return c.metadata(payload.Sensors), nil
}

func (c *Client) metadata(sensors []sensorPayload) []models.SensorMetadata {
	out := make([]models.SensorMetadata, 0, len(sensors))
	for _, s := range sensors {
		if s.ID == "" {
			continue
		}
		out = append(out, models.SensorMetadata{
			SensorID:   s.ID,
			BoxID:      c.boxID,
			Unit:       s.Unit,
			SensorType: s.SensorType,
			Icon:       s.Icon,
			Title:      s.Title,
		})
	}
	return out
}

// FetchLatest returns the last measurement of every sensor. Sensors without a
// last measurement or with a non-numeric value are skipped. It returns nil
// when nothing usable was reported.
func (c *Client) FetchLatest(ctx context.Context) ([]models.SensorReading, error) {
	payload, err := c.fetchBoxPayload(ctx)
	if err != nil {
		return nil, err
	}

	var readings []models.SensorReading
	for _, s := range payload.Sensors {
		lm := s.LastMeasurement
		if s.ID == "" || lm == nil || lm.CreatedAt == nil || models.IsNull(lm.Value) {
			continue
		}
		ts, err := parseTime(*lm.CreatedAt)
		if err != nil {
			c.logger.Warnw("skipping sensor with bad timestamp", "sensor_id", s.ID, "error", err)
			continue
		}
		value, err := models.ParseMeasurement(lm.Value)
		if err != nil {
			c.logger.Warnw("skipping sensor with bad value", "sensor_id", s.ID, "error", err)
			continue
		}
		meta := models.SensorMetadata{
			SensorID:   s.ID,
			BoxID:      c.boxID,
			Unit:       s.Unit,
			SensorType: s.SensorType,
			Icon:       s.Icon,
			Title:      s.Title,
		}
		readings = append(readings, meta.Apply(models.SensorReading{
			Timestamp:   ts,
			BoxID:       c.boxID,
			SensorID:    s.ID,
			Measurement: value,
		}))
	}

	if len(readings) == 0 {
		c.logger.Warnw("box reported no current measurements", "box_id", c.boxID)
		return nil, nil
	}
	return readings, nil
}

// FetchWindow returns the measurements of one sensor inside window. Rows with
// a null or non-numeric value are dropped; the result may be empty.
//
// An empty payload yields ErrNoDataFound. A payload that is not a list of
// rows, or whose rows carry no createdAt field at all, yields ErrParse.
func (c *Client) FetchWindow(ctx context.Context, sensorID string, window models.TimeInterval) ([]models.SensorReading, error) {
	params := url.Values{}
	params.Set("from-date", window.Start.UTC().Format(queryTimeLayout))
	params.Set("to-date", window.End.UTC().Format(queryTimeLayout))
	path := "/boxes/" + url.PathEscape(c.boxID) + "/data/" + url.PathEscape(sensorID)

	body, err := c.get(ctx, "data", path, params)
	if err != nil {
		return nil, err
	}

	var rows []map[string]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("%w: decode measurements: %v", ErrParse, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sensor %s in %s", ErrNoDataFound, sensorID, formatWindow(window))
	}

	hasCreatedAt := false
	for _, row := range rows {
		if _, ok := row["createdAt"]; ok {
			hasCreatedAt = true
			break
		}
	}
	if !hasCreatedAt {
		return nil, fmt.Errorf("%w: rows have no createdAt", ErrParse)
	}

	readings := make([]models.SensorReading, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		var created string
		if raw, ok := row["createdAt"]; !ok || models.IsNull(raw) || json.Unmarshal(raw, &created) != nil {
			dropped++
			continue
		}
		ts, err := parseTime(created)
		if err != nil {
			dropped++
			continue
		}
		value, err := models.ParseMeasurement(row["value"])
		if err != nil {
			dropped++
			continue
		}
		readings = append(readings, models.SensorReading{
			Timestamp:   ts,
			BoxID:       c.boxID,
			SensorID:    sensorID,
			Measurement: value,
		})
	}
	if dropped > 0 {
		c.logger.Debugw("dropped incomplete rows", "sensor_id", sensorID, "window", formatWindow(window), "dropped", dropped)
	}
	return readings, nil
}

// FetchRecent returns the readings of one sensor over the last lookback,
// sorted by time and converted to the client's location.
func (c *Client) FetchRecent(ctx context.Context, sensorID string, lookback time.Duration) ([]models.SensorReading, error) {
	now := c.now().UTC()
	readings, err := c.FetchWindow(ctx, sensorID, models.TimeInterval{Start: now.Add(-lookback), End: now})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})
	for i := range readings {
		readings[i].Timestamp = readings[i].Timestamp.In(c.location)
	}
	return readings, nil
}

// get performs a GET under the retry policy and returns the raw body.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	full := c.baseURL + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	policy := c.policy
	userHook := policy.OnRetry
	policy.OnRetry = func(attempt int, err error) {
		c.logger.Warnw("API request failed, retrying", "endpoint", endpoint, "attempt", attempt, "error", err)
		metrics.IncRetry(endpoint)
		if userHook != nil {
			userHook(attempt, err)
		}
	}

	var body []byte
	err := policy.Do(ctx, func(ctx context.Context) error {
		b, err := c.doRequest(ctx, full)
		if err != nil {
			var ae *APIError
			if errors.As(err, &ae) && !ae.Retryable() {
				return retry.Permanent(err)
			}
			return err
		}
		trimmed := bytes.TrimSpace(b)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("[]")) ||
			bytes.Equal(trimmed, []byte("{}")) || bytes.Equal(trimmed, []byte("null")) {
			return retry.Permanent(fmt.Errorf("%w: %s", ErrNoDataFound, full))
		}
		body = trimmed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) doRequest(ctx context.Context, full string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", full, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func parseTime(s string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

func formatWindow(w models.TimeInterval) string {
	return w.Start.UTC().Format(queryTimeLayout) + ".." + w.End.UTC().Format(queryTimeLayout)
}
