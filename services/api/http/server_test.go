package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombeihofer23/Projekt/services/api/config"
	"github.com/tombeihofer23/Projekt/services/api/db"
	"github.com/tombeihofer23/Projekt/services/internal/forecast"
	"github.com/tombeihofer23/Projekt/services/internal/ingest"
	"github.com/tombeihofer23/Projekt/services/internal/models"
	"github.com/tombeihofer23/Projekt/services/internal/profile"
)

const testProfile = `
name: ffm
title: Frankfurt Ost
box_id: box-1
timezone: Europe/Berlin
default_sensors: [s1]
forecast:
  sensor_id: s1
  unit: "°C"
`

var lastReading = time.Date(2025, 6, 26, 14, 0, 0, 0, time.UTC)

type fakeBox struct {
	box       models.BoxInfo
	err       error
	recent    []models.SensorReading
	recentErr error
}

func (f *fakeBox) FetchBox(context.Context) (models.BoxInfo, error) { return f.box, f.err }

func (f *fakeBox) FetchRecent(context.Context, string, time.Duration) ([]models.SensorReading, error) {
	return f.recent, f.recentErr
}

type fakePoller struct {
	res ingest.Result
	err error
}

func (f *fakePoller) PollOnce(context.Context) (ingest.Result, error) { return f.res, f.err }

type flatRegressor struct{ value float64 }

func (r flatRegressor) Predict(context.Context, forecast.FeatureRow) ([]float64, error) {
	out := make([]float64, forecast.DefaultHorizon)
	for i := range out {
		out[i] = r.value
	}
	return out, nil
}

func recentReadings(n int) []models.SensorReading {
	out := make([]models.SensorReading, n)
	for i := range out {
		out[i] = models.SensorReading{
			Timestamp:   lastReading.Add(-time.Duration(n-1-i) * 3 * time.Minute),
			BoxID:       "box-1",
			SensorID:    "s1",
			Measurement: 20 + float64(i)/10,
		}
	}
	return out
}

func newTestServer(t *testing.T, cfg config.Config, mutate func(*Deps)) (*Server, db.Store) {
	t.Helper()
	store, err := db.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	prof, err := profile.Parse([]byte(testProfile))
	require.NoError(t, err)

	deps := Deps{
		Store:    store,
		Profile:  prof,
		Box:      &fakeBox{box: models.BoxInfo{ID: "box-1", Name: "Frankfurt Ost"}, recent: recentReadings(25)},
		Poller:   &fakePoller{},
		Forecast: forecast.NewPipeline(flatRegressor{value: 21.5}),
	}
	if mutate != nil {
		mutate(&deps)
	}
	return New(cfg, deps), store
}

func do(t *testing.T, srv *Server, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{}, nil)
	w := do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "box-1", decode(t, w)["box_id"])

	w = do(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBearerAuth(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{BearerToken: "secret"}, nil)

	w := do(t, srv, http.MethodGet, "/api/v1/core/sensors", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, srv, http.MethodGet, "/api/v1/core/sensors", http.Header{"Authorization": {"Bearer secret"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v1", w.Header().Get("X-API-Version"))

	w = do(t, srv, http.MethodGet, "/api/v1/core/sensors?access_token=secret", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func signed(t *testing.T, method jwt.SigningMethod, secret []byte, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, Claims{
		Scope: "dashboard",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "viewer",
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := token.SignedString(secret)
	require.NoError(t, err)
	return s
}

func TestJWTAuth(t *testing.T) {
	secret := []byte("jwt-secret")
	srv, _ := newTestServer(t, config.Config{JWTSecret: string(secret), BearerToken: "ignored"}, nil)
	bearer := func(tok string) http.Header { return http.Header{"Authorization": {"Bearer " + tok}} }

	valid := signed(t, jwt.SigningMethodHS256, secret, time.Now().Add(time.Hour))
	w := do(t, srv, http.MethodGet, "/api/v1/core/sensors", bearer(valid))
	assert.Equal(t, http.StatusOK, w.Code)

	cases := map[string]string{
		"expired":      signed(t, jwt.SigningMethodHS256, secret, time.Now().Add(-time.Hour)),
		"wrong secret": signed(t, jwt.SigningMethodHS256, []byte("other"), time.Now().Add(time.Hour)),
		"wrong alg":    signed(t, jwt.SigningMethodHS384, secret, time.Now().Add(time.Hour)),
		"static token": "ignored",
	}
	for name, tok := range cases {
		w := do(t, srv, http.MethodGet, "/api/v1/core/sensors", bearer(tok))
		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
	}

	claims, err := ParseJWT(valid, secret)
	require.NoError(t, err)
	assert.Equal(t, "viewer", claims.Subject)
	assert.Equal(t, "dashboard", claims.Scope)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{CORSOrigin: "https://dash.example"}, nil)
	w := do(t, srv, http.MethodOptions, "/api/v1/core/series", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://dash.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBox(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{}, nil)
	w := do(t, srv, http.MethodGet, "/api/v1/core/box", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Frankfurt Ost", body["data"].(map[string]any)["name"])
	assert.Equal(t, "Europe/Berlin", body["meta"].(map[string]any)["timezone"])

	srv, _ = newTestServer(t, config.Config{}, func(d *Deps) { d.Box = &fakeBox{err: errors.New("offline")} })
	w = do(t, srv, http.MethodGet, "/api/v1/core/box", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestSensorsAndSeries(t *testing.T) {
	srv, store := newTestServer(t, config.Config{}, nil)
	ctx := context.Background()
	require.NoError(t, store.UpsertSensors(ctx, []models.SensorMetadata{{SensorID: "s1", BoxID: "box-1", Title: "Temperatur", Unit: "°C"}}))
	_, err := store.BulkAppend(ctx, recentReadings(3))
	require.NoError(t, err)

	w := do(t, srv, http.MethodGet, "/api/v1/core/sensors", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["meta"].(map[string]any)["count"])

	start := lastReading.Add(-time.Hour).Format(time.RFC3339)
	end := lastReading.Add(time.Hour).Format(time.RFC3339)
	w = do(t, srv, http.MethodGet, "/api/v1/core/series?start="+start+"&end="+end, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []models.Series `json:"data"`
		Meta struct {
			Resolution string `json:"resolution"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1, "profile default sensors")
	assert.Equal(t, "Temperatur", resp.Data[0].Title)
	assert.Len(t, resp.Data[0].Points, 3)
	assert.Equal(t, db.ResolutionRaw, resp.Meta.Resolution)

	w = do(t, srv, http.MethodGet, "/api/v1/core/series?sensors=s1,unknown&start="+start+"&end="+end, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "unknown", resp.Data[1].SensorID)
	assert.Empty(t, resp.Data[1].Points)
}

func TestSeriesBadRange(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{}, nil)
	for _, target := range []string{
		"/api/v1/core/series?start=yesterday",
		"/api/v1/core/series?end=2025-13-01",
		"/api/v1/core/series?start=2025-06-02T00:00:00Z&end=2025-06-01T00:00:00Z",
	} {
		w := do(t, srv, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestSeriesDegradesOnStoreFailure(t *testing.T) {
	srv, store := newTestServer(t, config.Config{}, nil)
	store.Close()

	w := do(t, srv, http.MethodGet, "/api/v1/core/series?sensors=s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Data []models.Series `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Empty(t, resp.Data[0].Points)

	w = do(t, srv, http.MethodGet, "/api/v1/core/sensors", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRealtimeFetch(t *testing.T) {
	res := ingest.Result{Fetched: 5, Inserted: 3, Duplicates: 2, At: lastReading}
	srv, _ := newTestServer(t, config.Config{}, func(d *Deps) { d.Poller = &fakePoller{res: res} })
	w := do(t, srv, http.MethodPost, "/api/v1/realtime/fetch", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.EqualValues(t, 3, data["inserted"])
	assert.EqualValues(t, 2, data["duplicates"])

	srv, _ = newTestServer(t, config.Config{}, func(d *Deps) { d.Poller = &fakePoller{err: errors.New("api down")} })
	w = do(t, srv, http.MethodPost, "/api/v1/realtime/fetch", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestForecast(t *testing.T) {
	srv, _ := newTestServer(t, config.Config{}, nil)
	w := do(t, srv, http.MethodGet, "/api/v1/forecast", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data forecast.ForecastSeries `json:"data"`
		Meta struct {
			Headline string `json:"headline"`
			Horizon  int    `json:"horizon"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Points, 25+forecast.DefaultHorizon)
	assert.Equal(t, forecast.DefaultHorizon, resp.Meta.Horizon)
	assert.Equal(t, "Temperaturentwicklung von 16:00 bis 17:30 Uhr", resp.Meta.Headline)
	assert.Equal(t, "Temperatur", resp.Data.Title)
}

func TestForecastErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Deps)
		code   int
	}{
		{"insufficient history", func(d *Deps) { d.Box = &fakeBox{recent: recentReadings(19)} }, http.StatusUnprocessableEntity},
		{"no model", func(d *Deps) { d.Forecast = nil }, http.StatusServiceUnavailable},
		{"upstream failure", func(d *Deps) { d.Box = &fakeBox{recentErr: errors.New("timeout")} }, http.StatusBadGateway},
		{"disabled", func(d *Deps) {
			p, err := profile.Parse([]byte("box_id: box-2\n"))
			require.NoError(t, err)
			d.Profile = p
		}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newTestServer(t, config.Config{}, tc.mutate)
			w := do(t, srv, http.MethodGet, "/api/v1/forecast", nil)
			assert.Equal(t, tc.code, w.Code)
			if tc.code == http.StatusUnprocessableEntity {
				assert.Equal(t, "insufficient history", decode(t, w)["error"])
			}
		})
	}
}

func TestExports(t *testing.T) {
	srv, store := newTestServer(t, config.Config{}, nil)
	_, err := store.BulkAppend(context.Background(), recentReadings(3))
	require.NoError(t, err)

	w := do(t, srv, http.MethodGet, "/api/v1/export/series.xlsx?sensors=s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "ffm-series-")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = do(t, srv, http.MethodGet, "/api/v1/export/forecast.pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, pdfContentType, w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}
