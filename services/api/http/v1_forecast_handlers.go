package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tombeihofer23/Projekt/services/internal/forecast"
	"github.com/tombeihofer23/Projekt/services/internal/metrics"
	"github.com/tombeihofer23/Projekt/services/internal/models"
	"github.com/tombeihofer23/Projekt/services/internal/sensebox"
)

var errForecastDisabled = errors.New("forecast not configured for this box")

// handleV1Forecast returns the recent history of the forecast sensor followed
// by the predicted steps
// GET /api/v1/forecast
func (s *Server) handleV1Forecast(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	fc, headline, err := s.runForecast(ctx)
	if err != nil {
		s.forecastError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": fc,
		"meta": gin.H{
			"headline":  headline,
			"sensor_id": s.profile.Forecast.SensorID,
			"horizon":   len(fc.Predicted()),
			"step":      forecast.DefaultStep.String(),
		},
	})
}

// runForecast fetches the lookback window of the forecast sensor from the
// live API and runs the pipeline on it.
func (s *Server) runForecast(ctx context.Context) (forecast.ForecastSeries, string, error) {
	cfg := s.profile.Forecast
	if !cfg.Enabled() {
		return forecast.ForecastSeries{}, "", errForecastDisabled
	}
	if s.forecast == nil {
		return forecast.ForecastSeries{}, "", forecast.ErrNoModel
	}

	start := s.now()
	readings, err := s.box.FetchRecent(ctx, cfg.SensorID, cfg.Lookback)
	if err != nil && !errors.Is(err, sensebox.ErrNoDataFound) {
		metrics.ObserveForecast(metrics.ResultError, s.now().Sub(start))
		return forecast.ForecastSeries{}, "", fmt.Errorf("fetch recent %s: %w", cfg.SensorID, err)
	}

	points := make([]models.Point, 0, len(readings))
	for _, r := range readings {
		points = append(points, models.Point{Timestamp: r.Timestamp, Value: r.Measurement})
	}

	fc, err := s.forecast.Forecast(ctx, points, cfg.Title, cfg.Unit)
	switch {
	case errors.Is(err, forecast.ErrInsufficientHistory):
		metrics.ObserveForecast(metrics.ForecastInsufficient, s.now().Sub(start))
		return forecast.ForecastSeries{}, "", err
	case err != nil:
		metrics.ObserveForecast(metrics.ResultError, s.now().Sub(start))
		return forecast.ForecastSeries{}, "", err
	}
	metrics.ObserveForecast(metrics.ResultSuccess, s.now().Sub(start))

	loc := s.profile.Location()
	return fc, forecast.Headline(cfg.Headline, fc.From.In(loc), fc.To), nil
}

func (s *Server) forecastError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errForecastDisabled):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, forecast.ErrNoModel):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "forecast model not available"})
	case errors.Is(err, forecast.ErrInsufficientHistory):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "insufficient history"})
	default:
		s.logger.Warnw("forecast failed", "sensor_id", s.profile.Forecast.SensorID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
