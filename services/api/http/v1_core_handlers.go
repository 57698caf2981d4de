package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tombeihofer23/Projekt/services/api/db"
	"github.com/tombeihofer23/Projekt/services/internal/models"
)

var errBadRange = errors.New("start must be before end")

// handleV1Box returns the live box description
// GET /api/v1/core/box
func (s *Server) handleV1Box(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	box, err := s.box.FetchBox(ctx)
	if err != nil {
		s.logger.Warnw("fetch box failed", "box_id", s.profile.BoxID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": box,
		"meta": gin.H{
			"profile":       s.profile.Name,
			"title":         s.profile.Title,
			"timezone":      s.profile.Location().String(),
			"sensors_count": len(box.Sensors),
		},
	})
}

// handleV1ListSensors returns the stored sensor metadata
// GET /api/v1/core/sensors
func (s *Server) handleV1ListSensors(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	sensors, err := s.store.QueryMetadata(ctx)
	if err != nil {
		s.logger.Warnw("query metadata failed", "error", err)
		sensors = []models.SensorMetadata{}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": sensors,
		"meta": gin.H{
			"count": len(sensors),
		},
	})
}

// handleV1Series returns plot series for the requested sensors
// GET /api/v1/core/series?sensors=a,b&start=2025-06-01T00:00:00Z&end=2025-06-03T00:00:00Z
func (s *Server) handleV1Series(c *gin.Context) {
	from, to, err := s.parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	ids := s.requestedSensors(ctx, c.Query("sensors"))
	series := s.loadSeries(ctx, ids, from, to)

	c.JSON(http.StatusOK, gin.H{
		"data": series,
		"meta": gin.H{
			"start":      from.Format(time.RFC3339),
			"end":        to.Format(time.RFC3339),
			"resolution": db.ResolutionFor(from, to),
			"count":      len(series),
		},
	})
}

// parseRange reads start/end (RFC3339). Missing values default to the
// profile's range ending now.
func (s *Server) parseRange(c *gin.Context) (time.Time, time.Time, error) {
	to := s.now().UTC()
	if endStr := c.Query("end"); endStr != "" {
		t, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid end time format, expected RFC3339")
		}
		to = t.UTC()
	}
	from := to.Add(-s.profile.DefaultRange)
	if startStr := c.Query("start"); startStr != "" {
		t, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid start time format, expected RFC3339")
		}
		from = t.UTC()
	}
	if !from.Before(to) {
		return time.Time{}, time.Time{}, errBadRange
	}
	return from, to, nil
}

// requestedSensors resolves the sensor list: the query parameter, else the
// profile defaults, else every stored sensor.
func (s *Server) requestedSensors(ctx context.Context, raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		return ids
	}
	if len(s.profile.DefaultSensors) > 0 {
		return s.profile.DefaultSensors
	}
	meta, err := s.store.QueryMetadata(ctx)
	if err != nil {
		s.logger.Warnw("query metadata failed", "error", err)
		return nil
	}
	for _, m := range meta {
		ids = append(ids, m.SensorID)
	}
	return ids
}

// loadSeries returns the series in request order. Storage errors degrade to
// empty series.
func (s *Server) loadSeries(ctx context.Context, ids []string, from, to time.Time) []models.Series {
	out := make([]models.Series, 0, len(ids))
	if len(ids) == 0 {
		return out
	}
	byID, err := s.store.QuerySeries(ctx, ids, from, to)
	if err != nil {
		s.logger.Warnw("query series failed", "sensors", ids, "error", err)
		byID = nil
	}
	for _, id := range ids {
		series, ok := byID[id]
		if !ok {
			series = models.Series{SensorID: id, Title: id, Resolution: db.ResolutionFor(from, to), Points: []models.Point{}}
		}
		out = append(out, series)
	}
	return out
}
