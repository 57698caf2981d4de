package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tombeihofer23/Projekt/services/internal/export"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	pdfContentType  = "application/pdf"
)

// handleV1ExportSeries downloads the plot series as a workbook
// GET /api/v1/export/series.xlsx?sensors=a,b&start=&end=
func (s *Server) handleV1ExportSeries(c *gin.Context) {
	from, to, err := s.parseRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	series := s.loadSeries(ctx, s.requestedSensors(ctx, c.Query("sensors")), from, to)
	raw, err := export.BuildSeriesXLSX(s.profile.Title, series, s.profile.Location())
	if err != nil {
		s.logger.Errorw("build workbook failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", attachment(s.profile.Name, "series", "xlsx", to))
	c.Data(http.StatusOK, xlsxContentType, raw)
}

// handleV1ExportForecast downloads the current forecast as a PDF report
// GET /api/v1/export/forecast.pdf
func (s *Server) handleV1ExportForecast(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	fc, headline, err := s.runForecast(ctx)
	if err != nil {
		s.forecastError(c, err)
		return
	}

	raw, err := export.BuildForecastPDF(s.profile.Title, headline, fc, s.profile.Location())
	if err != nil {
		s.logger.Errorw("build forecast report failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", attachment(s.profile.Name, "forecast", "pdf", fc.From))
	c.Data(http.StatusOK, pdfContentType, raw)
}

func attachment(name, kind, ext string, at time.Time) string {
	return fmt.Sprintf(`attachment; filename="%s-%s-%s.%s"`, name, kind, at.UTC().Format("20060102-1504"), ext)
}
