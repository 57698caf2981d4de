// Package export renders dashboard data as XLSX workbooks and PDF reports.
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/tombeihofer23/Projekt/services/internal/forecast"
	"github.com/tombeihofer23/Projekt/services/internal/models"
)

const sheetNameLimit = 31

// BuildSeriesXLSX writes an overview sheet plus one sheet per series.
func BuildSeriesXLSX(boxName string, series []models.Series, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	overview := "overview"
	if err := f.SetSheetName("Sheet1", overview); err != nil {
		return nil, err
	}
	_ = f.SetCellValue(overview, "A1", boxName)
	_ = f.SetCellValue(overview, "A3", "Sensor")
	_ = f.SetCellValue(overview, "B3", "Title")
	_ = f.SetCellValue(overview, "C3", "Unit")
	_ = f.SetCellValue(overview, "D3", "Resolution")
	_ = f.SetCellValue(overview, "E3", "Points")

	used := map[string]bool{overview: true}
	for i, s := range series {
		row := i + 4
		_ = f.SetCellValue(overview, fmt.Sprintf("A%d", row), s.SensorID)
		_ = f.SetCellValue(overview, fmt.Sprintf("B%d", row), s.Title)
		_ = f.SetCellValue(overview, fmt.Sprintf("C%d", row), s.Unit)
		_ = f.SetCellValue(overview, fmt.Sprintf("D%d", row), s.Resolution)
		_ = f.SetCellValue(overview, fmt.Sprintf("E%d", row), len(s.Points))

		name := sheetName(s, used)
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("add sheet %q: %w", name, err)
		}
		_ = f.SetCellValue(name, "A1", "Timestamp")
		_ = f.SetCellValue(name, "B1", valueHeader(s))
		for j, p := range s.Points {
			r := j + 2
			_ = f.SetCellValue(name, fmt.Sprintf("A%d", r), p.Timestamp.In(loc).Format("2006-01-02 15:04:05"))
			_ = f.SetCellValue(name, fmt.Sprintf("B%d", r), p.Value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func valueHeader(s models.Series) string {
	if s.Unit == "" {
		return "Value"
	}
	return fmt.Sprintf("Value (%s)", s.Unit)
}

func sheetName(s models.Series, used map[string]bool) string {
	base := s.Title
	if base == "" {
		base = s.SensorID
	}
	base = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, base)
	if base == "" {
		base = "series"
	}

	name := truncateRunes(base, sheetNameLimit)
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		name = truncateRunes(base, sheetNameLimit-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// BuildForecastPDF renders a forecast as a one-page report.
func BuildForecastPDF(boxName, headline string, fc forecast.ForecastSeries, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, tr(headline))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Box: %s", boxName)))
	pdf.Ln(5)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Sensor: %s (%s)", fc.Title, fc.Unit)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Last observation: %s", fc.From.In(loc).Format("2006-01-02 15:04")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Forecast until: %s", fc.To.In(loc).Format("2006-01-02 15:04")))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(50, 6, "Time", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, tr(fmt.Sprintf("Value (%s)", fc.Unit)), "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Source", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, p := range fc.Predicted() {
		pdf.CellFormat(50, 6, p.Timestamp.In(loc).Format("15:04"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", p.Value), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, p.Source, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
