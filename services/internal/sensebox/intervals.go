package sensebox

import (
	"time"

	"github.com/tombeihofer23/Projekt/services/internal/models"
)

// DefaultStepDays is the width of one history window.
const DefaultStepDays = 10

// ListIntervals splits [day(created), now] into consecutive windows of
// stepDays days. Each window ends one second before the next one starts and
// the last window is clipped to now.
//
// A creation date after now yields no windows. A creation date that truncates
// to exactly now yields the single window [now, now].
func ListIntervals(created time.Time, stepDays int, now time.Time) []models.TimeInterval {
	if stepDays <= 0 {
		stepDays = DefaultStepDays
	}
	if created.After(now) {
		return nil
	}

	c := created.UTC()
	start := time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, time.UTC)
	span := time.Duration(stepDays-1)*24*time.Hour + 23*time.Hour + 59*time.Minute + 59*time.Second

	var intervals []models.TimeInterval
	for !start.After(now) {
		end := start.Add(span)
		if end.After(now) {
			end = now
		}
		intervals = append(intervals, models.TimeInterval{Start: start, End: end})
		start = start.AddDate(0, 0, stepDays)
	}
	return intervals
}
