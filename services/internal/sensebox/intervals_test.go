package sensebox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListIntervals(t *testing.T) {
	created := time.Date(2025, 1, 1, 8, 30, 0, 0, time.UTC)
	now := time.Date(2025, 1, 25, 12, 0, 0, 0, time.UTC)

	got := ListIntervals(created, 10, now)
	require.Len(t, got, 3)

	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), got[0].Start)
	assert.Equal(t, time.Date(2025, 1, 10, 23, 59, 59, 0, time.UTC), got[0].End)
	assert.Equal(t, time.Date(2025, 1, 11, 0, 0, 0, 0, time.UTC), got[1].Start)
	assert.Equal(t, time.Date(2025, 1, 20, 23, 59, 59, 0, time.UTC), got[1].End)
	assert.Equal(t, time.Date(2025, 1, 21, 0, 0, 0, 0, time.UTC), got[2].Start)
	assert.Equal(t, now, got[2].End)
}

func TestListIntervalsContiguous(t *testing.T) {
	created := time.Date(2019, 9, 2, 17, 51, 37, 0, time.UTC)
	now := time.Date(2025, 6, 26, 10, 0, 0, 0, time.UTC)

	got := ListIntervals(created, DefaultStepDays, now)
	require.NotEmpty(t, got)
	for i, iv := range got {
		assert.False(t, iv.End.Before(iv.Start), "interval %d", i)
		assert.False(t, iv.End.After(now), "interval %d", i)
		if i > 0 {
			assert.Equal(t, got[i-1].End.Add(time.Second), iv.Start, "interval %d", i)
		}
	}
	assert.Equal(t, now, got[len(got)-1].End)
}

func TestListIntervalsEdges(t *testing.T) {
	now := time.Date(2025, 6, 26, 0, 0, 0, 0, time.UTC)

	assert.Empty(t, ListIntervals(now.Add(time.Hour), 10, now))

	got := ListIntervals(now, 10, now)
	require.Len(t, got, 1)
	assert.Equal(t, now, got[0].Start)
	assert.Equal(t, now, got[0].End)

	sameDay := ListIntervals(now.Add(-time.Minute), 0, now)
	require.Len(t, sameDay, 1)
	assert.Equal(t, time.Date(2025, 6, 25, 0, 0, 0, 0, time.UTC), sameDay[0].Start)
	assert.Equal(t, now, sameDay[0].End)
}
