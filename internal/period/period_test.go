package period_test

import (
	"testing"
	"time"

	"settlement_service/internal/period"

	"github.com/stretchr/testify/assert"
)

func TestPreviousISOWeek(t *testing.T) {
	// Wednesday mid-week.
	now := time.Date(2024, 7, 10, 15, 30, 0, 0, time.UTC)
	from, to := period.PreviousISOWeek(now)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 7, 8, 0, 0, 0, 0, time.UTC), to)
}

func TestPreviousISOWeekOnMonday(t *testing.T) {
	// A Monday still settles the week that just completed.
	now := time.Date(2024, 7, 8, 0, 0, 1, 0, time.UTC)
	from, to := period.PreviousISOWeek(now)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 7, 8, 0, 0, 0, 0, time.UTC), to)
}

func TestPreviousISOWeekOnSunday(t *testing.T) {
	// Sunday belongs to the current ISO week, not the next one.
	now := time.Date(2024, 7, 14, 23, 59, 0, 0, time.UTC)
	from, to := period.PreviousISOWeek(now)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 7, 8, 0, 0, 0, 0, time.UTC), to)
}

func TestDayStartKeepsLocation(t *testing.T) {
	// Midnight is taken in the clock's own zone, not UTC. 01:30 in UTC+8 is
	// still the previous day in UTC, but the day boundary must be the local one.
	zone := time.FixedZone("UTC+8", 8*3600)
	now := time.Date(2024, 7, 10, 1, 30, 0, 0, zone)
	start := period.DayStart(now)
	assert.True(t, start.Equal(time.Date(2024, 7, 10, 0, 0, 0, 0, zone)))
	assert.Equal(t, zone, start.Location())
}

func TestDayStartIsIdempotent(t *testing.T) {
	now := time.Date(2024, 7, 10, 23, 59, 59, 0, time.UTC)
	start := period.DayStart(now)
	assert.Equal(t, start, period.DayStart(start))
}

func TestPreviousDay(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	from, to := period.PreviousDay(now)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), to)
}
