package dateutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	d, err := Parse("2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = Parse("2025-03-01T17:45:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), d)

	_, err = Parse("01/03/2025")
	assert.Error(t, err)
}

func TestParseOptional(t *testing.T) {
	blank := "  "
	got, err := ParseOptional(&blank)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ParseOptional(nil)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDayBeforeCrossesMonth(t *testing.T) {
	d := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), DayBefore(d))
}

func TestDaysInclusive(t *testing.T) {
	start := time.Date(2025, 1, 30, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 4, DaysInclusive(start, end))
	assert.Equal(t, 1, DaysInclusive(start, start))
}

func TestMonthRange(t *testing.T) {
	from, to := MonthRange(2025, 12)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), to)
}
