package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDayKeyFloorsBeforeBoundary(t *testing.T) {
	b, err := NewBoundary("UTC", "05:30")
	require.NoError(t, err)

	require.Equal(t, "20250614", b.DayKey(time.Date(2025, 6, 15, 5, 29, 59, 0, time.UTC)))
	require.Equal(t, "20250615", b.DayKey(time.Date(2025, 6, 15, 5, 30, 0, 0, time.UTC)))
	require.Equal(t, "20250615", b.DayKey(time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)))
}

func TestDayKeyUsesConfiguredZone(t *testing.T) {
	b, err := NewBoundary("Asia/Tokyo", "00:00")
	require.NoError(t, err)

	// 16:00 UTC on the 15th is already 01:00 on the 16th in Tokyo.
	require.Equal(t, "20250616", b.DayKey(time.Date(2025, 6, 15, 16, 0, 0, 0, time.UTC)))
	require.Equal(t, "20250615", b.DayKey(time.Date(2025, 6, 15, 14, 59, 0, 0, time.UTC)))
}

func TestNewBoundaryClampsFields(t *testing.T) {
	b, err := NewBoundary("UTC", "25:99")
	require.NoError(t, err)
	require.Equal(t, "23:59 UTC", b.Label())

	b, err = NewBoundary("", "")
	require.NoError(t, err)
	require.Equal(t, "00:00 UTC", b.Label())

	b, err = NewBoundary("UTC", "garbage")
	require.NoError(t, err)
	require.Equal(t, "00:00 UTC", b.Label())

	_, err = NewBoundary("Not/AZone", "00:00")
	require.Error(t, err)
}

func TestNextDayKey(t *testing.T) {
	b, err := NewBoundary("UTC", "00:00")
	require.NoError(t, err)

	next, err := b.NextDayKey("20250615")
	require.NoError(t, err)
	require.Equal(t, "20250616", next)

	// Month rollover.
	next, err = b.NextDayKey("20250630")
	require.NoError(t, err)
	require.Equal(t, "20250701", next)

	_, err = b.NextDayKey("not-a-day")
	require.Error(t, err)
}

func TestNextBoundaryStrictlyAfter(t *testing.T) {
	b, err := NewBoundary("UTC", "05:30")
	require.NoError(t, err)

	at := time.Date(2025, 6, 15, 5, 30, 0, 0, time.UTC)
	require.Equal(t, time.Date(2025, 6, 16, 5, 30, 0, 0, time.UTC), b.NextBoundary(at))

	before := time.Date(2025, 6, 15, 5, 29, 0, 0, time.UTC)
	require.Equal(t, at, b.NextBoundary(before))
}
