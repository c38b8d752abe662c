// internal/bi/day_test.go
package bi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayOfUsesConfiguredTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Bucharest")
	require.NoError(t, err)

	// 22:30 UTC is already past midnight in Bucharest during summer time.
	at := time.Date(2026, 7, 14, 22, 30, 0, 0, time.UTC)
	day := DayOf(at, loc)

	assert.Equal(t, time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC), day)
}

func TestDayOfKeepsLocalDate(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Bucharest")
	require.NoError(t, err)

	at := time.Date(2026, 7, 14, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 7, 14, 0, 0, 0, 0, time.UTC), DayOf(at, loc))
}

func TestResolveDayExplicit(t *testing.T) {
	day, err := ResolveDay("2026-03-01", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), day)
}

func TestResolveDayDefaultsToYesterday(t *testing.T) {
	day, err := ResolveDay("", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, DefaultDay(time.UTC), day)
}

func TestResolveDayRejectsGarbage(t *testing.T) {
	_, err := ResolveDay("14-07-2026", time.UTC)
	assert.Error(t, err)

	_, err = ResolveDay("yesterday", time.UTC)
	assert.Error(t, err)
}
