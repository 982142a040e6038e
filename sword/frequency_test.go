package sword_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sword-client/sword"
)

func TestValidFrequency(t *testing.T) {
	valid := []string{"1w", "3d", "12h", "30m", "45s", "1w3d", "5w4d3h2m1s"}
	for _, raw := range valid {
		assert.True(t, sword.ValidFrequency(raw), raw)
	}

	invalid := []string{"", "w", "1", "1x", "3d1", "1w 3d", "-1w", "1.5d"}
	for _, raw := range invalid {
		assert.False(t, sword.ValidFrequency(raw), raw)
	}
}

func TestParseFrequency(t *testing.T) {
	d, err := sword.ParseFrequency("1w3d")
	require.NoError(t, err)
	assert.Equal(t, 10*24*time.Hour, d)

	d, err = sword.ParseFrequency("5w4d3h2m1s")
	require.NoError(t, err)
	want := 5*7*24*time.Hour + 4*24*time.Hour + 3*time.Hour + 2*time.Minute + time.Second
	assert.Equal(t, want, d)

	_, err = sword.ParseFrequency("never")
	assert.Error(t, err)
}

func TestHumanizeFrequency(t *testing.T) {
	assert.Equal(t, "Every 3 week(s), 4 day(s)", sword.HumanizeFrequency("3w4d"))
	assert.Equal(t, "Every 1 week(s)", sword.HumanizeFrequency("1w"))
	assert.Equal(t, "Every 2 hour(s), 30 minute(s), 10 second(s)", sword.HumanizeFrequency("2h30m10s"))

	// Malformed input is passed through untouched.
	assert.Equal(t, "never", sword.HumanizeFrequency("never"))
}

func TestNeedsUpdate_BoundaryIsFresh(t *testing.T) {
	last := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &sword.Settings{UpdateFrequency: "1w", LastUpdated: last}

	deadline := last.Add(7 * 24 * time.Hour)
	assert.False(t, s.NeedsUpdate(deadline.Add(-time.Second)))
	assert.False(t, s.NeedsUpdate(deadline))
	assert.True(t, s.NeedsUpdate(deadline.Add(time.Nanosecond)))
}
