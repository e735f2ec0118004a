package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedTelemetry(at time.Time) *Telemetry {
	tel := NewTelemetry(5 * time.Minute)
	tel.now = func() time.Time { return at }
	return tel
}

func TestTelemetryLatest(t *testing.T) {
	at := time.Date(2026, 8, 31, 10, 2, 30, 0, time.UTC)
	tel := fixedTelemetry(at)

	metric := tel.Latest("wl-001")
	assert.Equal(t, "wl-001", metric.DeviceID)
	require.NotNil(t, metric.Time)
	require.NotNil(t, metric.Distance)

	// Samples are aligned to the interval.
	assert.Equal(t, "2026-08-31T10:00:00Z", *metric.Time)

	t.Run("deterministic per device and time", func(t *testing.T) {
		again := tel.Latest("wl-001")
		assert.Equal(t, *metric.Distance, *again.Distance)

		other := tel.Latest("wl-002")
		assert.NotEqual(t, *metric.Distance, *other.Distance)
	})

	t.Run("plausible range", func(t *testing.T) {
		// base 40..80, swing up to 15, jitter under 2.
		assert.Greater(t, *metric.Distance, 20.0)
		assert.Less(t, *metric.Distance, 100.0)
	})
}

func TestTelemetryHistory(t *testing.T) {
	at := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)
	tel := fixedTelemetry(at)

	t.Run("newest first within the window", func(t *testing.T) {
		history := tel.History("wl-001", 1, 100)
		assert.Equal(t, "wl-001", history.DeviceID)
		// One hour at five-minute spacing, endpoints inclusive.
		assert.Equal(t, 13, history.Count)
		assert.Equal(t, "2026-08-31T10:00:00Z", history.History[0].Time)
		assert.Equal(t, "2026-08-31T09:00:00Z", history.History[len(history.History)-1].Time)
	})

	t.Run("limit caps the entries", func(t *testing.T) {
		history := tel.History("wl-001", 24, 10)
		assert.Equal(t, 10, history.Count)
	})

	t.Run("defaults applied for non-positive arguments", func(t *testing.T) {
		history := tel.History("wl-001", 0, 0)
		assert.Equal(t, 100, history.Count)
	})

	t.Run("oversized limit bounded by the window", func(t *testing.T) {
		// The limit must not size the allocation; only the window can.
		history := tel.History("wl-001", 1, 1<<30)
		assert.Equal(t, 13, history.Count)
		assert.LessOrEqual(t, cap(history.History), 13)
	})
}
