package server

import (
	"hash/fnv"
	"math"
	"time"

	"github.com/fieldsense/waterline/internal/deviceapi"
)

// Telemetry produces synthetic water-level readings so the latest and
// history endpoints return plausible data without real sensors. Each
// device gets a stable series derived from its ID: a slow daily swell
// with per-device phase and amplitude, sampled on a fixed interval.
type Telemetry struct {
	interval time.Duration
	now      func() time.Time
}

// NewTelemetry creates a generator sampling every interval.
func NewTelemetry(interval time.Duration) *Telemetry {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Telemetry{interval: interval, now: time.Now}
}

// Latest returns the most recent reading for a device.
func (t *Telemetry) Latest(deviceID string) deviceapi.LatestMetric {
	ts := t.now().UTC().Truncate(t.interval)
	distance := t.distanceAt(deviceID, ts)
	timeStr := ts.Format(time.RFC3339)

	return deviceapi.LatestMetric{
		DeviceID: deviceID,
		Time:     &timeStr,
		Distance: &distance,
	}
}

// History returns up to limit readings from the past hours hours,
// newest first.
func (t *Telemetry) History(deviceID string, hours, limit int) deviceapi.History {
	if hours <= 0 {
		hours = 24
	}
	if limit <= 0 {
		limit = 100
	}

	end := t.now().UTC().Truncate(t.interval)
	start := end.Add(-time.Duration(hours) * time.Hour)

	// The window can only hold so many samples, so never allocate for
	// more than that regardless of how large a limit the caller asks
	// for.
	samples := hours*int(time.Hour/t.interval) + 1
	if limit > samples {
		limit = samples
	}

	entries := make([]deviceapi.HistoryEntry, 0, limit)
	for ts := end; !ts.Before(start) && len(entries) < limit; ts = ts.Add(-t.interval) {
		entries = append(entries, deviceapi.HistoryEntry{
			Time:     ts.Format(time.RFC3339),
			Distance: t.distanceAt(deviceID, ts),
		})
	}

	return deviceapi.History{
		DeviceID: deviceID,
		History:  entries,
		Count:    len(entries),
	}
}

// distanceAt computes the sensor-to-surface distance in centimetres at
// a point in time. Deterministic per device and timestamp, so repeated
// reads agree.
func (t *Telemetry) distanceAt(deviceID string, ts time.Time) float64 {
	seed := hashID(deviceID)

	// Resting distance and daily swing vary per device, with a phase
	// offset so devices do not move in lockstep.
	base := 40.0 + float64(seed%40)
	amplitude := 5.0 + float64((seed>>8)%10)
	phase := float64(seed%360) * math.Pi / 180.0

	dayFraction := float64(ts.Unix()%86400) / 86400.0
	swell := amplitude * math.Sin(2*math.Pi*dayFraction+phase)

	// Small deterministic jitter so consecutive samples differ.
	jitter := float64((ts.Unix()/int64(t.interval.Seconds())+int64(seed))%7) * 0.3

	return math.Round((base+swell+jitter)*10) / 10
}

func hashID(deviceID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(deviceID))
	return h.Sum32()
}
