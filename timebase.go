package mixer

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// HostTime is a host clock reading in ticks.
type HostTime uint64

// Clock provides host time readings for the mixer. Implementations
// must be safe for concurrent use.
type Clock interface {
	// Now returns the current host time in ticks.
	Now() HostTime
	// TicksPerSecond returns the host clock frequency.
	TicksPerSecond() float64
}

// nanoClock is the default monotonic clock with nanosecond ticks.
type nanoClock struct {
	start time.Time
}

func newNanoClock() nanoClock {
	return nanoClock{start: time.Now()}
}

func (c nanoClock) Now() HostTime {
	return HostTime(time.Since(c.start))
}

func (nanoClock) TicksPerSecond() float64 {
	return 1e9
}

// TimeBase maps host clock ticks to absolute frame positions at the
// canonical sample rate. The anchor is established by the first
// timestamped data and extrapolated afterwards. Drift between
// independently clocked sources is reconciled per source, not by
// moving the anchor.
type TimeBase struct {
	sampleRate  float64
	ticksPerSec float64

	mu     sync.Mutex
	anchor atomic.Pointer[anchor]
}

type anchor struct {
	host     HostTime
	position int64
}

func newTimeBase(sampleRate int, ticksPerSec float64) *TimeBase {
	return &TimeBase{
		sampleRate:  float64(sampleRate),
		ticksPerSec: ticksPerSec,
	}
}

// PositionFor returns the absolute frame position for a host time. The
// first call anchors the time base at position zero.
func (t *TimeBase) PositionFor(host HostTime) int64 {
	a := t.anchor.Load()
	if a == nil {
		a = t.anchorAt(host)
	}
	d := float64(int64(host) - int64(a.host))
	return a.position + int64(math.Round(d*t.sampleRate/t.ticksPerSec))
}

// HostTimeAt returns the host time of an absolute frame position. The
// second value is false if no data has anchored the time base yet.
func (t *TimeBase) HostTimeAt(position int64) (HostTime, bool) {
	a := t.anchor.Load()
	if a == nil {
		return 0, false
	}
	d := float64(position-a.position) * t.ticksPerSec / t.sampleRate
	return HostTime(int64(a.host) + int64(math.Round(d))), true
}

// Anchored reports whether the time base has seen timestamped data.
func (t *TimeBase) Anchored() bool {
	return t.anchor.Load() != nil
}

func (t *TimeBase) anchorAt(host HostTime) *anchor {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a := t.anchor.Load(); a != nil {
		return a
	}
	a := &anchor{host: host}
	t.anchor.Store(a)
	return a
}
