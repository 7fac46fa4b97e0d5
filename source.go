package mixer

import (
	"math"
	"sync/atomic"

	"github.com/pipelined/mixer/signal"
)

// Source identifies a logical audio producer. Any comparable value
// unique to the producer can be used; the mixer never takes ownership
// of it.
type Source any

// PullSource supplies audio on demand. It replaces the render and peek
// callback pair of callback-driven sources: Peek reports buffered
// status, Render produces frames.
type PullSource interface {
	// Peek returns the number of frames currently available and the
	// host time of the next frame.
	Peek() (frames int, next HostTime)
	// Render writes up to frames frames into dst, which has the
	// source's channel layout. A nil dst means the frames should be
	// discarded without copying.
	Render(dst signal.Float64, frames int)
}

// Format describes a per-source audio format override. The zero value
// of a field keeps the canonical setting.
type Format struct {
	NumChannels int
	SampleRate  int
}

type ingestMode int32

const (
	modeUnset ingestMode = iota
	modePush
	modePull
)

// source holds per-source buffering state and mixing parameters. It is
// shared between one producer goroutine, the real-time consumer and
// control goroutines; field comments name the owner where it matters.
type source struct {
	id   Source
	mode atomic.Int32

	ring *ring
	pull PullSource // immutable after the table snapshot is published

	numChannels int
	sampleRate  int

	gain atomic.Uint64 // math.Float64bits
	pan  atomic.Uint64

	lastActive   atomic.Uint64 // host ticks of the latest supply or peek
	registeredAt HostTime
	removed      atomic.Bool

	// producer-owned: per-source offset from the time base
	anchorHost HostTime
	anchorPos  int64
	anchorSet  bool

	// consumer-owned
	scratch    signal.Float64 // aligned frames in the source layout
	view       signal.Float64 // reusable window into scratch
	cursor     int64          // next position for single-source dequeue
	cursorSet  bool
	sawData    bool
	peekFrames int   // pull peek snapshot for the current cycle
	peekPos    int64

	underruns atomic.Uint64
	lateDrops atomic.Uint64
	overflows atomic.Uint64
}

func (s *source) gainValue() float64 {
	return math.Float64frombits(s.gain.Load())
}

func (s *source) setGain(v float64) {
	s.gain.Store(math.Float64bits(v))
}

func (s *source) panValue() float64 {
	return math.Float64frombits(s.pan.Load())
}

func (s *source) setPan(v float64) {
	if v < -1 {
		v = -1
	} else if v > 1 {
		v = 1
	}
	s.pan.Store(math.Float64bits(v))
}

func (s *source) touch(now HostTime) {
	s.lastActive.Store(uint64(now))
}

func (s *source) idleSince(now HostTime, timeout uint64) bool {
	la := s.lastActive.Load()
	return uint64(now) > la && uint64(now)-la > timeout
}

func (s *source) inGrace(now HostTime, grace uint64) bool {
	return uint64(now)-uint64(s.registeredAt) <= grace
}

// positionFor derives the absolute frame position of a chunk from its
// host timestamp. The first supply establishes this source's own
// offset from the time base; later chunks extrapolate from it so the
// source's clock drift stays local to the source. Producer side only.
func (s *source) positionFor(host HostTime, tb *TimeBase) int64 {
	if !s.anchorSet {
		s.anchorHost = host
		s.anchorPos = tb.PositionFor(host)
		s.anchorSet = true
		return s.anchorPos
	}
	d := float64(int64(host) - int64(s.anchorHost))
	return s.anchorPos + int64(math.Round(d*tb.sampleRate/tb.ticksPerSec))
}
