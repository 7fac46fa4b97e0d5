// Package mock provides test doubles for the mixer: a manual clock, a
// pull-mode source with scripted data and a push-mode chunk generator.
package mock

import (
	"sync/atomic"

	"github.com/pipelined/mixer"
	"github.com/pipelined/mixer/signal"
)

// Clock is a manually advanced host clock.
type Clock struct {
	Ticks  atomic.Uint64
	PerSec float64
}

// NewClock returns a manual clock with the given tick frequency.
func NewClock(ticksPerSecond float64) *Clock {
	return &Clock{PerSec: ticksPerSecond}
}

// Now returns the current manual time.
func (c *Clock) Now() mixer.HostTime {
	return mixer.HostTime(c.Ticks.Load())
}

// TicksPerSecond returns the manual clock frequency.
func (c *Clock) TicksPerSecond() float64 {
	return c.PerSec
}

// Advance moves the clock forward.
func (c *Clock) Advance(ticks uint64) {
	c.Ticks.Add(ticks)
}

// Set moves the clock to an absolute time.
func (c *Clock) Set(ticks uint64) {
	c.Ticks.Store(ticks)
}

// PullSource is a pull-mode source producing a constant value. It
// counts peek and render invocations so tests can assert callback
// reachability.
type PullSource struct {
	// Value fills every rendered sample.
	Value float64
	// NumChannels of the produced signal.
	NumChannels int
	// TicksPerFrame advances Next as frames are rendered.
	TicksPerFrame uint64

	// Frames currently available and the host time of the next frame.
	Frames atomic.Int64
	Next   atomic.Uint64

	Peeks    atomic.Int64
	Renders  atomic.Int64
	Discards atomic.Int64
}

// Supply makes frames available starting at the given host time.
func (p *PullSource) Supply(frames int, next mixer.HostTime) {
	p.Frames.Store(int64(frames))
	p.Next.Store(uint64(next))
}

// Peek implements mixer.PullSource.
func (p *PullSource) Peek() (int, mixer.HostTime) {
	p.Peeks.Add(1)
	return int(p.Frames.Load()), mixer.HostTime(p.Next.Load())
}

// Render implements mixer.PullSource.
func (p *PullSource) Render(dst signal.Float64, frames int) {
	p.Renders.Add(1)
	if dst == nil {
		p.Discards.Add(int64(frames))
	} else {
		for c := range dst {
			for i := 0; i < frames && i < len(dst[c]); i++ {
				dst[c][i] = p.Value
			}
		}
	}
	if p.Frames.Add(-int64(frames)) < 0 {
		p.Frames.Store(0)
	}
	p.Next.Add(uint64(frames) * p.TicksPerFrame)
}

// Chunk returns a buffer filled with a constant value.
func Chunk(numChannels, frames int, value float64) signal.Float64 {
	buf := signal.EmptyFloat64(numChannels, frames)
	for c := range buf {
		for i := range buf[c] {
			buf[c][i] = value
		}
	}
	return buf
}

// Ramp returns a buffer whose samples count up from start by step so
// frame identity is visible in assertions.
func Ramp(numChannels, frames int, start, step float64) signal.Float64 {
	buf := signal.EmptyFloat64(numChannels, frames)
	for c := range buf {
		v := start
		for i := range buf[c] {
			buf[c][i] = v
			v += step
		}
	}
	return buf
}
