package mixer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/pipelined/mixer/log"
	"github.com/pipelined/mixer/signal"
)

const (
	defaultMaxFrames    = 4096
	defaultRingCapacity = 16384
	defaultIdleTimeout  = 2 * time.Second
	defaultSweep        = 500 * time.Millisecond
	defaultGrace        = 250 * time.Millisecond
)

// Buffer is a timestamp-synchronizing mixer buffer. Producers feed it
// through Enqueue or pull callbacks, the real-time consumer drains it
// through Dequeue, DequeueSource and Peek.
type Buffer struct {
	uid string
	log log.Logger

	sampleRate  int
	numChannels int

	clock    Clock
	timeBase *TimeBase

	maxFrames int
	ringSize  int
	panLaw    PanLaw

	idleTimeout   time.Duration
	graceInterval time.Duration
	sweepInterval time.Duration
	idleTicks     uint64
	graceTicks    uint64

	tbl atomic.Pointer[table]
	wmu sync.Mutex // serializes table writers

	// consumer-owned
	pos    int64 // absolute position of the next output frame
	posSet bool
	acc    signal.Float64 // accumulation scratch
	out    signal.Float64 // fallback delivery buffer

	underruns atomic.Uint64
	lateDrops atomic.Uint64
	overflows atomic.Uint64
	frames    atomic.Uint64

	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// Option provides a way to set functional parameters to the buffer.
type Option func(*Buffer)

// WithClock sets the host clock used to derive frame positions and
// idle timing. Default is a monotonic clock with nanosecond ticks.
func WithClock(c Clock) Option {
	return func(b *Buffer) {
		b.clock = c
	}
}

// WithMaxFrames sets the largest number of frames a single dequeue can
// produce. Larger requests are clamped.
func WithMaxFrames(frames int) Option {
	return func(b *Buffer) {
		if frames > 0 {
			b.maxFrames = frames
		}
	}
}

// WithRingCapacity sets the per-source buffer capacity in frames,
// rounded up to a power of two. When a producer outruns the consumer
// the oldest unconsumed frames are dropped.
func WithRingCapacity(frames int) Option {
	return func(b *Buffer) {
		if frames > 0 {
			b.ringSize = frames
		}
	}
}

// WithIdleTimeout sets how long a source may stay silent before it is
// unregistered automatically.
func WithIdleTimeout(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.idleTimeout = d
		}
	}
}

// WithSweepInterval sets how often idle sources are reaped.
func WithSweepInterval(d time.Duration) Option {
	return func(b *Buffer) {
		if d > 0 {
			b.sweepInterval = d
		}
	}
}

// WithGraceInterval sets the interval after registration during which
// a silent source is not counted as underrunning.
func WithGraceInterval(d time.Duration) Option {
	return func(b *Buffer) {
		if d >= 0 {
			b.graceInterval = d
		}
	}
}

// WithPanLaw selects the pan law used for mixing.
func WithPanLaw(l PanLaw) Option {
	return func(b *Buffer) {
		b.panLaw = l
	}
}

// New returns a new mixer buffer for the canonical format defined by
// the sample rate and channel count.
func New(sampleRate, numChannels int, options ...Option) *Buffer {
	uid := xid.New().String()
	b := &Buffer{
		uid:           uid,
		log:           log.GetLogger().WithField("mixer", uid),
		sampleRate:    sampleRate,
		numChannels:   numChannels,
		maxFrames:     defaultMaxFrames,
		ringSize:      defaultRingCapacity,
		idleTimeout:   defaultIdleTimeout,
		sweepInterval: defaultSweep,
		graceInterval: defaultGrace,
	}
	for _, option := range options {
		option(b)
	}
	if b.clock == nil {
		b.clock = newNanoClock()
	}
	b.timeBase = newTimeBase(sampleRate, b.clock.TicksPerSecond())
	b.idleTicks = ticks(b.idleTimeout, b.clock)
	b.graceTicks = ticks(b.graceInterval, b.clock)
	b.acc = signal.EmptyFloat64(numChannels, b.maxFrames)
	b.out = make(signal.Float64, numChannels)
	b.tbl.Store(emptyTable())
	b.done = make(chan struct{})
	b.wg.Add(1)
	go b.sweepLoop()
	return b
}

func ticks(d time.Duration, c Clock) uint64 {
	return uint64(d.Seconds() * c.TicksPerSecond())
}

// SampleRate returns the canonical sample rate.
func (b *Buffer) SampleRate() int {
	return b.sampleRate
}

// NumChannels returns the canonical channel count.
func (b *Buffer) NumChannels() int {
	return b.numChannels
}

// Clock returns the host clock in use.
func (b *Buffer) Clock() Clock {
	return b.clock
}

// TimeBase returns the mapping between host ticks and frame positions.
func (b *Buffer) TimeBase() *TimeBase {
	return b.timeBase
}

// Enqueue supplies frames for a push source, tagged with the host time
// of the first frame. An unseen source is registered on first call.
// Registration completes asynchronously relative to the consumer, so a
// new source may be absent from one or two dequeue cycles; calling
// Enqueue with a nil buffer and zero frames registers the source ahead
// of time without supplying audio. Enqueue on a pull source is a
// contract violation and the chunk is dropped.
func (b *Buffer) Enqueue(id Source, buf signal.Float64, frames int, at HostTime) {
	if b.closed.Load() || id == nil {
		return
	}
	s := b.tbl.Load().lookup(id)
	if s == nil {
		s = b.register(id)
		if s == nil {
			return
		}
	}
	if !s.mode.CompareAndSwap(int32(modeUnset), int32(modePush)) &&
		ingestMode(s.mode.Load()) != modePush {
		b.log.Warnf("enqueue for pull source %v dropped", id)
		return
	}
	s.touch(b.clock.Now())
	if buf == nil || frames <= 0 {
		return
	}
	if frames > buf.Size() {
		frames = buf.Size()
	}
	pos := s.positionFor(at, b.timeBase)
	late, overflow := s.ring.push(buf, frames, pos)
	if late > 0 {
		s.lateDrops.Add(uint64(late))
		b.lateDrops.Add(uint64(late))
	}
	if overflow > 0 {
		s.overflows.Add(uint64(overflow))
		b.overflows.Add(uint64(overflow))
	}
}

// SetSourceCallbacks assigns a pull source: the mixer requests audio on
// demand through the PullSource interface during dequeue. A source is
// either push or pull for its entire lifetime; assigning callbacks to
// a source that has already enqueued audio is a contract violation and
// a no-op.
func (b *Buffer) SetSourceCallbacks(id Source, ps PullSource) {
	if b.closed.Load() || id == nil || ps == nil {
		return
	}
	b.wmu.Lock()
	defer b.wmu.Unlock()
	t := b.tbl.Load()
	old := t.lookup(id)
	if old != nil && ingestMode(old.mode.Load()) == modePush {
		b.log.Warnf("callbacks for push source %v ignored", id)
		return
	}
	s := b.newSource(id)
	s.pull = ps
	s.mode.Store(int32(modePull))
	if old != nil {
		// adopt parameters seeded before registration
		s.setGain(old.gainValue())
		s.setPan(old.panValue())
		s.registeredAt = old.registeredAt
		s.lastActive.Store(old.lastActive.Load())
		old.removed.Store(true)
	}
	b.tbl.Store(t.with(s))
	b.log.Debugf("registered pull source %v", id)
}

// SetFormat overrides the audio format of a source. Only the channel
// count may differ from the canonical format: the mixer performs no
// sample rate conversion, so a diverging rate is rejected and logged.
// Any audio already buffered for the source is discarded.
func (b *Buffer) SetFormat(id Source, f Format) {
	if b.closed.Load() || id == nil {
		return
	}
	if f.SampleRate != 0 && f.SampleRate != b.sampleRate {
		b.log.Warnf("format for source %v rejected: sample rate %d differs from canonical %d",
			id, f.SampleRate, b.sampleRate)
		return
	}
	numChannels := f.NumChannels
	if numChannels <= 0 {
		numChannels = b.numChannels
	}
	b.wmu.Lock()
	defer b.wmu.Unlock()
	t := b.tbl.Load()
	old := t.lookup(id)
	if old != nil && old.numChannels == numChannels {
		return
	}
	s := b.newSourceWithChannels(id, numChannels)
	if old != nil {
		s.setGain(old.gainValue())
		s.setPan(old.panValue())
		s.mode.Store(old.mode.Load())
		s.pull = old.pull
		s.registeredAt = old.registeredAt
		s.lastActive.Store(old.lastActive.Load())
		old.removed.Store(true)
	}
	b.tbl.Store(t.with(s))
}

// SetVolume sets the linear gain of a source. Unity is the default,
// values above 1 amplify; the mixed output saturates at full scale
// instead of wrapping. Setting volume for an unseen source pre-seeds
// its eventual registration.
func (b *Buffer) SetVolume(id Source, volume float64) {
	if s := b.paramTarget(id); s != nil {
		s.setGain(volume)
	}
}

// Volume returns the gain of a source, or unity for an unknown one.
func (b *Buffer) Volume(id Source) float64 {
	if s := b.tbl.Load().lookup(id); s != nil {
		return s.gainValue()
	}
	return 1
}

// SetPan sets the stereo pan of a source in the [-1, 1] range, 0 being
// center. Setting pan for an unseen source pre-seeds its eventual
// registration.
func (b *Buffer) SetPan(id Source, pan float64) {
	if s := b.paramTarget(id); s != nil {
		s.setPan(pan)
	}
}

// Pan returns the pan of a source, or center for an unknown one.
func (b *Buffer) Pan(id Source) float64 {
	if s := b.tbl.Load().lookup(id); s != nil {
		return s.panValue()
	}
	return 0
}

// UnregisterSource removes a source. After it returns, pull callbacks
// for the source are not invoked again; a dequeue cycle already in
// flight may still have consumed from it. Unregistering an unknown
// source has no effect.
func (b *Buffer) UnregisterSource(id Source) {
	if id == nil {
		return
	}
	b.wmu.Lock()
	defer b.wmu.Unlock()
	t := b.tbl.Load()
	s := t.lookup(id)
	if s == nil {
		return
	}
	s.removed.Store(true)
	b.tbl.Store(t.without(id))
	b.log.Debugf("unregistered source %v", id)
}

// Stats is a snapshot of mixer counters.
type Stats struct {
	// Frames is the total number of frames produced.
	Frames uint64
	// Underruns counts cycles in which an active source had fewer
	// frames than the mix window and was padded with silence.
	Underruns uint64
	// LateDrops counts frames discarded because they were older than
	// the mixer's read position.
	LateDrops uint64
	// Overflows counts frames dropped because a source buffer wrapped.
	Overflows uint64
}

// Stats returns a snapshot of mixer counters.
func (b *Buffer) Stats() Stats {
	return Stats{
		Frames:    b.frames.Load(),
		Underruns: b.underruns.Load(),
		LateDrops: b.lateDrops.Load(),
		Overflows: b.overflows.Load(),
	}
}

// Close stops the idle sweeper and unregisters all sources. The buffer
// must not be used afterwards.
func (b *Buffer) Close() error {
	b.once.Do(func() {
		b.closed.Store(true)
		close(b.done)
		b.wg.Wait()
		b.wmu.Lock()
		t := b.tbl.Load()
		for _, s := range t.list {
			s.removed.Store(true)
		}
		b.tbl.Store(emptyTable())
		b.wmu.Unlock()
	})
	return nil
}

// paramTarget resolves the source a parameter setter applies to,
// registering a placeholder for an unseen identifier. The placeholder
// values seed the source once it starts supplying audio.
func (b *Buffer) paramTarget(id Source) *source {
	if b.closed.Load() || id == nil {
		return nil
	}
	if s := b.tbl.Load().lookup(id); s != nil {
		return s
	}
	return b.register(id)
}

// register publishes a new source snapshot, or returns the existing
// source if another writer won the race.
func (b *Buffer) register(id Source) *source {
	b.wmu.Lock()
	defer b.wmu.Unlock()
	if b.closed.Load() {
		return nil
	}
	t := b.tbl.Load()
	if s := t.lookup(id); s != nil {
		return s
	}
	s := b.newSource(id)
	b.tbl.Store(t.with(s))
	b.log.Debugf("registered source %v", id)
	return s
}

func (b *Buffer) newSource(id Source) *source {
	return b.newSourceWithChannels(id, b.numChannels)
}

func (b *Buffer) newSourceWithChannels(id Source, numChannels int) *source {
	now := b.clock.Now()
	s := &source{
		id:           id,
		numChannels:  numChannels,
		sampleRate:   b.sampleRate,
		ring:         newRing(numChannels, b.ringSize),
		scratch:      signal.EmptyFloat64(numChannels, b.maxFrames),
		view:         make(signal.Float64, numChannels),
		registeredAt: now,
	}
	s.setGain(1)
	s.setPan(0)
	s.touch(now)
	return s
}

func (b *Buffer) sweepLoop() {
	defer b.wg.Done()
	t := time.NewTicker(b.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			b.sweepIdle()
		}
	}
}

// sweepIdle unregisters sources that have produced no data for longer
// than the idle timeout. Runs on a control goroutine; the real-time
// path merely skips idle sources until the snapshot catches up.
func (b *Buffer) sweepIdle() {
	now := b.clock.Now()
	t := b.tbl.Load()
	for _, s := range t.list {
		if s.idleSince(now, b.idleTicks) {
			b.log.Infof("unregistering idle source %v", s.id)
			b.UnregisterSource(s.id)
		}
	}
}
