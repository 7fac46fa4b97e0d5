package mixer

import (
	"math"

	"github.com/pipelined/mixer/signal"
)

// PanLaw defines how pan positions map to left and right gains.
type PanLaw int

const (
	// PanLinear keeps center at unity gain and attenuates the opposite
	// channel linearly. Center-panned unit-gain audio passes through
	// bit exact.
	PanLinear PanLaw = iota
	// PanEqualPower keeps perceived energy constant across positions;
	// center sits 3dB below unity on each channel.
	PanEqualPower
)

// Gains returns the left and right channel gains for a pan position in
// the [-1, 1] range.
func (l PanLaw) Gains(pan float64) (left, right float64) {
	if pan < -1 {
		pan = -1
	} else if pan > 1 {
		pan = 1
	}
	switch l {
	case PanEqualPower:
		theta := (pan + 1) * math.Pi / 4
		return math.Cos(theta), math.Sin(theta)
	default:
		left, right = 1, 1
		if pan > 0 {
			left = 1 - pan
		} else {
			right = 1 + pan
		}
		return left, right
	}
}

// Peek reports how many frames the next Dequeue can produce and the
// host time of the frame at the current read position. The last value
// is false when nothing has ever been buffered.
func (b *Buffer) Peek() (int, HostTime, bool) {
	if b.closed.Load() {
		return 0, 0, false
	}
	t := b.tbl.Load()
	now := b.clock.Now()
	n, ok := b.window(t, now, b.maxFrames)
	if !ok {
		return 0, 0, false
	}
	ts, _ := b.timeBase.HostTimeAt(b.pos)
	return n, ts, true
}

// Dequeue mixes and returns up to frames frames of synchronized audio.
// If dst is nil an internal buffer is returned, valid only until the
// next dequeue call. The returned count may be less than requested
// when sources have less audio buffered.
func (b *Buffer) Dequeue(dst signal.Float64, frames int) (signal.Float64, int) {
	n := b.dequeue(dst, frames, false)
	if dst != nil {
		return dst, n
	}
	for c := range b.out {
		b.out[c] = b.acc[c][:n]
	}
	return b.out, n
}

// Discard advances the mixer by up to frames frames without copying
// audio out. Timing advances exactly as if the frames were dequeued.
func (b *Buffer) Discard(frames int) int {
	return b.dequeue(nil, frames, true)
}

func (b *Buffer) dequeue(dst signal.Float64, frames int, discard bool) int {
	if b.closed.Load() || frames <= 0 {
		return 0
	}
	if frames > b.maxFrames {
		frames = b.maxFrames
	}
	t := b.tbl.Load()
	now := b.clock.Now()
	n, ok := b.window(t, now, frames)
	if !ok || n == 0 {
		return 0
	}
	pos := b.pos
	end := pos + int64(n)

	if !discard {
		for c := range b.acc {
			acc := b.acc[c][:n]
			for i := range acc {
				acc[i] = 0
			}
		}
	}

	for _, s := range t.list {
		if s.removed.Load() || s.idleSince(now, b.idleTicks) {
			continue
		}
		data, future := b.render(s, pos, n, discard)
		if data < n && !future && s.sawData && !s.inGrace(now, b.graceTicks) {
			s.underruns.Add(1)
			b.underruns.Add(1)
		}
		if data > 0 {
			s.sawData = true
		}
		if !discard && data > 0 {
			b.accumulate(s, n)
		}
		s.cursor = end
		s.cursorSet = true
	}
	b.pos = end
	b.frames.Add(uint64(n))

	if discard {
		return n
	}
	for c := range b.acc {
		acc := b.acc[c][:n]
		for i := range acc {
			if acc[i] > 1 {
				acc[i] = 1
			} else if acc[i] < -1 {
				acc[i] = -1
			}
		}
	}
	if dst != nil {
		ch := len(dst)
		if ch > b.numChannels {
			ch = b.numChannels
		}
		for c := 0; c < ch; c++ {
			copy(dst[c], b.acc[c][:n])
		}
	}
	return n
}

// DequeueSource returns one source's synchronized stream without gain,
// pan or cross-source summation applied. It advances that source's
// read cursor and must not be combined with concurrent Dequeue calls
// on the same buffer.
func (b *Buffer) DequeueSource(id Source, dst signal.Float64, frames int) (signal.Float64, int) {
	if b.closed.Load() || frames <= 0 {
		return dst, 0
	}
	if frames > b.maxFrames {
		frames = b.maxFrames
	}
	t := b.tbl.Load()
	s := t.lookup(id)
	if s == nil || s.removed.Load() {
		return dst, 0
	}
	now := b.clock.Now()
	if !s.cursorSet {
		start, ok := b.sourceStart(s)
		if !ok {
			return dst, 0
		}
		s.cursor = start
		s.cursorSet = true
	}
	avail := b.availableAt(s, s.cursor, now)
	n := frames
	if int(avail) < n {
		n = int(avail)
	}
	if n <= 0 {
		return dst, 0
	}
	pos := s.cursor
	data, _ := b.render(s, pos, n, false)
	if data > 0 {
		s.sawData = true
	}
	s.cursor = pos + int64(n)

	// convert the source layout to the canonical one, unity gain
	if b.numChannels == 1 && s.numChannels > 1 {
		acc := b.acc[0][:n]
		scale := 1 / float64(s.numChannels)
		for i := range acc {
			acc[i] = 0
		}
		for c := 0; c < s.numChannels; c++ {
			src := s.scratch[c][:n]
			for i := range acc {
				acc[i] += src[i] * scale
			}
		}
	} else {
		for c := range b.acc {
			acc := b.acc[c][:n]
			src := b.sourceChannel(s, c, n)
			if src == nil {
				for i := range acc {
					acc[i] = 0
				}
				continue
			}
			copy(acc, src)
		}
	}
	if dst != nil {
		ch := len(dst)
		if ch > b.numChannels {
			ch = b.numChannels
		}
		for c := 0; c < ch; c++ {
			copy(dst[c], b.acc[c][:n])
		}
		return dst, n
	}
	for c := range b.out {
		b.out[c] = b.acc[c][:n]
	}
	return b.out, n
}

// window determines how many frames the next dequeue can produce from
// the current position: the minimum of the active sources' available
// frames. A source with nothing available does not block the window,
// it will contribute silence for the shortfall.
func (b *Buffer) window(t *table, now HostTime, max int) (int, bool) {
	if !b.posSet {
		start, ok := b.earliest(t)
		if !ok {
			return 0, false
		}
		b.pos = start
		b.posSet = true
	}
	win := max
	any := false
	for _, s := range t.list {
		if s.removed.Load() || s.idleSince(now, b.idleTicks) {
			continue
		}
		avail := b.availableAt(s, b.pos, now)
		if avail <= 0 {
			continue
		}
		any = true
		if int(avail) < win {
			win = int(avail)
		}
	}
	if !any {
		return 0, true
	}
	return win, true
}

// earliest finds the smallest absolute position any source has data
// for. Used once to seat the output position.
func (b *Buffer) earliest(t *table) (int64, bool) {
	var min int64
	found := false
	for _, s := range t.list {
		if s.removed.Load() {
			continue
		}
		var p int64
		has := false
		switch ingestMode(s.mode.Load()) {
		case modePush:
			if s.ring.anchored.Load() {
				p = s.ring.read.Load()
				has = true
			}
		case modePull:
			if f, next := s.pull.Peek(); f > 0 {
				p = b.timeBase.PositionFor(next)
				has = true
			}
		}
		if has && (!found || p < min) {
			min = p
			found = true
		}
	}
	return min, found
}

// availableAt returns the contiguous frames the source can contribute
// starting at pos. For pull sources it snapshots the peek result for
// the rest of the cycle.
func (b *Buffer) availableAt(s *source, pos int64, now HostTime) int64 {
	switch ingestMode(s.mode.Load()) {
	case modePush:
		return s.ring.available(pos)
	case modePull:
		if s.removed.Load() {
			return 0
		}
		f, next := s.pull.Peek()
		s.peekFrames = f
		s.peekPos = b.timeBase.PositionFor(next)
		if f > 0 {
			s.touch(now)
		}
		if s.peekPos > pos {
			return 0
		}
		a := int64(f) - (pos - s.peekPos)
		if a < 0 {
			a = 0
		}
		return a
	}
	return 0
}

// sourceStart returns the position of the source's oldest ready frame.
func (b *Buffer) sourceStart(s *source) (int64, bool) {
	switch ingestMode(s.mode.Load()) {
	case modePush:
		if !s.ring.anchored.Load() {
			return 0, false
		}
		return s.ring.read.Load(), true
	case modePull:
		f, next := s.pull.Peek()
		if f == 0 {
			return 0, false
		}
		return b.timeBase.PositionFor(next), true
	}
	return 0, false
}

// render fills s.scratch with n frames aligned to pos, padding with
// silence where the source has no data. It consumes the source up to
// pos+n and returns the count of real data frames along with whether
// the source's data still lies in the future.
func (b *Buffer) render(s *source, pos int64, n int, discard bool) (int, bool) {
	end := pos + int64(n)
	switch ingestMode(s.mode.Load()) {
	case modePush:
		rd := s.ring.read.Load()
		future := s.ring.anchored.Load() && rd >= end
		if rd < pos && s.ring.anchored.Load() {
			// frames behind the output position can never be played
			late := pos - rd
			if w := s.ring.write.Load(); w < pos {
				late = w - rd
			}
			if late > 0 {
				s.lateDrops.Add(uint64(late))
				b.lateDrops.Add(uint64(late))
			}
		}
		var data int
		if !discard {
			data = s.ring.readInto(s.scratch, pos, n)
		} else if a := s.ring.available(pos); a > 0 {
			data = int(a)
			if data > n {
				data = n
			}
		}
		s.ring.consume(end)
		return data, future
	case modePull:
		if s.removed.Load() {
			return 0, false
		}
		future := s.peekPos >= end && s.peekFrames > 0
		lead := s.peekPos - pos
		if lead < 0 {
			// discard frames that are already behind the timeline
			late := -lead
			if late > int64(s.peekFrames) {
				late = int64(s.peekFrames)
			}
			if late > 0 {
				s.pull.Render(nil, int(late))
				s.lateDrops.Add(uint64(late))
				b.lateDrops.Add(uint64(late))
				s.peekFrames -= int(late)
			}
			lead = 0
		}
		if lead > int64(n) {
			lead = int64(n)
		}
		renderN := n - int(lead)
		if renderN > s.peekFrames {
			renderN = s.peekFrames
		}
		if renderN <= 0 {
			if !discard {
				for c := range s.scratch {
					sc := s.scratch[c][:n]
					for i := range sc {
						sc[i] = 0
					}
				}
			}
			return 0, future
		}
		if discard {
			s.pull.Render(nil, renderN)
			return renderN, future
		}
		for c := range s.scratch {
			sc := s.scratch[c][:n]
			for i := 0; i < int(lead); i++ {
				sc[i] = 0
			}
			for i := int(lead) + renderN; i < n; i++ {
				sc[i] = 0
			}
		}
		for c := range s.view {
			s.view[c] = s.scratch[c][lead : lead+int64(renderN)]
		}
		s.pull.Render(s.view, renderN)
		return renderN, future
	}
	return 0, false
}

// accumulate applies gain and pan to the source scratch and sums it
// into the accumulator, converting the source channel layout to the
// canonical one. Pan affects the first two output channels; a mono
// canonical format ignores pan and averages the source channels.
func (b *Buffer) accumulate(s *source, n int) {
	gain := s.gainValue()
	left, right := b.panLaw.Gains(s.panValue())

	if b.numChannels == 1 {
		acc := b.acc[0][:n]
		scale := gain / float64(s.numChannels)
		for c := 0; c < s.numChannels; c++ {
			src := s.scratch[c][:n]
			for i := range acc {
				acc[i] += src[i] * scale
			}
		}
		return
	}
	for c := 0; c < b.numChannels; c++ {
		g := gain
		if c == 0 {
			g *= left
		} else if c == 1 {
			g *= right
		}
		src := b.sourceChannel(s, c, n)
		if src == nil || g == 0 {
			continue
		}
		acc := b.acc[c][:n]
		for i := range acc {
			acc[i] += src[i] * g
		}
	}
}

// sourceChannel maps a canonical output channel to the source scratch
// channel feeding it: mono sources feed every output channel, extra
// output channels beyond the source layout stay silent.
func (b *Buffer) sourceChannel(s *source, c, n int) []float64 {
	if s.numChannels == 1 {
		return s.scratch[0][:n]
	}
	if c < s.numChannels {
		return s.scratch[c][:n]
	}
	return nil
}
