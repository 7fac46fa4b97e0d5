package mixer

import (
	"sync/atomic"

	"github.com/pipelined/mixer/signal"
)

// ring is a single-producer single-consumer buffer of planar float64
// frames addressed by absolute positions on the mixer timeline. The
// capacity is a power of two and the slot of a position is its low
// bits. Read and write positions are atomic so the producer and the
// real-time consumer coordinate without locks; concurrent moves of the
// read position use a bounded CAS loop.
type ring struct {
	data [][]float64
	mask int64

	read     atomic.Int64 // position of the oldest retained frame
	write    atomic.Int64 // position one past the newest stored frame
	anchored atomic.Bool  // positions initialised by the first chunk
}

func newRing(numChannels, capacity int) *ring {
	c := int64(1)
	for c < int64(capacity) {
		c <<= 1
	}
	data := make([][]float64, numChannels)
	for i := range data {
		data[i] = make([]float64, c)
	}
	return &ring{data: data, mask: c - 1}
}

func (r *ring) capacity() int64 {
	return r.mask + 1
}

// push stores a chunk of frames at the given absolute position,
// resolving timestamp discontinuities:
//
//	- a gap is filled with silence to preserve absolute timing;
//	- an overlap discards the stored tail, the newest chunk wins;
//	- on overflow the oldest unconsumed frames are dropped.
//
// It returns the frame counts lost to lateness (behind the read
// cursor) and to overflow separately. Must be called by a single
// producer goroutine.
func (r *ring) push(buf signal.Float64, frames int, pos int64) (late, overflow int64) {
	if frames <= 0 {
		return 0, 0
	}
	capacity := r.capacity()
	if !r.anchored.Load() {
		r.read.Store(pos)
		r.write.Store(pos)
		r.anchored.Store(true)
	}

	// keep only the newest frames of an oversized chunk
	off := 0
	if int64(frames) > capacity {
		off = frames - int(capacity)
		overflow += int64(off)
	}
	first := pos + int64(off)
	end := pos + int64(frames)

	rd := r.read.Load()
	if end <= rd {
		// entirely behind the read cursor
		return late + end - first, overflow
	}
	if first < rd {
		late += rd - first
		off += int(rd - first)
		first = rd
	}
	if end-rd > capacity {
		// reclaim the oldest unconsumed frames
		lost := r.write.Load() - rd
		if adv := end - capacity - rd; adv < lost {
			lost = adv
		}
		if lost > 0 {
			overflow += lost
		}
		r.advanceRead(end - capacity)
	}

	if w := r.write.Load(); w < first {
		// gap: silence preserves absolute timing
		zs := w
		if zs < end-capacity {
			zs = end - capacity
		}
		for p := zs; p < first; p++ {
			slot := p & r.mask
			for c := range r.data {
				r.data[c][slot] = 0
			}
		}
	}

	for c := range r.data {
		if c >= len(buf) {
			for j := off; j < frames; j++ {
				r.data[c][(pos+int64(j))&r.mask] = 0
			}
			continue
		}
		src := buf[c]
		for j := off; j < frames; j++ {
			r.data[c][(pos+int64(j))&r.mask] = src[j]
		}
	}
	r.write.Store(end)
	return late, overflow
}

// available returns the number of contiguous frames ready at pos. Data
// starting past pos does not count: the source is silent until the
// timeline reaches it.
func (r *ring) available(pos int64) int64 {
	if !r.anchored.Load() {
		return 0
	}
	w := r.write.Load()
	if r.read.Load() > pos || w <= pos {
		return 0
	}
	return w - pos
}

// readInto copies frames starting at pos into dst, silence-filling
// positions outside the stored range. It returns the number of real
// data frames copied. Consumer side only.
func (r *ring) readInto(dst signal.Float64, pos int64, frames int) int {
	if !r.anchored.Load() {
		for c := range dst {
			for i := 0; i < frames; i++ {
				dst[c][i] = 0
			}
		}
		return 0
	}
	w := r.write.Load()
	rd := r.read.Load()
	n := 0
	for i := 0; i < frames; i++ {
		p := pos + int64(i)
		if p < rd || p >= w {
			for c := range dst {
				dst[c][i] = 0
			}
			continue
		}
		slot := p & r.mask
		for c := range dst {
			dst[c][i] = r.data[c][slot]
		}
		n++
	}
	return n
}

// consume moves the read cursor forward to the given position, freeing
// the consumed frames for reuse. The cursor never moves backward.
func (r *ring) consume(to int64) {
	r.advanceRead(to)
}

func (r *ring) advanceRead(to int64) {
	for {
		cur := r.read.Load()
		if cur >= to {
			return
		}
		if r.read.CompareAndSwap(cur, to) {
			return
		}
	}
}
