// Package signal provides types to represent and convert digital signals:
//	- interleaved integer data to non-interleaved floats and back
//	- bit depth conversions for int signals
package signal

import (
	"math"
	"time"
)

// Float64 is a non-interleaved float64 signal. First dimension is
// channels, second is samples.
type Float64 [][]float64

// BitDepth is the bit depth of an integer signal.
type BitDepth int

const (
	// BitDepth8 is 8 bit depth.
	BitDepth8 = BitDepth(8)
	// BitDepth16 is 16 bit depth.
	BitDepth16 = BitDepth(16)
	// BitDepth24 is 24 bit depth.
	BitDepth24 = BitDepth(24)
	// BitDepth32 is 32 bit depth.
	BitDepth32 = BitDepth(32)
)

// InterInt is an interleaved int signal.
type InterInt struct {
	Data        []int
	NumChannels int
	BitDepth
}

// scale returns the absolute value of the smallest sample for the bit
// depth. It is used as divisor and multiplier for int-float conversions.
func (bitDepth BitDepth) scale() float64 {
	switch bitDepth {
	case BitDepth8:
		return float64(math.MaxInt8 + 1)
	case BitDepth16:
		return float64(math.MaxInt16 + 1)
	case BitDepth24:
		return float64(1 << 23)
	case BitDepth32:
		return float64(math.MaxInt32 + 1)
	default:
		return 1
	}
}

// DurationOf returns the time duration of samples at the sample rate.
func DurationOf(sampleRate int, samples int64) time.Duration {
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}

// AsFloat64 converts an interleaved int signal to a non-interleaved
// float64 signal in the [-1, 1] range.
func (ints InterInt) AsFloat64() Float64 {
	if ints.Data == nil || ints.NumChannels == 0 {
		return nil
	}
	floats := make([][]float64, ints.NumChannels)
	bufSize := int(math.Ceil(float64(len(ints.Data)) / float64(ints.NumChannels)))

	scale := ints.BitDepth.scale()
	for i := range floats {
		floats[i] = make([]float64, bufSize)
		pos := 0
		for j := i; j < len(ints.Data); j = j + ints.NumChannels {
			floats[i][pos] = float64(ints.Data[j]) / scale
			pos++
		}
	}
	return floats
}

// AsInterInt converts a float64 signal to an interleaved int signal of
// the provided bit depth. Out-of-range samples are clipped.
func (floats Float64) AsInterInt(bitDepth BitDepth) []int {
	numChannels := len(floats)
	if numChannels == 0 {
		return nil
	}

	scale := bitDepth.scale()
	ints := make([]int, floats.Size()*numChannels)
	for j := range floats {
		for i := range floats[j] {
			v := floats[j][i] * scale
			if v > scale-1 {
				v = scale - 1
			} else if v < -scale {
				v = -scale
			}
			ints[i*numChannels+j] = int(v)
		}
	}
	return ints
}

// EmptyFloat64 returns a zero buffer of the specified dimensions.
func EmptyFloat64(numChannels int, bufferSize int) Float64 {
	result := make([][]float64, numChannels)
	for i := range result {
		result[i] = make([]float64, bufferSize)
	}
	return result
}

// NumChannels returns the number of channels in the buffer.
func (floats Float64) NumChannels() int {
	return len(floats)
}

// Size returns the number of samples per channel.
func (floats Float64) Size() int {
	if floats.NumChannels() == 0 {
		return 0
	}
	return len(floats[0])
}

// Append appends a buffer to an existing one. A new buffer is allocated
// if floats is nil.
func (floats Float64) Append(source Float64) Float64 {
	if floats == nil {
		floats = make([][]float64, source.NumChannels())
		for i := range floats {
			floats[i] = make([]float64, 0, source.Size())
		}
	}
	for i := range source {
		floats[i] = append(floats[i], source[i]...)
	}
	return floats
}

// Slice returns a copy of the buffer from start with the defined length.
// A shorter block is returned if the buffer doesn't have enough samples.
func (floats Float64) Slice(start, length int) Float64 {
	if floats == nil || start < 0 || start >= floats.Size() {
		return nil
	}
	end := start + length
	if end > floats.Size() {
		end = floats.Size()
	}
	result := make([][]float64, floats.NumChannels())
	for i := range floats {
		result[i] = append(result[i], floats[i][start:end]...)
	}
	return result
}
