package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInterIntAsFloat64(t *testing.T) {
	tests := []struct {
		name     string
		ints     InterInt
		expected Float64
	}{
		{
			name: "stereo 16 bit",
			ints: InterInt{
				Data:        []int{0, 16384, -16384, 32767},
				NumChannels: 2,
				BitDepth:    BitDepth16,
			},
			expected: Float64{
				{0, -0.5},
				{0.5, float64(32767) / 32768},
			},
		},
		{
			name: "mono 8 bit",
			ints: InterInt{
				Data:        []int{64, -128},
				NumChannels: 1,
				BitDepth:    BitDepth8,
			},
			expected: Float64{{0.5, -1}},
		},
		{
			name:     "nil data",
			ints:     InterInt{NumChannels: 1, BitDepth: BitDepth16},
			expected: nil,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, test.ints.AsFloat64())
		})
	}
}

func TestAsInterInt(t *testing.T) {
	tests := []struct {
		name     string
		floats   Float64
		bitDepth BitDepth
		expected []int
	}{
		{
			name:     "stereo 16 bit",
			floats:   Float64{{0, 0.5}, {-0.5, -1}},
			bitDepth: BitDepth16,
			expected: []int{0, -16384, 16384, -32768},
		},
		{
			name:     "clipping",
			floats:   Float64{{1.5, -1.5}},
			bitDepth: BitDepth16,
			expected: []int{32767, -32768},
		},
		{
			name:     "empty",
			floats:   Float64{},
			bitDepth: BitDepth16,
			expected: nil,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, test.floats.AsInterInt(test.bitDepth))
		})
	}
}

func TestDurationOf(t *testing.T) {
	assert.Equal(t, time.Second, DurationOf(44100, 44100))
	assert.Equal(t, 500*time.Millisecond, DurationOf(44100, 22050))
}

func TestSlice(t *testing.T) {
	buf := Float64{{0, 1, 2, 3, 4}}

	assert.Equal(t, Float64{{1, 2, 3}}, buf.Slice(1, 3))
	// shorter block when the buffer runs out
	assert.Equal(t, Float64{{3, 4}}, buf.Slice(3, 10))
	assert.Nil(t, buf.Slice(5, 1))
	assert.Nil(t, Float64(nil).Slice(0, 1))
}

func TestAppend(t *testing.T) {
	var buf Float64
	buf = buf.Append(Float64{{1, 2}})
	buf = buf.Append(Float64{{3}})
	assert.Equal(t, Float64{{1, 2, 3}}, buf)
}

func TestEmptyFloat64(t *testing.T) {
	buf := EmptyFloat64(2, 4)
	assert.Equal(t, 2, buf.NumChannels())
	assert.Equal(t, 4, buf.Size())
}
