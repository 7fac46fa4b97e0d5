package wav_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pipelined/mixer"
	"github.com/pipelined/mixer/signal"
	"github.com/pipelined/mixer/wav"
)

const (
	sampleRate  = 44100
	numChannels = 2
)

func writeWav(t *testing.T, path string, data []int) {
	t.Helper()
	file, err := os.Create(path)
	require.NoError(t, err)
	e := gowav.NewEncoder(file, sampleRate, 16, numChannels, 1)
	err = e.Write(&audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: numChannels,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: 16,
	})
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, file.Close())
}

func readWav(t *testing.T, path string) []int {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	d := gowav.NewDecoder(file)
	buf, err := d.FullPCMBuffer()
	require.NoError(t, err)
	return buf.Data
}

func TestPumpSinkRoundtrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	out := filepath.Join(dir, "out.wav")

	data := make([]int, 300*numChannels)
	for i := range data {
		data[i] = (i - 300) * 32
	}
	writeWav(t, in, data)

	b := mixer.New(sampleRate, numChannels)
	defer b.Close()

	err := wav.NewPump(in).Pump(b, "file", 0, 128)
	require.NoError(t, err)

	frames, _, ok := b.Peek()
	require.True(t, ok)
	assert.Equal(t, 300, frames)

	err = wav.NewSink(out, signal.BitDepth16).Sink(b, 128)
	require.NoError(t, err)

	assert.Equal(t, data, readWav(t, out))
}

func TestPumpSampleRateMismatch(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.wav")
	writeWav(t, in, make([]int, 10*numChannels))

	b := mixer.New(48000, numChannels)
	defer b.Close()

	err := wav.NewPump(in).Pump(b, "file", 0, 64)
	assert.Error(t, err)
}

func TestPumpMissingFile(t *testing.T) {
	b := mixer.New(sampleRate, numChannels)
	defer b.Close()

	err := wav.NewPump("no-such-file.wav").Pump(b, "file", 0, 64)
	assert.Error(t, err)
}

func TestSinkBitDepth(t *testing.T) {
	b := mixer.New(sampleRate, numChannels)
	defer b.Close()

	err := wav.NewSink(filepath.Join(t.TempDir(), "out.wav"), signal.BitDepth24).Sink(b, 64)
	assert.Equal(t, wav.ErrUnsupportedBitDepth, err)
}
