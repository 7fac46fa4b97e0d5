// Package wav adapts wav files to the mixer buffer: Pump enqueues a
// file as a push source, Sink drains the mixed output into a file.
package wav

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/pipelined/mixer"
	"github.com/pipelined/mixer/signal"
)

// ErrUnsupportedBitDepth is returned when an unsupported bit depth is used.
var ErrUnsupportedBitDepth = errors.New("only 16 and 32 bit depth is supported")

type (
	// Pump reads a wav file and enqueues it into a mixer buffer.
	Pump struct {
		path string
	}

	// Sink saves mixed audio to a wav file.
	Sink struct {
		path     string
		bitDepth signal.BitDepth
	}
)

// NewPump creates a new wav pump.
func NewPump(path string) *Pump {
	return &Pump{path: path}
}

// Pump enqueues the whole file for the source in chunks of bufferSize
// frames, timestamped contiguously from the start host time. The file
// sample rate must match the canonical rate.
func (p *Pump) Pump(b *mixer.Buffer, source mixer.Source, start mixer.HostTime, bufferSize int) error {
	file, err := os.Open(p.path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return fmt.Errorf("wav file %v is not valid", p.path)
	}
	bitDepth := signal.BitDepth(decoder.BitDepth)
	if bitDepth != signal.BitDepth16 && bitDepth != signal.BitDepth32 {
		return ErrUnsupportedBitDepth
	}
	if int(decoder.SampleRate) != b.SampleRate() {
		return fmt.Errorf("wav sample rate %d differs from canonical %d",
			decoder.SampleRate, b.SampleRate())
	}
	numChannels := decoder.Format().NumChannels
	if numChannels != b.NumChannels() {
		b.SetFormat(source, mixer.Format{NumChannels: numChannels})
	}

	ib := &audio.IntBuffer{
		Format:         decoder.Format(),
		Data:           make([]int, bufferSize*numChannels),
		SourceBitDepth: int(decoder.BitDepth),
	}
	ticksPerFrame := b.Clock().TicksPerSecond() / float64(b.SampleRate())
	var sent int64
	for {
		read, err := decoder.PCMBuffer(ib)
		if err != nil {
			return err
		}
		if read == 0 {
			return nil
		}
		chunk := signal.InterInt{
			Data:        ib.Data[:read],
			NumChannels: numChannels,
			BitDepth:    bitDepth,
		}.AsFloat64()
		at := start + mixer.HostTime(math.Round(float64(sent)*ticksPerFrame))
		b.Enqueue(source, chunk, chunk.Size(), at)
		sent += int64(chunk.Size())
	}
}

// NewSink creates a new wav sink.
func NewSink(path string, bitDepth signal.BitDepth) *Sink {
	return &Sink{path: path, bitDepth: bitDepth}
}

// Sink dequeues all currently buffered audio from the mixer in chunks
// of bufferSize frames and writes it to the file.
func (s *Sink) Sink(b *mixer.Buffer, bufferSize int) error {
	if s.bitDepth != signal.BitDepth16 && s.bitDepth != signal.BitDepth32 {
		return ErrUnsupportedBitDepth
	}
	file, err := os.Create(s.path)
	if err != nil {
		return err
	}
	e := wav.NewEncoder(file, b.SampleRate(), int(s.bitDepth), b.NumChannels(), 1)

	format := &audio.Format{
		NumChannels: b.NumChannels(),
		SampleRate:  b.SampleRate(),
	}
	for {
		n, _, ok := b.Peek()
		if !ok || n == 0 {
			break
		}
		if n > bufferSize {
			n = bufferSize
		}
		out, got := b.Dequeue(nil, n)
		if got == 0 {
			break
		}
		ab := &audio.IntBuffer{
			Format:         format,
			Data:           out.AsInterInt(s.bitDepth),
			SourceBitDepth: int(s.bitDepth),
		}
		if err := e.Write(ab); err != nil {
			file.Close()
			return err
		}
	}
	if err := e.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
