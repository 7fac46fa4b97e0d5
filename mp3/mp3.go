// Package mp3 adapts mp3 files to the mixer buffer: Pump decodes and
// enqueues a file as a push source, Sink encodes the mixed output.
package mp3

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/viert/lame"

	"github.com/pipelined/mixer"
	"github.com/pipelined/mixer/signal"
)

// go-mp3 always decodes to 16-bit stereo.
const (
	decodedChannels = 2
	bytesPerFrame   = 4
	decodedBitDepth = signal.BitDepth16
)

type (
	// Pump reads an mp3 file and enqueues it into a mixer buffer.
	Pump struct {
		path string
	}

	// Sink saves mixed audio to an mp3 file.
	Sink struct {
		path    string
		bitRate int
		quality int
	}
)

// NewPump creates a new mp3 pump.
func NewPump(path string) *Pump {
	return &Pump{path: path}
}

// Pump enqueues the whole file for the source in chunks of bufferSize
// frames, timestamped contiguously from the start host time.
func (p *Pump) Pump(b *mixer.Buffer, source mixer.Source, start mixer.HostTime, bufferSize int) error {
	file, err := os.Open(p.path)
	if err != nil {
		return err
	}
	defer file.Close()

	d, err := mp3.NewDecoder(file)
	if err != nil {
		return err
	}
	if d.SampleRate() != b.SampleRate() {
		return fmt.Errorf("mp3 sample rate %d differs from canonical %d",
			d.SampleRate(), b.SampleRate())
	}
	if b.NumChannels() != decodedChannels {
		b.SetFormat(source, mixer.Format{NumChannels: decodedChannels})
	}

	raw := make([]byte, bufferSize*bytesPerFrame)
	ints := make([]int, bufferSize*decodedChannels)
	ticksPerFrame := b.Clock().TicksPerSecond() / float64(b.SampleRate())
	var sent int64
	for {
		read, err := fullRead(d, raw)
		if err != nil {
			return err
		}
		if read == 0 {
			return nil
		}
		frames := read / bytesPerFrame
		for i := 0; i < frames*decodedChannels; i++ {
			ints[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
		}
		chunk := signal.InterInt{
			Data:        ints[:frames*decodedChannels],
			NumChannels: decodedChannels,
			BitDepth:    decodedBitDepth,
		}.AsFloat64()
		at := start + mixer.HostTime(math.Round(float64(sent)*ticksPerFrame))
		b.Enqueue(source, chunk, frames, at)
		sent += int64(frames)
		if read < len(raw) {
			return nil
		}
	}
}

// fullRead fills buf as far as the decoder allows. io.EOF is reported
// as a nil error with a short count.
func fullRead(d *mp3.Decoder, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := d.Read(buf[total:])
		total += n
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

// NewSink creates a new mp3 sink with the provided bit rate and
// quality settings.
func NewSink(path string, bitRate, quality int) *Sink {
	return &Sink{path: path, bitRate: bitRate, quality: quality}
}

// Sink dequeues all currently buffered audio from the mixer in chunks
// of bufferSize frames and encodes it to the file.
func (s *Sink) Sink(b *mixer.Buffer, bufferSize int) error {
	file, err := os.Create(s.path)
	if err != nil {
		return err
	}
	wr := lame.NewWriter(file)
	wr.Encoder.SetBitrate(s.bitRate)
	wr.Encoder.SetQuality(s.quality)
	wr.Encoder.SetNumChannels(b.NumChannels())
	wr.Encoder.SetInSamplerate(b.SampleRate())
	wr.Encoder.SetMode(lame.JOINT_STEREO)
	wr.Encoder.SetVBR(lame.VBR_RH)
	wr.Encoder.InitParams()

	raw := make([]byte, 0, bufferSize*b.NumChannels()*2)
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
		ints := out.AsInterInt(signal.BitDepth16)
		raw = raw[:0]
		for i := range ints {
			raw = binary.LittleEndian.AppendUint16(raw, uint16(int16(ints[i])))
		}
		if _, err := wr.Write(raw); err != nil {
			file.Close()
			return err
		}
	}
	if err := wr.Close(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
