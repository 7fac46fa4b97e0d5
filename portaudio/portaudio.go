// Package portaudio provides a playback sink which drains the mixer
// buffer through the default output device. The stream loop acts as
// the real-time consumer: it only ever calls Dequeue on preallocated
// storage.
package portaudio

import (
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/pipelined/mixer"
	"github.com/pipelined/mixer/signal"
)

// Sink plays mixed audio using the default output device.
type Sink struct {
	b          *mixer.Buffer
	bufferSize int

	buf    []float32
	out    signal.Float64
	stream *portaudio.Stream

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSink returns a new sink draining the mixer in chunks of
// bufferSize frames.
func NewSink(b *mixer.Buffer, bufferSize int) *Sink {
	return &Sink{
		b:          b,
		bufferSize: bufferSize,
		buf:        make([]float32, bufferSize*b.NumChannels()),
		out:        signal.EmptyFloat64(b.NumChannels(), bufferSize),
	}
}

// Start initializes portaudio, opens the default stream and begins
// draining the mixer.
func (s *Sink) Start() error {
	if err := portaudio.Initialize(); err != nil {
		return err
	}
	stream, err := portaudio.OpenDefaultStream(
		0,
		s.b.NumChannels(),
		float64(s.b.SampleRate()),
		s.bufferSize,
		&s.buf,
	)
	if err != nil {
		portaudio.Terminate()
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return err
	}
	s.stream = stream
	s.done = make(chan struct{})
	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop stops playback and terminates portaudio structures.
func (s *Sink) Stop() error {
	close(s.done)
	s.wg.Wait()
	if err := s.stream.Stop(); err != nil {
		return err
	}
	if err := s.stream.Close(); err != nil {
		return err
	}
	return portaudio.Terminate()
}

func (s *Sink) loop() {
	defer s.wg.Done()
	numChannels := s.b.NumChannels()
	for {
		select {
		case <-s.done:
			return
		default:
		}
		_, n := s.b.Dequeue(s.out, s.bufferSize)
		for i := 0; i < s.bufferSize; i++ {
			for c := 0; c < numChannels; c++ {
				v := float32(0)
				if i < n {
					v = float32(s.out[c][i])
				}
				s.buf[i*numChannels+c] = v
			}
		}
		// a short or empty window plays out as silence
		if err := s.stream.Write(); err != nil {
			return
		}
	}
}
