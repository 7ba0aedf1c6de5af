//go:build portaudio

package portaudio

import (
	"context"
	"fmt"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/langswap/pkg/audio"
)

const (
	// framesPerBuffer is the PortAudio buffer size in sample frames.
	framesPerBuffer = 1024

	// pollInterval is how long the capture loop sleeps when no input is ready.
	pollInterval = 10 * time.Millisecond
)

// DefaultSpeakerFormat matches the native output of most Coqui voices.
var DefaultSpeakerFormat = audio.Format{SampleRate: 22050, Channels: 1}

// ─── Microphone ───────────────────────────────────────────────────────────────

// Microphone captures from the default input device.
type Microphone struct {
	closeOnce sync.Once
}

// NewMicrophone initialises PortAudio.
func NewMicrophone() (*Microphone, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Microphone{}, nil
}

// Available reports whether a default input device exists.
func (m *Microphone) Available(context.Context) bool {
	dev, err := pa.DefaultInputDevice()
	return err == nil && dev != nil && dev.MaxInputChannels > 0
}

// Open starts capturing from the default input device.
func (m *Microphone) Open(ctx context.Context, f audio.Format) (audio.Stream, error) {
	if !m.Available(ctx) {
		return nil, audio.ErrNoDevice
	}
	channels := max(f.Channels, 1)
	buf := make([]int16, framesPerBuffer*channels)

	stream, err := pa.OpenDefaultStream(channels, 0, float64(f.SampleRate), framesPerBuffer, buf)
	if err != nil {
		return nil, fmt.Errorf("%w: open input stream: %v", audio.ErrNoDevice, err)
	}
	// Hosts that deny microphone access let the stream open but refuse to
	// start it.
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("%w: start input stream: %v", audio.ErrPermissionDenied, err)
	}

	s := &micStream{
		stream: stream,
		buf:    buf,
		format: audio.Format{SampleRate: f.SampleRate, Channels: channels},
		frames: make(chan audio.AudioFrame, 64),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()
	return s, nil
}

// Close terminates PortAudio.
func (m *Microphone) Close() error {
	var err error
	m.closeOnce.Do(func() { err = pa.Terminate() })
	return err
}

type micStream struct {
	stream *pa.Stream
	buf    []int16
	format audio.Format
	frames chan audio.AudioFrame

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (s *micStream) Frames() <-chan audio.AudioFrame { return s.frames }

func (s *micStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		if stopErr := s.stream.Stop(); stopErr != nil {
			err = fmt.Errorf("portaudio: stop input stream: %w", stopErr)
		}
		if closeErr := s.stream.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("portaudio: close input stream: %w", closeErr)
		}
	})
	return err
}

// readLoop polls for available input rather than blocking in Read so that
// Close never has to stop a stream another goroutine is reading from.
func (s *micStream) readLoop() {
	defer s.wg.Done()
	defer close(s.frames)

	start := time.Now()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		avail, err := s.stream.AvailableToRead()
		if err != nil || avail < framesPerBuffer {
			time.Sleep(pollInterval)
			continue
		}
		if err := s.stream.Read(); err != nil {
			time.Sleep(pollInterval)
			continue
		}

		frame := audio.AudioFrame{
			Data:       int16ToBytes(s.buf),
			SampleRate: s.format.SampleRate,
			Channels:   s.format.Channels,
			Timestamp:  time.Since(start),
		}
		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
	}
}

// ─── Speaker ──────────────────────────────────────────────────────────────────

// Speaker plays through the default output device.
type Speaker struct {
	format    audio.Format
	closeOnce sync.Once
}

// NewSpeaker initialises PortAudio. A zero format uses DefaultSpeakerFormat.
func NewSpeaker(f audio.Format) (*Speaker, error) {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		f = DefaultSpeakerFormat
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return &Speaker{format: f}, nil
}

// Available reports whether a default output device exists.
func (s *Speaker) Available(context.Context) bool {
	dev, err := pa.DefaultOutputDevice()
	return err == nil && dev != nil && dev.MaxOutputChannels > 0
}

// Format returns the format Play expects.
func (s *Speaker) Format() audio.Format { return s.format }

// Play opens an output stream for the duration of one utterance.
func (s *Speaker) Play(ctx context.Context, frames <-chan audio.AudioFrame) error {
	buf := make([]int16, framesPerBuffer*s.format.Channels)
	stream, err := pa.OpenDefaultStream(0, s.format.Channels, float64(s.format.SampleRate), framesPerBuffer, buf)
	if err != nil {
		audio.Drain(frames)
		return fmt.Errorf("%w: open output stream: %v", audio.ErrNoDevice, err)
	}
	defer stream.Close()
	if err := stream.Start(); err != nil {
		audio.Drain(frames)
		return fmt.Errorf("portaudio: start output stream: %w", err)
	}
	defer stream.Stop()

	var pending []int16
	flush := func(final bool) error {
		for len(pending) >= len(buf) || (final && len(pending) > 0) {
			n := copy(buf, pending)
			clear(buf[n:])
			pending = pending[n:]
			if err := stream.Write(); err != nil {
				return fmt.Errorf("portaudio: write output stream: %w", err)
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			audio.Drain(frames)
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return flush(true)
			}
			pending = append(pending, bytesToInt16(f.Data)...)
			if err := flush(false); err != nil {
				audio.Drain(frames)
				return err
			}
		}
	}
}

// Close terminates PortAudio.
func (s *Speaker) Close() error {
	var err error
	s.closeOnce.Do(func() { err = pa.Terminate() })
	return err
}

var (
	_ audio.Source = (*Microphone)(nil)
	_ audio.Sink   = (*Speaker)(nil)
)
