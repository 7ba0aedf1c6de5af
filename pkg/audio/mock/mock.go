// Package mock provides in-memory mock implementations of the [audio.Source],
// [audio.Stream] and [audio.Sink] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	frames := make(chan audio.AudioFrame, 4)
//	src := &mock.Source{StreamResult: &mock.Stream{FramesCh: frames}}
//	s, err := src.Open(ctx, audio.Format{SampleRate: 16000, Channels: 1})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/langswap/pkg/audio"
)

// ─── Source ───────────────────────────────────────────────────────────────────

// Source is a mock implementation of [audio.Source].
type Source struct {
	mu sync.Mutex

	// Unavailable makes Available report false.
	Unavailable bool

	// StreamResult is returned by Open. When nil, Open returns a new Stream
	// whose frame channel is closed on Close.
	StreamResult *Stream

	// OpenErr, if non-nil, is returned by Open.
	OpenErr error

	// OpenCalls records the format of every Open call.
	OpenCalls []audio.Format
}

// Available reports !Unavailable.
func (s *Source) Available(context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.Unavailable
}

// Open records the call and returns StreamResult or OpenErr.
func (s *Source) Open(_ context.Context, f audio.Format) (audio.Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.OpenCalls = append(s.OpenCalls, f)
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	if s.StreamResult != nil {
		return s.StreamResult, nil
	}
	return &Stream{FramesCh: make(chan audio.AudioFrame, 16)}, nil
}

// OpenCallCount returns the number of Open calls.
func (s *Source) OpenCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.OpenCalls)
}

// ─── Stream ───────────────────────────────────────────────────────────────────

// Stream is a mock implementation of [audio.Stream]. Tests push frames into
// FramesCh; the first Close closes it.
type Stream struct {
	mu sync.Mutex

	// FramesCh is returned by Frames.
	FramesCh chan audio.AudioFrame

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	closed bool
}

// Frames returns FramesCh.
func (s *Stream) Frames() <-chan audio.AudioFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FramesCh
}

// Close records the call and closes FramesCh once.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	if !s.closed && s.FramesCh != nil {
		close(s.FramesCh)
	}
	s.closed = true
	return s.CloseErr
}

// Push sends f unless the stream is closed. It reports whether f was sent.
func (s *Stream) Push(f audio.AudioFrame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.FramesCh <- f:
		return true
	default:
		return false
	}
}

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock implementation of [audio.Sink]. Play consumes frames until
// the channel closes or ctx is cancelled. Set Block to make Play wait for ctx
// cancellation after the frames are consumed, simulating a long utterance.
type Sink struct {
	mu sync.Mutex

	// FormatResult is returned by Format. Zero means 16 kHz mono.
	FormatResult audio.Format

	// PlayErr, if non-nil, is returned by Play after the frames are consumed.
	PlayErr error

	// Block makes Play wait for ctx cancellation before returning.
	Block bool

	// Started, if non-nil, receives a value when Play begins.
	Started chan struct{}

	// Played records every frame consumed by Play.
	Played []audio.AudioFrame

	// CallCountPlay records how many times Play was called.
	CallCountPlay int

	playing int
}

// Format returns FormatResult or 16 kHz mono.
func (s *Sink) Format() audio.Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FormatResult.SampleRate == 0 {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return s.FormatResult
}

// Play records frames until frames closes or ctx is done.
func (s *Sink) Play(ctx context.Context, frames <-chan audio.AudioFrame) error {
	s.mu.Lock()
	s.CallCountPlay++
	s.playing++
	block, started, playErr := s.Block, s.Started, s.PlayErr
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.playing--
		s.mu.Unlock()
	}()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			audio.Drain(frames)
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				if block {
					<-ctx.Done()
					return ctx.Err()
				}
				return playErr
			}
			s.mu.Lock()
			s.Played = append(s.Played, f)
			s.mu.Unlock()
		}
	}
}

// Playing reports whether a Play call is in progress.
func (s *Sink) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing > 0
}

// PlayedBytes returns the total number of PCM bytes consumed.
func (s *Sink) PlayedBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.Played {
		n += len(f.Data)
	}
	return n
}

// Compile-time interface assertions.
var (
	_ audio.Source = (*Source)(nil)
	_ audio.Stream = (*Stream)(nil)
	_ audio.Sink   = (*Sink)(nil)
)
