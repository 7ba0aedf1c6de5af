// Package audio defines the local audio seams used by the on-device capture
// and synthesis backends.
//
// The two primary abstractions are:
//
//   - [Source] opens a microphone and yields a [Stream] of PCM frames.
//   - [Sink] plays a channel of PCM frames through a speaker.
//
// All audio is 16-bit signed little-endian PCM. Concrete implementations live
// in sub-packages (audio/portaudio); audio/mock provides in-memory doubles.
package audio

import (
	"context"
	"errors"
)

// Sentinel errors reported by [Source.Open]. Capture backends map them onto
// their own error taxonomy.
var (
	// ErrNoDevice means the host has no usable input or output device.
	ErrNoDevice = errors.New("audio: no audio device")

	// ErrPermissionDenied means the host refused access to the device.
	ErrPermissionDenied = errors.New("audio: device access denied")
)

// Stream is an open microphone capture.
type Stream interface {
	// Frames returns the channel of captured frames. It is closed after Close
	// or when the device fails.
	Frames() <-chan AudioFrame

	// Close stops capturing and releases the device. Safe to call more than
	// once.
	Close() error
}

// Source opens microphone captures.
//
// Implementations must be safe for concurrent use; at most one Stream is
// expected to be open at a time.
type Source interface {
	// Available reports whether an input device exists. It never prompts the
	// user.
	Available(ctx context.Context) bool

	// Open starts capturing in the requested format. Errors wrap
	// [ErrNoDevice] or [ErrPermissionDenied] where the cause is known.
	Open(ctx context.Context, f Format) (Stream, error)
}

// Sink plays PCM audio.
type Sink interface {
	// Format is the format Play expects; callers convert with [ConvertStream].
	Format() Format

	// Play writes frames to the device until frames is closed or ctx is done.
	// It returns ctx.Err() when cancelled and drains frames before returning.
	Play(ctx context.Context, frames <-chan AudioFrame) error
}
