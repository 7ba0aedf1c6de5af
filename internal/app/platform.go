package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/langswap/internal/config"
	"github.com/MrWong99/langswap/pkg/audio"
)

// Devices is the local audio hardware used by the device platform.
type Devices struct {
	Mic     audio.Source
	Speaker audio.Sink

	// Close releases both devices. May be nil.
	Close func() error
}

// DeviceOpener opens the local microphone and speaker.
type DeviceOpener func() (*Devices, error)

// ErrNoPortAudio is returned by [OpenPortAudio] in binaries built without the
// portaudio tag.
var ErrNoPortAudio = errors.New("built without portaudio support")

// availabler is implemented by sinks that can report whether an output
// device exists.
type availabler interface {
	Available(ctx context.Context) bool
}

// deviceReady reports why the device platform cannot run, or nil when it can.
func deviceReady(ctx context.Context, p *Providers, d *Devices) error {
	switch {
	case p.STT == nil:
		return errors.New("no stt provider configured")
	case p.TTS == nil:
		return errors.New("no tts provider configured")
	case d == nil || d.Mic == nil || d.Speaker == nil:
		return errors.New("no audio devices")
	case !d.Mic.Available(ctx):
		return fmt.Errorf("microphone: %w", audio.ErrNoDevice)
	}
	if a, ok := d.Speaker.(availabler); ok && !a.Available(ctx) {
		return fmt.Errorf("speaker: %w", audio.ErrNoDevice)
	}
	return nil
}

// resolvePlatform picks the platform to run. For auto it prefers the device
// platform and falls back to browser tabs; an explicit device request fails
// instead of falling back.
func (a *App) resolvePlatform(ctx context.Context) (config.Platform, error) {
	want := a.cfg.Platform
	if want == config.PlatformBrowser {
		return config.PlatformBrowser, nil
	}

	if a.devices == nil && a.providers.STT != nil && a.providers.TTS != nil {
		d, err := a.openDevices()
		switch {
		case err == nil:
			a.devices = d
			if d.Close != nil {
				a.closers = append(a.closers, d.Close)
			}
		case want == config.PlatformDevice:
			return "", fmt.Errorf("open audio devices: %w", err)
		default:
			slog.Info("audio devices could not be opened", "err", err)
		}
	}

	err := deviceReady(ctx, a.providers, a.devices)
	if err == nil {
		return config.PlatformDevice, nil
	}
	if want == config.PlatformDevice {
		return "", fmt.Errorf("device platform unavailable: %w", err)
	}
	slog.Info("device platform unavailable, serving browser tabs", "reason", err)
	return config.PlatformBrowser, nil
}
