//go:build portaudio

package app

import (
	"errors"

	"github.com/MrWong99/langswap/pkg/audio/portaudio"
)

// OpenPortAudio opens the default input and output devices via PortAudio.
func OpenPortAudio() (*Devices, error) {
	mic, err := portaudio.NewMicrophone()
	if err != nil {
		return nil, err
	}
	spk, err := portaudio.NewSpeaker(portaudio.DefaultSpeakerFormat)
	if err != nil {
		_ = mic.Close()
		return nil, err
	}
	return &Devices{
		Mic:     mic,
		Speaker: spk,
		Close:   func() error { return errors.Join(spk.Close(), mic.Close()) },
	}, nil
}
