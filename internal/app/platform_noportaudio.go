//go:build !portaudio

package app

// OpenPortAudio reports [ErrNoPortAudio]; rebuild with -tags portaudio for
// local audio devices. The auto platform then serves browser tabs.
func OpenPortAudio() (*Devices, error) {
	return nil, ErrNoPortAudio
}
