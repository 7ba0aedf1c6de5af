// Package portaudio implements [audio.Source] and [audio.Sink] on top of the
// host's default input and output devices via PortAudio.
//
// The devices need CGO and the PortAudio headers, so they are only compiled
// with the portaudio build tag:
//
//	go build -tags portaudio ./cmd/langswap
//
// Both types initialise PortAudio on construction and terminate it on Close;
// PortAudio reference-counts initialisation, so a Microphone and a Speaker
// may coexist.
package portaudio

import "encoding/binary"

func int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func bytesToInt16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}
