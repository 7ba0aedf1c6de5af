package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrNotWAV is returned by [ParseWAV] for input that is not a RIFF/WAVE file
// holding 16-bit PCM.
var ErrNotWAV = errors.New("audio: not a 16-bit PCM WAV file")

const wavHeaderSize = 44

// EncodeWAV wraps 16-bit little-endian PCM in a canonical 44-byte RIFF/WAVE
// header.
func EncodeWAV(pcm []byte, f Format) []byte {
	ch := max(f.Channels, 1)
	out := make([]byte, wavHeaderSize, wavHeaderSize+len(pcm))
	le := binary.LittleEndian

	copy(out[0:], "RIFF")
	le.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:], "WAVEfmt ")
	le.PutUint32(out[16:], 16)
	le.PutUint16(out[20:], 1) // PCM
	le.PutUint16(out[22:], uint16(ch))
	le.PutUint32(out[24:], uint32(f.SampleRate))
	le.PutUint32(out[28:], uint32(f.SampleRate*ch*2))
	le.PutUint16(out[32:], uint16(ch*2))
	le.PutUint16(out[34:], 16)
	copy(out[36:], "data")
	le.PutUint32(out[40:], uint32(len(pcm)))
	return append(out, pcm...)
}

// ParseWAV returns the format and PCM payload of a WAV file. Chunks other
// than "fmt " and "data" are skipped, so headers longer than 44 bytes are
// fine. A data chunk whose declared size overruns the file, as written by
// encoders that stream before knowing the length, is cut at end of file.
func ParseWAV(b []byte) (Format, []byte, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return Format{}, nil, ErrNotWAV
	}
	le := binary.LittleEndian

	var (
		f      Format
		hasFmt bool
	)
	for off := 12; off+8 <= len(b); {
		id := string(b[off : off+4])
		size := int(le.Uint32(b[off+4:]))
		body := b[off+8:]

		switch id {
		case "fmt ":
			if size < 16 || len(body) < 16 {
				return Format{}, nil, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			if bits := le.Uint16(body[14:]); bits != 16 {
				return Format{}, nil, fmt.Errorf("%w: %d bits per sample", ErrNotWAV, bits)
			}
			f = Format{SampleRate: int(le.Uint32(body[4:])), Channels: int(le.Uint16(body[2:]))}
			hasFmt = true
		case "data":
			if !hasFmt {
				return Format{}, nil, fmt.Errorf("%w: data before fmt", ErrNotWAV)
			}
			return f, body[:min(size, len(body))], nil
		}
		off += 8 + size + size%2
	}
	return Format{}, nil, fmt.Errorf("%w: no data chunk", ErrNotWAV)
}

// Duration is how long n bytes of PCM in format f play for.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	frames := n / f.bytesPerFrame()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// RMS is the root-mean-square level of 16-bit PCM, in sample units
// (0 to 32768).
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
