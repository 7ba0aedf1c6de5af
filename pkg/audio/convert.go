package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
)

// Format describes the sample rate and channel count of a 16-bit PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns e.g. "16000Hz mono".
func (f Format) String() string {
	switch f.Channels {
	case 1:
		return fmt.Sprintf("%dHz mono", f.SampleRate)
	case 2:
		return fmt.Sprintf("%dHz stereo", f.SampleRate)
	default:
		return fmt.Sprintf("%dHz %dch", f.SampleRate, f.Channels)
	}
}

// bytesPerFrame is the size of one sample across all channels.
func (f Format) bytesPerFrame() int { return 2 * max(f.Channels, 1) }

// Converter turns frames of one stream into Target. Synthesis backends that
// stream over HTTP cut the body wherever the network does, so a frame may end
// mid-sample; the remainder is carried into the next frame.
//
// A Converter holds per-stream state and must not be shared between streams.
type Converter struct {
	Target Format

	carry  []byte
	warned bool
}

// Convert returns frame in the target format. The returned frame may be
// empty when frame held less than one whole sample frame.
func (c *Converter) Convert(frame AudioFrame) AudioFrame {
	src := Format{SampleRate: frame.SampleRate, Channels: frame.Channels}
	pcm := frame.Data
	if len(c.carry) > 0 {
		pcm = append(c.carry, pcm...)
		c.carry = nil
	}
	if rem := len(pcm) % src.bytesPerFrame(); rem != 0 {
		c.carry = append([]byte(nil), pcm[len(pcm)-rem:]...)
		pcm = pcm[:len(pcm)-rem]
	}

	out := AudioFrame{SampleRate: c.Target.SampleRate, Channels: c.Target.Channels, Timestamp: frame.Timestamp}
	if src == c.Target {
		out.Data = pcm
		return out
	}
	if !c.warned {
		c.warned = true
		slog.Debug("audio: converting stream", "from", src, "to", c.Target)
	}

	// Remix to mono first when narrowing so fewer channels are resampled.
	if c.Target.Channels < src.Channels {
		pcm = Remix(pcm, src.Channels, c.Target.Channels)
		src.Channels = c.Target.Channels
	}
	pcm = Resample(pcm, src.Channels, src.SampleRate, c.Target.SampleRate)
	out.Data = Remix(pcm, src.Channels, c.Target.Channels)
	return out
}

// ConvertStream converts every frame read from in to target on a separate
// goroutine. The returned channel is closed when in closes or ctx is done;
// after cancellation the rest of in is drained so the producer never blocks.
func ConvertStream(ctx context.Context, in <-chan AudioFrame, target Format) <-chan AudioFrame {
	out := make(chan AudioFrame, cap(in))
	go func() {
		defer close(out)
		conv := Converter{Target: target}
		for frame := range in {
			f := conv.Convert(frame)
			if len(f.Data) == 0 {
				continue
			}
			select {
			case out <- f:
			case <-ctx.Done():
				Drain(in)
				return
			}
		}
	}()
	return out
}

// Remix changes the channel count of interleaved 16-bit PCM. Narrowing to
// mono averages all channels; widening from mono copies the sample into every
// channel. Other combinations keep the first min(from, to) channels and
// silence the rest.
func Remix(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 {
		return pcm
	}
	frames := len(pcm) / (2 * from)
	out := make([]byte, frames*2*to)
	for i := range frames {
		in := pcm[i*2*from : (i+1)*2*from]
		dst := out[i*2*to : (i+1)*2*to]
		switch {
		case to == 1:
			var sum int32
			for ch := range from {
				sum += int32(sample(in, ch))
			}
			putSample(dst, 0, int16(sum/int32(from)))
		case from == 1:
			s := sample(in, 0)
			for ch := range to {
				putSample(dst, ch, s)
			}
		default:
			for ch := range min(from, to) {
				putSample(dst, ch, sample(in, ch))
			}
		}
	}
	return out
}

// Resample converts interleaved 16-bit PCM with the given channel count from
// srcRate to dstRate by linear interpolation. Non-positive rates and equal
// rates return pcm unchanged.
func Resample(pcm []byte, channels, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || channels <= 0 {
		return pcm
	}
	stride := 2 * channels
	srcFrames := len(pcm) / stride
	if srcFrames == 0 {
		return pcm
	}
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(srcRate))
	if dstFrames == 0 {
		return nil
	}

	out := make([]byte, dstFrames*stride)
	step := float64(srcRate) / float64(dstRate)
	for i := range dstFrames {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)
		next := min(idx+1, srcFrames-1)
		a := pcm[idx*stride : (idx+1)*stride]
		b := pcm[next*stride : (next+1)*stride]
		dst := out[i*stride : (i+1)*stride]
		for ch := range channels {
			s0, s1 := float64(sample(a, ch)), float64(sample(b, ch))
			putSample(dst, ch, int16(s0+(s1-s0)*frac))
		}
	}
	return out
}

func sample(frame []byte, ch int) int16 {
	return int16(binary.LittleEndian.Uint16(frame[ch*2:]))
}

func putSample(frame []byte, ch int, s int16) {
	binary.LittleEndian.PutUint16(frame[ch*2:], uint16(s))
}
