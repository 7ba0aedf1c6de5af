package audio_test

import (
	"context"
	"encoding/binary"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/langswap/pkg/audio"
)

// samplesToBytes converts int16 samples to little-endian PCM.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts little-endian PCM to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestRemix(t *testing.T) {
	tests := []struct {
		name     string
		in       []int16
		from, to int
		want     []int16
	}{
		{"mono to stereo", []int16{100, 200, 300}, 1, 2, []int16{100, 100, 200, 200, 300, 300}},
		{"stereo to mono", []int16{100, 300, -100, -300}, 2, 1, []int16{200, -200}},
		{"stereo to mono extremes", []int16{32767, 32767, -32768, -32768}, 2, 1, []int16{32767, -32768}},
		{"mono to quad", []int16{7}, 1, 4, []int16{7, 7, 7, 7}},
		{"quad to stereo keeps front", []int16{1, 2, 3, 4}, 4, 2, []int16{1, 2}},
		{"same", []int16{1, 2}, 2, 2, []int16{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bytesToSamples(audio.Remix(samplesToBytes(tt.in), tt.from, tt.to))
			if !slices.Equal(got, tt.want) {
				t.Errorf("Remix = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestResample(t *testing.T) {
	tests := []struct {
		name      string
		in        []int16
		channels  int
		src, dst  int
		wantLen   int
		wantFirst []int16
	}{
		{"same rate", []int16{1, 2, 3}, 1, 16000, 16000, 3, []int16{1, 2, 3}},
		{"mono up 2x", []int16{0, 1000}, 1, 16000, 32000, 4, []int16{0, 500, 1000, 1000}},
		{"mono down 3x", make([]int16, 48), 1, 48000, 16000, 16, nil},
		{"stereo up 2x", []int16{0, 100, 1000, 1100}, 2, 8000, 16000, 8, []int16{0, 100, 500, 600}},
		{"zero rate", []int16{1, 2}, 1, 0, 16000, 2, []int16{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := bytesToSamples(audio.Resample(samplesToBytes(tt.in), tt.channels, tt.src, tt.dst))
			if len(got) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(got), tt.wantLen)
			}
			if tt.wantFirst != nil && !slices.Equal(got[:len(tt.wantFirst)], tt.wantFirst) {
				t.Errorf("samples = %v, want prefix %v", got, tt.wantFirst)
			}
		})
	}
}

func TestConverter_PassThrough(t *testing.T) {
	c := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	data := samplesToBytes([]int16{1, 2, 3})
	got := c.Convert(audio.AudioFrame{Data: data, SampleRate: 16000, Channels: 1, Timestamp: time.Second})
	if !slices.Equal(got.Data, data) || got.Timestamp != time.Second {
		t.Errorf("Convert = %+v", got)
	}
}

func TestConverter_CarriesPartialSamples(t *testing.T) {
	c := audio.Converter{Target: audio.Format{SampleRate: 24000, Channels: 1}}
	pcm := samplesToBytes([]int16{1000, -2000, 3000})

	first := c.Convert(audio.AudioFrame{Data: pcm[:3], SampleRate: 24000, Channels: 1})
	second := c.Convert(audio.AudioFrame{Data: pcm[3:], SampleRate: 24000, Channels: 1})

	if got := bytesToSamples(first.Data); !slices.Equal(got, []int16{1000}) {
		t.Errorf("first = %v, want [1000]", got)
	}
	if got := bytesToSamples(second.Data); !slices.Equal(got, []int16{-2000, 3000}) {
		t.Errorf("second = %v, want [-2000 3000]", got)
	}
}

func TestConverter_FullConversion(t *testing.T) {
	c := audio.Converter{Target: audio.Format{SampleRate: 48000, Channels: 2}}
	got := c.Convert(audio.AudioFrame{Data: samplesToBytes([]int16{0, 300}), SampleRate: 24000, Channels: 1})
	if got.SampleRate != 48000 || got.Channels != 2 {
		t.Fatalf("format = %dHz %dch", got.SampleRate, got.Channels)
	}
	want := []int16{0, 0, 150, 150, 300, 300, 300, 300}
	if samples := bytesToSamples(got.Data); !slices.Equal(samples, want) {
		t.Errorf("samples = %v, want %v", samples, want)
	}
}

func TestConvertStream(t *testing.T) {
	in := make(chan audio.AudioFrame, 3)
	out := audio.ConvertStream(context.Background(), in, audio.Format{SampleRate: 48000, Channels: 2})

	in <- audio.AudioFrame{Data: samplesToBytes([]int16{100, 200}), SampleRate: 48000, Channels: 1}
	in <- audio.AudioFrame{Data: []byte{1}, SampleRate: 48000, Channels: 2}
	in <- audio.AudioFrame{Data: samplesToBytes([]int16{500, 600, 700, 800}), SampleRate: 48000, Channels: 2}
	close(in)

	var results [][]int16
	for f := range out {
		if f.SampleRate != 48000 || f.Channels != 2 {
			t.Errorf("frame format = %dHz %dch", f.SampleRate, f.Channels)
		}
		results = append(results, bytesToSamples(f.Data))
	}
	if len(results) != 2 {
		t.Fatalf("got %d frames, want 2 (the sub-sample frame is held back)", len(results))
	}
	if !slices.Equal(results[0], []int16{100, 100, 200, 200}) {
		t.Errorf("frame 0 = %v", results[0])
	}
	// The held-back byte is prepended to the next frame; only whole stereo
	// frames are emitted.
	if len(results[1])%2 != 0 {
		t.Errorf("frame 1 has %d samples, want whole stereo frames", len(results[1]))
	}
}

func TestConvertStream_CancelDrainsInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan audio.AudioFrame)
	out := audio.ConvertStream(ctx, in, audio.Format{SampleRate: 16000, Channels: 1})

	frame := audio.AudioFrame{Data: samplesToBytes([]int16{1, 2}), SampleRate: 16000, Channels: 1}
	in <- frame
	cancel()

	// The producer must never block once the consumer is gone.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range 4 {
			in <- frame
		}
		close(in)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("producer blocked after cancellation")
	}
	audio.Drain(out)
}
