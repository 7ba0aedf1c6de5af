package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/langswap/pkg/provider/tts"
	ttsmock "github.com/MrWong99/langswap/pkg/provider/tts/mock"
)

func drain(t *testing.T, u *tts.Utterance) [][]byte {
	t.Helper()
	var out [][]byte
	for c := range u.Audio {
		out = append(out, c)
	}
	return out
}

func TestTTSFallback_PrimaryKeepsVoice(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{Chunks: [][]byte{[]byte("a1"), []byte("a2")}}
	secondary := &ttsmock.Provider{}
	fb := NewTTSFallback(primary, "coqui", FallbackConfig{})
	fb.AddFallback("elevenlabs", secondary, "rachel")

	u, err := fb.Synthesize(context.Background(), tts.Request{Text: "สวัสดี", Language: "th-TH", Voice: "th_female"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := drain(t, u); len(got) != 2 || string(got[0]) != "a1" {
		t.Errorf("chunks = %q", got)
	}
	calls := primary.Calls()
	if len(calls) != 1 || calls[0].Req.Voice != "th_female" {
		t.Errorf("primary calls = %+v", calls)
	}
	if len(secondary.Calls()) != 0 {
		t.Error("secondary was called")
	}
}

func TestTTSFallback_FailoverSwapsVoice(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("coqui down")}
	secondary := &ttsmock.Provider{Chunks: [][]byte{[]byte("fallback")}}
	fb := NewTTSFallback(primary, "coqui", FallbackConfig{})
	fb.AddFallback("elevenlabs", secondary, "rachel")

	u, err := fb.Synthesize(context.Background(), tts.Request{Text: "hello", Language: "en-GB", Voice: "en_male"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := drain(t, u); len(got) != 1 || string(got[0]) != "fallback" {
		t.Errorf("chunks = %q", got)
	}
	calls := secondary.Calls()
	if len(calls) != 1 {
		t.Fatalf("secondary calls = %d, want 1", len(calls))
	}
	if calls[0].Req.Voice != "rachel" || calls[0].Req.Text != "hello" || calls[0].Req.Language != "en-GB" {
		t.Errorf("secondary request = %+v", calls[0].Req)
	}
}

func TestTTSFallback_AllFail(t *testing.T) {
	t.Parallel()
	fb := NewTTSFallback(&ttsmock.Provider{SynthesizeErr: errors.New("down")}, "coqui", FallbackConfig{})
	fb.AddFallback("elevenlabs", &ttsmock.Provider{SynthesizeErr: errors.New("down too")}, "")

	_, err := fb.Synthesize(context.Background(), tts.Request{Text: "hello"})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTTSFallback_EmptyText(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{}
	fb := NewTTSFallback(primary, "coqui", FallbackConfig{})

	_, err := fb.Synthesize(context.Background(), tts.Request{Text: " "})
	if !errors.Is(err, tts.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if len(primary.Calls()) != 0 {
		t.Error("empty text reached the backend")
	}
}
