package speech_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/MrWong99/langswap/internal/notice"
	"github.com/MrWong99/langswap/internal/observe"
	"github.com/MrWong99/langswap/internal/speech"
	"github.com/MrWong99/langswap/pkg/lang"
	"github.com/MrWong99/langswap/pkg/provider/synth"
	synthmock "github.com/MrWong99/langswap/pkg/provider/synth/mock"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// flagLog records every speaking-flag transition.
type flagLog struct {
	mu      sync.Mutex
	changes []bool
}

func (l *flagLog) record(v bool) {
	l.mu.Lock()
	l.changes = append(l.changes, v)
	l.mu.Unlock()
}

func (l *flagLog) get() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.changes...)
}

func newController(t *testing.T) (*speech.Controller, *synthmock.Engine, *notice.Recorder, *flagLog) {
	t.Helper()
	eng := &synthmock.Engine{}
	rec := &notice.Recorder{}
	c := speech.New(eng, speech.WithNotices(rec), speech.WithMetrics(testMetrics(t)))
	log := &flagLog{}
	c.OnSpeakingChange(log.record)
	return c, eng, rec, log
}

func TestSpeak_MapsLocaleAndDefaults(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"th", "th-TH"},
		{"en", "en-GB"},
		{"xx", "en-GB"},
		{"", "en-GB"},
	}
	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			eng := &synthmock.Engine{}
			c := speech.New(eng, speech.WithMetrics(testMetrics(t)), speech.WithDefaults(0.9, 0))
			if err := c.Speak(context.Background(), speech.Utterance{Text: "hi", Language: lang.Code(tc.code)}); err != nil {
				t.Fatalf("Speak: %v", err)
			}
			opts := eng.Calls()[0].Opts
			if opts.Language != tc.want {
				t.Errorf("locale = %q, want %q", opts.Language, tc.want)
			}
			if opts.Rate != 0.9 || opts.Pitch != 1 {
				t.Errorf("rate/pitch = %v/%v, want 0.9/1", opts.Rate, opts.Pitch)
			}
		})
	}
}

func TestSpeak_FlagTrueBeforeDispatch(t *testing.T) {
	eng := &synthmock.Engine{}
	c := speech.New(eng, speech.WithMetrics(testMetrics(t)))
	var speakingAtDispatch bool
	c.OnSpeakingChange(func(v bool) {
		if v {
			speakingAtDispatch = len(eng.Calls()) == 0
		}
	})

	if err := c.Speak(context.Background(), speech.Utterance{Text: "สวัสดี", Language: "th"}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if !speakingAtDispatch {
		t.Error("speaking flag not raised before the engine was called")
	}
	if !c.IsSpeaking() {
		t.Error("IsSpeaking() = false after Speak")
	}
	eng.Finish()
	if c.IsSpeaking() {
		t.Error("IsSpeaking() = true after done")
	}
}

func TestSpeak_CancelAndReplace(t *testing.T) {
	c, eng, _, log := newController(t)
	ctx := context.Background()

	_ = c.Speak(ctx, speech.Utterance{Text: "one", Language: "en", Source: speech.SourceTranslator})
	_ = c.Speak(ctx, speech.Utterance{Text: "two", Language: "th", Source: speech.SourceLesson})

	if eng.StopCallCount != 1 {
		t.Errorf("engine Stop called %d times before second dispatch, want 1", eng.StopCallCount)
	}
	u, ok := c.Active()
	if !ok || u.Text != "two" || u.Source != speech.SourceLesson {
		t.Errorf("active = %+v, %v", u, ok)
	}
	want := []bool{true, false, true}
	if got := log.get(); !slices.Equal(got, want) {
		t.Errorf("flag changes = %v, want %v", got, want)
	}
}

func TestSpeak_AtMostOneActive(t *testing.T) {
	c, eng, _, log := newController(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_ = c.Speak(ctx, speech.Utterance{Text: "again", Language: "en"})
		if i%3 == 0 {
			eng.Finish()
		}
		if i%5 == 0 {
			_ = c.Stop(ctx)
		}
	}

	depth := 0
	for _, v := range log.get() {
		if v {
			depth++
		} else {
			depth--
		}
		if depth < 0 || depth > 1 {
			t.Fatalf("active utterances reached %d", depth)
		}
	}
}

func TestFinish_ExactlyOncePerUtterance(t *testing.T) {
	c, eng, rec, log := newController(t)

	_ = c.Speak(context.Background(), speech.Utterance{Text: "hello", Language: "en"})
	opts := eng.Calls()[0].Opts

	// A quirky platform reports done, stopped and an error for one utterance.
	opts.OnDone()
	opts.OnStopped()
	opts.OnError(errors.New("interrupted"))

	if got := log.get(); !slices.Equal(got, []bool{true, false}) {
		t.Errorf("flag changes = %v", got)
	}
	if len(rec.Notices()) != 0 {
		t.Errorf("notices = %v, want none", rec.Codes())
	}
}

func TestStaleCallbackDoesNotResetNewUtterance(t *testing.T) {
	c, eng, _, _ := newController(t)
	ctx := context.Background()

	_ = c.Speak(ctx, speech.Utterance{Text: "first", Language: "en"})
	first := eng.Calls()[0].Opts
	_ = c.Speak(ctx, speech.Utterance{Text: "second", Language: "en"})

	first.OnDone()
	if !c.IsSpeaking() {
		t.Error("late done of the replaced utterance cleared the flag")
	}
}

func TestStop_Idempotent(t *testing.T) {
	c, eng, _, log := newController(t)
	ctx := context.Background()

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop on idle: %v", err)
	}
	if eng.StopCallCount != 0 {
		t.Errorf("engine Stop called %d times while idle", eng.StopCallCount)
	}

	_ = c.Speak(ctx, speech.Utterance{Text: "hello", Language: "en"})
	_ = c.Stop(ctx)
	_ = c.Stop(ctx)

	if c.IsSpeaking() {
		t.Error("IsSpeaking() = true after Stop")
	}
	if got := log.get(); !slices.Equal(got, []bool{true, false}) {
		t.Errorf("flag changes = %v", got)
	}
}

func TestErrors_NoticeKinds(t *testing.T) {
	t.Run("not supported", func(t *testing.T) {
		c, eng, rec, _ := newController(t)
		eng.Unavailable = true

		err := c.Speak(context.Background(), speech.Utterance{Text: "hi", Language: "en"})
		if !errors.Is(err, synth.ErrNotSupported) {
			t.Fatalf("err = %v, want ErrNotSupported", err)
		}
		if c.IsSpeaking() {
			t.Error("IsSpeaking() = true after unsupported")
		}
		if !rec.Has(notice.CodeSpeechUnsupported) {
			t.Errorf("notices = %v", rec.Codes())
		}
	})

	t.Run("dispatch failure", func(t *testing.T) {
		c, eng, rec, log := newController(t)
		eng.SpeakErr = errors.New("audio device busy")

		if err := c.Speak(context.Background(), speech.Utterance{Text: "hi", Language: "en"}); err == nil {
			t.Fatal("Speak succeeded")
		}
		if c.IsSpeaking() {
			t.Error("IsSpeaking() stuck on")
		}
		if got := log.get(); !slices.Equal(got, []bool{true, false}) {
			t.Errorf("flag changes = %v", got)
		}
		if !rec.Has(notice.CodeSpeechFailed) {
			t.Errorf("notices = %v", rec.Codes())
		}
	})

	t.Run("playback failure", func(t *testing.T) {
		c, eng, rec, _ := newController(t)
		_ = c.Speak(context.Background(), speech.Utterance{Text: "hi", Language: "th"})
		eng.Fail(synth.ErrNotSupported)

		if c.IsSpeaking() {
			t.Error("IsSpeaking() stuck on")
		}
		if !rec.Has(notice.CodeSpeechUnsupported) {
			t.Errorf("notices = %v", rec.Codes())
		}
	})
}

func TestSpeak_EmptyText(t *testing.T) {
	c, eng, _, _ := newController(t)
	if err := c.Speak(context.Background(), speech.Utterance{Text: "  "}); !errors.Is(err, speech.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
	if len(eng.Calls()) != 0 {
		t.Error("engine called for empty text")
	}
}

func TestOnSpeakingChange_Unsubscribe(t *testing.T) {
	eng := &synthmock.Engine{}
	c := speech.New(eng, speech.WithMetrics(testMetrics(t)))
	calls := 0
	unsub := c.OnSpeakingChange(func(bool) { calls++ })
	unsub()

	_ = c.Speak(context.Background(), speech.Utterance{Text: "hi"})
	if calls != 0 {
		t.Errorf("unsubscribed listener called %d times", calls)
	}
}

func TestSetDefaults(t *testing.T) {
	c, eng, _, _ := newController(t)
	c.SetDefaults(1.5, 0)

	if err := c.Speak(context.Background(), speech.Utterance{Text: "hello", Language: "en"}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if err := c.Speak(context.Background(), speech.Utterance{Text: "again", Language: "en", Rate: 0.7, Pitch: 1.3}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	calls := eng.Calls()
	if got := calls[0].Opts; got.Rate != 1.5 || got.Pitch != 1 {
		t.Errorf("defaulted rate/pitch = %v/%v, want 1.5/1", got.Rate, got.Pitch)
	}
	if got := calls[1].Opts; got.Rate != 0.7 || got.Pitch != 1.3 {
		t.Errorf("explicit rate/pitch = %v/%v, want 0.7/1.3", got.Rate, got.Pitch)
	}
}
