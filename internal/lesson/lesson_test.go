package lesson_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/langswap/internal/lesson"
	"github.com/MrWong99/langswap/internal/notice"
	"github.com/MrWong99/langswap/internal/observe"
	"github.com/MrWong99/langswap/internal/prefs"
	"github.com/MrWong99/langswap/internal/speech"
	synthmock "github.com/MrWong99/langswap/pkg/provider/synth/mock"
)

var card = lesson.Card{Thai: "สวัสดี", Romanization: "sawasdee", English: "hello"}

func newController(t *testing.T, store *prefs.Memory) (*lesson.AudioController, *synthmock.Engine, *speech.Controller, *notice.Recorder) {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	eng := &synthmock.Engine{}
	sp := speech.New(eng, speech.WithMetrics(m))
	rec := &notice.Recorder{}
	return lesson.New(sp, store, lesson.WithNotices(rec)), eng, sp, rec
}

func TestReveal_MuteSuppression(t *testing.T) {
	tests := []struct {
		name      string
		muted     bool
		wantCalls int
	}{
		{"unmuted speaks once per reveal", false, 3},
		{"muted speaks never", true, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &prefs.Memory{}
			_ = store.SaveMute(context.Background(), tc.muted)
			c, eng, _, _ := newController(t, store)
			if _, err := c.Mount(context.Background()); err != nil {
				t.Fatalf("Mount: %v", err)
			}

			for i := 0; i < 3; i++ {
				spoken, err := c.Reveal(context.Background(), card, lesson.ModeLearnThai)
				if err != nil {
					t.Fatalf("Reveal: %v", err)
				}
				if spoken == tc.muted {
					t.Errorf("spoken = %v with muted = %v", spoken, tc.muted)
				}
			}
			if got := len(eng.Calls()); got != tc.wantCalls {
				t.Errorf("synthesis calls = %d, want %d", got, tc.wantCalls)
			}
		})
	}
}

func TestReveal_AnswerSideByMode(t *testing.T) {
	c, eng, _, _ := newController(t, &prefs.Memory{})

	_, _ = c.Reveal(context.Background(), card, lesson.ModeLearnThai)
	_, _ = c.Reveal(context.Background(), card, lesson.ModeLearnEnglish)

	calls := eng.Calls()
	if calls[0].Text != "สวัสดี" || calls[0].Opts.Language != "th-TH" {
		t.Errorf("learn-thai call = %+v", calls[0])
	}
	if calls[1].Text != "hello" || calls[1].Opts.Language != "en-GB" {
		t.Errorf("learn-english call = %+v", calls[1])
	}
}

func TestReveal_EmptyAnswer(t *testing.T) {
	c, eng, _, _ := newController(t, &prefs.Memory{})
	_, err := c.Reveal(context.Background(), lesson.Card{English: "hello"}, lesson.ModeLearnThai)
	if !errors.Is(err, lesson.ErrEmptyAnswer) {
		t.Errorf("err = %v, want ErrEmptyAnswer", err)
	}
	if len(eng.Calls()) != 0 {
		t.Error("synthesis called for empty answer")
	}
}

func TestToggleMute_StopsActiveUtterance(t *testing.T) {
	store := &prefs.Memory{}
	c, eng, sp, _ := newController(t, store)
	ctx := context.Background()

	_, _ = c.Reveal(ctx, card, lesson.ModeLearnThai)
	if !sp.IsSpeaking() {
		t.Fatal("not speaking after reveal")
	}

	muted, err := c.ToggleMute(ctx)
	if err != nil || !muted {
		t.Fatalf("ToggleMute = %v, %v", muted, err)
	}
	if sp.IsSpeaking() {
		t.Error("utterance still active after mute")
	}
	if eng.StopCallCount != 1 {
		t.Errorf("engine Stop called %d times, want 1", eng.StopCallCount)
	}
	if persisted, _ := store.LoadMute(ctx); !persisted {
		t.Error("mute not persisted")
	}
}

func TestToggleMute_IdleDoesNotStop(t *testing.T) {
	c, eng, _, _ := newController(t, &prefs.Memory{})
	_, _ = c.ToggleMute(context.Background())
	if eng.StopCallCount != 0 {
		t.Errorf("engine Stop called %d times while idle", eng.StopCallCount)
	}
}

func TestToggleMute_PersistFailure(t *testing.T) {
	store := &prefs.Memory{SaveErr: errors.New("disk full")}
	c, _, _, rec := newController(t, store)

	muted, err := c.ToggleMute(context.Background())
	if err == nil {
		t.Fatal("ToggleMute succeeded")
	}
	if !muted || !c.Muted() {
		t.Error("in-process mute flag not applied")
	}
	if !rec.Has(notice.CodeLessonMutePersist) {
		t.Errorf("notices = %v", rec.Codes())
	}
}

func TestMount_RereadsStore(t *testing.T) {
	store := &prefs.Memory{}
	c, eng, _, _ := newController(t, store)
	ctx := context.Background()

	_, _ = c.Mount(ctx)
	// Another screen or instance changed the preference.
	_ = store.SaveMute(ctx, true)
	if muted, _ := c.Mount(ctx); !muted {
		t.Fatal("Mount did not pick up the stored value")
	}
	_, _ = c.Reveal(ctx, card, lesson.ModeLearnEnglish)
	if len(eng.Calls()) != 0 {
		t.Error("reveal spoke while muted")
	}

	store.LoadErr = errors.New("unreachable")
	if muted, err := c.Mount(ctx); err == nil || !muted {
		t.Errorf("Mount with failing store = %v, %v; want previous value and an error", muted, err)
	}
}

func TestMuteIndependentOfTranslator(t *testing.T) {
	store := &prefs.Memory{}
	_ = store.SaveMute(context.Background(), true)
	c, eng, sp, _ := newController(t, store)
	_, _ = c.Mount(context.Background())

	// The translator screen speaks through the same controller, unaffected.
	if err := sp.Speak(context.Background(), speech.Utterance{Text: "hello", Language: "en", Source: speech.SourceTranslator}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if len(eng.Calls()) != 1 {
		t.Errorf("translator speech suppressed by lesson mute")
	}
}

func TestToggleMute_LeavesTranslatorSpeech(t *testing.T) {
	c, eng, sp, _ := newController(t, &prefs.Memory{})
	ctx := context.Background()

	if err := sp.Speak(ctx, speech.Utterance{Text: "good morning", Language: "en", Source: speech.SourceTranslator}); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if muted, err := c.ToggleMute(ctx); err != nil || !muted {
		t.Fatalf("ToggleMute = %v, %v", muted, err)
	}
	if u, ok := sp.Active(); !ok || u.Source != speech.SourceTranslator {
		t.Errorf("active = %+v, %v; translator utterance was stopped", u, ok)
	}
	if eng.StopCallCount != 0 {
		t.Errorf("engine Stop called %d times", eng.StopCallCount)
	}
}
