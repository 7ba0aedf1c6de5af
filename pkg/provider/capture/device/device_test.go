package device_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/langswap/pkg/audio"
	audiomock "github.com/MrWong99/langswap/pkg/audio/mock"
	"github.com/MrWong99/langswap/pkg/provider/capture"
	"github.com/MrWong99/langswap/pkg/provider/capture/device"
	"github.com/MrWong99/langswap/pkg/provider/stt"
	sttmock "github.com/MrWong99/langswap/pkg/provider/stt/mock"
)

// ---- helpers ----------------------------------------------------------------

// fakeRecognizer lets tests fire recognizer callbacks directly.
type fakeRecognizer struct {
	mu       sync.Mutex
	h        device.Handlers
	starts   []string
	stops    []uint64
	startErr error
	missing  bool
}

func (f *fakeRecognizer) Available(context.Context) bool { return !f.missing }

func (f *fakeRecognizer) SetHandlers(h device.Handlers) {
	f.mu.Lock()
	f.h = h
	f.mu.Unlock()
}

func (f *fakeRecognizer) Start(_ context.Context, locale string, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, locale)
	return f.startErr
}

func (f *fakeRecognizer) Stop(token uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, token)
	return nil
}

func (f *fakeRecognizer) handlers() device.Handlers {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h
}

func waitResult(t *testing.T, ch <-chan capture.Result) capture.Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for capture result")
		return capture.Result{}
	}
}

func speechFrame() audio.AudioFrame {
	return audio.AudioFrame{Data: make([]byte, 320), SampleRate: 16000, Channels: 1}
}

func newSTTSession() *sttmock.Session { return sttmock.NewSession() }

// ---- Backend over a fake recognizer -----------------------------------------

func TestBackend_StartMapsLocale(t *testing.T) {
	rec := &fakeRecognizer{}
	b := device.New(rec)

	if _, err := b.Start(context.Background(), "en", func(capture.Result) {}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(rec.starts) != 1 || rec.starts[0] != "en-US" {
		t.Errorf("recognizer started with %v, want [en-US]", rec.starts)
	}
}

func TestBackend_Unavailable(t *testing.T) {
	b := device.New(&fakeRecognizer{missing: true})
	s, err := b.Start(context.Background(), "th", func(capture.Result) {})
	if !errors.Is(err, capture.ErrNotAvailable) {
		t.Fatalf("err = %v, want ErrNotAvailable", err)
	}
	if s.State() != capture.StateFailed {
		t.Errorf("state = %s", s.State())
	}
}

func TestBackend_StaleCallbacksIgnored(t *testing.T) {
	rec := &fakeRecognizer{}
	b := device.New(rec)
	results := make(chan capture.Result, 4)

	old, _ := b.Start(context.Background(), "en", func(r capture.Result) { results <- r })
	rec.handlers().OnResult(old.ID(), "first")
	waitResult(t, results)

	cur, _ := b.Start(context.Background(), "en", func(r capture.Result) { results <- r })
	h := rec.handlers()
	h.OnResult(old.ID(), "late")
	h.OnError(old.ID(), errors.New("late"))
	h.OnEnd(old.ID())

	if cur.State() != capture.StateRequesting {
		t.Fatalf("current session state = %s", cur.State())
	}
	select {
	case r := <-results:
		t.Fatalf("stale callback delivered %+v", r)
	default:
	}
}

func TestBackend_EndWithoutResult(t *testing.T) {
	rec := &fakeRecognizer{}
	b := device.New(rec, device.WithStopGrace(time.Second))

	t.Run("unprompted", func(t *testing.T) {
		results := make(chan capture.Result, 1)
		s, _ := b.Start(context.Background(), "en", func(r capture.Result) { results <- r })
		rec.handlers().OnStart(s.ID())
		rec.handlers().OnEnd(s.ID())
		if r := waitResult(t, results); !errors.Is(r.Err, capture.ErrRecognition) {
			t.Errorf("err = %v, want ErrRecognition", r.Err)
		}
	})

	t.Run("after stop", func(t *testing.T) {
		results := make(chan capture.Result, 1)
		s, _ := b.Start(context.Background(), "en", func(r capture.Result) { results <- r })
		rec.handlers().OnStart(s.ID())
		if err := b.Stop(s); err != nil {
			t.Fatalf("Stop: %v", err)
		}
		rec.handlers().OnEnd(s.ID())
		if r := waitResult(t, results); r.Err != nil || r.Transcript != "" {
			t.Errorf("result = %+v, want empty completion", r)
		}
		if s.State() != capture.StateCompleted {
			t.Errorf("state = %s", s.State())
		}
	})
}

// ---- STTRecognizer ----------------------------------------------------------

func TestSTTRecognizer_FirstFinalEndsUtterance(t *testing.T) {
	stream := &audiomock.Stream{FramesCh: make(chan audio.AudioFrame, 8)}
	mic := &audiomock.Source{StreamResult: stream}
	sess := newSTTSession()
	provider := &sttmock.Provider{Session: sess}

	b := device.New(device.NewSTTRecognizer(mic, provider))
	results := make(chan capture.Result, 1)

	s, err := b.Start(context.Background(), "th", func(r capture.Result) { results <- r })
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	stream.Push(speechFrame())
	sess.Emit(stt.Transcript{Text: "สวั", Final: false})
	sess.Emit(stt.Transcript{Text: " สวัสดี ", Final: true})

	r := waitResult(t, results)
	if r.Err != nil || r.Transcript != "สวัสดี" {
		t.Fatalf("result = %+v", r)
	}
	if s.State() != capture.StateCompleted {
		t.Errorf("state = %s", s.State())
	}
	if cfgs := provider.Configs(); len(cfgs) != 1 || cfgs[0].Language != "th-TH" {
		t.Errorf("StartStream configs = %+v", cfgs)
	}
	if !sess.Closed() {
		t.Error("session not closed after the utterance")
	}
	if mic.OpenCalls[0].SampleRate != 16000 {
		t.Errorf("mic opened at %d Hz", mic.OpenCalls[0].SampleRate)
	}
}

func TestSTTRecognizer_PermissionDenied(t *testing.T) {
	mic := &audiomock.Source{OpenErr: fmt.Errorf("%w: host refused", audio.ErrPermissionDenied)}
	b := device.New(device.NewSTTRecognizer(mic, &sttmock.Provider{}))

	s, err := b.Start(context.Background(), "en", func(capture.Result) {
		t.Error("callback fired for synchronous failure")
	})
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}
	if s.State() != capture.StateFailed {
		t.Errorf("state = %s", s.State())
	}
	if b.Current() != nil {
		t.Error("slot not released")
	}
}

func TestSTTRecognizer_STTUnavailable(t *testing.T) {
	stream := &audiomock.Stream{FramesCh: make(chan audio.AudioFrame, 1)}
	mic := &audiomock.Source{StreamResult: stream}
	provider := &sttmock.Provider{Err: errors.New("connection refused")}
	b := device.New(device.NewSTTRecognizer(mic, provider))

	_, err := b.Start(context.Background(), "en", func(capture.Result) {})
	if !errors.Is(err, capture.ErrNotAvailable) {
		t.Fatalf("err = %v, want ErrNotAvailable", err)
	}
	if stream.CallCountClose != 1 {
		t.Errorf("microphone closed %d times, want 1", stream.CallCountClose)
	}
}

func TestSTTRecognizer_StopWithoutSpeechCompletesEmpty(t *testing.T) {
	stream := &audiomock.Stream{FramesCh: make(chan audio.AudioFrame, 8)}
	mic := &audiomock.Source{StreamResult: stream}
	b := device.New(device.NewSTTRecognizer(mic, &sttmock.Provider{Session: newSTTSession()}))
	results := make(chan capture.Result, 1)

	s, _ := b.Start(context.Background(), "en", func(r capture.Result) { results <- r })
	time.Sleep(20 * time.Millisecond)
	if err := b.Stop(s); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	r := waitResult(t, results)
	if r.Err != nil || r.Transcript != "" {
		t.Fatalf("result = %+v, want empty completion", r)
	}
	if s.State() != capture.StateCompleted {
		t.Errorf("state = %s", s.State())
	}
}

func TestSTTRecognizer_SilenceTimesOut(t *testing.T) {
	stream := &audiomock.Stream{FramesCh: make(chan audio.AudioFrame, 8)}
	mic := &audiomock.Source{StreamResult: stream}
	rec := device.NewSTTRecognizer(mic, &sttmock.Provider{Session: newSTTSession()},
		device.WithMaxDuration(30*time.Millisecond))
	b := device.New(rec)
	results := make(chan capture.Result, 1)

	s, _ := b.Start(context.Background(), "en", func(r capture.Result) { results <- r })

	r := waitResult(t, results)
	if !errors.Is(r.Err, capture.ErrRecognition) {
		t.Fatalf("err = %v, want ErrRecognition", r.Err)
	}
	if s.State() != capture.StateFailed {
		t.Errorf("state = %s", s.State())
	}
}

func TestSTTRecognizer_MicrophoneLossIsReported(t *testing.T) {
	stream := &audiomock.Stream{FramesCh: make(chan audio.AudioFrame, 8)}
	mic := &audiomock.Source{StreamResult: stream}
	b := device.New(device.NewSTTRecognizer(mic, &sttmock.Provider{Session: newSTTSession()}))
	results := make(chan capture.Result, 1)

	_, _ = b.Start(context.Background(), "en", func(r capture.Result) { results <- r })
	_ = stream.Close()

	r := waitResult(t, results)
	if !errors.Is(r.Err, capture.ErrNotAvailable) {
		t.Fatalf("err = %v, want ErrNotAvailable", r.Err)
	}
}

func TestSTTRecognizer_StopUnknownToken(t *testing.T) {
	rec := device.NewSTTRecognizer(&audiomock.Source{}, &sttmock.Provider{})
	if err := rec.Stop(42); !errors.Is(err, device.ErrNotActive) {
		t.Errorf("Stop = %v, want ErrNotActive", err)
	}
}
