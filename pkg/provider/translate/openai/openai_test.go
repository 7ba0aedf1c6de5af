package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MrWong99/langswap/pkg/provider/translate"
)

const completionJSON = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1700000000,
	"model": "gpt-4o-mini",
	"choices": [{"index": 0, "finish_reason": "stop", "logprobs": null,
		"message": {"role": "assistant", "content": "สวัสดี", "refusal": null}}],
	"usage": {"prompt_tokens": 20, "completion_tokens": 3, "total_tokens": 23}
}`

func TestNew_MissingAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestNew_MissingModel(t *testing.T) {
	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestBuildParams(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	params := p.buildParams(translate.Request{Text: "hello", SourceLang: "en", TargetLang: "th"}, "hello")
	if len(params.Messages) != 2 {
		t.Fatalf("got %d messages, want 2", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil || params.Messages[1].OfUser == nil {
		t.Error("expected system then user message")
	}
}

func TestTranslate_Success(t *testing.T) {
	var req map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionJSON))
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := p.Translate(context.Background(), translate.Request{Text: "hello", SourceLang: "en", TargetLang: "th"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if resp.Text != "สวัสดี" || resp.Provider != Name {
		t.Errorf("response = %+v", resp)
	}
	if req["model"] != "gpt-4o-mini" {
		t.Errorf("model sent = %v", req["model"])
	}
}

func TestTranslate_APIErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit", "param": null, "code": null}}`))
	}))
	defer srv.Close()

	p, _ := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/v1/"))
	_, err := p.Translate(context.Background(), translate.Request{Text: "hello", SourceLang: "en", TargetLang: "th"})

	var apiErr *translate.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *translate.Error", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests || !apiErr.Temporary() {
		t.Errorf("error = %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1", calls.Load())
	}
}

func TestTranslate_IdentityPair(t *testing.T) {
	p, _ := New("sk-test", "gpt-4o-mini", WithBaseURL("http://127.0.0.1:1/"))
	resp, err := p.Translate(context.Background(), translate.Request{Text: "สวัสดี", SourceLang: "th", TargetLang: "th"})
	if err != nil || resp.Text != "สวัสดี" {
		t.Fatalf("Translate = %+v, %v", resp, err)
	}
}
