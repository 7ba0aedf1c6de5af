// Package coqui synthesises speech on a self-hosted Coqui TTS server.
//
// Two server flavours are supported. The standard server (APIModeStandard,
// the default) takes GET /api/tts with query parameters. The XTTS v2 API
// server (APIModeXTTS) takes POST /tts_to_audio/ with a JSON body and always
// needs a reference voice. Both answer with one WAV file per utterance; the
// PCM is then handed out in small chunks so playback can stop part way.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/langswap/pkg/audio"
	"github.com/MrWong99/langswap/pkg/lang"
	"github.com/MrWong99/langswap/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// APIMode selects the server flavour.
type APIMode string

const (
	APIModeStandard APIMode = "standard"
	APIModeXTTS     APIMode = "xtts"
)

// routes holds the endpoints of one server flavour.
type routes struct {
	synth, ping string
}

var modeRoutes = map[APIMode]routes{
	APIModeStandard: {synth: "/api/tts", ping: "/details"},
	APIModeXTTS:     {synth: "/tts_to_audio/", ping: "/studio_speakers"},
}

const (
	defaultTimeout = 30 * time.Second

	// chunkBytes is the size of each PCM chunk on Utterance.Audio.
	chunkBytes = 4096

	// maxWAVBytes bounds one response body.
	maxWAVBytes = 32 << 20
)

// ErrVoiceRequired is returned in XTTS mode for a request without a voice.
var ErrVoiceRequired = errors.New("coqui: XTTS needs a reference voice")

// Option configures a [Provider].
type Option func(*Provider)

// WithLanguage sets the language used when a request names none. Default "en".
func WithLanguage(l string) Option { return func(p *Provider) { p.language = l } }

// WithTimeout bounds each HTTP call. Default 30s.
func WithTimeout(d time.Duration) Option { return func(p *Provider) { p.client.Timeout = d } }

// WithAPIMode picks the server flavour. Unknown modes fall back to standard.
func WithAPIMode(m APIMode) Option { return func(p *Provider) { p.mode = m } }

// WithMultilingual makes standard mode send language_id. Single-language
// models reject it, so it is off unless the loaded model is multilingual.
func WithMultilingual(on bool) Option { return func(p *Provider) { p.multilingual = on } }

// Provider implements [tts.Provider]. It is safe for concurrent use.
type Provider struct {
	baseURL      string
	language     string
	mode         APIMode
	multilingual bool
	client       *http.Client
}

// New returns a provider for the server at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("coqui: base URL is required")
	}
	p := &Provider{
		baseURL:  strings.TrimRight(baseURL, "/"),
		language: "en",
		mode:     APIModeStandard,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if _, ok := modeRoutes[p.mode]; !ok {
		p.mode = APIModeStandard
	}
	return p, nil
}

// Synthesize waits for the whole WAV file and then streams its PCM.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Utterance, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	httpReq, err := p.newSynthRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	wav, err := p.fetch(httpReq)
	if err != nil {
		return nil, err
	}
	format, pcm, err := audio.ParseWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("coqui: %w", err)
	}

	ch := make(chan []byte, 16)
	go func() {
		defer close(ch)
		for off := 0; off < len(pcm); off += chunkBytes {
			select {
			case ch <- pcm[off:min(off+chunkBytes, len(pcm))]:
			case <-ctx.Done():
				return
			}
		}
	}()
	return tts.NewUtterance(format, ch), nil
}

func (p *Provider) newSynthRequest(ctx context.Context, req tts.Request) (*http.Request, error) {
	target := p.baseURL + modeRoutes[p.mode].synth
	language := p.language
	if l := lang.Base(req.Language); l != "" {
		language = l.String()
	}

	if p.mode == APIModeXTTS {
		if req.Voice == "" {
			return nil, ErrVoiceRequired
		}
		body, err := json.Marshal(xttsRequest{Text: req.Text, SpeakerWav: req.Voice, Language: language})
		if err != nil {
			return nil, err
		}
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Accept", "audio/wav")
		return r, nil
	}

	q := url.Values{"text": {req.Text}}
	if req.Voice != "" {
		q.Set("speaker_id", req.Voice)
	}
	if p.multilingual {
		q.Set("language_id", language)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, target+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	r.Header.Set("Accept", "audio/wav")
	return r, nil
}

type xttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

func (p *Provider) fetch(req *http.Request) ([]byte, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxWAVBytes))
}

// Ping asks the server for its model or speaker catalogue.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+modeRoutes[p.mode].ping, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	_, err = p.fetch(req)
	return err
}
