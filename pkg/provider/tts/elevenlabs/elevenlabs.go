// Package elevenlabs synthesises speech over the ElevenLabs stream-input
// WebSocket. Each utterance gets its own connection: the text is sent in one
// message, followed by an empty flush, and the PCM arrives as base64 frames.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/langswap/pkg/audio"
	"github.com/MrWong99/langswap/pkg/lang"
	"github.com/MrWong99/langswap/pkg/provider/tts"
)

var _ tts.Provider = (*Provider)(nil)

// ErrVoiceRequired is returned for a request without a voice ID.
var ErrVoiceRequired = errors.New("elevenlabs: voice ID is required")

const (
	wsHost   = "wss://api.elevenlabs.io"
	httpHost = "https://api.elevenlabs.io"

	defaultModel  = "eleven_flash_v2_5"
	defaultOutput = "pcm_16000"
)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the model ID. Default "eleven_flash_v2_5".
func WithModel(id string) Option { return func(p *Provider) { p.model = id } }

// WithOutputFormat picks one of the raw PCM formats such as "pcm_24000".
// Compressed formats are rejected by New.
func WithOutputFormat(f string) Option { return func(p *Provider) { p.output = f } }

// WithVoiceSettings tunes stability and similarity boost, both in [0,1].
func WithVoiceSettings(stability, similarity float64) Option {
	return func(p *Provider) { p.settings = voiceSettings{Stability: stability, SimilarityBoost: similarity} }
}

// WithEndpoint points the provider at other hosts, given as scheme://host.
func WithEndpoint(wsBase, httpBase string) Option {
	return func(p *Provider) {
		p.wsHost = strings.TrimRight(wsBase, "/")
		p.httpHost = strings.TrimRight(httpBase, "/")
	}
}

// Provider implements [tts.Provider]. It is safe for concurrent use.
type Provider struct {
	key      string
	model    string
	output   string
	settings voiceSettings
	wsHost   string
	httpHost string
	format   audio.Format
	client   *http.Client
}

// New returns a provider authenticated with key.
func New(key string, opts ...Option) (*Provider, error) {
	if key == "" {
		return nil, errors.New("elevenlabs: API key is required")
	}
	p := &Provider{
		key:      key,
		model:    defaultModel,
		output:   defaultOutput,
		settings: voiceSettings{Stability: 0.5, SimilarityBoost: 0.75},
		wsHost:   wsHost,
		httpHost: httpHost,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	f, err := pcmFormat(p.output)
	if err != nil {
		return nil, err
	}
	p.format = f
	return p, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// initMessage opens the stream. Its text must be a single space.
type initMessage struct {
	Text          string        `json:"text"`
	VoiceSettings voiceSettings `json:"voice_settings"`
	APIKey        string        `json:"xi_api_key"`
}

type textMessage struct {
	Text    string `json:"text"`
	Trigger bool   `json:"try_trigger_generation,omitempty"`
}

type frame struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Synthesize dials, sends the text and returns while audio is still arriving.
// Audio closes on the final frame, on a dropped connection or when ctx ends.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (*tts.Utterance, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Voice == "" {
		return nil, ErrVoiceRequired
	}

	conn, _, err := websocket.Dial(ctx, p.streamURL(req), nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	conn.SetReadLimit(1 << 20)

	msgs := []any{
		initMessage{Text: " ", VoiceSettings: p.settings, APIKey: p.key},
		textMessage{Text: strings.TrimSpace(req.Text) + " ", Trigger: true},
		textMessage{},
	}
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err == nil {
			err = conn.Write(ctx, websocket.MessageText, b)
		}
		if err != nil {
			conn.CloseNow()
			return nil, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	ch := make(chan []byte, 64)
	u := tts.NewUtterance(p.format, ch)
	go func() {
		defer close(ch)
		defer conn.CloseNow()
		if err := receive(ctx, conn, ch); err != nil && ctx.Err() == nil {
			u.SetErr(err)
		}
	}()
	return u, nil
}

// receive forwards decoded PCM until the final frame.
func receive(ctx context.Context, conn *websocket.Conn, out chan<- []byte) error {
	for {
		_, b, err := conn.Read(ctx)
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil
		}
		if err != nil {
			return fmt.Errorf("elevenlabs: read: %w", err)
		}
		var f frame
		if json.Unmarshal(b, &f) != nil {
			continue
		}
		if f.Error != "" {
			return fmt.Errorf("elevenlabs: %s: %s", f.Error, f.Message)
		}
		if f.Audio != "" {
			pcm, err := base64.StdEncoding.DecodeString(f.Audio)
			if err != nil {
				return fmt.Errorf("elevenlabs: audio frame: %w", err)
			}
			select {
			case out <- pcm:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if f.IsFinal {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return nil
		}
	}
}

// Ping validates the key with GET /v1/voices.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.httpHost+"/v1/voices", nil)
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", p.key)
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs: ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("elevenlabs: ping: status %d", resp.StatusCode)
	}
	return nil
}

func (p *Provider) streamURL(req tts.Request) string {
	q := url.Values{"model_id": {p.model}, "output_format": {p.output}}
	if l := lang.Base(req.Language); l != "" {
		q.Set("language_code", l.String())
	}
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s", p.wsHost, url.PathEscape(req.Voice), q.Encode())
}

// pcmFormat maps "pcm_<rate>" to mono 16-bit PCM.
func pcmFormat(s string) (audio.Format, error) {
	rate, ok := strings.CutPrefix(s, "pcm_")
	n, err := strconv.Atoi(rate)
	if !ok || err != nil || n <= 0 {
		return audio.Format{}, fmt.Errorf("elevenlabs: output format %q is not raw PCM", s)
	}
	return audio.Format{SampleRate: n, Channels: 1}, nil
}
