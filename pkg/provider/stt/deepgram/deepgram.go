// Package deepgram streams microphone audio to Deepgram's live transcription
// websocket.
//
// Endpointing is on by default, so Deepgram finalises a result as soon as the
// speaker pauses. Closing a session sends CloseStream and waits for Deepgram
// to deliver the remaining results and hang up.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/langswap/pkg/provider/stt"
)

const (
	liveEndpoint = "wss://api.deepgram.com/v1/listen"

	// keepAliveEvery stays under Deepgram's ten second idle limit.
	keepAliveEvery = 8 * time.Second

	// closeTimeout bounds the wait for Deepgram to hang up after CloseStream.
	closeTimeout = 5 * time.Second
)

var (
	msgKeepAlive   = []byte(`{"type":"KeepAlive"}`)
	msgCloseStream = []byte(`{"type":"CloseStream"}`)
)

var _ stt.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the model, e.g. "nova-3". Default "nova-2".
func WithModel(m string) Option { return func(p *Provider) { p.model = m } }

// WithLanguage sets the language used when a session names none.
func WithLanguage(locale string) Option { return func(p *Provider) { p.language = locale } }

// WithSampleRate sets the rate used when a session names none.
func WithSampleRate(hz int) Option { return func(p *Provider) { p.sampleRate = hz } }

// WithEndpointing sets the pause that finalises a result. Zero turns
// endpointing off.
func WithEndpointing(d time.Duration) Option { return func(p *Provider) { p.endpointing = d } }

// WithEndpoint replaces the websocket URL.
func WithEndpoint(u string) Option { return func(p *Provider) { p.endpoint = u } }

// Provider implements [stt.Provider] over Deepgram's live API.
type Provider struct {
	apiKey      string
	endpoint    string
	model       string
	language    string
	sampleRate  int
	endpointing time.Duration
}

// New returns a provider authenticating with apiKey.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: API key is required")
	}
	p := &Provider{
		apiKey:      apiKey,
		endpoint:    liveEndpoint,
		model:       "nova-2",
		language:    "en",
		sampleRate:  16000,
		endpointing: 300 * time.Millisecond,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// listenURL builds the websocket URL for one session.
func (p *Provider) listenURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", fmt.Errorf("deepgram: endpoint: %w", err)
	}
	language := cfg.Language
	if language == "" {
		language = p.language
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = p.sampleRate
	}
	endpointing := "false"
	if p.endpointing > 0 {
		endpointing = strconv.FormatInt(p.endpointing.Milliseconds(), 10)
	}

	q := url.Values{
		"model":           {p.model},
		"language":        {language},
		"encoding":        {"linear16"},
		"sample_rate":     {strconv.Itoa(rate)},
		"channels":        {strconv.Itoa(max(cfg.Channels, 1))},
		"punctuate":       {"true"},
		"smart_format":    {"true"},
		"interim_results": {"true"},
		"endpointing":     {endpointing},
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// StartStream dials Deepgram. The session lives until Close or until ctx is
// done.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.Session, error) {
	target, err := p.listenURL(cfg)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, target, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": {"Token " + p.apiKey}},
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	s := &session{
		conn:    conn,
		in:      make(chan []byte, 256),
		results: make(chan stt.Transcript, 32),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.write(gctx) })
	g.Go(func() error { return s.read(gctx) })
	go func() {
		defer close(s.done)
		defer close(s.results)
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("deepgram: stream ended with error", "err", err)
		}
		_ = conn.CloseNow()
	}()
	return s, nil
}

type session struct {
	conn    *websocket.Conn
	in      chan []byte
	results chan stt.Transcript
	closing chan struct{}
	done    chan struct{}
	once    sync.Once
}

func (s *session) Send(pcm []byte) error {
	select {
	case <-s.closing:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.in <- pcm:
		return nil
	case <-s.closing:
		return stt.ErrSessionClosed
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

func (s *session) Results() <-chan stt.Transcript { return s.results }

func (s *session) Close() error {
	s.once.Do(func() { close(s.closing) })
	select {
	case <-s.done:
	case <-time.After(closeTimeout):
		_ = s.conn.CloseNow()
		<-s.done
	}
	return nil
}

// write forwards audio, keeps the socket alive while the microphone is quiet
// and sends CloseStream once the session is closed.
func (s *session) write(ctx context.Context) error {
	tick := time.NewTicker(keepAliveEvery)
	defer tick.Stop()
	for {
		select {
		case pcm := <-s.in:
			if err := s.conn.Write(ctx, websocket.MessageBinary, pcm); err != nil {
				return fmt.Errorf("write audio: %w", err)
			}
			tick.Reset(keepAliveEvery)
		case <-tick.C:
			if err := s.conn.Write(ctx, websocket.MessageText, msgKeepAlive); err != nil {
				return fmt.Errorf("keepalive: %w", err)
			}
		case <-s.closing:
			for {
				select {
				case pcm := <-s.in:
					if err := s.conn.Write(ctx, websocket.MessageBinary, pcm); err != nil {
						return fmt.Errorf("write audio: %w", err)
					}
				default:
					return s.conn.Write(ctx, websocket.MessageText, msgCloseStream)
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// read delivers transcripts until Deepgram hangs up.
func (s *session) read(ctx context.Context) error {
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			select {
			case <-s.closing:
				// Forced close after CloseStream went unanswered.
				return nil
			default:
			}
			return fmt.Errorf("read: %w", err)
		}
		t, ok := parseResult(msg)
		if !ok {
			continue
		}
		select {
		case s.results <- t:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// liveResult is the subset of a Deepgram "Results" message in use.
type liveResult struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResult turns a message into a transcript. Metadata, speech events and
// results without text are skipped.
func parseResult(msg []byte) (stt.Transcript, bool) {
	var r liveResult
	if err := json.Unmarshal(msg, &r); err != nil || r.Type != "Results" || len(r.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	best := r.Channel.Alternatives[0]
	if best.Transcript == "" {
		return stt.Transcript{}, false
	}
	return stt.Transcript{Text: best.Transcript, Final: r.IsFinal, Confidence: best.Confidence}, true
}
