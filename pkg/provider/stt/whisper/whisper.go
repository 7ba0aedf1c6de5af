// Package whisper transcribes through a whisper.cpp server's POST /inference
// endpoint.
//
// whisper.cpp only does batch inference, so a session cuts the incoming PCM
// into segments with an energy gate: a segment starts at the first loud
// chunk and ends after a run of quiet audio, or when it grows past the
// maximum length. Each segment is uploaded as a WAV file and its text comes
// back as one final transcript. Audio still buffered when the session is
// closed becomes the last segment.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/langswap/pkg/audio"
	"github.com/MrWong99/langswap/pkg/lang"
	"github.com/MrWong99/langswap/pkg/provider/stt"
)

const (
	defaultSampleRate = 16000
	defaultSilence    = 500 * time.Millisecond
	defaultMaxSegment = 10 * time.Second

	// defaultThreshold is the RMS level below which a chunk counts as quiet.
	defaultThreshold = 300.0

	flushTimeout = 30 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

// Option configures a [Provider].
type Option func(*Provider)

// WithModel names the model the server should use. Empty keeps the model the
// server was started with.
func WithModel(model string) Option { return func(p *Provider) { p.model = model } }

// WithLanguage sets the language used when a session does not name one.
// Locales are reduced to their base language.
func WithLanguage(locale string) Option { return func(p *Provider) { p.language = locale } }

// WithSampleRate sets the rate assumed when a session does not name one.
func WithSampleRate(hz int) Option { return func(p *Provider) { p.sampleRate = hz } }

// WithSilence sets how much quiet audio ends a segment.
func WithSilence(d time.Duration) Option { return func(p *Provider) { p.silence = d } }

// WithMaxSegment caps the length of one uploaded segment.
func WithMaxSegment(d time.Duration) Option { return func(p *Provider) { p.maxSegment = d } }

// WithThreshold sets the RMS level separating speech from quiet.
func WithThreshold(rms float64) Option { return func(p *Provider) { p.threshold = rms } }

// WithHTTPClient replaces the default client, which times out after 30s.
func WithHTTPClient(c *http.Client) Option { return func(p *Provider) { p.client = c } }

// Provider implements [stt.Provider]. Sessions are independent.
type Provider struct {
	baseURL    string
	model      string
	language   string
	sampleRate int
	silence    time.Duration
	maxSegment time.Duration
	threshold  float64
	client     *http.Client
}

// New returns a provider for the whisper.cpp server at baseURL.
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("whisper: base URL is required")
	}
	p := &Provider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		language:   "en",
		sampleRate: defaultSampleRate,
		silence:    defaultSilence,
		maxSegment: defaultMaxSegment,
		threshold:  defaultThreshold,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a session. No request is made until the first segment
// is complete.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	format := audio.Format{SampleRate: cfg.SampleRate, Channels: max(cfg.Channels, 1)}
	if format.SampleRate <= 0 {
		format.SampleRate = p.sampleRate
	}
	language := lang.Base(cfg.Language)
	if language == "" {
		language = lang.Base(p.language)
	}

	s := &session{
		p:        p,
		format:   format,
		language: language.String(),
		seg: segmenter{
			format:     format,
			threshold:  p.threshold,
			silence:    p.silence,
			maxSegment: p.maxSegment,
		},
		in:      make(chan []byte, 256),
		results: make(chan stt.Transcript, 16),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.loop(ctx)
	return s, nil
}

type session struct {
	p        *Provider
	format   audio.Format
	language string
	seg      segmenter

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
	}
}

func (s *session) Results() <-chan stt.Transcript { return s.results }

func (s *session) Close() error {
	s.once.Do(func() { close(s.closing) })
	<-s.done
	return nil
}

func (s *session) loop(ctx context.Context) {
	defer close(s.done)
	defer close(s.results)
	for {
		select {
		case pcm := <-s.in:
			if segment := s.seg.push(pcm); segment != nil {
				s.transcribe(ctx, segment)
			}
		case <-s.closing:
			s.finish()
			return
		case <-ctx.Done():
			return
		}
	}
}

// finish takes whatever audio is still queued and transcribes it.
func (s *session) finish() {
	for drained := false; !drained; {
		select {
		case pcm := <-s.in:
			if segment := s.seg.push(pcm); segment != nil {
				s.flushSegment(segment)
			}
		default:
			drained = true
		}
	}
	if segment := s.seg.flush(); segment != nil {
		s.flushSegment(segment)
	}
}

func (s *session) flushSegment(segment []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	s.transcribe(ctx, segment)
}

func (s *session) transcribe(ctx context.Context, segment []byte) {
	text, err := s.p.infer(ctx, audio.EncodeWAV(segment, s.format), s.language)
	if err != nil {
		slog.Warn("whisper: inference failed", "err", err, "audio", s.format.Duration(len(segment)))
		return
	}
	if text != "" {
		s.results <- stt.Transcript{Text: text, Final: true}
	}
}

// infer uploads one WAV file and returns the cleaned transcript.
func (p *Provider) infer(ctx context.Context, wav []byte, language string) (string, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	file, err := form.CreateFormFile("file", "segment.wav")
	if err != nil {
		return "", err
	}
	if _, err := file.Write(wav); err != nil {
		return "", err
	}
	fields := [][2]string{{"response_format", "json"}, {"language", language}, {"model", p.model}}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := form.WriteField(f[0], f[1]); err != nil {
			return "", err
		}
	}
	if err := form.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/inference", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: POST /inference: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("whisper: POST /inference: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("whisper: decode response: %w", err)
	}
	return cleanTranscript(out.Text), nil
}

// nonSpeech are the placeholders whisper.cpp writes for audio without words.
var nonSpeech = strings.NewReplacer(
	"[BLANK_AUDIO]", "",
	"[MUSIC]", "",
	"[silence]", "",
	"(silence)", "",
	"(music)", "",
)

func cleanTranscript(text string) string {
	return strings.Join(strings.Fields(nonSpeech.Replace(text)), " ")
}

// segmenter groups PCM chunks into utterance-sized segments.
type segmenter struct {
	format     audio.Format
	threshold  float64
	silence    time.Duration
	maxSegment time.Duration

	buf    []byte
	voiced bool
	quiet  time.Duration
}

// push adds a chunk and returns a segment once one is complete. Quiet audio
// before the first loud chunk is dropped.
func (g *segmenter) push(pcm []byte) []byte {
	loud := audio.RMS(pcm) >= g.threshold
	switch {
	case loud:
		g.voiced = true
		g.quiet = 0
	case !g.voiced:
		return nil
	default:
		g.quiet += g.format.Duration(len(pcm))
	}
	g.buf = append(g.buf, pcm...)

	if g.quiet >= g.silence || (g.maxSegment > 0 && g.format.Duration(len(g.buf)) >= g.maxSegment) {
		return g.flush()
	}
	return nil
}

// flush returns the buffered segment, or nil when it holds no speech.
func (g *segmenter) flush() []byte {
	segment := g.buf
	voiced := g.voiced
	g.buf, g.voiced, g.quiet = nil, false, 0
	if !voiced || len(segment) == 0 {
		return nil
	}
	return segment
}
