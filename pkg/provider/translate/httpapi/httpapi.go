// Package httpapi provides a translate.Provider for the app's translation
// endpoint:
//
//	POST {base}/api/translate
//	  {"text": "...", "source_lang": "en", "target_lang": "th"}
//	  -> {"translated": "..."}
//
// The endpoint takes no authentication. Identity pairs are sent as-is.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/langswap/pkg/provider/translate"
)

const (
	// Name identifies this provider in config and metrics.
	Name = "http"

	translatePath  = "/api/translate"
	defaultTimeout = 15 * time.Second

	// maxBody bounds the response bytes read, including error bodies.
	maxBody = 1 << 20
	// maxErrBody is how much of an error body ends up in translate.Error.
	maxErrBody = 512
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 15 s. Combined
// with [WithHTTPClient] it applies to a copy; the caller's client is never
// modified.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
		p.timeoutSet = true
	}
}

// WithHTTPClient replaces the HTTP client; its Timeout is kept unless
// [WithTimeout] is also given. A nil client is ignored.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements translate.Provider over HTTP.
type Provider struct {
	baseURL    string
	httpClient *http.Client

	timeout    time.Duration
	timeoutSet bool
}

// New returns a Provider for the endpoint under baseURL
// (e.g., "https://app.example.com").
func New(baseURL string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, errors.New("httpapi: baseURL must not be empty")
	}
	p := &Provider{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	switch {
	case p.httpClient == nil:
		p.httpClient = &http.Client{Timeout: p.timeout}
	case p.timeoutSet:
		c := *p.httpClient
		c.Timeout = p.timeout
		p.httpClient = &c
	}
	return p, nil
}

type requestBody struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
}

type responseBody struct {
	Translated string `json:"translated"`
}

// Translate implements translate.Provider.
func (p *Provider) Translate(ctx context.Context, req translate.Request) (*translate.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(requestBody{
		Text:       strings.TrimSpace(req.Text),
		SourceLang: string(req.SourceLang),
		TargetLang: string(req.TargetLang),
	})
	if err != nil {
		return nil, fmt.Errorf("httpapi: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+translatePath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("httpapi: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("httpapi: POST %s: %w", translatePath, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("httpapi: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := truncate(strings.TrimSpace(string(body)), maxErrBody)
		return nil, &translate.Error{StatusCode: resp.StatusCode, Body: msg}
	}

	var out responseBody
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("httpapi: decode response: %w", err)
	}
	if strings.TrimSpace(out.Translated) == "" {
		return nil, errors.New("httpapi: response has no translation")
	}
	return &translate.Response{Text: out.Translated, Provider: Name}, nil
}

// Ping implements translate.Pinger. Any answer below 500 counts as reachable,
// since the endpoint only accepts POST.
func (p *Provider) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+translatePath, nil)
	if err != nil {
		return fmt.Errorf("httpapi: create ping request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpapi: ping: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
	if resp.StatusCode >= 500 {
		return &translate.Error{StatusCode: resp.StatusCode}
	}
	return nil
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var (
	_ translate.Provider = (*Provider)(nil)
	_ translate.Pinger   = (*Provider)(nil)
)
