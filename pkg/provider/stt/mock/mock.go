// Package mock provides a scriptable [stt.Provider] for tests.
//
// A [Session] records the audio it is sent. Tests push transcripts with
// [Session.Emit]; Close closes the results channel the way a real backend
// does after its final flush.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/langswap/pkg/provider/stt"
)

// Provider hands out Session, or a fresh Session when Session is nil.
type Provider struct {
	Session *Session
	Err     error

	mu      sync.Mutex
	configs []stt.StreamConfig
}

var _ stt.Provider = (*Provider)(nil)

func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs = append(p.configs, cfg)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.Session == nil {
		return NewSession(), nil
	}
	return p.Session, nil
}

// Configs returns the StreamConfig of every StartStream call.
func (p *Provider) Configs() []stt.StreamConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.configs)
}

// Session is an in-memory [stt.Session].
type Session struct {
	// SendErr is returned by every Send.
	SendErr error

	results chan stt.Transcript

	mu     sync.Mutex
	sent   [][]byte
	closes int
}

var _ stt.Session = (*Session)(nil)

// NewSession returns a session whose results channel holds 16 transcripts.
func NewSession() *Session {
	return &Session{results: make(chan stt.Transcript, 16)}
}

// Emit queues a transcript on Results. It must not be called after Close.
func (s *Session) Emit(t stt.Transcript) { s.results <- t }

func (s *Session) Send(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return stt.ErrSessionClosed
	}
	if s.SendErr != nil {
		return s.SendErr
	}
	s.sent = append(s.sent, slices.Clone(pcm))
	return nil
}

func (s *Session) Results() <-chan stt.Transcript { return s.results }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closes == 1 {
		close(s.results)
	}
	return nil
}

// Sent returns the audio chunks received so far.
func (s *Session) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes > 0
}
