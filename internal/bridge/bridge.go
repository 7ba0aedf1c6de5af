// Package bridge connects browser tabs to the speech pipeline over a
// websocket.
//
// Each tab opens one connection at /bridge. The tab runs the Web Speech API
// (SpeechRecognition and speechSynthesis) on behalf of the server and reports
// its capabilities in a hello frame. The server drives recognition and
// synthesis through the browser capture backend and synthesis engine, pushes
// state snapshots and notices, and applies ui frames to a translator session
// and lesson audio controller owned by that connection.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/langswap/internal/notice"
	"github.com/MrWong99/langswap/internal/observe"
	"github.com/MrWong99/langswap/internal/translator"
	capturebrowser "github.com/MrWong99/langswap/pkg/provider/capture/browser"
	synthbrowser "github.com/MrWong99/langswap/pkg/provider/synth/browser"
	"github.com/MrWong99/langswap/pkg/webspeech"
)

// Path is the route the handler is mounted on.
const Path = "/bridge"

const (
	defaultReadLimit    = 64 << 10
	defaultWriteTimeout = 5 * time.Second
)

// Endpoint is the pipeline behind one connection.
type Endpoint struct {
	Capture *capturebrowser.Backend
	Synth   *synthbrowser.Engine
	Target

	// Close releases the pipeline. It is called once, after the reader has
	// stopped.
	Close func() error
}

// Builder creates the pipeline for a new connection. The connection is the
// sender for the browser adapters and the sink for notices.
type Builder func(ctx context.Context, c *Conn) (*Endpoint, error)

// Option configures a [Handler].
type Option func(*Handler)

// WithOriginPatterns sets the accepted cross-origin hosts. By default only
// same-origin connections are accepted.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Handler) { h.origins = patterns }
}

// WithMetrics sets the metrics recorder. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithWriteTimeout bounds each frame write. Default: 5s.
func WithWriteTimeout(d time.Duration) Option {
	return func(h *Handler) { h.writeTimeout = d }
}

// Handler accepts bridge connections. It implements http.Handler.
type Handler struct {
	build        Builder
	origins      []string
	metrics      *observe.Metrics
	readLimit    int64
	writeTimeout time.Duration
}

// NewHandler returns a Handler that builds one pipeline per connection.
func NewHandler(build Builder, opts ...Option) *Handler {
	h := &Handler{
		build:        build,
		readLimit:    defaultReadLimit,
		writeTimeout: defaultWriteTimeout,
	}
	for _, o := range opts {
		o(h)
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h
}

// ServeHTTP upgrades the request and serves the connection until the tab
// goes away or the request context ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		slog.Warn("bridge: accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	ws.SetReadLimit(h.readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &Conn{ws: ws, id: uuid.NewString(), writeTimeout: h.writeTimeout}
	log := slog.With("conn", c.id)

	h.metrics.BridgeConnections.Add(ctx, 1)
	defer h.metrics.BridgeConnections.Add(context.WithoutCancel(ctx), -1)

	ep, err := h.build(ctx, c)
	if err != nil {
		log.Error("bridge: build pipeline", "err", err)
		ws.Close(websocket.StatusInternalError, "pipeline unavailable")
		return
	}
	log.Info("bridge: connected", "remote", r.RemoteAddr)

	unsubscribe := ep.Session.OnChange(func(translator.Snapshot) { c.sendState(ctx, ep.Target) })

	err = c.serve(ctx, ep)

	unsubscribe()
	if ep.Close != nil {
		if cerr := ep.Close(); cerr != nil {
			log.Warn("bridge: close pipeline", "err", cerr)
		}
	}

	switch status := websocket.CloseStatus(err); {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		log.Info("bridge: disconnected")
	case errors.Is(err, context.Canceled):
		ws.Close(websocket.StatusGoingAway, "server shutting down")
		log.Info("bridge: closed by server")
	default:
		ws.Close(websocket.StatusInternalError, "read failed")
		log.Warn("bridge: connection lost", "err", err)
	}
}

// Conn is one browser tab. It implements webspeech.Sender and notice.Sink.
// Send may be called from any goroutine.
type Conn struct {
	ws           *websocket.Conn
	id           string
	writeTimeout time.Duration
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// Send writes f as one text message.
func (c *Conn) Send(ctx context.Context, f webspeech.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("bridge: marshal %s frame: %w", f.Type, err)
	}
	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}
	if err := c.ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("bridge: write %s frame: %w", f.Type, err)
	}
	return nil
}

// Notify forwards n to the tab as a notice frame.
func (c *Conn) Notify(ctx context.Context, n notice.Notice) {
	f, err := webspeech.NewPayloadFrame(webspeech.TypeNotice, n)
	if err != nil {
		slog.Error("bridge: encode notice", "conn", c.id, "err", err)
		return
	}
	if err := c.Send(ctx, f); err != nil {
		slog.Debug("bridge: notice not delivered", "conn", c.id, "code", n.Code, "err", err)
	}
}

func (c *Conn) sendState(ctx context.Context, t Target) {
	f, err := webspeech.NewPayloadFrame(webspeech.TypeState, StateOf(t))
	if err != nil {
		slog.Error("bridge: encode state", "conn", c.id, "err", err)
		return
	}
	if err := c.Send(ctx, f); err != nil {
		slog.Debug("bridge: state not delivered", "conn", c.id, "err", err)
	}
}

// serve reads frames until the connection fails. Blocking ui actions run on
// their own goroutine; they are cancelled and waited for before serve
// returns.
func (c *Conn) serve(ctx context.Context, ep *Endpoint) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.Send(ctx, webspeech.Frame{Type: webspeech.TypeProbe}); err != nil {
		return err
	}

	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}
		var f webspeech.Frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Debug("bridge: malformed frame", "conn", c.id, "err", err)
			continue
		}

		switch f.Type {
		case webspeech.TypeHello:
			ep.Capture.SetAvailable(f.Recognition)
			ep.Synth.SetAvailable(f.Synthesis)
			slog.Info("bridge: capabilities", "conn", c.id, "recognition", f.Recognition, "synthesis", f.Synthesis)
			c.sendState(ctx, ep.Target)

		case webspeech.TypeRecognitionStarted, webspeech.TypeRecognitionResult,
			webspeech.TypeRecognitionError, webspeech.TypeRecognitionEnd:
			if !ep.Capture.HandleFrame(f) {
				slog.Debug("bridge: stale recognition event dropped", "conn", c.id, "type", f.Type, "token", f.Token)
			}

		case webspeech.TypeSpeechStarted, webspeech.TypeSpeechDone,
			webspeech.TypeSpeechStopped, webspeech.TypeSpeechError:
			if !ep.Synth.HandleFrame(f) {
				slog.Debug("bridge: stale speech event dropped", "conn", c.id, "type", f.Type, "token", f.Token)
			}

		case webspeech.TypeUI:
			var ev UIEvent
			if err := json.Unmarshal(f.Payload, &ev); err != nil {
				slog.Debug("bridge: malformed ui payload", "conn", c.id, "err", err)
				continue
			}
			if Blocking(ev.Action) {
				wg.Add(1)
				go func() {
					defer wg.Done()
					c.dispatch(ctx, ep, ev)
				}()
				continue
			}
			c.dispatch(ctx, ep, ev)

		default:
			slog.Debug("bridge: unknown frame type", "conn", c.id, "type", f.Type)
		}
	}
}

func (c *Conn) dispatch(ctx context.Context, ep *Endpoint, ev UIEvent) {
	err := Dispatch(ctx, ep.Target, ev)
	if err != nil {
		// Pipeline failures have already been raised as notices.
		slog.Debug("bridge: ui action failed", "conn", c.id, "action", ev.Action, "err", err)
	}
	if ep.Lesson != nil && isLessonAction(ev.Action) {
		c.sendState(ctx, ep.Target)
	}
}

func isLessonAction(action string) bool {
	switch action {
	case ActionLessonMount, ActionLessonReveal, ActionLessonPlay, ActionLessonToggleMute:
		return true
	}
	return false
}

var (
	_ webspeech.Sender = (*Conn)(nil)
	_ notice.Sink      = (*Conn)(nil)
)
