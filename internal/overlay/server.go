// Package overlay is the server side of the overlay connection.
//
// The overlay is the browser or desktop window that owns the camera, the
// landmark model, the speech recognizer and the speech synthesizer. It
// connects to /ws, streams sensor data in, and renders the events the
// server broadcasts. Inbound frames are JSON text or msgpack binary
// envelopes of the form {type, data}; each client receives events in the
// codec it asked for with ?codec=json|msgpack.
package overlay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/jarvis/internal/health"
	"github.com/MrWong99/jarvis/internal/observe"
)

// Inbound message types.
const (
	MsgTranscript = "transcript"
	MsgHands      = "hands"
	MsgAudio      = "audio"
	MsgUnlock     = "unlock"
	MsgSettings   = "settings"
	MsgLanguage   = "language"
	MsgViewport   = "viewport"
	MsgPanel      = "panel"
	MsgVoices     = "voices"
	MsgCamera     = "camera"
	MsgModel      = "model"
)

// EventState is the outbound snapshot event, also sent to every new client.
const EventState = "state"

// readLimit bounds one inbound message; audio chunks are the largest.
const readLimit = 1 << 20

// writeTimeout bounds one outbound write.
const writeTimeout = 5 * time.Second

// Handler receives every inbound message. It is called from the client's
// read goroutine and must not block for long.
type Handler interface {
	HandleInbound(ctx context.Context, in Inbound)
}

// HandlerFunc adapts a function to [Handler].
type HandlerFunc func(ctx context.Context, in Inbound)

// HandleInbound calls f.
func (f HandlerFunc) HandleInbound(ctx context.Context, in Inbound) { f(ctx, in) }

// Server routes HTTP and WebSocket traffic.
type Server struct {
	hub      *Hub
	handler  Handler
	health   *health.Handler
	snapshot func() any
	origins  []string
	metrics  *observe.Metrics
	scrape   http.Handler

	ctx  context.Context
	stop context.CancelFunc
}

// Option configures a [Server].
type Option func(*Server)

// WithHealth mounts /healthz and /readyz.
func WithHealth(h *health.Handler) Option { return func(s *Server) { s.health = h } }

// WithSnapshot serves /state and greets new clients with a state event.
func WithSnapshot(fn func() any) Option { return func(s *Server) { s.snapshot = fn } }

// WithOriginPatterns accepts WebSocket upgrades from the given origins.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

// WithMetrics enables the HTTP middleware and /metrics.
func WithMetrics(m *observe.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithMetricsHandler serves h on /metrics instead of the default Prometheus
// registry.
func WithMetricsHandler(h http.Handler) Option { return func(s *Server) { s.scrape = h } }

// NewServer returns a server broadcasting through hub and delivering inbound
// messages to handler.
func NewServer(hub *Hub, handler Handler, opts ...Option) *Server {
	s := &Server{hub: hub, handler: handler}
	s.ctx, s.stop = context.WithCancel(context.Background())
	for _, o := range opts {
		o(s)
	}
	return s
}

// Close disconnects every WebSocket client. http.Server.Shutdown does not
// track hijacked connections.
func (s *Server) Close() { s.stop() }

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	if s.metrics != nil {
		r.Use(observe.Middleware(s.metrics))
		scrape := s.scrape
		if scrape == nil {
			scrape = promhttp.Handler()
		}
		r.Method(http.MethodGet, "/metrics", scrape)
	}
	if s.health != nil {
		s.health.Routes(r)
	}
	r.Get("/ws", s.serveWS)
	r.Get("/state", s.serveState)
	return r
}

func (s *Server) serveState(w http.ResponseWriter, _ *http.Request) {
	if s.snapshot == nil {
		http.Error(w, "no state", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		slog.Warn("overlay: encode state", "err", err)
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		slog.Warn("overlay: websocket accept failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	defer context.AfterFunc(s.ctx, cancel)()

	c := s.hub.add(ParseCodec(r.URL.Query().Get("codec")))
	log := slog.With("client", c.id, "codec", c.codec.String())
	log.Info("overlay: client connected", "remote", r.RemoteAddr)

	if s.snapshot != nil {
		s.hub.sendTo(c, EventState, s.snapshot())
	}

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writeLoop(ctx, conn, c)
	}()

	err = s.readLoop(ctx, conn)
	s.hub.remove(c)
	cancel()
	<-writeDone

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) || s.ctx.Err() != nil {
		log.Info("overlay: client disconnected")
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	log.Warn("overlay: client dropped", "err", err)
	_ = conn.Close(websocket.StatusInternalError, "read failed")
}

func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		in, err := DecodeInbound(typ, data)
		if err != nil {
			slog.Debug("overlay: ignoring malformed message", "err", err)
			continue
		}
		s.handler.HandleInbound(ctx, in)
	}
}

func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, c.codec.messageType(), msg)
			cancel()
			if err != nil {
				slog.Debug("overlay: write failed", "client", c.id, "err", err)
				_ = conn.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}
