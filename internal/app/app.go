// Package app wires the Jarvis subsystems into a running server.
//
// New opens persistence and side-effect sinks, restores the persisted
// session, and builds the sensor adapters, recognizers and dispatcher. Run
// serves the overlay and drives the single event loop that owns the
// session. Shutdown releases everything in order.
//
// For tests, inject doubles through the With* options. Anything not
// injected is built from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/jarvis/internal/command"
	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/internal/device"
	"github.com/MrWong99/jarvis/internal/dispatch"
	"github.com/MrWong99/jarvis/internal/gesture"
	"github.com/MrWong99/jarvis/internal/health"
	"github.com/MrWong99/jarvis/internal/journal"
	"github.com/MrWong99/jarvis/internal/landmark"
	"github.com/MrWong99/jarvis/internal/listen"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/overlay"
	"github.com/MrWong99/jarvis/internal/panel"
	"github.com/MrWong99/jarvis/internal/session"
	"github.com/MrWong99/jarvis/internal/speech"
	"github.com/MrWong99/jarvis/internal/store"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/types"
)

// MsgMissingKey is logged to the session at startup when the language model
// has no credentials.
const MsgMissingKey = "NEURAL LINK ERROR: Missing API key for the language-model provider."

// controlBuffer bounds the queue of control messages waiting for the loop.
const controlBuffer = 64

// Providers holds one value per provider slot. Nil means not configured; a
// nil LLM means remote commands short-circuit to the local error path.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
}

// control runs on the event loop and reports whether the session changed.
type control func(ctx context.Context) bool

// App owns every subsystem and the event loop.
type App struct {
	cfg        *config.Config
	providers  *Providers
	level      *slog.LevelVar
	metrics    *observe.Metrics
	scrape     http.Handler
	configPath string

	store    store.Store
	journal  journal.Journal
	bridge   *device.Bridge
	sink     device.Sink
	hub      *overlay.Hub
	server   *overlay.Server
	pub      fanout
	speaker  *speech.Overlay
	speech   *listen.Source
	cams     *landmark.Source
	dispatch *dispatch.Dispatcher
	watcher  *config.Watcher

	// Owned by the event loop.
	state       *session.State
	interp      *command.Interpreter
	gestures    *gesture.Recognizer
	panel       *panel.Panel
	user        string
	lastGesture gesture.State

	control  chan control
	snapshot atomic.Pointer[session.State]

	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithStore injects the persistence store.
func WithStore(s store.Store) Option { return func(a *App) { a.store = s } }

// WithJournal injects the command journal.
func WithJournal(j journal.Journal) Option { return func(a *App) { a.journal = j } }

// WithSink injects the device-control sink.
func WithSink(s device.Sink) Option { return func(a *App) { a.sink = s } }

// WithLevel lets config reloads change the process log level.
func WithLevel(l *slog.LevelVar) Option { return func(a *App) { a.level = l } }

// WithMetrics enables metrics everywhere.
func WithMetrics(m *observe.Metrics) Option { return func(a *App) { a.metrics = m } }

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) Option { return func(a *App) { a.scrape = h } }

// WithConfigPath enables hot reload by polling path.
func WithConfigPath(path string) Option { return func(a *App) { a.configPath = path } }

// WithObserver receives every outbound event in addition to the overlay.
func WithObserver(p dispatch.Publisher) Option {
	return func(a *App) { a.pub = append(a.pub, p) }
}

// New builds the application. It returns an error only for problems that
// make the configuration unusable; unreachable optional collaborators are
// logged and left out.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		user:      cfg.Assistant.UserName,
		control:   make(chan control, controlBuffer),
	}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStore(); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	a.initJournal(ctx)
	a.initDevices()

	interp, err := command.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("app: init interpreter: %w", err)
	}
	a.interp = interp
	a.gestures = gesture.New(gesture.ConfigFrom(cfg.Gesture))

	a.restore(ctx)

	a.hub = overlay.NewHub(a.metrics)
	a.pub = append(fanout{a.hub}, a.pub...)
	a.speaker = speech.NewOverlay(a.pub)
	a.initSources()
	a.initDispatcher()
	a.initServer()

	if providers.LLM == nil {
		a.state.AddLog(MsgMissingKey, types.LogError)
		slog.Error("language model unavailable; remote commands disabled", "provider", cfg.Providers.LLM.Name, "env", config.EnvAPIKey)
	}
	a.storeSnapshot()
	return a, nil
}

func (a *App) initStore() error {
	if a.store != nil {
		return nil
	}
	s, err := store.OpenBadger(a.cfg.Storage.Dir)
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	return nil
}

func (a *App) initJournal(ctx context.Context) {
	if a.journal != nil {
		return
	}
	a.journal = journal.Nop{}
	dsn := a.cfg.Journal.PostgresDSN
	if dsn == "" {
		return
	}
	j, err := journal.Open(ctx, dsn)
	if err != nil {
		slog.Warn("command journal disabled", "err", err)
		return
	}
	a.journal = j
	a.closers = append(a.closers, func() error { j.Close(); return nil })
	slog.Info("command journal enabled")
}

func (a *App) initDevices() {
	dc := a.cfg.Devices
	opts := []device.Option{device.WithTimeout(dc.Timeout)}
	if a.metrics != nil {
		opts = append(opts, device.WithMetrics(a.metrics))
	}

	if dc.BridgeURL != "" {
		a.bridge = device.NewBridge(dc.BridgeURL, nil, opts...)
		a.closers = append(a.closers, func() error { a.bridge.Close(); return nil })
	}
	if a.sink != nil {
		return
	}

	var sinks device.Multi
	if a.bridge != nil {
		hs := device.NewHTTPSink(a.bridge, opts...)
		sinks = append(sinks, hs)
		a.closers = append(a.closers, func() error { hs.Close(); return nil })
	}
	if dc.MQTT != nil {
		ms, err := device.DialMQTT(*dc.MQTT, opts...)
		if err != nil {
			slog.Warn("mqtt device sink disabled", "err", err)
		} else {
			sinks = append(sinks, ms)
			a.closers = append(a.closers, func() error { ms.Close(); return nil })
		}
	}
	if len(sinks) > 0 {
		a.sink = sinks
	}
}

// restore loads the persisted settings, language and panel layout, falling
// back to the configured defaults.
func (a *App) restore(ctx context.Context) {
	settings, ok, err := store.Load[types.UserSettings](ctx, a.store, store.KeySettings)
	if err != nil {
		slog.Warn("ignoring persisted settings", "err", err)
	}
	if !ok {
		settings = a.cfg.Assistant.Settings.Settings()
	}

	language, ok, err := store.Load[string](ctx, a.store, store.KeyLanguage)
	if err != nil {
		slog.Warn("ignoring persisted language", "err", err)
	}
	if !ok || language == "" {
		language = a.cfg.Assistant.Language
	}

	layout, err := panel.Load(ctx, a.store)
	if err != nil {
		slog.Warn("ignoring persisted panel layout", "err", err)
	}

	a.state = session.New(settings, language)
	a.panel = panel.New(layout)
}

func (a *App) initSources() {
	lopts := []listen.Option{listen.WithKeywords(a.cfg.Assistant.WakeWords...)}
	if a.metrics != nil {
		lopts = append(lopts, listen.WithMetrics(a.metrics))
	}
	if a.cfg.Assistant.SpeechMode == config.SpeechProvider && a.providers.STT != nil {
		lopts = append(lopts, listen.WithProvider(a.providers.STT))
	}
	a.speech = listen.New(a.state.Language, lopts...)

	copts := []landmark.Option{landmark.WithCameraControl(func(on bool) {
		a.pub.Publish(EventCamera, Toggle{Enabled: on})
	})}
	if a.metrics != nil {
		copts = append(copts, landmark.WithMetrics(a.metrics))
	}
	a.cams = landmark.New(true, copts...)
}

func (a *App) initDispatcher() {
	opts := []dispatch.Option{
		dispatch.WithUser(a.user),
		dispatch.WithPersona(a.cfg.Assistant.Persona),
		dispatch.WithSpeaker(a.speaker),
		dispatch.WithJournal(a.journal),
		dispatch.WithPublisher(a.pub),
	}
	if a.providers.LLM != nil {
		opts = append(opts, dispatch.WithModel(a.providers.LLM))
	}
	if a.sink != nil {
		opts = append(opts, dispatch.WithSink(a.sink))
	}
	if a.bridge != nil {
		opts = append(opts, dispatch.WithBridge(a.bridge))
	}
	if a.metrics != nil {
		opts = append(opts, dispatch.WithMetrics(a.metrics))
	}
	a.dispatch = dispatch.New(opts...)
}

func (a *App) initServer() {
	checkers := []health.Checker{
		{Name: "store", Check: a.store.Ping},
	}
	if a.providers.LLM == nil {
		checkers = append(checkers, health.Static("llm", health.ErrMissingCredentials))
	} else {
		checkers = append(checkers, health.Static("llm", nil))
	}
	if a.bridge != nil {
		checkers = append(checkers, health.Checker{Name: "bridge", Check: func(ctx context.Context) error {
			_, err := a.bridge.Status(ctx)
			return err
		}})
	}

	opts := []overlay.Option{
		overlay.WithHealth(health.New(checkers...)),
		overlay.WithSnapshot(a.Snapshot),
		overlay.WithOriginPatterns(a.cfg.Server.AllowedOrigins...),
	}
	if a.metrics != nil {
		opts = append(opts, overlay.WithMetrics(a.metrics))
	}
	if a.scrape != nil {
		opts = append(opts, overlay.WithMetricsHandler(a.scrape))
	}
	a.server = overlay.NewServer(a.hub, a, opts...)
}

// Handler returns the HTTP handler serving the overlay.
func (a *App) Handler() http.Handler { return a.server.Routes() }

// Snapshot returns the most recently published session snapshot.
func (a *App) Snapshot() any { return a.snapshot.Load() }

// Run serves the overlay and drives the event loop until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen %q: %w", a.cfg.Server.ListenAddr, err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
	g.Go(func() error {
		slog.Info("overlay server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = srv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = srv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		a.server.Close()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error { return a.speech.Run(ctx) })
	g.Go(func() error { return a.loop(ctx) })

	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, func(_, new *config.Config) { a.Reload(ctx, new) })
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			a.watcher = w
		}
	}

	slog.Info("jarvis running", "language", a.speech.Language(), "speech_mode", a.cfg.Assistant.SpeechMode)
	return g.Wait()
}

// post queues fn for the event loop. It gives up when ctx is done.
func (a *App) post(ctx context.Context, fn control) bool {
	select {
	case a.control <- fn:
		return true
	case <-ctx.Done():
		return false
	}
}

// Shutdown releases every subsystem. It respects the ctx deadline: closers
// not reached in time are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		if a.watcher != nil {
			a.watcher.Stop()
		}

		waited := make(chan struct{})
		go func() {
			a.dispatch.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-ctx.Done():
			slog.Warn("shutdown: background calls still running")
		}

		for i, closer := range a.closers {
			if ctx.Err() != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				err = ctx.Err()
				return
			}
			if cerr := closer(); cerr != nil {
				slog.Warn("closer error", "index", i, "err", cerr)
			}
		}
		slog.Info("shutdown complete")
	})
	return err
}

// fanout publishes to several publishers.
type fanout []dispatch.Publisher

func (f fanout) Publish(event string, payload any) {
	for _, p := range f {
		p.Publish(event, payload)
	}
}
