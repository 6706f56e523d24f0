// Package dispatch carries out interpreted commands.
//
// A [Dispatcher] is driven by the event loop. Everything it does to the
// session happens synchronously inside [Dispatcher.Dispatch], except for the
// remote language-model call: that runs on its own goroutine and hands its
// outcome back as a [Completion] on [Dispatcher.Completions], which the loop
// applies to the session it owns. The thinking flag is cleared on every
// path.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/internal/command"
	"github.com/MrWong99/jarvis/internal/device"
	"github.com/MrWong99/jarvis/internal/journal"
	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/resilience"
	"github.com/MrWong99/jarvis/internal/session"
	"github.com/MrWong99/jarvis/internal/speech"
	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/types"
)

// Outbound event names.
const (
	EventLog     = "log"
	EventInterim = "interim"
)

// Session log lines.
const (
	MsgNeuralFailure = "Neural connection failure. Check environment configuration."
	DefaultReply     = "Operational, sir."
)

// DefaultTimeout bounds one remote call.
const DefaultTimeout = 30 * time.Second

// Completion applies the outcome of an asynchronous call to the session.
type Completion func(st *session.State)

// Bridge performs structured verbs on the local machine.
type Bridge interface {
	Print(path string)
	Open(app string)
}

// Publisher delivers events to the overlay.
type Publisher interface {
	Publish(event string, payload any)
}

// Interim is the payload of an interim echo event.
type Interim struct {
	Text string `json:"text" msgpack:"text"`
}

// Dispatcher executes actions. Dispatch must only be called from the event
// loop that owns the session.
type Dispatcher struct {
	user    string
	persona string
	timeout time.Duration

	speaker speech.Speaker
	sink    device.Sink
	bridge  Bridge
	model   llm.Provider
	breaker *resilience.CircuitBreaker
	journal journal.Journal
	pub     Publisher
	metrics *observe.Metrics
	now     func() time.Time

	done chan Completion
	wg   sync.WaitGroup
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithUser sets the name the assistant addresses.
func WithUser(name string) Option { return func(d *Dispatcher) { d.user = name } }

// WithPersona overrides [DefaultPersona].
func WithPersona(p string) Option { return func(d *Dispatcher) { d.persona = p } }

// WithSpeaker sets the speech output.
func WithSpeaker(s speech.Speaker) Option { return func(d *Dispatcher) { d.speaker = s } }

// WithSink sets the device-control sink.
func WithSink(s device.Sink) Option { return func(d *Dispatcher) { d.sink = s } }

// WithBridge sets the hardware bridge.
func WithBridge(b Bridge) Option { return func(d *Dispatcher) { d.bridge = b } }

// WithModel sets the language model. A nil provider means credentials are
// missing and remote commands short-circuit to the local error path.
func WithModel(p llm.Provider) Option { return func(d *Dispatcher) { d.model = p } }

// WithBreaker replaces the language model's default circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option { return func(d *Dispatcher) { d.breaker = cb } }

// WithJournal records every final command.
func WithJournal(j journal.Journal) Option { return func(d *Dispatcher) { d.journal = j } }

// WithPublisher sets where log and interim events go.
func WithPublisher(p Publisher) Option { return func(d *Dispatcher) { d.pub = p } }

// WithMetrics enables command and latency metrics.
func WithMetrics(m *observe.Metrics) Option { return func(d *Dispatcher) { d.metrics = m } }

// WithTimeout bounds each remote call.
func WithTimeout(t time.Duration) Option {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// New returns a dispatcher. Unset collaborators are replaced by no-ops.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		user:    "Sir",
		timeout: DefaultTimeout,
		journal: journal.Nop{},
		now:     time.Now,
		done:    make(chan Completion, 16),
	}
	for _, o := range opts {
		o(d)
	}
	if d.breaker == nil {
		d.breaker = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{Name: "llm"})
	}
	return d
}

// Completions delivers the outcomes of remote calls to the event loop.
func (d *Dispatcher) Completions() <-chan Completion { return d.done }

// SetUser changes the addressed name. Loop-only.
func (d *Dispatcher) SetUser(name string) { d.user = name }

// SetPersona changes the persona line. Loop-only.
func (d *Dispatcher) SetPersona(p string) { d.persona = p }

// Wait blocks until every background call has finished and every journal
// write has been attempted.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Dispatch executes a. NoOp actions are ignored.
func (d *Dispatcher) Dispatch(ctx context.Context, st *session.State, a command.Action) {
	if a.Kind == command.NoOp {
		return
	}
	if d.metrics != nil {
		d.metrics.RecordCommand(ctx, a.Kind.String())
	}
	if a.Kind == command.Interim {
		d.publish(EventInterim, Interim{Text: a.Body})
		return
	}

	entry := st.BeginCommand(a.Body, d.user)
	d.publish(EventLog, entry)

	switch a.Kind {
	case command.Local:
		d.local(ctx, st, a)
	case command.Structured:
		d.structured(ctx, st, a)
	case command.Remote:
		d.remote(ctx, st, a)
	}
}

func (d *Dispatcher) local(ctx context.Context, st *session.State, a command.Action) {
	if !st.SetDevice(a.Device, a.On) {
		slog.Warn("dispatch: unknown device", "device", a.Device)
	} else if d.sink != nil {
		d.sink.Notify(st.Devices)
	}
	st.SetThinking(false)
	d.confirm(ctx, st, a)
	d.record(d.user, a, st.Language, journal.OutcomeOK, "")
}

func (d *Dispatcher) structured(ctx context.Context, st *session.State, a command.Action) {
	switch a.Verb {
	case "print":
		st.QueuePrint(a.Arg)
		if d.bridge != nil {
			d.bridge.Print(a.Arg)
		}
	case "open":
		if d.bridge != nil {
			d.bridge.Open(a.Arg)
		}
	default:
		slog.Debug("dispatch: verb has no bridge endpoint", "verb", a.Verb)
	}
	st.SetThinking(false)
	d.confirm(ctx, st, a)
	d.record(d.user, a, st.Language, journal.OutcomeOK, "")
}

func (d *Dispatcher) confirm(ctx context.Context, st *session.State, a command.Action) {
	if text, ok := command.Localize(a, st.Language, d.user); ok {
		d.speak(ctx, st, text)
	}
}

func (d *Dispatcher) remote(ctx context.Context, st *session.State, a command.Action) {
	if d.model == nil {
		d.fail(ctx, st)
		d.record(d.user, a, st.Language, journal.OutcomeSkipped, "missing credentials")
		return
	}

	language := a.Language
	if language == "" {
		language = st.Language
	}
	user := d.user
	req := Prompt(d.persona, user, language, a.Body)
	model := d.model

	d.wg.Go(func() {
		reply, err := d.complete(ctx, model, req)
		outcome, detail := journal.OutcomeOK, ""
		if err != nil {
			outcome, detail = journal.OutcomeError, err.Error()
		}
		d.record(user, a, language, outcome, detail)

		c := func(st *session.State) {
			if err != nil {
				d.fail(ctx, st)
				return
			}
			d.speak(ctx, st, reply)
			d.publish(EventLog, st.AddLog("Jarvis: "+reply, types.LogInfo))
			st.SetThinking(false)
		}
		select {
		case d.done <- c:
		case <-ctx.Done():
		}
	})
}

// complete runs one model call behind the breaker and returns the reply text.
func (d *Dispatcher) complete(ctx context.Context, model llm.Provider, req llm.CompletionRequest) (string, error) {
	ctx, span := observe.StartSpan(ctx, "dispatch.remote")
	defer span.End()

	start := d.now()
	var reply string
	err := d.breaker.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		resp, err := model.Complete(ctx, req)
		if err != nil {
			return err
		}
		if resp != nil {
			reply = resp.Content
		}
		return nil
	})

	status := "ok"
	if err != nil {
		status = "error"
		observe.Fail(span, err)
		log := observe.Logger(ctx)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			log.Warn("dispatch: language model unavailable, circuit open", "model", model.Model())
		} else {
			log.Error("dispatch: language model call failed", "model", model.Model(), "err", err)
		}
	}
	if d.metrics != nil {
		d.metrics.LLMDuration.Record(ctx, d.now().Sub(start).Seconds())
		d.metrics.RecordProviderRequest(ctx, model.Model(), "llm", status)
		if err != nil {
			d.metrics.RecordProviderError(ctx, model.Model(), "llm")
		}
	}
	if err != nil {
		return "", err
	}
	if reply == "" {
		reply = DefaultReply
	}
	return reply, nil
}

// fail is the single error path for remote commands: one error log, the
// apology, and the thinking flag cleared.
func (d *Dispatcher) fail(ctx context.Context, st *session.State) {
	d.publish(EventLog, st.AddLog(MsgNeuralFailure, types.LogError))
	d.speak(ctx, st, command.Apology(st.Language, d.user))
	st.SetThinking(false)
}

func (d *Dispatcher) speak(ctx context.Context, st *session.State, text string) {
	if d.speaker == nil {
		return
	}
	u := speech.Compose(text, st.Language, st.Settings.FastResponseMode)
	if err := d.speaker.Speak(ctx, u); err != nil {
		slog.Warn("dispatch: speak failed", "err", err)
	}
}

func (d *Dispatcher) publish(event string, payload any) {
	if d.pub != nil {
		d.pub.Publish(event, payload)
	}
}

// record journals a command in the background. Failures are logged.
func (d *Dispatcher) record(user string, a command.Action, language, outcome, detail string) {
	if _, nop := d.journal.(journal.Nop); nop {
		return
	}
	e := journal.Entry{
		At:       d.now(),
		User:     user,
		Body:     a.Body,
		Kind:     a.Kind.String(),
		Language: language,
		Outcome:  outcome,
		Detail:   detail,
	}
	j := d.journal
	d.wg.Go(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := j.Record(ctx, e); err != nil {
			slog.Warn("dispatch: journal write failed", "err", err)
		}
	})
}
