// Package listen adapts a continuous speech-recognition feed into a
// latest-wins stream of transcript updates for the event loop.
//
// Two feeds are supported. In push mode an external recognizer (the
// overlay's browser recognizer) calls [Source.Push] for every result. In
// provider mode the overlay streams raw PCM through [Source.SendAudio] into a
// streaming STT session, and the session's ordered partial and final updates
// are forwarded. Either way the consumer only ever sees the most recent
// unread update, except that a pending final is never replaced by an
// interim.
//
// Provider failures never propagate to the caller: they are logged, and a new
// session is attempted on the next audio chunk or language change once a
// backoff has passed.
package listen

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/jarvis/internal/observe"
	"github.com/MrWong99/jarvis/internal/stream"
	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/types"
)

// ErrPushMode is returned by SendAudio when no STT provider is configured.
var ErrPushMode = errors.New("listen: audio received but no speech provider is configured")

// Default session restart parameters.
const (
	defaultBackoff    = 500 * time.Millisecond
	defaultMaxBackoff = 30 * time.Second
	defaultSampleRate = 16000
	defaultBoost      = 2
)

// KeepFinal is the mailbox policy for transcripts: a pending final update
// survives a newer interim one, so a completed command is never lost to the
// start of the next utterance.
func KeepFinal(pending, next types.TranscriptUpdate) bool {
	return pending.IsFinal && !next.IsFinal
}

// Source is the speech source. All methods are safe for concurrent use.
type Source struct {
	out        *stream.Mailbox[types.TranscriptUpdate]
	provider   stt.Provider
	keywords   []types.KeywordBoost
	sampleRate int
	backoff    time.Duration
	maxBackoff time.Duration
	now        func() time.Time
	metrics    *observe.Metrics

	mu       sync.Mutex
	ctx      context.Context
	language string
	sess     stt.Session
	gen      uint64
	starting bool
	retryAt  time.Time
	delay    time.Duration
}

// Option configures a [Source].
type Option func(*Source)

// WithProvider switches the source to provider mode.
func WithProvider(p stt.Provider) Option {
	return func(s *Source) { s.provider = p }
}

// WithKeywords passes words to the provider as recognition boosts,
// typically the wake-word aliases.
func WithKeywords(words ...string) Option {
	return func(s *Source) {
		s.keywords = s.keywords[:0]
		for _, w := range words {
			s.keywords = append(s.keywords, types.KeywordBoost{Keyword: w, Boost: defaultBoost})
		}
	}
}

// WithSampleRate sets the PCM sample rate of the audio passed to SendAudio.
func WithSampleRate(hz int) Option {
	return func(s *Source) {
		if hz > 0 {
			s.sampleRate = hz
		}
	}
}

// WithBackoff sets the initial and maximum delay between failed session
// starts. The delay doubles after each failure.
func WithBackoff(initial, limit time.Duration) Option {
	return func(s *Source) {
		if initial > 0 {
			s.backoff = initial
		}
		if limit >= s.backoff {
			s.maxBackoff = limit
		}
	}
}

// WithMetrics records restarts and dropped updates.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Source) { s.metrics = m }
}

// WithClock overrides the clock used for backoff and update timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Source) { s.now = now }
}

// New creates a source for language. Without [WithProvider] it runs in push
// mode.
func New(language string, opts ...Option) *Source {
	s := &Source{
		out:        stream.NewMailbox(stream.WithKeep(KeepFinal)),
		language:   language,
		sampleRate: defaultSampleRate,
		backoff:    defaultBackoff,
		maxBackoff: defaultMaxBackoff,
		now:        time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Updates is the mailbox the event loop reads.
func (s *Source) Updates() *stream.Mailbox[types.TranscriptUpdate] { return s.out }

// Language returns the current language tag.
func (s *Source) Language() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// Run opens the first provider session and blocks until ctx is cancelled,
// then closes the active session. In push mode it only waits.
func (s *Source) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	if s.provider != nil {
		s.start("startup")
	}
	<-ctx.Done()

	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.gen++
	s.mu.Unlock()
	if sess != nil {
		_ = sess.Close()
	}
	return nil
}

// Push delivers an update from an external recognizer. Updates without a
// language are tagged with the current one.
func (s *Source) Push(u types.TranscriptUpdate) {
	if u.Language == "" {
		u.Language = s.Language()
	}
	s.deliver(u)
}

// SendAudio feeds a PCM chunk to the provider session, opening one first if
// none is active and the backoff allows it. Chunks arriving while no session
// can be opened are dropped.
func (s *Source) SendAudio(chunk []byte) error {
	if s.provider == nil {
		return ErrPushMode
	}
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()

	if sess == nil {
		s.start("audio")
		s.mu.Lock()
		sess = s.sess
		s.mu.Unlock()
		if sess == nil {
			return nil
		}
	}

	if err := sess.SendAudio(chunk); err != nil {
		if errors.Is(err, stt.ErrSessionClosed) {
			s.detach(sess)
		}
		return err
	}
	return nil
}

// SetLanguage switches the recognition language. In provider mode the
// session is restarted in the background.
func (s *Source) SetLanguage(tag string) {
	s.mu.Lock()
	if tag == "" || tag == s.language {
		s.mu.Unlock()
		return
	}
	s.language = tag
	old := s.sess
	s.sess = nil
	s.gen++
	s.retryAt = time.Time{}
	s.delay = 0
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	if s.provider == nil {
		slog.Info("speech source language changed", "language", tag)
		return
	}
	slog.Info("speech source restarting", "language", tag)
	go s.start("language")
}

// start opens a provider session unless one is active, another start is in
// flight, Run has not been called, or the backoff has not elapsed.
func (s *Source) start(reason string) {
	s.mu.Lock()
	if s.ctx == nil || s.ctx.Err() != nil || s.starting || s.sess != nil || s.now().Before(s.retryAt) {
		s.mu.Unlock()
		return
	}
	s.starting = true
	ctx, lang := s.ctx, s.language
	s.mu.Unlock()

	sess, err := s.provider.StartStream(ctx, stt.StreamConfig{
		SampleRate: s.sampleRate,
		Channels:   1,
		Language:   lang,
		Keywords:   s.keywords,
	})

	s.mu.Lock()
	s.starting = false
	if err != nil {
		s.delay = nextDelay(s.delay, s.backoff, s.maxBackoff)
		s.retryAt = s.now().Add(s.delay)
		delay := s.delay
		s.mu.Unlock()
		slog.Warn("speech source failed to start", "reason", reason, "language", lang, "retry_in", delay, "err", err)
		return
	}
	if lang != s.language || ctx.Err() != nil {
		s.mu.Unlock()
		_ = sess.Close()
		if ctx.Err() == nil {
			s.start("language")
		}
		return
	}
	s.delay, s.retryAt = 0, time.Time{}
	s.gen++
	gen := s.gen
	s.sess = sess
	s.mu.Unlock()

	slog.Info("speech source started", "reason", reason, "language", lang)
	if s.metrics != nil {
		s.metrics.SpeechRestarts.Add(ctx, 1)
	}
	go s.forward(sess, gen, lang)
}

// forward copies session updates into the mailbox until the session ends.
func (s *Source) forward(sess stt.Session, gen uint64, lang string) {
	for u := range sess.Updates() {
		if u.Language == "" {
			u.Language = lang
		}
		s.deliver(u)
	}

	s.mu.Lock()
	unexpected := s.gen == gen && s.sess == sess
	if unexpected {
		s.sess = nil
	}
	s.mu.Unlock()
	if unexpected {
		slog.Warn("speech source session ended; reopening on next audio", "language", lang)
		_ = sess.Close()
	}
}

// detach forgets sess if it is still the active session.
func (s *Source) detach(sess stt.Session) {
	s.mu.Lock()
	if s.sess == sess {
		s.sess = nil
	}
	s.mu.Unlock()
}

func (s *Source) deliver(u types.TranscriptUpdate) {
	if u.At.IsZero() {
		u.At = s.now()
	}
	if s.out.Put(u) && s.metrics != nil {
		s.metrics.RecordDropped(context.Background(), "transcript")
	}
}

// nextDelay doubles cur within [initial, limit].
func nextDelay(cur, initial, limit time.Duration) time.Duration {
	if cur <= 0 {
		return initial
	}
	return min(cur*2, limit)
}
