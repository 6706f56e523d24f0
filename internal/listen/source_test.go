package listen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	sttmock "github.com/MrWong99/jarvis/pkg/provider/stt/mock"
	"github.com/MrWong99/jarvis/pkg/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// take waits for the next mailbox value.
func take(t *testing.T, s *Source) types.TranscriptUpdate {
	t.Helper()
	select {
	case <-s.Updates().Ready():
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
	u, ok := s.Updates().Take()
	if !ok {
		t.Fatal("Ready fired without a value")
	}
	return u
}

func runSource(t *testing.T, s *Source) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestPushLatestWins(t *testing.T) {
	t.Parallel()

	s := New("en-US")
	s.Push(types.TranscriptUpdate{Text: "jarvis wh"})
	s.Push(types.TranscriptUpdate{Text: "jarvis what"})

	u := take(t, s)
	if u.Text != "jarvis what" {
		t.Errorf("Text = %q, want latest", u.Text)
	}
	if u.Language != "en-US" || u.At.IsZero() {
		t.Errorf("update not tagged: %+v", u)
	}
	if s.Updates().Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", s.Updates().Dropped())
	}
}

func TestPushKeepsPendingFinal(t *testing.T) {
	t.Parallel()

	s := New("en-US")
	s.Push(types.TranscriptUpdate{Text: "jarvis lights on", IsFinal: true})
	s.Push(types.TranscriptUpdate{Text: "and"})

	if u := take(t, s); !u.IsFinal || u.Text != "jarvis lights on" {
		t.Errorf("got %+v, want the pending final", u)
	}

	s.Push(types.TranscriptUpdate{Text: "first", IsFinal: true})
	s.Push(types.TranscriptUpdate{Text: "second", IsFinal: true})
	if u := take(t, s); u.Text != "second" {
		t.Errorf("got %q, want the newer final", u.Text)
	}
}

func TestPushModeRejectsAudio(t *testing.T) {
	t.Parallel()

	s := New("en-US")
	if err := s.SendAudio([]byte{1, 2}); !errors.Is(err, ErrPushMode) {
		t.Errorf("SendAudio err = %v, want ErrPushMode", err)
	}
	s.SetLanguage("hi-IN")
	s.Push(types.TranscriptUpdate{Text: "x"})
	if u := take(t, s); u.Language != "hi-IN" {
		t.Errorf("Language = %q, want hi-IN", u.Language)
	}
}

func TestProviderForwardsUpdates(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	s := New("en-US", WithProvider(p), WithKeywords("jarvis", "jervis"), WithSampleRate(48000))
	runSource(t, s)

	waitFor(t, "session start", func() bool { return p.LastSession() != nil })
	cfg := p.Calls()[0].Cfg
	if cfg.Language != "en-US" || cfg.SampleRate != 48000 || cfg.Channels != 1 {
		t.Errorf("StreamConfig = %+v", cfg)
	}
	if len(cfg.Keywords) != 2 || cfg.Keywords[0].Keyword != "jarvis" {
		t.Errorf("Keywords = %+v", cfg.Keywords)
	}

	sess := p.LastSession()
	if err := s.SendAudio([]byte{0, 1, 2, 3}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if got := sess.AudioChunks(); len(got) != 1 || len(got[0]) != 4 {
		t.Errorf("audio chunks = %v", got)
	}

	sess.Emit(types.TranscriptUpdate{Text: "jarvis open notepad", IsFinal: true})
	u := take(t, s)
	if u.Text != "jarvis open notepad" || !u.IsFinal || u.Language != "en-US" {
		t.Errorf("update = %+v", u)
	}
}

func TestProviderLanguageRestart(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	s := New("en-US", WithProvider(p))
	runSource(t, s)
	waitFor(t, "first session", func() bool { return len(p.Calls()) == 1 })
	first := p.LastSession()

	s.SetLanguage("hi-IN")
	waitFor(t, "restart", func() bool { return len(p.Calls()) == 2 })

	if !first.Closed() {
		t.Error("old session not closed")
	}
	if got := p.Calls()[1].Cfg.Language; got != "hi-IN" {
		t.Errorf("restart language = %q", got)
	}
	if s.Language() != "hi-IN" {
		t.Errorf("Language() = %q", s.Language())
	}

	s.SetLanguage("hi-IN")
	time.Sleep(10 * time.Millisecond)
	if n := len(p.Calls()); n != 2 {
		t.Errorf("same-language SetLanguage restarted: %d calls", n)
	}
}

func TestProviderStartBackoff(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	p := &sttmock.Provider{StartStreamErr: errors.New("dial refused")}
	s := New("en-US", WithProvider(p), WithClock(clock.Now), WithBackoff(time.Second, 4*time.Second))
	runSource(t, s)
	waitFor(t, "first attempt", func() bool { return len(p.Calls()) == 1 })

	// Inside the backoff window chunks are dropped without a new attempt.
	if err := s.SendAudio([]byte{1}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if n := len(p.Calls()); n != 1 {
		t.Fatalf("attempts = %d, want 1", n)
	}

	clock.Advance(time.Second)
	_ = s.SendAudio([]byte{1})
	if n := len(p.Calls()); n != 2 {
		t.Fatalf("attempts = %d, want 2", n)
	}

	// The delay doubled.
	clock.Advance(time.Second)
	_ = s.SendAudio([]byte{1})
	if n := len(p.Calls()); n != 2 {
		t.Fatalf("attempts = %d, want 2 after 1s of a 2s backoff", n)
	}

	p.SetStartStreamErr(nil)
	clock.Advance(time.Second)
	if err := s.SendAudio([]byte{7}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if n := len(p.Calls()); n != 3 {
		t.Fatalf("attempts = %d, want 3", n)
	}
	if got := p.LastSession().AudioChunks(); len(got) != 1 || got[0][0] != 7 {
		t.Errorf("chunk not delivered to new session: %v", got)
	}
}

func TestProviderReopensAfterSessionEnds(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	s := New("en-US", WithProvider(p))
	runSource(t, s)
	waitFor(t, "first session", func() bool { return p.LastSession() != nil })

	first := p.LastSession()
	_ = first.Close()
	waitFor(t, "session detached", func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.sess == nil
	})

	if err := s.SendAudio([]byte{9}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if n := len(p.Calls()); n != 2 {
		t.Fatalf("attempts = %d, want 2", n)
	}
	if p.LastSession() == first {
		t.Error("closed session reused")
	}
}

func TestRunClosesSession(t *testing.T) {
	t.Parallel()

	p := &sttmock.Provider{}
	s := New("en-US", WithProvider(p))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	waitFor(t, "session start", func() bool { return p.LastSession() != nil })

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	if !p.LastSession().Closed() {
		t.Error("session not closed on shutdown")
	}
}
