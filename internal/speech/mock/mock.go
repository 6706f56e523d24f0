// Package mock provides a recording [speech.Speaker] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/jarvis/internal/speech"
)

// Speaker records every utterance.
type Speaker struct {
	mu         sync.Mutex
	utterances []speech.Utterance

	// Err is returned from Speak when set.
	Err error
}

// Speak records u.
func (s *Speaker) Speak(_ context.Context, u speech.Utterance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.utterances = append(s.utterances, u)
	return s.Err
}

// Utterances returns a copy of everything spoken so far.
func (s *Speaker) Utterances() []speech.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]speech.Utterance(nil), s.utterances...)
}

// Texts returns the spoken texts in order.
func (s *Speaker) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.utterances))
	for i, u := range s.utterances {
		out[i] = u.Text
	}
	return out
}
