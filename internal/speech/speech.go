// Package speech turns reply text into utterances for the overlay's speech
// synthesizer.
//
// The server never renders audio. It picks a voice from the list the overlay
// reports, fixes rate and pitch, and publishes a "speak" event. Each
// utterance carries a strictly increasing ID; the overlay cancels whatever
// it is saying when a newer ID arrives.
package speech

import (
	"context"
	"strings"
	"sync"
)

// EventSpeak is the outbound event name for utterances.
const EventSpeak = "speak"

// Pitch is the fixed synthesizer pitch.
const Pitch = 0.85

// Rates for the two response modes.
const (
	RateFast   = 1.0
	RateNormal = 0.95
)

// Voice is one synthesizer voice as reported by the overlay.
type Voice struct {
	Name string `json:"name" msgpack:"name"`
	Lang string `json:"lang" msgpack:"lang"`
}

// Utterance is one piece of text to speak.
type Utterance struct {
	ID       uint64  `json:"id" msgpack:"id"`
	Text     string  `json:"text" msgpack:"text"`
	Language string  `json:"language" msgpack:"language"`
	Voice    string  `json:"voice,omitempty" msgpack:"voice,omitempty"`
	Rate     float64 `json:"rate" msgpack:"rate"`
	Pitch    float64 `json:"pitch" msgpack:"pitch"`
}

// Compose builds an utterance with the rate for the response mode and the
// fixed pitch. Voice and ID are filled in by the speaker.
func Compose(text, language string, fast bool) Utterance {
	rate := RateNormal
	if fast {
		rate = RateFast
	}
	return Utterance{Text: text, Language: language, Rate: rate, Pitch: Pitch}
}

// Speaker speaks utterances.
type Speaker interface {
	Speak(ctx context.Context, u Utterance) error
}

// SelectVoice returns the preferred voice name for language, or "" to let the
// renderer use its default.
//
// English prefers a name containing British, UK or Male, then a voice whose
// lang contains en-GB, then a name containing David. Hindi prefers a voice
// whose lang contains hi, then the "Google हिन्दी" voice. Other languages get
// no preference.
func SelectVoice(voices []Voice, language string) string {
	var rules []func(Voice) bool
	switch {
	case strings.HasPrefix(language, "en"):
		rules = []func(Voice) bool{
			func(v Voice) bool {
				return strings.Contains(v.Name, "British") || strings.Contains(v.Name, "UK") || strings.Contains(v.Name, "Male")
			},
			func(v Voice) bool { return strings.Contains(v.Lang, "en-GB") },
			func(v Voice) bool { return strings.Contains(v.Name, "David") },
		}
	case strings.HasPrefix(language, "hi"):
		rules = []func(Voice) bool{
			func(v Voice) bool { return strings.Contains(v.Lang, "hi") },
			func(v Voice) bool { return strings.Contains(v.Name, "Google हिन्दी") },
		}
	}
	for _, match := range rules {
		for _, v := range voices {
			if match(v) {
				return v.Name
			}
		}
	}
	return ""
}

// Publisher delivers an event to every connected overlay.
type Publisher interface {
	Publish(event string, payload any)
}

// Overlay is a [Speaker] that publishes utterances to the overlay.
type Overlay struct {
	pub Publisher

	mu     sync.Mutex
	voices []Voice
	last   uint64
}

// NewOverlay returns a speaker publishing through pub.
func NewOverlay(pub Publisher) *Overlay {
	return &Overlay{pub: pub}
}

// SetVoices replaces the voice list the overlay reported.
func (o *Overlay) SetVoices(voices []Voice) {
	o.mu.Lock()
	o.voices = append([]Voice(nil), voices...)
	o.mu.Unlock()
}

// LastID returns the ID of the most recent utterance, 0 if none.
func (o *Overlay) LastID() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.last
}

// Speak assigns the next ID, picks a voice when u has none, and publishes.
func (o *Overlay) Speak(ctx context.Context, u Utterance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.mu.Lock()
	o.last++
	u.ID = o.last
	if u.Voice == "" {
		u.Voice = SelectVoice(o.voices, u.Language)
	}
	o.mu.Unlock()

	o.pub.Publish(EventSpeak, u)
	return nil
}
