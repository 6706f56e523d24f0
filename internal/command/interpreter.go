// Package command turns a stream of transcript updates into discrete
// assistant commands.
//
// The interpreter looks for a wake word, takes everything spoken after it,
// and classifies that body as a local device toggle, a structured verb, or a
// free-form query for the remote language model. Local classification always
// wins over the remote path, so a sentence mentioning a device never costs a
// network call.
//
// An Interpreter is immutable after construction and safe for concurrent use.
package command

import (
	"strings"

	"github.com/MrWong99/jarvis/internal/config"
	"github.com/MrWong99/jarvis/pkg/types"
)

// Interpreter classifies transcript updates. Construct with [New].
type Interpreter struct {
	wake  wakeWords
	vocab Vocabulary
}

type options struct {
	aliases           []string
	vocab             *Vocabulary
	phonetic          bool
	phoneticThreshold float64
}

// Option configures an [Interpreter].
type Option func(*options)

// WithWakeWords replaces the alias list. Order matters: the first alias
// found in a transcript is used.
func WithWakeWords(aliases ...string) Option {
	return func(o *options) { o.aliases = aliases }
}

// WithVocabulary replaces the device and verb vocabulary.
func WithVocabulary(v Vocabulary) Option {
	return func(o *options) { o.vocab = &v }
}

// WithPhoneticFallback enables fuzzy wake-word matching against the first
// alias when no alias occurs literally. threshold is the minimum
// Jaro-Winkler similarity; zero selects 0.85.
func WithPhoneticFallback(threshold float64) Option {
	return func(o *options) {
		o.phonetic = true
		if threshold > 0 {
			o.phoneticThreshold = threshold
		}
	}
}

// New returns an Interpreter using the default aliases and vocabulary unless
// overridden by opts.
func New(opts ...Option) *Interpreter {
	o := options{
		aliases:           config.DefaultWakeWords,
		phoneticThreshold: defaultPhoneticThreshold,
	}
	for _, fn := range opts {
		fn(&o)
	}
	vocab := DefaultVocabulary()
	if o.vocab != nil {
		vocab = *o.vocab
	}
	return &Interpreter{
		wake:  newWakeWords(o.aliases, o.phonetic, o.phoneticThreshold),
		vocab: vocab,
	}
}

// FromConfig builds an Interpreter from the assistant and interpreter
// config sections.
func FromConfig(cfg *config.Config) (*Interpreter, error) {
	vocab, err := VocabularyFromConfig(cfg.Interpreter)
	if err != nil {
		return nil, err
	}
	opts := []Option{WithWakeWords(cfg.Assistant.WakeWords...), WithVocabulary(vocab)}
	if cfg.Interpreter.PhoneticFallback {
		opts = append(opts, WithPhoneticFallback(0))
	}
	return New(opts...), nil
}

// Interpret classifies one transcript update. While locked every update is
// ignored.
func (in *Interpreter) Interpret(u types.TranscriptUpdate, locked bool) Action {
	if locked {
		return Action{Kind: NoOp}
	}

	text := strings.ToLower(u.Text)
	alias, ok := in.wake.find(text)
	if !ok {
		return Action{Kind: NoOp}
	}

	cmd := Command{WakeWord: alias, Body: extract(text, alias)}
	if cmd.Body == "" {
		return Action{Kind: NoOp, Command: cmd}
	}
	if !u.IsFinal {
		return Action{Kind: Interim, Command: cmd}
	}
	return in.classify(cmd, u.Language)
}

// classify orders local before structured before remote.
func (in *Interpreter) classify(cmd Command, language string) Action {
	if dev, ok := in.vocab.device(cmd.Body); ok {
		return Action{
			Kind:    Local,
			Command: cmd,
			Device:  dev,
			On:      !containsAny(cmd.Body, in.vocab.OffTokens),
		}
	}
	if verb, arg, ok := in.vocab.verb(cmd.Body); ok {
		return Action{Kind: Structured, Command: cmd, Verb: verb, Arg: arg}
	}
	return Action{Kind: Remote, Command: cmd, Language: language}
}
