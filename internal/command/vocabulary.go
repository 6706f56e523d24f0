package command

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/MrWong99/jarvis/internal/config"
)

// Device binds a device name to the tokens that select it.
type Device struct {
	Name   string
	Tokens []string
}

// Verb is a compiled imperative-verb pattern. The first capture group holds
// the argument; Fallback replaces an empty argument.
type Verb struct {
	Name     string
	Regex    *regexp.Regexp
	Fallback string
}

// Vocabulary is the fixed, ordered keyword set the interpreter classifies
// against. Devices and verbs are tried in slice order.
type Vocabulary struct {
	Devices   []Device
	OffTokens []string
	Verbs     []Verb
}

// VocabularyFromConfig compiles the interpreter section of a config.
// Tokens are lowercased because matching runs on lowercased text.
func VocabularyFromConfig(cfg config.InterpreterConfig) (Vocabulary, error) {
	v := Vocabulary{OffTokens: lowerAll(cfg.OffTokens)}
	for _, d := range cfg.Devices {
		v.Devices = append(v.Devices, Device{Name: d.Device, Tokens: lowerAll(d.Tokens)})
	}
	for _, vp := range cfg.Verbs {
		re, err := regexp.Compile(vp.Pattern)
		if err != nil {
			return Vocabulary{}, fmt.Errorf("command: verb %q: %w", vp.Verb, err)
		}
		v.Verbs = append(v.Verbs, Verb{Name: vp.Verb, Regex: re, Fallback: vp.Fallback})
	}
	return v, nil
}

// DefaultVocabulary returns the built-in English and Hindi vocabulary.
func DefaultVocabulary() Vocabulary {
	v, err := VocabularyFromConfig(config.InterpreterConfig{
		Devices:   config.DefaultDevices(),
		OffTokens: config.DefaultOffTokens,
		Verbs:     config.DefaultVerbs(),
	})
	if err != nil {
		panic(err)
	}
	return v
}

// device returns the first device with a token occurring in body.
func (v Vocabulary) device(body string) (string, bool) {
	for _, d := range v.Devices {
		if containsAny(body, d.Tokens) {
			return d.Name, true
		}
	}
	return "", false
}

// verb returns the first verb whose pattern matches body and its argument.
func (v Vocabulary) verb(body string) (name, arg string, ok bool) {
	for _, vb := range v.Verbs {
		m := vb.Regex.FindStringSubmatch(body)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			arg = strings.TrimRight(m[1], " \t\r\n")
		}
		if arg == "" {
			arg = vb.Fallback
		}
		return vb.Name, arg, true
	}
	return "", "", false
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if t != "" && strings.Contains(s, t) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.ToLower(s))
	}
	return out
}
