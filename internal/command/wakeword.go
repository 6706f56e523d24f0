package command

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const defaultPhoneticThreshold = 0.85

// wakeWords locates wake-word aliases in lowercased text.
type wakeWords struct {
	aliases []string

	// phonetic fallback; nil codes means disabled.
	canonical string
	codes     map[string]struct{}
	threshold float64
}

func newWakeWords(aliases []string, phonetic bool, threshold float64) wakeWords {
	w := wakeWords{aliases: lowerAll(aliases), threshold: threshold}
	if phonetic && len(w.aliases) > 0 {
		w.canonical = w.aliases[0]
		w.codes = metaphoneCodes(w.canonical)
	}
	return w
}

// find returns the first alias, in list order, that occurs anywhere in text.
// It is not the longest or best match. When no alias occurs and the phonetic
// fallback is enabled, a word that sounds like the canonical alias is
// accepted instead.
func (w wakeWords) find(text string) (string, bool) {
	for _, a := range w.aliases {
		if a != "" && strings.Contains(text, a) {
			return a, true
		}
	}
	if w.codes == nil {
		return "", false
	}
	for _, tok := range strings.FieldsFunc(text, notLetter) {
		if !overlaps(w.codes, metaphoneCodes(tok)) {
			continue
		}
		if matchr.JaroWinkler(tok, w.canonical, false) >= w.threshold {
			return tok, true
		}
	}
	return "", false
}

// extract splits text on the last occurrence of alias and returns the
// trimmed remainder.
func extract(text, alias string) string {
	i := strings.LastIndex(text, alias)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(text[i+len(alias):])
}

func metaphoneCodes(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

func overlaps(a, b map[string]struct{}) bool {
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

func notLetter(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsMark(r) }
