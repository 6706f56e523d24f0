package command

import (
	"fmt"
	"strings"
)

// lang is a supported confirmation language.
type lang int

const (
	english lang = iota
	hindi
)

// pickLang maps a BCP-47 tag to a confirmation language. Anything that is
// not Hindi falls back to English.
func pickLang(tag string) lang {
	if strings.HasPrefix(strings.ToLower(tag), "hi") {
		return hindi
	}
	return english
}

var deviceNames = map[lang]map[string]string{
	english: {"lights": "lights", "fan": "fan", "ac": "air conditioner", "bedroom": "bedroom lights"},
	hindi:   {"lights": "लाइट", "fan": "पंखा", "ac": "एसी", "bedroom": "बेडरूम की लाइट"},
}

// Localize returns the spoken confirmation for a Local or Structured
// action, addressing user. ok is false for every other kind.
func Localize(a Action, language, user string) (text string, ok bool) {
	l := pickLang(language)
	switch a.Kind {
	case Local:
		return confirmDevice(l, a.Device, a.On, user), true
	case Structured:
		return confirmVerb(l, a.Verb, a.Arg, user), true
	default:
		return "", false
	}
}

func confirmDevice(l lang, device string, on bool, user string) string {
	name, ok := deviceNames[l][device]
	if !ok {
		name = device
	}
	if l == hindi {
		state := "बंद"
		if on {
			state = "चालू"
		}
		return fmt.Sprintf("जी %s, %s %s कर दी है।", user, name, state)
	}
	state := "off"
	if on {
		state = "on"
	}
	verb := "is"
	if strings.HasSuffix(name, "s") {
		verb = "are"
	}
	return fmt.Sprintf("As you wish, %s. The %s %s now %s.", user, name, verb, state)
}

func confirmVerb(l lang, verb, arg, user string) string {
	if l == hindi {
		switch verb {
		case "print":
			return fmt.Sprintf("जी %s, %s प्रिंट के लिए भेज दिया है।", user, arg)
		case "open":
			return fmt.Sprintf("जी %s, %s खोल रहा हूँ।", user, arg)
		}
		return fmt.Sprintf("जी %s, %s।", user, verb)
	}
	switch verb {
	case "print":
		return fmt.Sprintf("Sending %s to the printer, %s.", arg, user)
	case "open":
		return fmt.Sprintf("Opening %s, %s.", arg, user)
	}
	return fmt.Sprintf("Executing %s %s, %s.", verb, arg, user)
}

// Apology is spoken when a remote query fails or cannot be attempted.
func Apology(language, user string) string {
	if pickLang(language) == hindi {
		return fmt.Sprintf("क्षमा करें %s, मेरा न्यूरल लिंक अभी उपलब्ध नहीं है।", user)
	}
	return fmt.Sprintf("My apologies, %s. I am unable to reach my neural core at the moment.", user)
}

// Welcome is spoken after a successful unlock.
func Welcome(language, user string) string {
	if pickLang(language) == hindi {
		return fmt.Sprintf("वापसी पर स्वागत है, %s। सभी सिस्टम सक्रिय हैं।", user)
	}
	return fmt.Sprintf("Welcome back, %s. I've taken the liberty of running a full system diagnostic. All protocols are green.", user)
}
