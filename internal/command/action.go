package command

// Kind classifies the outcome of interpreting one transcript update.
type Kind int

const (
	// NoOp means nothing should happen.
	NoOp Kind = iota

	// Interim echoes a partially recognized command. It never triggers a
	// side effect.
	Interim

	// Local is a device toggle handled without any network round trip to
	// the language model.
	Local

	// Structured is an imperative verb with an extracted argument.
	Structured

	// Remote forwards the body to the language model.
	Remote
)

// String returns the lowercase name of the kind, used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case NoOp:
		return "noop"
	case Interim:
		return "interim"
	case Local:
		return "local"
	case Structured:
		return "structured"
	case Remote:
		return "remote"
	default:
		return "unknown"
	}
}

// Command is a wake word and the text that followed it.
type Command struct {
	// WakeWord is the alias that matched.
	WakeWord string

	// Body is the trimmed text after the last occurrence of WakeWord.
	Body string
}

// Action is the result of [Interpreter.Interpret]. Only the fields relevant
// to Kind are set.
type Action struct {
	Kind Kind
	Command

	// Device and On are set for Local actions.
	Device string
	On     bool

	// Verb and Arg are set for Structured actions.
	Verb string
	Arg  string

	// Language is the recognizer's language tag, set for Remote actions.
	Language string
}

// Final reports whether the action came from a final transcript and should
// be dispatched.
func (a Action) Final() bool {
	return a.Kind == Local || a.Kind == Structured || a.Kind == Remote
}
