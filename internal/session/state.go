// Package session holds the mutable application state of one running
// assistant.
//
// A [State] is an explicitly owned value: the event loop creates it once at
// startup and passes it by reference to everything that mutates it. It is
// not safe for concurrent use; only the event loop touches it. Callers that
// need to hand the state to another goroutine use [State.Snapshot].
package session

import (
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/jarvis/pkg/types"
)

// MaxLogs bounds the status console.
const MaxLogs = 50

// DefaultPrinter is the printer reported until the bridge says otherwise.
const DefaultPrinter = "HP LaserJet Pro M404n"

// Printer is the hardware bridge's printer status.
type Printer struct {
	Online bool     `json:"isOnline" msgpack:"isOnline"`
	Active string   `json:"activePrinter" msgpack:"activePrinter"`
	Queue  []string `json:"queue" msgpack:"queue"`
}

// State is the application state. The zero value is not usable; construct
// with [New].
type State struct {
	Locked      bool               `json:"isLocked" msgpack:"isLocked"`
	Listening   bool               `json:"isListening" msgpack:"isListening"`
	Thinking    bool               `json:"isThinking" msgpack:"isThinking"`
	Language    string             `json:"language" msgpack:"language"`
	LastCommand string             `json:"lastCommand" msgpack:"lastCommand"`
	Logs        []types.LogEntry   `json:"logs" msgpack:"logs"`
	Devices     types.DeviceState  `json:"home" msgpack:"home"`
	Settings    types.UserSettings `json:"settings" msgpack:"settings"`
	Printer     Printer            `json:"printer" msgpack:"printer"`
	PanelOpen   bool               `json:"panelOpen" msgpack:"panelOpen"`

	now   func() time.Time
	newID func() string
}

// Option configures a [State] at construction.
type Option func(*State)

// WithClock overrides the clock used to timestamp log entries.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// WithIDs overrides the log entry ID generator.
func WithIDs(newID func() string) Option {
	return func(s *State) { s.newID = newID }
}

// New creates the startup state from persisted (or default) settings. The
// system starts locked when face detection is enabled.
func New(settings types.UserSettings, language string, opts ...Option) *State {
	s := &State{
		Locked:    settings.EnableFaceDetection,
		Listening: true,
		Language:  language,
		Settings:  settings,
		Printer:   Printer{Online: true, Active: DefaultPrinter, Queue: []string{}},
		Logs:      make([]types.LogEntry, 0, MaxLogs),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	s.AddLog("Jarvis Neural Bridge Online...", types.LogInfo)
	return s
}

// AddLog prepends an entry, dropping the oldest beyond [MaxLogs].
func (s *State) AddLog(msg string, kind types.LogKind) types.LogEntry {
	e := types.LogEntry{ID: s.newID(), At: s.now(), Message: msg, Kind: kind}
	if len(s.Logs) >= MaxLogs {
		s.Logs = s.Logs[:MaxLogs-1]
	}
	s.Logs = slices.Insert(s.Logs, 0, e)
	return e
}

// BeginCommand records a final command and raises the thinking flag.
func (s *State) BeginCommand(body, user string) types.LogEntry {
	s.Thinking = true
	s.LastCommand = body
	return s.AddLog(`Requesting: "`+body+`" [`+user+`]`, types.LogSuccess)
}

// SetThinking sets the thinking flag.
func (s *State) SetThinking(v bool) { s.Thinking = v }

// Unlock clears the lock flag. It reports false if the state was not locked.
func (s *State) Unlock(user string) (types.LogEntry, bool) {
	if !s.Locked {
		return types.LogEntry{}, false
	}
	s.Locked = false
	return s.AddLog("Biometric Match: "+user+". Systems Active.", types.LogSuccess), true
}

// SetDevice flips one device toggle. Unknown devices are ignored.
func (s *State) SetDevice(device string, on bool) bool {
	return s.Devices.Set(device, on)
}

// QueuePrint appends a document to the printer queue.
func (s *State) QueuePrint(path string) {
	s.Printer.Queue = append(s.Printer.Queue, path)
}

// ApplySettings replaces the user settings. The lock flag is not touched:
// disabling face detection takes effect at the next start.
func (s *State) ApplySettings(settings types.UserSettings) {
	s.Settings = settings
}

// SetLanguage changes the active language tag. It reports whether the tag
// changed.
func (s *State) SetLanguage(tag string) bool {
	if tag == "" || tag == s.Language {
		return false
	}
	s.Language = tag
	return true
}

// SetPanelOpen records whether the secondary panel is showing.
func (s *State) SetPanelOpen(open bool) { s.PanelOpen = open }

// Snapshot returns a deep copy safe to hand to another goroutine.
func (s *State) Snapshot() State {
	c := *s
	c.Logs = slices.Clone(s.Logs)
	c.Printer.Queue = slices.Clone(s.Printer.Queue)
	c.now, c.newID = nil, nil
	return c
}
