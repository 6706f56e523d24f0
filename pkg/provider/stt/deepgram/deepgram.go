// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/jarvis/pkg/provider/stt"
	"github.com/MrWong99/jarvis/pkg/types"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-2"
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-2", "nova-3").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default BCP-47 language used when a stream config
// leaves Language empty.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithSampleRate sets the default audio sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithEndpoint overrides the streaming endpoint (ws:// or wss://).
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	language   string
	sampleRate int
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   deepgramEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.Session, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	// The session outlives the dial context; Close ends it.
	sctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sess := &session{
		conn:     conn,
		language: cfg.Language,
		updates:  make(chan types.TranscriptUpdate, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	sess.wg.Add(2)
	go sess.readLoop(sctx)
	go sess.writeLoop(sctx)

	return sess, nil
}

func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	for _, kw := range cfg.Keywords {
		// Deepgram keyword format: word:boost (e.g., "jarvis:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// deepgramResponse is the JSON structure returned by Deepgram.
type deepgramResponse struct {
	Type        string `json:"type"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session. It implements stt.Session.
type session struct {
	conn     *websocket.Conn
	language string
	updates  chan types.TranscriptUpdate
	audio    chan []byte

	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	cancel context.CancelFunc

	// utterance accumulates Deepgram's finalized segments until the
	// endpoint is detected. Owned by readLoop.
	utterance utterance
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return stt.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return stt.ErrSessionClosed
	}
}

// Updates implements stt.Session.
func (s *session) Updates() <-chan types.TranscriptUpdate { return s.updates }

// Close asks Deepgram to flush, then tears the connection down.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.conn.Write(wctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		cancel()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.updates)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			return
		}
		u, ok := s.utterance.apply(msg)
		if !ok {
			continue
		}
		u.Language = s.language
		u.At = time.Now()
		select {
		case s.updates <- u:
		case <-s.done:
			return
		}
	}
}

// utterance turns Deepgram's segment-level results into cumulative
// utterance-level updates. Deepgram finalizes segments (is_final) several
// times per utterance and marks the endpoint with speech_final or a separate
// UtteranceEnd message.
type utterance struct {
	committed []string
}

func (u *utterance) text(current string) string {
	parts := u.committed
	if current != "" {
		parts = append(parts[:len(parts):len(parts)], current)
	}
	return strings.Join(parts, " ")
}

// apply folds one raw message into the utterance and returns the update to
// emit, if any.
func (u *utterance) apply(data []byte) (types.TranscriptUpdate, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.TranscriptUpdate{}, false
	}

	switch resp.Type {
	case "UtteranceEnd":
		if len(u.committed) == 0 {
			return types.TranscriptUpdate{}, false
		}
		out := types.TranscriptUpdate{Text: u.text(""), IsFinal: true}
		u.committed = nil
		return out, true
	case "Results":
	default:
		return types.TranscriptUpdate{}, false
	}

	if len(resp.Channel.Alternatives) == 0 {
		return types.TranscriptUpdate{}, false
	}
	seg := strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)

	switch {
	case resp.IsFinal && resp.SpeechFinal:
		text := u.text(seg)
		u.committed = nil
		if text == "" {
			return types.TranscriptUpdate{}, false
		}
		return types.TranscriptUpdate{Text: text, IsFinal: true}, true
	case resp.IsFinal:
		if seg == "" {
			return types.TranscriptUpdate{}, false
		}
		u.committed = append(u.committed, seg)
		return types.TranscriptUpdate{Text: u.text("")}, true
	default:
		if seg == "" && len(u.committed) == 0 {
			return types.TranscriptUpdate{}, false
		}
		return types.TranscriptUpdate{Text: u.text(seg)}, true
	}
}

var _ stt.Provider = (*Provider)(nil)
