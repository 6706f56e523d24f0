// Package llm defines the Provider interface for remote language-model backends.
//
// A provider wraps a hosted or local model API (Gemini, OpenAI, Anthropic,
// Ollama, ...) and exposes a single blocking completion call. The assistant
// uses it for free-form commands the local vocabulary cannot handle.
//
// Implementors must be safe for concurrent use. Overlapping requests are
// allowed; the caller decides which reply wins.
package llm

import (
	"context"
	"errors"

	"github.com/MrWong99/jarvis/pkg/types"
)

// ErrMissingCredentials is returned by constructors when the backend needs an
// API key and none was supplied.
var ErrMissingCredentials = errors.New("llm: missing credentials")

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message drives the reply.
	Messages []types.Message

	// SystemPrompt is an optional instruction placed before Messages.
	// Providers without a dedicated system field prepend it as a "system" message.
	SystemPrompt string

	// Temperature controls randomness. Zero leaves the provider default.
	Temperature float64

	// MaxTokens caps the reply length. Zero leaves the provider default.
	MaxTokens int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the reply text. May be empty if the model produced nothing.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any language-model backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// It returns when the reply arrives, the request fails, or ctx is done.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Model returns the model identifier used for requests.
	Model() string
}
