// Package gemini provides an LLM provider backed by the Google Gemini API
// through google.golang.org/genai.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/types"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-1.5-flash"

const (
	roleUser  = "user"
	roleModel = "model"
)

// Provider implements llm.Provider using the Gemini generateContent API.
type Provider struct {
	client *genai.Client
	model  string
}

type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the Gemini API endpoint.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a Gemini provider. An empty model selects [DefaultModel].
func New(ctx context.Context, apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", llm.ErrMissingCredentials)
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.baseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.baseURL
	}
	if cfg.timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: cfg.timeout}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

// Model implements llm.Provider.
func (p *Provider) Model() string { return p.model }

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	contents, gcfg := buildRequest(req)

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, gcfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	var sb strings.Builder
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			sb.WriteString(part.Text)
		}
	}

	out := &llm.CompletionResponse{Content: sb.String()}
	if resp != nil && resp.UsageMetadata != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// buildRequest maps a request onto Gemini contents. System messages and the
// system prompt become the system instruction; assistant turns use the
// "model" role.
func buildRequest(req llm.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	gcfg := &genai.GenerateContentConfig{}

	var system []*genai.Part
	if req.SystemPrompt != "" {
		system = append(system, genai.NewPartFromText(req.SystemPrompt))
	}

	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			system = append(system, genai.NewPartFromText(m.Content))
		case "assistant":
			contents = appendTurn(contents, roleModel, m)
		default:
			contents = appendTurn(contents, roleUser, m)
		}
	}

	if len(system) > 0 {
		gcfg.SystemInstruction = &genai.Content{Parts: system}
	}
	if req.Temperature != 0 {
		t := float32(req.Temperature)
		gcfg.Temperature = &t
	}
	if req.MaxTokens > 0 {
		gcfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	return contents, gcfg
}

// appendTurn merges consecutive messages of the same role into one content,
// since Gemini expects alternating turns.
func appendTurn(contents []*genai.Content, role string, m types.Message) []*genai.Content {
	part := genai.NewPartFromText(m.Content)
	if n := len(contents); n > 0 && contents[n-1].Role == role {
		contents[n-1].Parts = append(contents[n-1].Parts, part)
		return contents
	}
	return append(contents, &genai.Content{Role: role, Parts: []*genai.Part{part}})
}

var _ llm.Provider = (*Provider)(nil)
