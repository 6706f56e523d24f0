package gemini

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/types"
)

func TestNew_MissingAPIKey(t *testing.T) {
	t.Parallel()
	_, err := New(context.Background(), "", "")
	if !errors.Is(err, llm.ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestNew_DefaultModel(t *testing.T) {
	t.Parallel()
	p, err := New(context.Background(), "key", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Model() != DefaultModel {
		t.Errorf("Model: got %q, want %q", p.Model(), DefaultModel)
	}
}

func TestBuildRequest(t *testing.T) {
	t.Parallel()
	contents, cfg := buildRequest(llm.CompletionRequest{
		SystemPrompt: "You are JARVIS.",
		Messages: []types.Message{
			{Role: "system", Content: "Be brief."},
			{Role: "user", Content: "hello"},
			{Role: "user", Content: "are you there"},
			{Role: "assistant", Content: "Always, sir."},
		},
		Temperature: 0.5,
		MaxTokens:   64,
	})

	if cfg.SystemInstruction == nil || len(cfg.SystemInstruction.Parts) != 2 {
		t.Fatalf("system instruction: got %+v", cfg.SystemInstruction)
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 merged turns, got %d", len(contents))
	}
	if contents[0].Role != roleUser || len(contents[0].Parts) != 2 {
		t.Errorf("first turn: role %q parts %d", contents[0].Role, len(contents[0].Parts))
	}
	if contents[1].Role != roleModel {
		t.Errorf("second turn role: got %q, want model", contents[1].Role)
	}
	if cfg.Temperature == nil || *cfg.Temperature != 0.5 {
		t.Errorf("Temperature: got %v", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != 64 {
		t.Errorf("MaxOutputTokens: got %d", cfg.MaxOutputTokens)
	}
}

func TestComplete_AgainstFakeServer(t *testing.T) {
	t.Parallel()

	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Systems nominal, "}, {"text": "sir."}]}}],
			"usageMetadata": {"promptTokenCount": 20, "candidatesTokenCount": 5, "totalTokenCount": 25}
		}`))
	}))
	defer srv.Close()

	p, err := New(context.Background(), "key", "gemini-1.5-flash", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "status"}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Systems nominal, sir." {
		t.Errorf("Content: got %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 25 {
		t.Errorf("TotalTokens: got %d", resp.Usage.TotalTokens)
	}
	if !strings.Contains(gotPath, "gemini-1.5-flash:generateContent") {
		t.Errorf("path: got %q", gotPath)
	}
	if !strings.Contains(gotBody, "status") {
		t.Errorf("body should carry the prompt, got %s", gotBody)
	}
}
