package dispatch

import (
	"fmt"
	"strings"

	"github.com/MrWong99/jarvis/pkg/provider/llm"
	"github.com/MrWong99/jarvis/pkg/types"
)

// DefaultPersona describes the assistant to the language model. %s is the
// user's name.
const DefaultPersona = "You are JARVIS from the Iron Man movies. You are serving %s.\n" +
	"Personality: Sophisticated, polite, slightly dry British wit, extremely intelligent."

// Prompt builds the completion request for one remote command. persona may
// contain a single %s for the user's name; empty uses [DefaultPersona].
func Prompt(persona, user, language, body string) llm.CompletionRequest {
	if persona == "" {
		persona = DefaultPersona
	}
	if strings.Contains(persona, "%s") {
		persona = fmt.Sprintf(persona, user)
	}
	input := fmt.Sprintf("Current Language: %s.\nInput from %s: %q.\nRespond naturally and stay in character. Keep it brief.",
		language, user, body)
	return llm.CompletionRequest{
		SystemPrompt: persona,
		Messages:     []types.Message{{Role: "user", Content: input}},
	}
}
