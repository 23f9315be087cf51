package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/jsonrepair"
)

const jsonFixerInstruction = "You are given text that was supposed to be a single valid JSON object but is malformed. " +
	"Return the same data as valid JSON. Do not change any values, do not add or remove fields, do not add commentary. " +
	"Respond with the JSON object only."

// JSONFixer asks the model to repair its own malformed JSON output. The
// fixer's request never allows another auto-fix pass, so a broken fix
// fails instead of recursing.
type JSONFixer struct {
	llm    services.LLMService
	logger *slog.Logger
}

// NewJSONFixer creates a fixer on the given service.
func NewJSONFixer(llm services.LLMService, logger *slog.Logger) *JSONFixer {
	return &JSONFixer{llm: llm, logger: logger}
}

// Fix sends the malformed text back with the parse error and returns the
// repaired payload.
func (f *JSONFixer) Fix(ctx context.Context, malformed string, cause error) (json.RawMessage, error) {
	req := &services.LLMRequest{
		UserMessage:        fmt.Sprintf("The parser reported: %v\n\nMalformed text:\n%s", cause, malformed),
		SystemInstructions: []string{jsonFixerInstruction},
		ForceEnglish:       true,
		TryAutoFix:         false,
	}

	resp, err := f.llm.GenerateContent(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fixer call failed: %w", err)
	}
	if resp.Content != nil {
		return resp.Content, nil
	}
	content, err := jsonrepair.Extract(resp.Raw)
	if err != nil {
		return nil, fmt.Errorf("fixer returned unusable output: %w", err)
	}
	return content, nil
}
