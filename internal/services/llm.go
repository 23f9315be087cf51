package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMissingAPIKey is returned by provider constructors and calls when
// the provider requires a credential that was not configured.
var ErrMissingAPIKey = errors.New("missing API key")

// Message is a single turn of conversation history.
type Message struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// LLMRequest carries everything a provider needs for one generation.
type LLMRequest struct {
	UserMessage        string
	History            []Message
	SystemInstructions []string
	Model              string
	// Temperature overrides the provider default when set. Values above
	// the provider maximum are clamped, not rejected.
	Temperature  *float64
	TryAutoFix   bool
	ForceEnglish bool
	// ReportErrors marks a player-visible call whose failure should be
	// surfaced loudly. Internal calls, like the JSON fixer's, leave it
	// unset.
	ReportErrors bool
	Stream       bool
}

// LLMResponse is the normalized result of a generation. Content holds
// the extracted JSON payload when the raw text contained one; Raw is
// always the unprocessed model output.
type LLMResponse struct {
	Thoughts     string
	Content      json.RawMessage
	Raw          string
	FallbackUsed bool
}

// LLMService defines the interface for interacting with an LLM provider
type LLMService interface {
	// GenerateContent runs a single blocking generation.
	GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error)

	// GenerateContentStream streams raw text chunks through onChunk as
	// they arrive and returns the assembled response when the stream
	// ends. Providers without streaming support fall back to a single
	// chunk.
	GenerateContentStream(ctx context.Context, req *LLMRequest, onChunk func(chunk string)) (*LLMResponse, error)

	// CountTokens returns the provider's token count for the text, or
	// an estimate when the provider has no counting endpoint.
	CountTokens(ctx context.Context, text string) (int, error)

	// MaxTemperature is the upper bound this provider accepts.
	MaxTemperature() float64
}

// resolveTemperature picks the effective sampling temperature: request
// override if present, otherwise the configured default, clamped into
// [0, max].
func resolveTemperature(req *LLMRequest, defaultTemp *float64, max float64) float64 {
	t := 1.0
	if defaultTemp != nil {
		t = *defaultTemp
	}
	if req.Temperature != nil {
		t = *req.Temperature
	}
	if t < 0 {
		t = 0
	}
	if t > max {
		t = max
	}
	return t
}

// systemInstructions assembles the final instruction list. A language
// directive is appended only when a non-English story language is
// configured and the request does not force English; it goes last so it
// wins over any earlier phrasing guidance.
func systemInstructions(req *LLMRequest, storyLanguage string) []string {
	if req.ForceEnglish || storyLanguage == "" || strings.EqualFold(storyLanguage, "English") {
		return req.SystemInstructions
	}
	parts := make([]string, 0, len(req.SystemInstructions)+1)
	parts = append(parts, req.SystemInstructions...)
	parts = append(parts, fmt.Sprintf("Most important instruction! You must always respond in %s language. Even if some passages are very hard to translate, never reply with English terms.", storyLanguage))
	return parts
}

// estimateTokens is the fallback for providers without a token counting
// endpoint. Four characters per token is close enough for budgeting
// summaries.
func estimateTokens(text string) int {
	return len(text) / 4
}
