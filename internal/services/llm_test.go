package services

import (
	"context"
	"strings"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }

func TestResolveTemperature(t *testing.T) {
	tests := []struct {
		name        string
		reqTemp     *float64
		defaultTemp *float64
		max         float64
		want        float64
	}{
		{"unset uses fallback", nil, nil, 2.0, 1.0},
		{"default wins over fallback", nil, floatPtr(0.7), 2.0, 0.7},
		{"request wins over default", floatPtr(1.5), floatPtr(0.7), 2.0, 1.5},
		{"clamped to max", floatPtr(5.0), nil, 2.0, 2.0},
		{"clamped to zero", floatPtr(-1.0), nil, 2.0, 0},
		{"default clamped too", nil, floatPtr(9.0), 3.0, 3.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &LLMRequest{Temperature: tt.reqTemp}
			if got := resolveTemperature(req, tt.defaultTemp, tt.max); got != tt.want {
				t.Errorf("resolveTemperature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSystemInstructions_LanguageGoesLast(t *testing.T) {
	req := &LLMRequest{
		SystemInstructions: []string{"You are the narrator.", "Answer as JSON."},
	}
	parts := systemInstructions(req, "German")
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %d", len(parts))
	}
	if parts[0] != "You are the narrator." || parts[1] != "Answer as JSON." {
		t.Errorf("custom instructions reordered: %v", parts[:2])
	}
	if !strings.Contains(parts[2], "German") {
		t.Errorf("language directive missing from final part: %s", parts[2])
	}
}

func TestSystemInstructions_ForceEnglish(t *testing.T) {
	req := &LLMRequest{
		SystemInstructions: []string{"Fix this JSON."},
		ForceEnglish:       true,
	}
	parts := systemInstructions(req, "German")
	if len(parts) != 1 {
		t.Fatalf("expected no language directive, got %v", parts)
	}
	if parts[0] != "Fix this JSON." {
		t.Errorf("instructions altered: %v", parts)
	}
}

func TestSystemInstructions_EnglishSkipsDirective(t *testing.T) {
	for _, lang := range []string{"", "English", "english"} {
		req := &LLMRequest{SystemInstructions: []string{"Narrate."}}
		parts := systemInstructions(req, lang)
		if len(parts) != 1 {
			t.Errorf("language %q: expected 1 part, got %v", lang, parts)
		}
	}
}

func TestAssembleResponse(t *testing.T) {
	resp := assembleResponse("thinking...", "```json\n{\"story\":\"Hello\"}\n```")
	if resp.Thoughts != "thinking..." {
		t.Errorf("Thoughts = %q", resp.Thoughts)
	}
	if string(resp.Content) != `{"story":"Hello"}` {
		t.Errorf("Content = %s", resp.Content)
	}
	if resp.Raw == "" {
		t.Error("Raw must always carry the original text")
	}

	// Unparsable output is not an error; Content stays nil.
	resp = assembleResponse("", "plain prose with no payload")
	if resp.Content != nil {
		t.Errorf("Content = %s, want nil", resp.Content)
	}
	if resp.Raw != "plain prose with no payload" {
		t.Errorf("Raw = %q", resp.Raw)
	}
}

func TestGeminiBuildRequest(t *testing.T) {
	service := NewGeminiService("key", "", "German", nil)
	req := &LLMRequest{
		UserMessage: "Continue the tale.",
		History: []Message{
			{Role: "user", Content: "Begin."},
			{Role: "assistant", Content: "Once upon a time."},
		},
		SystemInstructions: []string{"Narrate grimly."},
	}

	built := service.buildRequest(req)
	if len(built.Contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(built.Contents))
	}
	if built.Contents[1].Role != "model" {
		t.Errorf("assistant role not mapped to model: %s", built.Contents[1].Role)
	}
	if built.Contents[2].Parts[0].Text != "Continue the tale." {
		t.Errorf("user message not last: %+v", built.Contents[2])
	}
	if built.SystemInstruction == nil || len(built.SystemInstruction.Parts) != 2 {
		t.Fatalf("system instruction parts = %+v", built.SystemInstruction)
	}
	if built.SystemInstruction.Parts[0].Text != "Narrate grimly." {
		t.Errorf("custom instruction not first: %s", built.SystemInstruction.Parts[0].Text)
	}
	if !strings.Contains(built.SystemInstruction.Parts[1].Text, "German") {
		t.Errorf("language directive not last: %s", built.SystemInstruction.Parts[1].Text)
	}
	if len(built.SafetySettings) == 0 {
		t.Error("safety settings missing")
	}
}

func TestGeminiService_MissingAPIKey(t *testing.T) {
	service := NewGeminiService("", "", "English", nil)
	_, err := service.GenerateContent(context.Background(), &LLMRequest{UserMessage: "hi"})
	if err == nil || !strings.Contains(err.Error(), "missing API key") {
		t.Errorf("expected missing key error, got %v", err)
	}
}
