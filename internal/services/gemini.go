package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/jsonrepair"
)

const (
	geminiBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-2.0-flash"
	geminiMaxTemp      = 2.0
)

// GeminiService implements LLMService for Google's Gemini API
type GeminiService struct {
	apiKey        string
	modelName     string
	defaultTemp   *float64
	storyLanguage string
	httpClient    *http.Client
}

// GeminiPart is one piece of content in a Gemini message
type GeminiPart struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

// GeminiContent represents a single message in Gemini's native format
type GeminiContent struct {
	Role  string       `json:"role,omitempty"` // "user" or "model"
	Parts []GeminiPart `json:"parts"`
}

// GeminiSafetySetting relaxes content filtering for fictional narration
type GeminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

// GeminiGenerationConfig carries sampling parameters
type GeminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// GeminiRequest represents the request structure for generateContent
type GeminiRequest struct {
	Contents          []GeminiContent        `json:"contents"`
	SystemInstruction *GeminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  GeminiGenerationConfig `json:"generationConfig"`
	SafetySettings    []GeminiSafetySetting  `json:"safetySettings,omitempty"`
}

// GeminiCandidate is one generation candidate in the response
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

// GeminiResponse represents the response structure for generateContent
type GeminiResponse struct {
	Candidates []GeminiCandidate `json:"candidates"`
	Error      *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// GeminiCountTokensResponse represents the response from countTokens
type GeminiCountTokensResponse struct {
	TotalTokens int `json:"totalTokens"`
}

var geminiSafetySettings = []GeminiSafetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
}

// NewGeminiService creates a new Gemini service
func NewGeminiService(apiKey, modelName, storyLanguage string, defaultTemp *float64) *GeminiService {
	if modelName == "" {
		modelName = geminiDefaultModel
	}
	return &GeminiService{
		apiKey:        apiKey,
		modelName:     modelName,
		defaultTemp:   defaultTemp,
		storyLanguage: storyLanguage,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

// MaxTemperature returns the Gemini sampling ceiling
func (g *GeminiService) MaxTemperature() float64 {
	return geminiMaxTemp
}

func (g *GeminiService) buildRequest(req *LLMRequest) *GeminiRequest {
	contents := make([]GeminiContent, 0, len(req.History)+1)
	for _, msg := range req.History {
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		contents = append(contents, GeminiContent{
			Role:  role,
			Parts: []GeminiPart{{Text: msg.Content}},
		})
	}
	if req.UserMessage != "" {
		contents = append(contents, GeminiContent{
			Role:  "user",
			Parts: []GeminiPart{{Text: req.UserMessage}},
		})
	}

	instructions := systemInstructions(req, g.storyLanguage)
	var system *GeminiContent
	if len(instructions) > 0 {
		parts := make([]GeminiPart, 0, len(instructions))
		for _, inst := range instructions {
			parts = append(parts, GeminiPart{Text: inst})
		}
		system = &GeminiContent{Parts: parts}
	}

	return &GeminiRequest{
		Contents:          contents,
		SystemInstruction: system,
		GenerationConfig: GeminiGenerationConfig{
			Temperature: resolveTemperature(req, g.defaultTemp, geminiMaxTemp),
		},
		SafetySettings: geminiSafetySettings,
	}
}

func (g *GeminiService) model(req *LLMRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return g.modelName
}

// GenerateContent runs a single blocking generation against Gemini
func (g *GeminiService) GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}

	reqBody, err := json.Marshal(g.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", geminiBaseURL, g.model(req), g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if geminiResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", geminiResp.Error.Message)
	}
	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates returned from API")
	}

	var thoughts, text strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		if part.Thought {
			thoughts.WriteString(part.Text)
		} else {
			text.WriteString(part.Text)
		}
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no text content found in response")
	}

	return assembleResponse(thoughts.String(), text.String()), nil
}

// GenerateContentStream streams a generation over SSE
func (g *GeminiService) GenerateContentStream(ctx context.Context, req *LLMRequest, onChunk func(chunk string)) (*LLMResponse, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}

	reqBody, err := json.Marshal(g.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse&key=%s", geminiBaseURL, g.model(req), g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var thoughts, text strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}

		var chunk GeminiResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return nil, fmt.Errorf("API error: %s", chunk.Error.Message)
		}
		for _, cand := range chunk.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Thought {
					thoughts.WriteString(part.Text)
					continue
				}
				text.WriteString(part.Text)
				if onChunk != nil {
					onChunk(part.Text)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read failed: %w", err)
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no text content found in stream")
	}

	return assembleResponse(thoughts.String(), text.String()), nil
}

// CountTokens asks the Gemini countTokens endpoint for an exact count
func (g *GeminiService) CountTokens(ctx context.Context, text string) (int, error) {
	if g.apiKey == "" {
		return 0, fmt.Errorf("gemini: %w", ErrMissingAPIKey)
	}

	reqBody, err := json.Marshal(GeminiRequest{
		Contents: []GeminiContent{{Role: "user", Parts: []GeminiPart{{Text: text}}}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:countTokens?key=%s", geminiBaseURL, g.modelName, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		// Degrade to an estimate so summary budgeting keeps working.
		return estimateTokens(text), nil
	}

	var countResp GeminiCountTokensResponse
	if err := json.Unmarshal(body, &countResp); err != nil {
		return 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return countResp.TotalTokens, nil
}

// assembleResponse extracts the JSON payload from raw model text. An
// unparsable payload is not an error here; callers decide whether to
// retry with the fixer.
func assembleResponse(thoughts, raw string) *LLMResponse {
	resp := &LLMResponse{
		Thoughts: thoughts,
		Raw:      raw,
	}
	if content, err := jsonrepair.Extract(raw); err == nil {
		resp.Content = content
	}
	return resp
}
