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
)

const (
	openAIBaseURL      = "https://api.openai.com/v1"
	openAIDefaultModel = "gpt-4o-mini"
	openAIMaxTemp      = 2.0
)

// OpenAIService implements LLMService for OpenAI-compatible chat APIs
type OpenAIService struct {
	baseURL       string
	apiKey        string
	modelName     string
	defaultTemp   *float64
	storyLanguage string
	httpClient    *http.Client
}

// OpenAIMessage is one message in chat completions format
type OpenAIMessage struct {
	Role    string `json:"role"` // "system", "user" or "assistant"
	Content string `json:"content"`
}

// OpenAIResponseFormat requests structured output from the API
type OpenAIResponseFormat struct {
	Type string `json:"type"` // "json_object"
}

// OpenAIRequest represents the request structure for chat completions
type OpenAIRequest struct {
	Model          string                `json:"model"`
	Messages       []OpenAIMessage       `json:"messages"`
	Temperature    float64               `json:"temperature"`
	Stream         bool                  `json:"stream,omitempty"`
	ResponseFormat *OpenAIResponseFormat `json:"response_format,omitempty"`
}

// OpenAIChoice is a single choice in the chat completions response
type OpenAIChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
		Refusal string `json:"refusal,omitempty"`
	} `json:"message"`
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

// OpenAIResponse represents the chat completions response
type OpenAIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []OpenAIChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewOpenAIService creates a new OpenAI service
func NewOpenAIService(apiKey, modelName, storyLanguage string, defaultTemp *float64) *OpenAIService {
	if modelName == "" {
		modelName = openAIDefaultModel
	}
	return &OpenAIService{
		baseURL:       openAIBaseURL,
		apiKey:        apiKey,
		modelName:     modelName,
		defaultTemp:   defaultTemp,
		storyLanguage: storyLanguage,
		httpClient: &http.Client{
			Timeout: 90 * time.Second,
		},
	}
}

// MaxTemperature returns the OpenAI sampling ceiling
func (o *OpenAIService) MaxTemperature() float64 {
	return openAIMaxTemp
}

func (o *OpenAIService) buildRequest(req *LLMRequest, stream bool) *OpenAIRequest {
	messages := make([]OpenAIMessage, 0, len(req.History)+len(req.SystemInstructions)+2)
	for _, inst := range systemInstructions(req, o.storyLanguage) {
		messages = append(messages, OpenAIMessage{Role: "system", Content: inst})
	}
	for _, msg := range req.History {
		role := msg.Role
		if role == "model" {
			role = "assistant"
		}
		messages = append(messages, OpenAIMessage{Role: role, Content: msg.Content})
	}
	if req.UserMessage != "" {
		messages = append(messages, OpenAIMessage{Role: "user", Content: req.UserMessage})
	}

	out := &OpenAIRequest{
		Model:       o.modelName,
		Messages:    messages,
		Temperature: resolveTemperature(req, o.defaultTemp, openAIMaxTemp),
		Stream:      stream,
	}
	if req.Model != "" {
		out.Model = req.Model
	}
	// Structured output keeps the narration payload machine-readable.
	// Streaming responses interleave prose, so the format hint is only
	// sent on blocking calls.
	if !stream {
		out.ResponseFormat = &OpenAIResponseFormat{Type: "json_object"}
	}
	return out
}

// GenerateContent runs a single blocking chat completion
func (o *OpenAIService) GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}

	reqBody, err := json.Marshal(o.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(httpReq)
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

	var openAIResp OpenAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if openAIResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", openAIResp.Error.Message)
	}
	if len(openAIResp.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from API")
	}

	choice := openAIResp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, fmt.Errorf("model refused to respond: %s", choice.Message.Refusal)
	}
	if choice.Message.Content == "" {
		return nil, fmt.Errorf("no text content found in response")
	}

	return assembleResponse("", choice.Message.Content), nil
}

// GenerateContentStream streams a chat completion over SSE
func (o *OpenAIService) GenerateContentStream(ctx context.Context, req *LLMRequest, onChunk func(chunk string)) (*LLMResponse, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}

	reqBody, err := json.Marshal(o.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var text strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk OpenAIResponse
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, fmt.Errorf("failed to unmarshal stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return nil, fmt.Errorf("API error: %s", chunk.Error.Message)
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			text.WriteString(choice.Delta.Content)
			if onChunk != nil {
				onChunk(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stream read failed: %w", err)
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("no text content found in stream")
	}

	return assembleResponse("", text.String()), nil
}

// CountTokens estimates token usage; OpenAI has no counting endpoint
func (o *OpenAIService) CountTokens(ctx context.Context, text string) (int, error) {
	return estimateTokens(text), nil
}
