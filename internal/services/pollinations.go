package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	pollinationsDefaultURL   = "https://text.pollinations.ai"
	pollinationsDefaultModel = "openai"
	pollinationsMaxTemp      = 1.0
)

// PollinationsService implements LLMService for the keyless Pollinations
// text API. The API answers with the completion as a plain text body, so
// it mostly serves as the free fallback tier.
type PollinationsService struct {
	baseURL       string
	modelName     string
	defaultTemp   *float64
	storyLanguage string
	httpClient    *http.Client
}

// PollinationsRequest represents the request body for text generation
type PollinationsRequest struct {
	Messages    []OpenAIMessage `json:"messages"`
	Model       string          `json:"model"`
	Temperature float64         `json:"temperature"`
	JSONMode    bool            `json:"jsonMode"`
	Private     bool            `json:"private"`
}

// NewPollinationsService creates a new Pollinations service
func NewPollinationsService(baseURL, modelName, storyLanguage string, defaultTemp *float64) *PollinationsService {
	if baseURL == "" {
		baseURL = pollinationsDefaultURL
	}
	if modelName == "" {
		modelName = pollinationsDefaultModel
	}
	return &PollinationsService{
		baseURL:       baseURL,
		modelName:     modelName,
		defaultTemp:   defaultTemp,
		storyLanguage: storyLanguage,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// MaxTemperature returns the Pollinations sampling ceiling
func (p *PollinationsService) MaxTemperature() float64 {
	return pollinationsMaxTemp
}

// GenerateContent runs a single blocking generation
func (p *PollinationsService) GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	messages := make([]OpenAIMessage, 0, len(req.History)+len(req.SystemInstructions)+2)
	for _, inst := range systemInstructions(req, p.storyLanguage) {
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

	model := p.modelName
	if req.Model != "" {
		model = req.Model
	}
	reqBody, err := json.Marshal(PollinationsRequest{
		Messages:    messages,
		Model:       model,
		Temperature: resolveTemperature(req, p.defaultTemp, pollinationsMaxTemp),
		JSONMode:    true,
		Private:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
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
	if len(body) == 0 {
		return nil, fmt.Errorf("no text content found in response")
	}

	return assembleResponse("", string(body)), nil
}

// GenerateContentStream degrades to a blocking call delivered as one
// chunk; the Pollinations completion endpoint does not stream.
func (p *PollinationsService) GenerateContentStream(ctx context.Context, req *LLMRequest, onChunk func(chunk string)) (*LLMResponse, error) {
	resp, err := p.GenerateContent(ctx, req)
	if err != nil {
		return nil, err
	}
	if onChunk != nil {
		onChunk(resp.Raw)
	}
	return resp, nil
}

// CountTokens estimates token usage; there is no counting endpoint
func (p *PollinationsService) CountTokens(ctx context.Context, text string) (int, error) {
	return estimateTokens(text), nil
}
