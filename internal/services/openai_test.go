package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOpenAIService_GenerateContent(t *testing.T) {
	var captured OpenAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("bad auth header: %s", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		fmt.Fprint(w, `{"id":"x","choices":[{"index":0,"message":{"role":"assistant","content":"{\"story\":\"A door creaks open.\"}"}}]}`)
	}))
	defer server.Close()

	service := NewOpenAIService("test-key", "test-model", "English", floatPtr(0.9))
	service.baseURL = server.URL

	resp, err := service.GenerateContent(context.Background(), &LLMRequest{
		UserMessage:        "Open the door.",
		SystemInstructions: []string{"Narrate."},
	})
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}

	if captured.Model != "test-model" {
		t.Errorf("model = %s", captured.Model)
	}
	if captured.Temperature != 0.9 {
		t.Errorf("temperature = %v", captured.Temperature)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_object" {
		t.Error("blocking call must request json_object format")
	}
	if captured.Messages[0].Role != "system" {
		t.Errorf("first message role = %s", captured.Messages[0].Role)
	}
	last := captured.Messages[len(captured.Messages)-1]
	if last.Role != "user" || last.Content != "Open the door." {
		t.Errorf("user message not last: %+v", last)
	}

	var payload struct {
		Story string `json:"story"`
	}
	if err := json.Unmarshal(resp.Content, &payload); err != nil {
		t.Fatalf("unmarshal content: %v", err)
	}
	if payload.Story != "A door creaks open." {
		t.Errorf("story = %q", payload.Story)
	}
}

func TestOpenAIService_GenerateContentStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req OpenAIRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("stream flag not set")
		}
		if req.ResponseFormat != nil {
			t.Error("streaming call must not request json_object format")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"The \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"end.\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	service := NewOpenAIService("test-key", "test-model", "English", nil)
	service.baseURL = server.URL

	var chunks []string
	resp, err := service.GenerateContentStream(context.Background(), &LLMRequest{UserMessage: "Finish."}, func(chunk string) {
		chunks = append(chunks, chunk)
	})
	if err != nil {
		t.Fatalf("GenerateContentStream failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("chunks = %v", chunks)
	}
	if resp.Raw != "The end." {
		t.Errorf("Raw = %q", resp.Raw)
	}
}

func TestOpenAIService_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"rate limited"}}`)
	}))
	defer server.Close()

	service := NewOpenAIService("test-key", "test-model", "English", nil)
	service.baseURL = server.URL

	_, err := service.GenerateContent(context.Background(), &LLMRequest{UserMessage: "hi"})
	if err == nil {
		t.Fatal("expected error on 429")
	}
}
