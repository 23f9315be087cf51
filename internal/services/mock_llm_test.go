package services

import (
	"context"
	"errors"
	"testing"
)

func TestMockLLM_TracksCalls(t *testing.T) {
	mock := NewMockLLM()

	resp, err := mock.GenerateContent(context.Background(), &LLMRequest{UserMessage: "Hello"})
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}
	if resp.Raw == "" {
		t.Error("expected a default raw payload")
	}

	calls := mock.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(calls))
	}
	if calls[0].Request.UserMessage != "Hello" {
		t.Errorf("unexpected tracked request: %+v", calls[0].Request)
	}
	if calls[0].Stream {
		t.Error("blocking call tracked as stream")
	}
}

func TestMockLLM_SetResponse(t *testing.T) {
	mock := NewMockLLM()
	mock.SetResponse(`{"story":"A gull cries over the bay."}`)

	resp, err := mock.GenerateContent(context.Background(), &LLMRequest{})
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}
	if string(resp.Content) != `{"story":"A gull cries over the bay."}` {
		t.Errorf("unexpected extracted payload: %q", string(resp.Content))
	}
}

func TestMockLLM_SetError(t *testing.T) {
	mock := NewMockLLM()
	wantErr := errors.New("provider down")
	mock.SetError(wantErr)

	if _, err := mock.GenerateContent(context.Background(), &LLMRequest{}); !errors.Is(err, wantErr) {
		t.Errorf("GenerateContent error = %v, want %v", err, wantErr)
	}
	if _, err := mock.GenerateContentStream(context.Background(), &LLMRequest{}, nil); !errors.Is(err, wantErr) {
		t.Errorf("GenerateContentStream error = %v, want %v", err, wantErr)
	}
}

func TestMockLLM_StreamDeliversChunk(t *testing.T) {
	mock := NewMockLLM()
	mock.SetResponse(`{"story":"chunked"}`)

	var chunks []string
	resp, err := mock.GenerateContentStream(context.Background(), &LLMRequest{Stream: true}, func(chunk string) {
		chunks = append(chunks, chunk)
	})
	if err != nil {
		t.Fatalf("GenerateContentStream failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0] != resp.Raw {
		t.Errorf("chunks = %v, want one chunk equal to the raw response", chunks)
	}

	calls := mock.Calls()
	if len(calls) != 1 || !calls[0].Stream {
		t.Errorf("stream call not tracked: %+v", calls)
	}

	mock.Reset()
	if len(mock.Calls()) != 0 {
		t.Error("Reset did not clear call tracking")
	}
}
