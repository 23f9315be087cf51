package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFallbackService_PrimarySucceeds(t *testing.T) {
	primary := NewMockLLM()
	primary.SetResponse(`{"story":"From primary."}`)
	fallback := NewMockLLM()

	service := NewFallbackService(primary, fallback, testLogger())
	resp, err := service.GenerateContent(context.Background(), &LLMRequest{UserMessage: "go"})
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}
	if resp.FallbackUsed {
		t.Error("FallbackUsed set on a primary success")
	}
	if len(fallback.Calls()) != 0 {
		t.Error("fallback invoked although primary succeeded")
	}
}

func TestFallbackService_PrimaryFails(t *testing.T) {
	primary := NewMockLLM()
	primary.SetError(errors.New("overloaded"))
	fallback := NewMockLLM()
	fallback.SetResponse(`{"story":"From fallback."}`)

	service := NewFallbackService(primary, fallback, testLogger())
	resp, err := service.GenerateContent(context.Background(), &LLMRequest{UserMessage: "go"})
	if err != nil {
		t.Fatalf("GenerateContent failed: %v", err)
	}
	if !resp.FallbackUsed {
		t.Error("FallbackUsed not set")
	}
	if got := len(fallback.Calls()); got != 1 {
		t.Errorf("fallback called %d times, want 1", got)
	}
}

func TestFallbackService_BothFail(t *testing.T) {
	primaryErr := errors.New("primary down")
	primary := NewMockLLM()
	primary.SetError(primaryErr)
	fallback := NewMockLLM()
	fallback.SetError(errors.New("fallback down"))

	service := NewFallbackService(primary, fallback, testLogger())
	_, err := service.GenerateContent(context.Background(), &LLMRequest{UserMessage: "go"})
	if !errors.Is(err, primaryErr) {
		t.Errorf("err = %v, want primary error", err)
	}
	if got := len(fallback.Calls()); got != 1 {
		t.Errorf("fallback called %d times, want exactly 1", got)
	}
}

func TestFallbackService_CancelledContextSkipsFallback(t *testing.T) {
	primary := NewMockLLM()
	primary.GenerateContentFunc = func(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
		return nil, ctx.Err()
	}
	fallback := NewMockLLM()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	service := NewFallbackService(primary, fallback, testLogger())
	_, err := service.GenerateContent(ctx, &LLMRequest{UserMessage: "go"})
	if err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if len(fallback.Calls()) != 0 {
		t.Error("fallback tried after cancellation")
	}
}

func TestFallbackService_Stream(t *testing.T) {
	primary := NewMockLLM()
	primary.SetError(errors.New("overloaded"))
	fallback := NewMockLLM()
	fallback.GenerateContentStreamFunc = func(ctx context.Context, req *LLMRequest, onChunk func(chunk string)) (*LLMResponse, error) {
		onChunk("part one ")
		onChunk("part two")
		return assembleResponse("", "part one part two"), nil
	}

	service := NewFallbackService(primary, fallback, testLogger())
	var chunks int
	resp, err := service.GenerateContentStream(context.Background(), &LLMRequest{UserMessage: "go"}, func(chunk string) {
		chunks++
	})
	if err != nil {
		t.Fatalf("GenerateContentStream failed: %v", err)
	}
	if !resp.FallbackUsed {
		t.Error("FallbackUsed not set")
	}
	if chunks != 2 {
		t.Errorf("chunks = %d, want 2", chunks)
	}
}
