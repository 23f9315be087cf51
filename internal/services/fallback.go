package services

import (
	"context"
	"log/slog"
)

// FallbackService decorates a primary LLMService with a second provider
// that is tried exactly once when the primary call fails. Responses
// served by the fallback are marked so the UI can surface the switch.
type FallbackService struct {
	primary  LLMService
	fallback LLMService
	logger   *slog.Logger
}

// NewFallbackService wraps primary with fallback
func NewFallbackService(primary, fallback LLMService, logger *slog.Logger) *FallbackService {
	return &FallbackService{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// MaxTemperature reports the primary provider's ceiling
func (f *FallbackService) MaxTemperature() float64 {
	return f.primary.MaxTemperature()
}

// GenerateContent tries the primary provider, then the fallback
func (f *FallbackService) GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	resp, err := f.primary.GenerateContent(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		// Cancellation is not a provider failure.
		return nil, err
	}
	if f.logger != nil {
		f.logger.Warn("primary provider failed, switching to fallback", "error", err)
	}

	resp, fbErr := f.fallback.GenerateContent(ctx, req)
	if fbErr != nil {
		// The primary error is the more useful diagnostic.
		return nil, err
	}
	resp.FallbackUsed = true
	return resp, nil
}

// GenerateContentStream streams from the primary provider, then the
// fallback. Chunks already delivered before a mid-stream failure are
// superseded by the fallback's output.
func (f *FallbackService) GenerateContentStream(ctx context.Context, req *LLMRequest, onChunk func(chunk string)) (*LLMResponse, error) {
	resp, err := f.primary.GenerateContentStream(ctx, req, onChunk)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	if f.logger != nil {
		f.logger.Warn("primary provider failed mid-stream, switching to fallback", "error", err)
	}

	resp, fbErr := f.fallback.GenerateContentStream(ctx, req, onChunk)
	if fbErr != nil {
		return nil, err
	}
	resp.FallbackUsed = true
	return resp, nil
}

// RetryOnFallback re-issues the original request against the fallback
// provider. The transport path above only sees call failures; callers
// that decode the payload use this when the primary answered but its
// output stayed unusable after repair.
func (f *FallbackService) RetryOnFallback(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if f.logger != nil {
		f.logger.Warn("primary output unusable, re-issuing request on fallback")
	}
	resp, err := f.fallback.GenerateContent(ctx, req)
	if err != nil {
		return nil, err
	}
	resp.FallbackUsed = true
	return resp, nil
}

// CountTokens delegates to the primary provider
func (f *FallbackService) CountTokens(ctx context.Context, text string) (int, error) {
	count, err := f.primary.CountTokens(ctx, text)
	if err != nil {
		return f.fallback.CountTokens(ctx, text)
	}
	return count, nil
}
