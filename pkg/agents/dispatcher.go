package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
)

// Dispatcher runs agent requests against an LLM service and decodes the
// JSON payload into typed results, retrying once through the JSON fixer
// when the payload is malformed and the request allows auto-fixing.
type Dispatcher struct {
	llm    services.LLMService
	fixer  *JSONFixer
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher with its own fixer on the same
// service.
func NewDispatcher(llm services.LLMService, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		llm:    llm,
		fixer:  NewJSONFixer(llm, logger),
		logger: logger,
	}
}

// LLM exposes the underlying service for agents that need streaming or
// token counting directly.
func (d *Dispatcher) LLM() services.LLMService {
	return d.llm
}

// fallbackRetrier is implemented by services that wrap a secondary
// provider and can re-issue a request against it after the primary's
// output proved unusable.
type fallbackRetrier interface {
	RetryOnFallback(ctx context.Context, req *services.LLMRequest) (*services.LLMResponse, error)
}

// Generate runs the request and unmarshals the response payload into out.
func (d *Dispatcher) Generate(ctx context.Context, req *services.LLMRequest, out any) (*services.LLMResponse, error) {
	resp, err := d.llm.GenerateContent(ctx, req)
	if err != nil {
		d.reportFailure(req, err)
		return nil, err
	}
	if err := d.decode(ctx, req, resp, out); err != nil {
		d.reportFailure(req, err)
		return nil, err
	}
	return resp, nil
}

// reportFailure surfaces player-visible generation failures. Internal
// requests stay quiet; their callers decide what the player sees.
func (d *Dispatcher) reportFailure(req *services.LLMRequest, err error) {
	if !req.ReportErrors || d.logger == nil {
		return
	}
	d.logger.Error("generation failed", "error", err)
}

// decode unmarshals resp.Content into out, going through the fixer when
// the content is missing or does not match the expected shape. When the
// fixer cannot salvage the payload either and the service carries a
// fallback provider, the whole original request is re-issued there once.
func (d *Dispatcher) decode(ctx context.Context, req *services.LLMRequest, resp *services.LLMResponse, out any) error {
	var cause error
	if resp.Content != nil {
		if err := json.Unmarshal(resp.Content, out); err == nil {
			return nil
		} else {
			cause = err
		}
	} else {
		cause = fmt.Errorf("response contained no JSON payload")
	}

	if !req.TryAutoFix {
		return fmt.Errorf("failed to decode response: %w", cause)
	}

	if d.logger != nil {
		d.logger.Warn("malformed agent response, retrying through fixer", "error", cause)
	}
	fixed, err := d.fixer.Fix(ctx, resp.Raw, cause)
	if err == nil {
		if uerr := json.Unmarshal(fixed, out); uerr == nil {
			resp.Content = fixed
			return nil
		}
	}

	if retrier, ok := d.llm.(fallbackRetrier); ok {
		fbResp, fbErr := retrier.RetryOnFallback(ctx, req)
		if fbErr == nil && fbResp.Content != nil {
			if uerr := json.Unmarshal(fbResp.Content, out); uerr == nil {
				*resp = *fbResp
				return nil
			}
		}
		if fbErr != nil && d.logger != nil {
			d.logger.Warn("fallback retry failed", "error", fbErr)
		}
	}
	return fmt.Errorf("failed to decode response: %w", cause)
}
