package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
)

const summaryRules = "You compress role-playing conversation history into a summary that preserves everything a game " +
	"master must remember: named characters and NPCs, promises, debts, injuries, acquired and lost items, locations, " +
	"and unresolved threads. Drop florid prose; keep facts. Write the summary as flowing text, not a list."

const summaryOutputFormat = `{"summary": "the compressed history"}`

// keepRecentMessages is how many trailing messages survive a compaction
// verbatim; the model needs the immediate scene uncompressed.
const keepRecentMessages = 6

// SummaryAgent compacts conversation history when it exceeds the token
// budget for the context window.
type SummaryAgent struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewSummaryAgent creates a summary agent.
func NewSummaryAgent(dispatcher *Dispatcher, logger *slog.Logger) *SummaryAgent {
	return &SummaryAgent{dispatcher: dispatcher, logger: logger}
}

// Summarize returns the history unchanged while it fits the budget.
// Otherwise it compresses everything but the most recent messages into
// one summary turn and returns the new, shorter history.
func (s *SummaryAgent) Summarize(ctx context.Context, history []services.Message, tokenBudget int) ([]services.Message, error) {
	if len(history) <= keepRecentMessages {
		return history, nil
	}

	var joined strings.Builder
	for _, msg := range history {
		joined.WriteString(msg.Content)
		joined.WriteString("\n")
	}
	tokens, err := s.dispatcher.LLM().CountTokens(ctx, joined.String())
	if err != nil {
		return nil, fmt.Errorf("token count failed: %w", err)
	}
	if tokens <= tokenBudget {
		return history, nil
	}
	if s.logger != nil {
		s.logger.Info("compacting history", "tokens", tokens, "budget", tokenBudget, "messages", len(history))
	}

	older := history[:len(history)-keepRecentMessages]
	recent := history[len(history)-keepRecentMessages:]

	var transcript strings.Builder
	for _, msg := range older {
		transcript.WriteString(msg.Role)
		transcript.WriteString(": ")
		transcript.WriteString(msg.Content)
		transcript.WriteString("\n\n")
	}

	b := NewBuilder().
		WithRules(summaryRules).
		WithOutputFormat(summaryOutputFormat).
		WithUserMessage("Summarize this history:\n" + transcript.String()).
		WithAutoFix()

	var result struct {
		Summary string `json:"summary"`
	}
	if _, err := s.dispatcher.Generate(ctx, b.Build(), &result); err != nil {
		return nil, fmt.Errorf("summarization failed: %w", err)
	}
	if result.Summary == "" {
		return nil, fmt.Errorf("summarization returned empty text")
	}

	compacted := make([]services.Message, 0, len(recent)+1)
	compacted = append(compacted, services.Message{
		Role:    "user",
		Content: "Summary of the story so far: " + result.Summary,
	})
	compacted = append(compacted, recent...)
	return compacted, nil
}
