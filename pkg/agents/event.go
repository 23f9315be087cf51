package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

const eventRules = "You scan the latest narration for character-significant developments. Report only what the text " +
	"clearly states. A transformation means the character's identity materially changed (race, class, body, or mind). " +
	"An ability is learned only when the text says the character gained or mastered it. A character is restrained " +
	"only while the text keeps them physically or magically unable to act freely."

const eventOutputFormat = `{"character_changed": null or the full new character description object,
"abilities_learned": [{"name": "...", "effect": "...", "resource_cost": {"resource_key": "...", "cost": number}}],
"restrained_state_explanation": "why the character is restrained, or empty"}`

// EventRequest carries the narration window to scan.
type EventRequest struct {
	Character   actor.CharacterDescription
	Abilities   []actor.Ability
	LatestStory string
}

// EventAgent detects transformations, learned abilities, and restrained
// state after each turn. Its output gates confirmation dialogs and never
// applies changes directly.
type EventAgent struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewEventAgent creates an event agent.
func NewEventAgent(dispatcher *Dispatcher, logger *slog.Logger) *EventAgent {
	return &EventAgent{dispatcher: dispatcher, logger: logger}
}

// EvaluateEvents scans the latest narration for the character.
func (e *EventAgent) EvaluateEvents(ctx context.Context, req EventRequest) (*state.EventEvaluation, error) {
	b := NewBuilder().
		WithRules(eventRules).
		WithCharacter(req.Character)
	if len(req.Abilities) > 0 {
		b.WithState("Abilities the character already has (never report these as newly learned)", req.Abilities)
	}
	b.WithOutputFormat(eventOutputFormat)
	b.WithUserMessage("Scan this narration:\n" + req.LatestStory)
	b.WithAutoFix()

	var eval state.EventEvaluation
	if _, err := e.dispatcher.Generate(ctx, b.Build(), &eval); err != nil {
		return nil, fmt.Errorf("event evaluation failed: %w", err)
	}
	return &eval, nil
}
