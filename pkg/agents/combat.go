package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/textfilter"
)

const combatRules = "You narrate one full round of combat. Every party member acts exactly once according to their " +
	"locked action and its dice outcome, and every hostile NPC reacts once. Damage and resource changes must be " +
	"reported as stats_update entries with the value wrapped as {\"result\": number}. Address combat targets by " +
	"their display name. Keep the round tight; do not resolve more than one round."

const combatOutputFormat = `{"story": "the narration of the full combat round",
"image_prompt": "a short visual description of the scene",
"is_character_in_combat": true or false,
"currently_present_npcs": {"hostile": [], "friendly": [], "neutral": []},
"stats_update": [{"sourceId": "...", "targetName": "...", "type": "hp_change", "value": {"result": number}, "explanation": "..."}],
"inventory_update": []}`

// CombatRoundAction pairs a member's locked action with its dice outcome.
type CombatRoundAction struct {
	MemberID    string
	Action      actor.ProposedAction
	RollOutcome string
}

// CombatRequest carries the context for one locked combat round.
type CombatRequest struct {
	Story              actor.Story
	Characters         []actor.CharacterDescription
	Stats              []actor.CharacterStats
	Resources          any
	NPCs               actor.NPCState
	Round              []CombatRoundAction
	History            []services.Message
	CustomInstructions []string
}

// CombatAgent resolves locked combat rounds as a batch.
type CombatAgent struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewCombatAgent creates a combat agent.
func NewCombatAgent(dispatcher *Dispatcher, logger *slog.Logger) *CombatAgent {
	return &CombatAgent{dispatcher: dispatcher, logger: logger}
}

// GenerateActionsFromContext narrates the round and returns its state
// delta. All member actions must already be locked; the caller enforces
// round gating.
func (c *CombatAgent) GenerateActionsFromContext(ctx context.Context, req CombatRequest) (*state.GameActionState, error) {
	b := NewBuilder().
		WithRules(combatRules).
		WithStory(req.Story)
	if req.Story.ContentRating != "" {
		b.WithCustom(textfilter.Guidance(req.Story.ContentRating))
	}
	for _, ch := range req.Characters {
		b.WithCharacter(ch)
	}
	for _, s := range req.Stats {
		b.WithStats(s)
	}
	b.WithState(resourcePhrasing(req.Resources), req.Resources)
	if len(req.NPCs) > 0 {
		b.WithState("The NPCs in this combat are", req.NPCs)
	}
	b.WithOutputFormat(combatOutputFormat)
	b.WithCustom(req.CustomInstructions...)
	b.WithHistory(req.History)

	msg := "Resolve this combat round. The locked actions and their dice outcomes are:\n"
	for _, ra := range req.Round {
		msg += fmt.Sprintf("- %s (%s): %s", ra.Action.CharacterName, ra.MemberID, ra.Action.Text)
		if ra.RollOutcome != "" {
			msg += " [dice outcome: " + ra.RollOutcome + "]"
		}
		msg += "\n"
	}
	b.WithUserMessage(msg)
	b.WithAutoFix()

	var action state.GameActionState
	resp, err := c.dispatcher.Generate(ctx, b.Build(), &action)
	if err != nil {
		return nil, fmt.Errorf("combat round failed: %w", err)
	}
	action.FallbackUsed = resp.FallbackUsed
	return &action, nil
}
