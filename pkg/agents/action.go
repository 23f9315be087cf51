package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

const actionRules = "Suggest in-character actions the player could take next. Every action must be doable with the " +
	"character's current abilities and resources, and its resource cost must never exceed what the character has left. " +
	"Classify each action's difficulty honestly. Actions must fit the current scene; do not reveal future plot."

const actionOutputFormat = `[{"characterName": "the acting character's name",
"text": "the action description, starting with a verb",
"type": "Misc" or "Attack" or "Spell" or "Conversation" or "Social_Manipulation",
"action_difficulty": "none" or "simple" or "medium" or "difficult" or "very_difficult",
"related_attribute": "...", "related_skill": "...",
"resource_cost": {"MP": 5},
"dice_roll_modifier": number,
"plausibility": "why this action is plausible here",
"side_effects": "likely consequences"}]`

// ActionRequest carries the context for candidate-action generation.
type ActionRequest struct {
	Story                 actor.Story
	Character             actor.CharacterDescription
	Stats                 actor.CharacterStats
	Resources             actor.Resources
	Inventory             state.InventoryState
	LatestStory           string
	InCombat              bool
	RestrainedExplanation string
	History               []services.Message
	CustomInstructions    []string
}

// ActionAgent generates candidate actions and classifies free-text ones.
type ActionAgent struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewActionAgent creates an action agent.
func NewActionAgent(dispatcher *Dispatcher, logger *slog.Logger) *ActionAgent {
	return &ActionAgent{dispatcher: dispatcher, logger: logger}
}

func (a *ActionAgent) buildRequest(req ActionRequest, format, userMessage string) *services.LLMRequest {
	b := NewBuilder().
		WithRules(actionRules).
		// The premise's main event would leak upcoming plot through the
		// suggestions, so it is stripped here.
		WithStory(req.Story.WithoutSecrets()).
		WithCharacter(req.Character).
		// Ability lists bloat suggestion prompts without improving them.
		WithStats(req.Stats.WithoutAbilities()).
		WithState("The character's CURRENT resources are", req.Resources)
	if len(req.Inventory) > 0 {
		b.WithState("The character's inventory is", req.Inventory)
	}
	if req.InCombat {
		b.WithCustom("The character is currently in combat. Suggest combat-appropriate actions.")
	}
	if req.RestrainedExplanation != "" {
		b.WithCustom("The character is restrained: " + req.RestrainedExplanation + " Every suggested action must focus on breaking free.")
	}
	b.WithOutputFormat(format)
	b.WithCustom(req.CustomInstructions...)
	b.WithHistory(req.History)
	b.WithUserMessage(userMessage)
	b.WithAutoFix()
	return b.Build()
}

// GenerateActions produces candidate actions for the character's current
// situation.
func (a *ActionAgent) GenerateActions(ctx context.Context, req ActionRequest) ([]actor.ProposedAction, error) {
	msg := "Based on the latest scene, suggest 3 to 5 different actions for this character.\nThe latest scene:\n" + req.LatestStory

	var raw json.RawMessage
	if _, err := a.dispatcher.Generate(ctx, a.buildRequest(req, actionOutputFormat, msg), &raw); err != nil {
		return nil, fmt.Errorf("action generation failed: %w", err)
	}
	actions, err := normalizeActionEnvelope(raw)
	if err != nil {
		return nil, fmt.Errorf("action generation failed: %w", err)
	}
	return actions, nil
}

// GenerateSingleAction classifies a free-text player action into a fully
// specified action ready for dice resolution.
func (a *ActionAgent) GenerateSingleAction(ctx context.Context, req ActionRequest, actionText string) (*actor.ProposedAction, error) {
	msg := "The player wants to take this exact action. Specify it fully without changing its intent:\n" + actionText +
		"\nThe latest scene:\n" + req.LatestStory
	llmReq := a.buildRequest(req, singleActionFormat, msg)

	var action actor.ProposedAction
	if _, err := a.dispatcher.Generate(ctx, llmReq, &action); err != nil {
		return nil, fmt.Errorf("action classification failed: %w", err)
	}
	if action.Text == "" {
		action.Text = actionText
	}
	return &action, nil
}

// singleActionFormat is the list format as one object.
var singleActionFormat = actionOutputFormat[1 : len(actionOutputFormat)-1]

// normalizeActionEnvelope accepts the three envelopes models produce for
// action lists: a bare array, {"actions": [...]}, or {"jsonArray": [...]}.
func normalizeActionEnvelope(content json.RawMessage) ([]actor.ProposedAction, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("empty action payload")
	}

	var actions []actor.ProposedAction
	if err := json.Unmarshal(content, &actions); err == nil {
		return actions, nil
	}

	var wrapped struct {
		Actions   []actor.ProposedAction `json:"actions"`
		JSONArray []actor.ProposedAction `json:"jsonArray"`
	}
	if err := json.Unmarshal(content, &wrapped); err != nil {
		return nil, fmt.Errorf("unrecognized action envelope: %w", err)
	}
	if wrapped.Actions != nil {
		return wrapped.Actions, nil
	}
	if wrapped.JSONArray != nil {
		return wrapped.JSONArray, nil
	}
	return nil, fmt.Errorf("action envelope held no actions")
}
