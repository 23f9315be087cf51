package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/dice"
)

const difficultyRules = "You judge how hard an action is for this specific character, given their stats and the " +
	"current scene. simple means trivially within their abilities, medium means failure is plausible, difficult " +
	"means failure is likely, very_difficult means success would be remarkable. The dice roll modifier reflects " +
	"how much the character's relevant attribute or skill helps or hinders, from -5 to +5."

const difficultyOutputFormat = `{"action_difficulty": "none" or "simple" or "medium" or "difficult" or "very_difficult",
"dice_roll_modifier": number,
"related_attribute": "...", "related_skill": "...",
"difficulty_explanation": "one sentence"}`

// DifficultyResult is the classification of one action.
type DifficultyResult struct {
	ActionDifficulty      dice.ActionDifficulty `json:"action_difficulty"`
	DiceRollModifier      int                   `json:"dice_roll_modifier"`
	RelatedAttribute      string                `json:"related_attribute,omitempty"`
	RelatedSkill          string                `json:"related_skill,omitempty"`
	DifficultyExplanation string                `json:"difficulty_explanation,omitempty"`
}

// DifficultyRequest carries the action and its context.
type DifficultyRequest struct {
	Story       actor.Story
	Character   actor.CharacterDescription
	Stats       actor.CharacterStats
	ActionText  string
	LatestStory string
	InCombat    bool
}

// DifficultyAgent classifies free-text actions for dice resolution.
type DifficultyAgent struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewDifficultyAgent creates a difficulty agent.
func NewDifficultyAgent(dispatcher *Dispatcher, logger *slog.Logger) *DifficultyAgent {
	return &DifficultyAgent{dispatcher: dispatcher, logger: logger}
}

// GenerateDifficulty classifies one action.
func (d *DifficultyAgent) GenerateDifficulty(ctx context.Context, req DifficultyRequest) (*DifficultyResult, error) {
	b := NewBuilder().
		WithRules(difficultyRules).
		// The main plot must not influence difficulty judgments the
		// player can observe.
		WithStory(req.Story.WithoutSecrets()).
		WithCharacter(req.Character).
		WithStats(req.Stats.WithoutAbilities()).
		WithOutputFormat(difficultyOutputFormat)
	if req.InCombat {
		b.WithCustom("The character is in combat.")
	}
	msg := "Classify this action:\n" + req.ActionText
	if req.LatestStory != "" {
		msg += "\nThe latest scene:\n" + req.LatestStory
	}
	b.WithUserMessage(msg)
	b.WithAutoFix()

	var result DifficultyResult
	if _, err := d.dispatcher.Generate(ctx, b.Build(), &result); err != nil {
		return nil, fmt.Errorf("difficulty classification failed: %w", err)
	}
	if result.ActionDifficulty == "" {
		result.ActionDifficulty = dice.DifficultyMedium
	}
	return &result, nil
}
