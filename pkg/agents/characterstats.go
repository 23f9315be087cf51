package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
)

const statsRules = "You create the mechanical sheet for a character: resource templates, attribute and skill " +
	"modifiers, and starting abilities. Resources must include an HP-like resource flagged game_ends_when_zero. " +
	"Modifiers range from -5 (hopeless) to +5 (legendary); a fresh character rarely exceeds +3. Every ability with " +
	"a cost must spend a resource the character actually has."

const statsOutputFormat = `{"level": number,
"resources": {"HP": {"max_value": number, "start_value": number, "game_ends_when_zero": true}, "MP": {"max_value": number, "start_value": number, "game_ends_when_zero": false}},
"attributes": {"strength": number, "dexterity": number, ...},
"skills": {"...": number},
"spells_and_abilities": [{"name": "...", "effect": "...", "resource_cost": {"resource_key": "MP", "cost": number}}]}`

const levelUpRules = "You level a character up by exactly one level. Improve the stat most consistent with how the " +
	"character has recently acted. Raise resource maximums modestly, and add at most one new ability. Never remove " +
	"or weaken anything the character already has."

// StatsRequest carries the context for stat-sheet generation.
type StatsRequest struct {
	Story     actor.Story
	Character actor.CharacterDescription
	Hints     string
}

// LevelUpRequest carries the context for a level-up.
type LevelUpRequest struct {
	Story            actor.Story
	Character        actor.CharacterDescription
	Stats            actor.CharacterStats
	SkillProgression map[string]int
	LatestStory      string
}

// CharacterStatsAgent generates and advances stat sheets.
type CharacterStatsAgent struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewCharacterStatsAgent creates a stats agent.
func NewCharacterStatsAgent(dispatcher *Dispatcher, logger *slog.Logger) *CharacterStatsAgent {
	return &CharacterStatsAgent{dispatcher: dispatcher, logger: logger}
}

// GenerateStats produces a starting stat sheet for the character.
func (s *CharacterStatsAgent) GenerateStats(ctx context.Context, req StatsRequest) (*actor.CharacterStats, error) {
	b := NewBuilder().
		WithRules(statsRules).
		WithStory(req.Story).
		WithCharacter(req.Character).
		WithOutputFormat(statsOutputFormat)
	msg := "Create the starting stats for this character."
	if req.Hints != "" {
		msg += "\nThe player's wishes: " + req.Hints
	}
	b.WithUserMessage(msg)
	b.WithAutoFix()

	var stats actor.CharacterStats
	if _, err := s.dispatcher.Generate(ctx, b.Build(), &stats); err != nil {
		return nil, fmt.Errorf("stats generation failed: %w", err)
	}
	if stats.Level == 0 {
		stats.Level = 1
	}
	return &stats, nil
}

// LevelUp produces the next-level stat sheet.
func (s *CharacterStatsAgent) LevelUp(ctx context.Context, req LevelUpRequest) (*actor.CharacterStats, error) {
	b := NewBuilder().
		WithRules(levelUpRules).
		WithStory(req.Story).
		WithCharacter(req.Character).
		WithStats(req.Stats)
	if len(req.SkillProgression) > 0 {
		b.WithState("Skill usage since the last level", req.SkillProgression)
	}
	b.WithOutputFormat(statsOutputFormat)
	msg := fmt.Sprintf("Level the character up from level %d to %d.", req.Stats.Level, req.Stats.Level+1)
	if req.LatestStory != "" {
		msg += "\nThe latest scene for context:\n" + req.LatestStory
	}
	b.WithUserMessage(msg)
	b.WithAutoFix()

	var stats actor.CharacterStats
	if _, err := s.dispatcher.Generate(ctx, b.Build(), &stats); err != nil {
		return nil, fmt.Errorf("level up failed: %w", err)
	}
	if stats.Level <= req.Stats.Level {
		stats.Level = req.Stats.Level + 1
	}
	return &stats, nil
}
