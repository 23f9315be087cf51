package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
)

const storyRules = "You invent the premise of a tabletop roleplaying tale from the player's wishes. The world, the " +
	"adventure, and the main event must fit the chosen game system and give a party of adventurers room to act. " +
	"The adventure_and_main_event is a secret twist the players discover through play; never reveal it in the " +
	"other fields. The general_image_prompt captures the tale's visual mood for scene illustrations."

const storyOutputFormat = `{"game": "the game system, e.g. Dungeons & Dragons",
"world_details": "...", "adventure_and_main_event": "...",
"theme": "...", "tonality": "...", "character_simple_description": "...",
"general_image_prompt": "..."}`

// StoryRequest carries the player's wishes for a generated premise.
type StoryRequest struct {
	Hints      string
	GameSystem string
}

// StoryAgent generates the narrative premise of a new tale at setup.
type StoryAgent struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewStoryAgent creates a story agent.
func NewStoryAgent(dispatcher *Dispatcher, logger *slog.Logger) *StoryAgent {
	return &StoryAgent{dispatcher: dispatcher, logger: logger}
}

// GenerateStory produces a full premise from the player's hints.
func (s *StoryAgent) GenerateStory(ctx context.Context, req StoryRequest) (*actor.Story, error) {
	b := NewBuilder().
		WithRules(storyRules).
		WithOutputFormat(storyOutputFormat)
	msg := "Create the premise of a new tale."
	if req.GameSystem != "" {
		msg += "\nGame system: " + req.GameSystem
	}
	if req.Hints != "" {
		msg += "\nThe player's wishes: " + req.Hints
	}
	b.WithUserMessage(msg)
	b.WithAutoFix()

	var story actor.Story
	if _, err := s.dispatcher.Generate(ctx, b.Build(), &story); err != nil {
		return nil, fmt.Errorf("story generation failed: %w", err)
	}
	if story.GameSystem == "" {
		story.GameSystem = req.GameSystem
	}
	if story.GameSystem == "" || story.AdventureAndMainEvent == "" {
		return nil, fmt.Errorf("story generation returned an incomplete premise")
	}
	return &story, nil
}
