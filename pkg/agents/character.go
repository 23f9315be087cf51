package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
)

const characterRules = "You create player characters that fit the story's world, theme and tonality. Each character " +
	"must be distinct in race, class and personality, and the party as a whole must be able to pursue the adventure."

const characterOutputFormat = `[{"name": "...", "race": "...", "gender": "...", "class": "...",
"alignment": "...", "personality": "...", "background": "...", "appearance": "...", "motivation": "..."}]`

// CharacterRequest carries the premise and player hints for generation.
type CharacterRequest struct {
	Story actor.Story
	Count int
	Hints string
}

// CharacterAgent generates the initial party.
type CharacterAgent struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewCharacterAgent creates a character agent.
func NewCharacterAgent(dispatcher *Dispatcher, logger *slog.Logger) *CharacterAgent {
	return &CharacterAgent{dispatcher: dispatcher, logger: logger}
}

// GenerateCharacters produces req.Count character descriptions.
func (c *CharacterAgent) GenerateCharacters(ctx context.Context, req CharacterRequest) ([]actor.CharacterDescription, error) {
	count := req.Count
	if count <= 0 {
		count = 1
	}

	b := NewBuilder().
		WithRules(characterRules).
		WithStory(req.Story).
		WithOutputFormat(characterOutputFormat)
	msg := fmt.Sprintf("Create %d player character(s) for this story.", count)
	if req.Hints != "" {
		msg += "\nThe player's wishes for the characters: " + req.Hints
	}
	b.WithUserMessage(msg)
	b.WithAutoFix()

	var raw json.RawMessage
	if _, err := c.dispatcher.Generate(ctx, b.Build(), &raw); err != nil {
		return nil, fmt.Errorf("character generation failed: %w", err)
	}

	var characters []actor.CharacterDescription
	if err := json.Unmarshal(raw, &characters); err == nil {
		return characters, nil
	}
	// Some models wrap the list, or answer with a single object when
	// asked for one character.
	var wrapped struct {
		Characters []actor.CharacterDescription `json:"characters"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Characters != nil {
		return wrapped.Characters, nil
	}
	var single actor.CharacterDescription
	if err := json.Unmarshal(raw, &single); err == nil && single.Name != "" {
		return []actor.CharacterDescription{single}, nil
	}
	return nil, fmt.Errorf("character generation returned an unrecognized shape")
}
