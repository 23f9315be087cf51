package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/jsonstream"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/textfilter"
)

const gameMasterRules = "You are the game master of an endless text adventure. Narrate the world vividly and honestly: " +
	"actions can fail, allies can fall, and the world reacts to the party's choices with consequences. " +
	"Never speak for the player characters, never ask the player what happens next, and keep every answer moving the tale forward. " +
	"Track combat state, present NPCs, inventory changes and resource changes precisely."

const gameOutputFormat = `{"story": "the narration of what happens, at least 3 sentences",
"image_prompt": "a short visual description of the scene",
"is_character_in_combat": true or false,
"currently_present_npcs": {"hostile": [{"uniqueTechnicalNameId": "...", "displayName": "..."}], "friendly": [], "neutral": []},
"inventory_update": [{"type": "add_item" or "remove_item", "item_id": "...", "item": {"description": "...", "effect": "..."}}],
"stats_update": [{"sourceId": "...", "targetId": "...", "type": "hp_change", "value": number, "explanation": "..."}],
"story_memory_explanation": "things worth remembering long-term, or empty"}`

// GameRequest carries the full context for one narration turn.
type GameRequest struct {
	ActionText         string
	SupplementaryText  string
	RollOutcome        string
	Story              actor.Story
	Characters         []actor.CharacterDescription
	Stats              []actor.CharacterStats
	Resources          any
	Inventory          state.InventoryState
	NPCs               actor.NPCState
	History            []services.Message
	CustomInstructions []string
}

// GameAgent produces the next turn of narration and its state delta.
type GameAgent struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewGameAgent creates a game agent.
func NewGameAgent(dispatcher *Dispatcher, logger *slog.Logger) *GameAgent {
	return &GameAgent{dispatcher: dispatcher, logger: logger}
}

func (g *GameAgent) buildRequest(req GameRequest) *services.LLMRequest {
	b := NewBuilder().
		WithRules(gameMasterRules).
		WithStory(req.Story)
	if req.Story.ContentRating != "" {
		b.WithCustom(textfilter.Guidance(req.Story.ContentRating))
	}
	for _, c := range req.Characters {
		b.WithCharacter(c)
	}
	for _, s := range req.Stats {
		b.WithStats(s)
	}
	b.WithState(resourcePhrasing(req.Resources), req.Resources)
	if len(req.Inventory) > 0 {
		b.WithState("The party's inventory is", req.Inventory)
	}
	if len(req.NPCs) > 0 {
		b.WithState("Known NPCs are", req.NPCs)
	}
	b.WithOutputFormat(gameOutputFormat)
	b.WithCustom(req.CustomInstructions...)
	b.WithHistory(req.History)

	user := req.ActionText
	if req.RollOutcome != "" {
		user += "\nThe dice were rolled for this action. The outcome is: " + req.RollOutcome + ". Narrate accordingly."
	}
	if req.SupplementaryText != "" {
		user += "\n" + req.SupplementaryText
	}
	b.WithUserMessage(user)
	b.WithAutoFix()
	return b.Build()
}

// GenerateStoryProgression resolves one turn in a single blocking call.
func (g *GameAgent) GenerateStoryProgression(ctx context.Context, req GameRequest) (*state.GameActionState, error) {
	var action state.GameActionState
	resp, err := g.dispatcher.Generate(ctx, g.buildRequest(req), &action)
	if err != nil {
		return nil, fmt.Errorf("story progression failed: %w", err)
	}
	action.FallbackUsed = resp.FallbackUsed
	return &action, nil
}

// GenerateStoryProgressionStream resolves one turn while streaming the
// story field to onStory as it is generated. onStory receives growing
// partial text and a final complete call.
func (g *GameAgent) GenerateStoryProgressionStream(ctx context.Context, req GameRequest, onStory func(text string, complete bool)) (*state.GameActionState, error) {
	llmReq := g.buildRequest(req)
	llmReq.Stream = true

	projector := jsonstream.NewProjector("story", onStory, g.logger)
	resp, err := g.dispatcher.LLM().GenerateContentStream(ctx, llmReq, projector.Write)
	if err != nil {
		return nil, fmt.Errorf("story progression stream failed: %w", err)
	}

	var action state.GameActionState
	if fields, perr := projector.End(); perr == nil && fields != nil {
		data, merr := json.Marshal(fields)
		if merr == nil && json.Unmarshal(data, &action) == nil {
			action.FallbackUsed = resp.FallbackUsed
			return &action, nil
		}
	}
	// The projector could not assemble the payload; fall back to the
	// blocking decode path on the full raw text.
	if err := g.dispatcher.decode(ctx, llmReq, resp, &action); err != nil {
		return nil, fmt.Errorf("story progression failed: %w", err)
	}
	action.FallbackUsed = resp.FallbackUsed
	return &action, nil
}

// resourcePhrasing classifies the resource context as party-shaped or
// single-character-shaped and returns the matching instruction label.
// Party shape means top-level values are per-member objects whose own
// values carry a max_value resource sub-shape. Empty or missing input is
// treated as a single character.
func resourcePhrasing(resources any) string {
	const single = "The character's CURRENT resources are"
	const party = "The party members' CURRENT resources are"

	if resources == nil {
		return single
	}
	data, err := json.Marshal(resources)
	if err != nil {
		return single
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || len(top) == 0 {
		return single
	}
	for _, v := range top {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(v, &inner); err != nil {
			continue
		}
		for _, iv := range inner {
			var resource map[string]json.RawMessage
			if err := json.Unmarshal(iv, &resource); err != nil {
				continue
			}
			if _, ok := resource["max_value"]; ok {
				return party
			}
		}
	}
	return single
}
