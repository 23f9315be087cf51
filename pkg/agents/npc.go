package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
)

const npcRules = "You create combat sheets for NPCs when they first become relevant. Scale each NPC to its narrative " +
	"rank: a mook should threaten one party member, a boss the whole party. Resources use the same shape as player " +
	"resources, with current values at maximum."

const npcOutputFormat = `{"npc_technical_id": {"is_party_member": false, "class": "...", "rank": "mook" or "elite" or "boss",
"level": number,
"resources": {"HP": {"max_value": number, "current_value": number, "game_ends_when_zero": true}},
"spells_and_abilities": [{"name": "...", "effect": "..."}],
"known_names": ["display name"]}}`

// NPCRequest names the NPCs that need sheets and the party they face.
type NPCRequest struct {
	Story      actor.Story
	NPCs       []actor.NPCReference
	PartyLevel int
	PartySize  int
}

// NPCAgent generates NPC stat sheets on first encounter.
type NPCAgent struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewNPCAgent creates an NPC agent.
func NewNPCAgent(dispatcher *Dispatcher, logger *slog.Logger) *NPCAgent {
	return &NPCAgent{dispatcher: dispatcher, logger: logger}
}

// GenerateNPCStats produces sheets for the named NPCs, keyed by their
// technical id.
func (n *NPCAgent) GenerateNPCStats(ctx context.Context, req NPCRequest) (actor.NPCState, error) {
	if len(req.NPCs) == 0 {
		return actor.NPCState{}, nil
	}

	b := NewBuilder().
		WithRules(npcRules).
		WithStory(req.Story).
		WithState("The party facing them", map[string]int{"level": req.PartyLevel, "size": req.PartySize}).
		WithOutputFormat(npcOutputFormat)

	msg := "Create combat sheets for these NPCs, keyed exactly by their technical id:\n"
	for _, ref := range req.NPCs {
		msg += fmt.Sprintf("- %s (%q)\n", ref.UniqueTechnicalNameID, ref.DisplayName)
	}
	b.WithUserMessage(msg)
	b.WithAutoFix()

	var npcs actor.NPCState
	if _, err := n.dispatcher.Generate(ctx, b.Build(), &npcs); err != nil {
		return nil, fmt.Errorf("NPC stats generation failed: %w", err)
	}

	// Make sure every sheet resolves by its display name too.
	for _, ref := range req.NPCs {
		if _, ok := npcs[ref.UniqueTechnicalNameID]; ok {
			npcs.AddKnownName(ref.UniqueTechnicalNameID, ref.DisplayName)
		}
	}
	return npcs, nil
}
