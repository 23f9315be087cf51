// Package state holds the per-turn game action model and the
// reconciliation logic that applies LLM-produced deltas onto the party's
// persistent resources, inventory, and NPC roster.
package state

import (
	"encoding/json"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
)

// PresentNPCs lists the NPCs on scene for a turn, by disposition.
type PresentNPCs struct {
	Hostile  []actor.NPCReference `json:"hostile,omitempty"`
	Friendly []actor.NPCReference `json:"friendly,omitempty"`
	Neutral  []actor.NPCReference `json:"neutral,omitempty"`
}

// All returns every present NPC reference regardless of disposition.
func (p PresentNPCs) All() []actor.NPCReference {
	all := make([]actor.NPCReference, 0, len(p.Hostile)+len(p.Friendly)+len(p.Neutral))
	all = append(all, p.Hostile...)
	all = append(all, p.Friendly...)
	all = append(all, p.Neutral...)
	return all
}

// Item is an inventory entry.
type Item struct {
	Description string `json:"description"`
	Effect      string `json:"effect"`
}

// InventoryState maps item ids to items. It is mutated only through the
// ordered inventory operations carried on a GameActionState.
type InventoryState map[string]Item

const (
	InventoryOpAdd    = "add_item"
	InventoryOpRemove = "remove_item"
)

// InventoryOp is one ordered add or remove operation.
type InventoryOp struct {
	Type   string `json:"type"`
	ItemID string `json:"item_id"`
	Item   *Item  `json:"item,omitempty"`
}

// StatsUpdate is one additive change to a character's or NPC's resource,
// or a structured condition. Value is either a bare number or the
// combat-oriented {"result": n} envelope.
type StatsUpdate struct {
	SourceID    string          `json:"sourceId,omitempty"`
	TargetID    string          `json:"targetId,omitempty"`
	TargetName  string          `json:"targetName,omitempty"`
	Type        string          `json:"type"`
	Value       json.RawMessage `json:"value,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
}

// Amount decodes the update's numeric delta from either envelope shape.
func (su StatsUpdate) Amount() (int, bool) {
	if len(su.Value) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(su.Value, &n); err == nil {
		return n, true
	}
	var wrapped struct {
		Result int `json:"result"`
	}
	if err := json.Unmarshal(su.Value, &wrapped); err == nil {
		return wrapped.Result, true
	}
	// Models sometimes quote numbers.
	var s string
	if err := json.Unmarshal(su.Value, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

// Target returns the id or name this update applies to; combat updates
// address targets by name rather than id.
func (su StatsUpdate) Target() string {
	if su.TargetID != "" {
		return su.TargetID
	}
	return su.TargetName
}

// GameActionState is one resolved turn: narrative text, combat flag, NPC
// presence, inventory and stats deltas. Entries are appended to the
// session's chronological history and never mutated in place; the history
// is the save game, and undo works by truncation.
type GameActionState struct {
	ID                     int           `json:"id,omitempty"`
	Story                  string        `json:"story"`
	IsCharacterInCombat    bool          `json:"is_character_in_combat"`
	CurrentlyPresentNPCs   PresentNPCs   `json:"currently_present_npcs"`
	InventoryUpdate        []InventoryOp `json:"inventory_update,omitempty"`
	StatsUpdate            []StatsUpdate `json:"stats_update,omitempty"`
	ImagePrompt            string        `json:"image_prompt,omitempty"`
	StoryMemoryExplanation string        `json:"story_memory_explanation,omitempty"`

	// FallbackUsed marks a turn narrated by the fallback provider so the
	// client can surface the switch. Not persisted.
	FallbackUsed bool `json:"-"`
}

// PlayerCharactersGameState is the live per-character resource projection,
// keyed by stable party member id. It is rebuilt or delta-merged on every
// applied game action.
type PlayerCharactersGameState map[string]actor.Resources

// EventEvaluation is the Event Agent's per-turn scan for character-
// significant developments. It is transient and overwritten each cycle;
// it gates confirmation dialogs, applying it is a separate explicit step.
// MemberID names the scanned member and is set by the worker, not the
// model.
type EventEvaluation struct {
	MemberID                   string                      `json:"member_id,omitempty"`
	CharacterChanged           *actor.CharacterDescription `json:"character_changed,omitempty"`
	AbilitiesLearned           []actor.Ability             `json:"abilities_learned,omitempty"`
	RestrainedStateExplanation string                      `json:"restrained_state_explanation,omitempty"`
}
