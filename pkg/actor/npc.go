package actor

import "strings"

// NPC is a non-player character's sheet, generated on first encounter.
// Death removes the NPC from the roster entirely; there is no dead flag.
type NPC struct {
	IsPartyMember      bool      `json:"is_party_member"`
	Class              string    `json:"class"`
	Rank               string    `json:"rank"`
	Level              int       `json:"level"`
	SpellsAndAbilities []Ability `json:"spells_and_abilities"`
	Resources          Resources `json:"resources,omitempty"`
	KnownNames         []string  `json:"known_names,omitempty"`
}

// NPCState maps unique technical NPC ids to their sheets.
type NPCState map[string]NPC

// NPCReference is how the narration agent lists NPCs present in a scene.
type NPCReference struct {
	UniqueTechnicalNameID string `json:"uniqueTechnicalNameId"`
	DisplayName           string `json:"displayName"`
}

// Find resolves an NPC by technical id or any known display name,
// case-insensitively, returning the id as stored.
func (ns NPCState) Find(nameOrID string) (string, NPC, bool) {
	for id, npc := range ns {
		if strings.EqualFold(id, nameOrID) {
			return id, npc, true
		}
	}
	for id, npc := range ns {
		for _, known := range npc.KnownNames {
			if strings.EqualFold(known, nameOrID) {
				return id, npc, true
			}
		}
	}
	return "", NPC{}, false
}

// AddKnownName records a display name for an NPC if not already present.
func (ns NPCState) AddKnownName(id, name string) {
	npc, ok := ns[id]
	if !ok {
		return
	}
	for _, known := range npc.KnownNames {
		if strings.EqualFold(known, name) {
			return
		}
	}
	npc.KnownNames = append(npc.KnownNames, name)
	ns[id] = npc
}
