package actor

import (
	"fmt"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/dice"
)

// PartyMember pairs a stable id with a character description. Ids follow
// the player_character_<n> format and are never reused while the member
// exists.
type PartyMember struct {
	ID        string               `json:"id"`
	Character CharacterDescription `json:"character"`
}

// PartyMemberStats pairs a member id with that member's stat sheet.
type PartyMemberStats struct {
	ID    string         `json:"id"`
	Stats CharacterStats `json:"stats"`
}

// MemberCache holds transient per-member turn state: generated candidate
// actions, restrained status, and skill progression toward the next rank.
type MemberCache struct {
	Actions               []ProposedAction `json:"actions,omitempty"`
	RestrainedExplanation string           `json:"restrained_explanation,omitempty"`
	SkillProgression      map[string]int   `json:"skill_progression,omitempty"`
	RollDifferenceHistory []int            `json:"roll_difference_history,omitempty"`
}

// ProposedAction is a candidate or chosen player move, fully specified
// for dice resolution.
type ProposedAction struct {
	CharacterName           string                `json:"characterName,omitempty"`
	Text                    string                `json:"text"`
	Type                    dice.ActionType       `json:"type"`
	ActionDifficulty        dice.ActionDifficulty `json:"action_difficulty"`
	RelatedAttribute        string                `json:"related_attribute,omitempty"`
	RelatedSkill            string                `json:"related_skill,omitempty"`
	ResourceCost            map[string]int        `json:"resource_cost,omitempty"`
	DiceRollModifier        int                   `json:"dice_roll_modifier,omitempty"`
	PlausibilityExplanation string                `json:"plausibility,omitempty"`
	SideEffectsExplanation  string                `json:"side_effects,omitempty"`
}

// Party is the player's roster of characters with one active at a time.
// The per-member caches persist with the party so restrained state, roll
// history, and skill progression survive a storage round-trip.
type Party struct {
	Members           []PartyMember           `json:"members"`
	ActiveCharacterID string                  `json:"activeCharacterId"`
	Caches            map[string]*MemberCache `json:"caches,omitempty"`
}

// NewParty creates an empty party.
func NewParty() *Party {
	return &Party{
		Members: make([]PartyMember, 0),
		Caches:  make(map[string]*MemberCache),
	}
}

// AddMember appends a character with a fresh stable id and returns the id.
// The first member added becomes the active character. The id counter is
// derived from the highest existing id, so it needs no state of its own.
func (p *Party) AddMember(character CharacterDescription) string {
	next := 1
	for _, m := range p.Members {
		var n int
		if _, err := fmt.Sscanf(m.ID, "player_character_%d", &n); err == nil && n >= next {
			next = n + 1
		}
	}
	id := fmt.Sprintf("player_character_%d", next)
	p.Members = append(p.Members, PartyMember{ID: id, Character: character})
	if p.ActiveCharacterID == "" {
		p.ActiveCharacterID = id
	}
	return id
}

// RemoveMember deletes a member and its cache. The active character falls
// back to the first remaining member.
func (p *Party) RemoveMember(id string) bool {
	for i, m := range p.Members {
		if m.ID == id {
			p.Members = append(p.Members[:i], p.Members[i+1:]...)
			delete(p.Caches, id)
			if p.ActiveCharacterID == id {
				p.ActiveCharacterID = ""
				if len(p.Members) > 0 {
					p.ActiveCharacterID = p.Members[0].ID
				}
			}
			return true
		}
	}
	return false
}

// Member returns the member with the given id.
func (p *Party) Member(id string) (PartyMember, bool) {
	for _, m := range p.Members {
		if m.ID == id {
			return m, true
		}
	}
	return PartyMember{}, false
}

// SetActive switches the active character. Unknown ids are rejected.
func (p *Party) SetActive(id string) error {
	if _, ok := p.Member(id); !ok {
		return fmt.Errorf("no party member with id %s", id)
	}
	p.ActiveCharacterID = id
	return nil
}

// Active returns the active member.
func (p *Party) Active() (PartyMember, bool) {
	return p.Member(p.ActiveCharacterID)
}

// ReplaceCharacter swaps a member's description wholesale, as happens on
// a transformation event.
func (p *Party) ReplaceCharacter(id string, character CharacterDescription) bool {
	for i, m := range p.Members {
		if m.ID == id {
			p.Members[i].Character = character
			return true
		}
	}
	return false
}

// Cache returns the mutable per-member cache, creating it on first use.
func (p *Party) Cache(id string) *MemberCache {
	if p.Caches == nil {
		p.Caches = make(map[string]*MemberCache)
	}
	c, ok := p.Caches[id]
	if !ok {
		c = &MemberCache{}
		p.Caches[id] = c
	}
	return c
}

// IDToNames maps every member id to its character name, used by the
// reconciler to resolve stat-update targets.
func (p *Party) IDToNames() map[string]string {
	names := make(map[string]string, len(p.Members))
	for _, m := range p.Members {
		names[m.ID] = m.Character.Name
	}
	return names
}

// PartyStats is the stat sheets for all members, parallel to Party.
type PartyStats struct {
	Members []PartyMemberStats `json:"members"`
}

// StatsFor returns a member's stat sheet.
func (ps *PartyStats) StatsFor(id string) (CharacterStats, bool) {
	for _, m := range ps.Members {
		if m.ID == id {
			return m.Stats, true
		}
	}
	return CharacterStats{}, false
}

// SetStats creates or replaces a member's stat sheet.
func (ps *PartyStats) SetStats(id string, stats CharacterStats) {
	for i, m := range ps.Members {
		if m.ID == id {
			ps.Members[i].Stats = stats
			return
		}
	}
	ps.Members = append(ps.Members, PartyMemberStats{ID: id, Stats: stats})
}
