package actor

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CharacterDescription is one party member's identity. It is created at
// character generation and replaced wholesale on a transformation event,
// never partially patched.
type CharacterDescription struct {
	Name        string `json:"name"`
	Race        string `json:"race"`
	Gender      string `json:"gender,omitempty"`
	Class       string `json:"class"`
	Alignment   string `json:"alignment"`
	Personality string `json:"personality"`
	Background  string `json:"background"`
	Appearance  string `json:"appearance"`
	Motivation  string `json:"motivation"`
}

// ResourceTemplate defines a single resource's bounds. At runtime a
// current value is layered on top per character; see state.ResourceValue.
type ResourceTemplate struct {
	MaxValue         int  `json:"max_value"`
	StartValue       int  `json:"start_value"`
	GameEndsWhenZero bool `json:"game_ends_when_zero"`
}

// Ability is a spell or ability a character can use, with an optional
// per-use resource cost.
type Ability struct {
	Name         string        `json:"name"`
	Effect       string        `json:"effect"`
	ResourceCost *ResourceCost `json:"resource_cost,omitempty"`
	ImagePrompt  string        `json:"image_prompt,omitempty"`
}

// ResourceCost names the resource an ability spends and how much.
type ResourceCost struct {
	ResourceKey string `json:"resource_key"`
	Cost        int    `json:"cost"`
}

// ResourceValue is a resource's live runtime value layered on top of its
// template. CurrentValue is always kept within [0, MaxValue].
type ResourceValue struct {
	MaxValue         int  `json:"max_value"`
	CurrentValue     int  `json:"current_value"`
	GameEndsWhenZero bool `json:"game_ends_when_zero,omitempty"`
}

// Resources is a character's live resource map, keyed by resource name.
type Resources map[string]ResourceValue

// Live builds the runtime resource map from templates, starting every
// resource at its start value.
func (cs CharacterStats) Live() Resources {
	live := make(Resources, len(cs.Resources))
	for key, tmpl := range cs.Resources {
		live[key] = ResourceValue{
			MaxValue:         tmpl.MaxValue,
			CurrentValue:     tmpl.StartValue,
			GameEndsWhenZero: tmpl.GameEndsWhenZero,
		}
	}
	return live
}

// LookupLive finds a live resource by key, case-insensitively, returning
// the key as stored.
func (r Resources) LookupLive(key string) (string, ResourceValue, bool) {
	for k, v := range r {
		if strings.EqualFold(k, key) {
			return k, v, true
		}
	}
	return "", ResourceValue{}, false
}

// CharacterStats is a character's mechanical sheet: resource templates,
// attribute and skill modifiers, and learned abilities.
type CharacterStats struct {
	Level              int                         `json:"level"`
	Resources          map[string]ResourceTemplate `json:"resources"`
	Attributes         map[string]int              `json:"attributes"`
	Skills             map[string]int              `json:"skills"`
	SpellsAndAbilities []Ability                   `json:"spells_and_abilities"`
}

// WithoutAbilities returns a copy with the ability list stripped, used to
// shrink prompts where abilities are irrelevant.
func (cs CharacterStats) WithoutAbilities() CharacterStats {
	cs.SpellsAndAbilities = nil
	return cs
}

var titleCaser = cases.Title(language.English)

// LookupValue finds an attribute or skill by name, case-insensitively.
// The underlying maps stay case-preserving; only the lookup normalizes.
func (cs CharacterStats) LookupValue(name string) (int, bool) {
	for k, v := range cs.Attributes {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	for k, v := range cs.Skills {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return 0, false
}

// LookupResource finds a resource template by key, case-insensitively,
// returning the key as stored.
func (cs CharacterStats) LookupResource(key string) (string, ResourceTemplate, bool) {
	for k, tmpl := range cs.Resources {
		if strings.EqualFold(k, key) {
			return k, tmpl, true
		}
	}
	return "", ResourceTemplate{}, false
}

// DisplayName renders a resource or stat key for player-facing text,
// e.g. "hit_points" becomes "Hit Points".
func DisplayName(key string) string {
	return titleCaser.String(strings.ReplaceAll(strings.ToLower(key), "_", " "))
}
