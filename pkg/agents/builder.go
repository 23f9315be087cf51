// Package agents holds the prompt-building layer: one agent per
// generation task, each assembling system instructions from game context
// and decoding the model's JSON answer into typed results.
package agents

import (
	"encoding/json"
	"fmt"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
)

// Builder constructs an LLMRequest with system parts in a fixed order:
// rules, story, character, stats, current state, output format, then
// caller-supplied custom instructions last so they can override.
type Builder struct {
	rules       []string
	story       []string
	characters  []string
	stats       []string
	state       []string
	format      []string
	custom      []string
	history     []services.Message
	userMessage string
	temperature *float64
	tryAutoFix  bool
}

// NewBuilder creates an empty prompt builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithRules adds game-rule instructions.
func (b *Builder) WithRules(rules ...string) *Builder {
	b.rules = append(b.rules, rules...)
	return b
}

// WithStory adds the narrative premise as a labeled JSON block.
func (b *Builder) WithStory(story any) *Builder {
	b.story = append(b.story, jsonBlock("The story so far is defined by", story))
	return b
}

// WithCharacter adds a character description block.
func (b *Builder) WithCharacter(character any) *Builder {
	b.characters = append(b.characters, jsonBlock("The character at play is", character))
	return b
}

// WithStats adds a stat-sheet block.
func (b *Builder) WithStats(stats any) *Builder {
	b.stats = append(b.stats, jsonBlock("The character's stats and abilities are", stats))
	return b
}

// WithState adds a labeled block of current game state.
func (b *Builder) WithState(label string, v any) *Builder {
	b.state = append(b.state, jsonBlock(label, v))
	return b
}

// WithOutputFormat pins the expected response JSON shape.
func (b *Builder) WithOutputFormat(format string) *Builder {
	b.format = append(b.format, "Always respond with a single valid JSON object, no other text before or after it. The response must follow this format:\n"+format)
	return b
}

// WithCustom appends caller instructions after every other part.
func (b *Builder) WithCustom(instructions ...string) *Builder {
	for _, inst := range instructions {
		if inst != "" {
			b.custom = append(b.custom, inst)
		}
	}
	return b
}

// WithHistory sets the conversation history window.
func (b *Builder) WithHistory(history []services.Message) *Builder {
	b.history = history
	return b
}

// WithUserMessage sets the user turn content.
func (b *Builder) WithUserMessage(message string) *Builder {
	b.userMessage = message
	return b
}

// WithTemperature overrides the session default for this request.
func (b *Builder) WithTemperature(t *float64) *Builder {
	b.temperature = t
	return b
}

// WithAutoFix enables the malformed-JSON retry for this request.
func (b *Builder) WithAutoFix() *Builder {
	b.tryAutoFix = true
	return b
}

// Build assembles the final request.
func (b *Builder) Build() *services.LLMRequest {
	parts := make([]string, 0, len(b.rules)+len(b.story)+len(b.characters)+len(b.stats)+len(b.state)+len(b.format)+len(b.custom))
	parts = append(parts, b.rules...)
	parts = append(parts, b.story...)
	parts = append(parts, b.characters...)
	parts = append(parts, b.stats...)
	parts = append(parts, b.state...)
	parts = append(parts, b.format...)
	parts = append(parts, b.custom...)

	return &services.LLMRequest{
		UserMessage:        b.userMessage,
		History:            b.history,
		SystemInstructions: parts,
		Temperature:        b.temperature,
		TryAutoFix:         b.tryAutoFix,
		ReportErrors:       true,
	}
}

// jsonBlock renders a labeled, pretty-printed JSON context block. Marshal
// failures fall back to fmt so a prompt is always produced.
func jsonBlock(label string, v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s:\n%v", label, v)
	}
	return fmt.Sprintf("%s:\n%s", label, data)
}
