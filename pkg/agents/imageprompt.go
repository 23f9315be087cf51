package agents

import (
	"context"
	"fmt"
	"log/slog"
)

const imagePromptRules = "You write prompts for a text-to-image model. Describe the scene in concrete visual terms: " +
	"subjects, setting, lighting, mood, style. No narrative, no names the image model cannot know, under 60 words."

const imagePromptOutputFormat = `{"image_prompt": "the prompt"}`

// ImagePromptAgent turns narration into a scene-image prompt.
type ImagePromptAgent struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewImagePromptAgent creates an image prompt agent.
func NewImagePromptAgent(dispatcher *Dispatcher, logger *slog.Logger) *ImagePromptAgent {
	return &ImagePromptAgent{dispatcher: dispatcher, logger: logger}
}

// Generate synthesizes an image prompt for the scene. generalPrompt is
// the tale's persistent style fragment and is prepended to the result.
func (i *ImagePromptAgent) Generate(ctx context.Context, storyText, generalPrompt string) (string, error) {
	b := NewBuilder().
		WithRules(imagePromptRules).
		WithOutputFormat(imagePromptOutputFormat).
		WithUserMessage("The scene to depict:\n" + storyText).
		WithAutoFix()

	var result struct {
		ImagePrompt string `json:"image_prompt"`
	}
	if _, err := i.dispatcher.Generate(ctx, b.Build(), &result); err != nil {
		return "", fmt.Errorf("image prompt generation failed: %w", err)
	}
	if result.ImagePrompt == "" {
		return "", fmt.Errorf("image prompt generation returned empty text")
	}
	if generalPrompt != "" {
		return generalPrompt + " " + result.ImagePrompt, nil
	}
	return result.ImagePrompt, nil
}
