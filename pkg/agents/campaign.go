package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
)

const campaignRules = "You design a campaign skeleton: a handful of chapters, each with an objective and plot points " +
	"the tale can steer toward. Chapters build on each other and end in a finale tied to the main event. Plot points " +
	"are waypoints, not a script; the tale may reach them in any way."

const campaignOutputFormat = `{"title": "...", "description": "...",
"chapters": [{"chapter": number, "title": "...", "description": "...", "objective": "...",
"plot_points": [{"id": number, "description": "..."}]}]}`

// PlotPoint is one waypoint inside a chapter.
type PlotPoint struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

// CampaignChapter is one chapter of the campaign skeleton.
type CampaignChapter struct {
	Chapter     int         `json:"chapter"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Objective   string      `json:"objective"`
	PlotPoints  []PlotPoint `json:"plot_points"`
}

// Campaign is the generated long-form structure for a tale.
type Campaign struct {
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Chapters    []CampaignChapter `json:"chapters"`
}

// CampaignRequest carries the premise and player hints.
type CampaignRequest struct {
	Story actor.Story
	Hints string
}

// CampaignAgent generates chapter and plot-point structure.
type CampaignAgent struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewCampaignAgent creates a campaign agent.
func NewCampaignAgent(dispatcher *Dispatcher, logger *slog.Logger) *CampaignAgent {
	return &CampaignAgent{dispatcher: dispatcher, logger: logger}
}

// GenerateCampaign produces the campaign skeleton for the story.
func (c *CampaignAgent) GenerateCampaign(ctx context.Context, req CampaignRequest) (*Campaign, error) {
	b := NewBuilder().
		WithRules(campaignRules).
		WithStory(req.Story).
		WithOutputFormat(campaignOutputFormat)
	msg := "Create the campaign for this story."
	if req.Hints != "" {
		msg += "\nThe player's wishes: " + req.Hints
	}
	b.WithUserMessage(msg)
	b.WithAutoFix()

	var campaign Campaign
	if _, err := c.dispatcher.Generate(ctx, b.Build(), &campaign); err != nil {
		return nil, fmt.Errorf("campaign generation failed: %w", err)
	}
	if len(campaign.Chapters) == 0 {
		return nil, fmt.Errorf("campaign generation returned no chapters")
	}
	return &campaign, nil
}
