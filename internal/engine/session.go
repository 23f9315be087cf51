package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/agents"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/dice"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

const maxPartySize = 4

// CreateSessionRequest describes the tale to set up. A fully authored
// Story may be supplied; without one, StoryHints drive premise
// generation.
type CreateSessionRequest struct {
	Story            actor.Story
	StoryHints       string
	PartySize        int
	CharacterHints   []string
	GameDifficulty   dice.GameDifficulty
	GenerateCampaign bool
	CampaignHints    string
}

// CreateSession generates the premise when none was authored, then the
// party and its stat sheets, and persists the new session.
func (e *Engine) CreateSession(ctx context.Context, req CreateSessionRequest) (*storage.Session, error) {
	if req.Story.AdventureAndMainEvent == "" && req.StoryHints != "" {
		story, err := e.agents.Story.GenerateStory(ctx, agents.StoryRequest{
			Hints:      req.StoryHints,
			GameSystem: req.Story.GameSystem,
		})
		if err != nil {
			return nil, err
		}
		// Player-authored fields win over the generated premise.
		if req.Story.ContentRating != "" {
			story.ContentRating = req.Story.ContentRating
		}
		if req.Story.ExpectedPartySize > 0 {
			story.ExpectedPartySize = req.Story.ExpectedPartySize
		}
		req.Story = *story
	}

	size := req.PartySize
	if size <= 0 {
		size = req.Story.ExpectedPartySize
	}
	if size <= 0 {
		size = 1
	}
	if size > maxPartySize {
		size = maxPartySize
	}

	difficulty := req.GameDifficulty
	if difficulty == "" {
		difficulty = dice.GameDifficultyDefault
	}

	session := &storage.Session{
		ID:             uuid.New(),
		Story:          req.Story,
		Party:          actor.NewParty(),
		PartyStats:     &actor.PartyStats{},
		LiveState:      make(state.PlayerCharactersGameState, size),
		Inventory:      make(state.InventoryState),
		NPCs:           make(actor.NPCState),
		GameDifficulty: difficulty,
		CreatedAt:      time.Now().UTC(),
	}

	if req.GenerateCampaign {
		campaign, err := e.agents.Campaign.GenerateCampaign(ctx, agents.CampaignRequest{
			Story: req.Story,
			Hints: req.CampaignHints,
		})
		if err != nil {
			return nil, err
		}
		session.Campaign = campaign
	}

	characters, err := e.agents.Character.GenerateCharacters(ctx, agents.CharacterRequest{
		Story: req.Story,
		Count: size,
		Hints: strings.Join(req.CharacterHints, "\n"),
	})
	if err != nil {
		return nil, err
	}
	if len(characters) > size {
		characters = characters[:size]
	}

	for i, character := range characters {
		hints := ""
		if i < len(req.CharacterHints) {
			hints = req.CharacterHints[i]
		}
		stats, err := e.agents.Stats.GenerateStats(ctx, agents.StatsRequest{
			Story:     req.Story,
			Character: character,
			Hints:     hints,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to generate stats for %s: %w", character.Name, err)
		}
		id := session.Party.AddMember(character)
		session.PartyStats.SetStats(id, *stats)
		session.LiveState[id] = stats.Live()
	}

	if err := e.storage.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return session, nil
}

// LevelUpMember advances one member a single level. Current resource
// values carry over, raised by whatever the maximum gained.
func (e *Engine) LevelUpMember(ctx context.Context, sessionID uuid.UUID, memberID string) (*actor.CharacterStats, error) {
	acquired, err := e.storage.AcquireBusy(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire turn flag: %w", err)
	}
	if !acquired {
		return nil, ErrSessionBusy
	}
	defer func() {
		if err := e.storage.ReleaseBusy(context.WithoutCancel(ctx), sessionID); err != nil {
			e.logger.Error("Failed to release turn flag", "session_id", sessionID.String(), "error", err)
		}
	}()

	session, err := e.storage.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	member, ok := session.Party.Member(memberID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMember, memberID)
	}
	stats, ok := session.PartyStats.StatsFor(memberID)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no stats", ErrUnknownMember, memberID)
	}
	cache := session.Party.Cache(memberID)

	leveled, err := e.agents.Stats.LevelUp(ctx, agents.LevelUpRequest{
		Story:            session.Story,
		Character:        member.Character,
		Stats:            stats,
		SkillProgression: cache.SkillProgression,
		LatestStory:      latestAssistantMessage(session.History),
	})
	if err != nil {
		return nil, err
	}

	session.PartyStats.SetStats(memberID, *leveled)
	session.LiveState[memberID] = carryOverResources(session.LiveState[memberID], leveled.Live())
	cache.SkillProgression = nil

	if err := e.storage.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return leveled, nil
}

// carryOverResources merges a new resource layout with the old current
// values: existing resources keep their current value plus any maximum
// gained, new resources start fresh.
func carryOverResources(old, fresh actor.Resources) actor.Resources {
	for key, value := range fresh {
		if _, oldValue, ok := old.LookupLive(key); ok {
			current := oldValue.CurrentValue + (value.MaxValue - oldValue.MaxValue)
			if current < 0 {
				current = 0
			}
			if current > value.MaxValue {
				current = value.MaxValue
			}
			value.CurrentValue = current
			fresh[key] = value
		}
	}
	return fresh
}
