package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/agents"
)

// CandidateActions generates suggested actions for every party member
// concurrently. A member whose generation fails contributes an empty
// list; one bad member never sinks the others. Results are also stored
// in the per-member caches and persisted with the session.
func (e *Engine) CandidateActions(ctx context.Context, sessionID uuid.UUID) (map[string][]actor.ProposedAction, error) {
	session, err := e.storage.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	inCombat, err := e.lastTurnInCombat(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	latest := latestAssistantMessage(session.History)

	results := make(map[string][]actor.ProposedAction, len(session.Party.Members))
	var mu sync.Mutex
	var g errgroup.Group

	for _, m := range session.Party.Members {
		member := m
		g.Go(func() error {
			actions, err := e.memberActions(ctx, session, member, latest, inCombat)
			if err != nil {
				e.logger.Warn("Action generation failed for member",
					"session_id", sessionID.String(),
					"member_id", member.ID,
					"error", err,
				)
				actions = nil
			}
			mu.Lock()
			results[member.ID] = actions
			mu.Unlock()
			return nil
		})
	}
	// Errors are absorbed per member; Wait only joins the goroutines.
	_ = g.Wait()

	for id, actions := range results {
		session.Party.Cache(id).Actions = actions
	}
	if err := e.storage.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return results, nil
}

func (e *Engine) memberActions(ctx context.Context, session *storage.Session, member actor.PartyMember, latestStory string, inCombat bool) ([]actor.ProposedAction, error) {
	stats, _ := session.PartyStats.StatsFor(member.ID)
	cache := session.Party.Cache(member.ID)

	actions, err := e.agents.Action.GenerateActions(ctx, agents.ActionRequest{
		Story:                 session.Story,
		Character:             member.Character,
		Stats:                 stats,
		Resources:             session.LiveState[member.ID],
		Inventory:             session.Inventory,
		LatestStory:           latestStory,
		InCombat:              inCombat,
		RestrainedExplanation: cache.RestrainedExplanation,
		History:               session.History,
	})
	if err != nil {
		return nil, err
	}
	for i := range actions {
		if actions[i].CharacterName == "" {
			actions[i].CharacterName = member.Character.Name
		}
	}
	return actions, nil
}

// ClassifyAction turns one member's free-text intent into a fully
// specified action without resolving it.
func (e *Engine) ClassifyAction(ctx context.Context, sessionID uuid.UUID, memberID, actionText string) (*actor.ProposedAction, error) {
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

	inCombat, err := e.lastTurnInCombat(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	stats, _ := session.PartyStats.StatsFor(member.ID)
	cache := session.Party.Cache(member.ID)

	action, err := e.agents.Action.GenerateSingleAction(ctx, agents.ActionRequest{
		Story:                 session.Story,
		Character:             member.Character,
		Stats:                 stats,
		Resources:             session.LiveState[member.ID],
		Inventory:             session.Inventory,
		LatestStory:           latestAssistantMessage(session.History),
		InCombat:              inCombat,
		RestrainedExplanation: cache.RestrainedExplanation,
		History:               session.History,
	}, actionText)
	if err != nil {
		return nil, err
	}
	if action.CharacterName == "" {
		action.CharacterName = member.Character.Name
	}
	return action, nil
}
