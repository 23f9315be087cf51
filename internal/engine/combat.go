package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/agents"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/dice"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/textfilter"
)

// CombatTurnRequest is a full locked combat round: one action per party
// member, resolved as a single batch.
type CombatTurnRequest struct {
	Round *state.CombatRound
}

// CombatTurnResult is the batch resolution plus each member's roll.
type CombatTurnResult struct {
	ActionState *state.GameActionState `json:"action_state"`
	Rolls       map[string]*RollReport `json:"rolls,omitempty"`
	RemovedNPCs []string               `json:"removed_npcs,omitempty"`
}

// ResolveCombatRound resolves one locked round. Every member's action is
// affordability-checked and rolled up front; the narration then covers
// the whole round in a single agent call.
func (e *Engine) ResolveCombatRound(ctx context.Context, sessionID uuid.UUID, req CombatTurnRequest) (*CombatTurnResult, error) {
	roundActions, err := req.Round.Actions()
	if err != nil {
		return nil, err
	}

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

	members := session.Party.Members
	if len(roundActions) != len(members) {
		return nil, fmt.Errorf("round covers %d actions for a party of %d", len(roundActions), len(members))
	}

	// Gate the whole round before any dice land.
	for i, m := range members {
		if err := state.CheckAffordability(session.LiveState[m.ID], roundActions[i].ResourceCost); err != nil {
			return nil, fmt.Errorf("%s: %w", m.Character.Name, err)
		}
	}

	rolls := make(map[string]*RollReport, len(members))
	round := make([]agents.CombatRoundAction, 0, len(members))
	var costs []state.StatsUpdate
	for i, m := range members {
		action := roundActions[i]
		entry := agents.CombatRoundAction{MemberID: m.ID, Action: action}
		if dice.MustRoll(action.Text, action.Type, action.ActionDifficulty, true) {
			stats, _ := session.PartyStats.StatsFor(m.ID)
			if roll := e.resolveRoll(session, m.ID, stats, action); roll != nil {
				rolls[m.ID] = roll
				entry.RollOutcome = roll.Outcome()
			}
		}
		round = append(round, entry)
		costs = append(costs, costUpdates(m.ID, action.ResourceCost)...)
	}

	combatReq := agents.CombatRequest{
		Story:     session.Story,
		Resources: session.LiveState,
		NPCs:      session.NPCs,
		Round:     round,
		History:   session.History,
	}
	for _, m := range members {
		combatReq.Characters = append(combatReq.Characters, m.Character)
		if s, ok := session.PartyStats.StatsFor(m.ID); ok {
			combatReq.Stats = append(combatReq.Stats, s)
		}
	}

	actionState, err := e.agents.Combat.GenerateActionsFromContext(ctx, combatReq)
	if err != nil {
		return nil, err
	}
	if textfilter.ShouldFilter(session.Story.ContentRating) {
		actionState.Story = e.filter.Clean(actionState.Story)
	}
	actionState.StatsUpdate = append(actionState.StatsUpdate, costs...)

	if err := e.introduceNPCs(ctx, session, actionState); err != nil {
		e.logger.Warn("NPC generation failed", "session_id", sessionID.String(), "error", err)
	}

	reconciler := state.NewReconciler(session.LiveState, session.Party.IDToNames(), session.NPCs, session.Inventory, e.logger)
	removed, err := reconciler.Apply(actionState)
	if err != nil {
		return nil, fmt.Errorf("failed to apply round delta: %w", err)
	}

	for i, m := range members {
		e.trackSkillProgression(session, m.ID, roundActions[i], rolls[m.ID])
	}

	if err := e.persistTurn(ctx, session, combatUserMessage(round), actionState); err != nil {
		return nil, err
	}
	for _, m := range members {
		e.enqueueEvaluation(ctx, sessionID, m.ID, actionState.Story)
	}

	return &CombatTurnResult{ActionState: actionState, Rolls: rolls, RemovedNPCs: removed}, nil
}

func combatUserMessage(round []agents.CombatRoundAction) string {
	msg := "Combat round:"
	for _, ra := range round {
		msg += fmt.Sprintf("\n- %s: %s", ra.Action.CharacterName, ra.Action.Text)
	}
	return msg
}
