package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

// Undo removes the latest resolved turn and rebuilds the live state by
// replaying the remaining action history over the party's starting
// values. NPCs pruned by a past turn stay gone; death is deletion.
func (e *Engine) Undo(ctx context.Context, sessionID uuid.UUID) (*state.GameActionState, error) {
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

	popped, err := e.storage.PopActionState(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to pop action state: %w", err)
	}
	if popped == nil {
		return nil, ErrNothingToUndo
	}

	history, err := e.storage.ActionHistory(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load action history: %w", err)
	}

	if err := e.replay(session, history); err != nil {
		return nil, err
	}

	// Drop the undone turn from the transcript as well. A compacted
	// transcript keeps its summary; only the trailing exchange goes.
	if n := len(session.History); n >= 2 {
		session.History = session.History[:n-2]
	}

	if err := e.storage.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	return popped, nil
}

// replay rebuilds resources and inventory from scratch. NPC resources
// restart at full; NPCs enter play at full strength, so replaying their
// deltas reproduces their current values exactly.
func (e *Engine) replay(session *storage.Session, history []state.GameActionState) error {
	session.LiveState = make(state.PlayerCharactersGameState, len(session.Party.Members))
	for _, m := range session.Party.Members {
		if stats, ok := session.PartyStats.StatsFor(m.ID); ok {
			session.LiveState[m.ID] = stats.Live()
		}
	}
	session.Inventory = make(state.InventoryState)
	for id, npc := range session.NPCs {
		for key, value := range npc.Resources {
			value.CurrentValue = value.MaxValue
			npc.Resources[key] = value
		}
		session.NPCs[id] = npc
	}

	reconciler := state.NewReconciler(session.LiveState, session.Party.IDToNames(), session.NPCs, session.Inventory, e.logger)
	for i := range history {
		if _, err := reconciler.Apply(&history[i]); err != nil {
			return fmt.Errorf("failed to replay action history: %w", err)
		}
	}
	return nil
}
