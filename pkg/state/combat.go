package state

import (
	"fmt"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
)

// CombatRound tracks per-member action selection while in combat. An
// action is selected first, then locked once that member's dice roll (if
// any) completes; the round is only submitted for resolution as a batch
// when every member has locked.
type CombatRound struct {
	memberIDs []string
	selected  map[string]actor.ProposedAction
	locked    map[string]bool
}

// NewCombatRound starts a round for the given party member ids.
func NewCombatRound(memberIDs []string) *CombatRound {
	ids := make([]string, len(memberIDs))
	copy(ids, memberIDs)
	return &CombatRound{
		memberIDs: ids,
		selected:  make(map[string]actor.ProposedAction),
		locked:    make(map[string]bool),
	}
}

// Select records a member's chosen action for the round. Re-selection is
// allowed until the member locks.
func (cr *CombatRound) Select(memberID string, action actor.ProposedAction) error {
	if !cr.isMember(memberID) {
		return fmt.Errorf("unknown combat participant %q", memberID)
	}
	if cr.locked[memberID] {
		return fmt.Errorf("%s has already locked an action this round", memberID)
	}
	cr.selected[memberID] = action
	return nil
}

// Lock finalizes a member's action after its dice roll completed.
func (cr *CombatRound) Lock(memberID string) error {
	if _, ok := cr.selected[memberID]; !ok {
		return fmt.Errorf("%s has no selected action to lock", memberID)
	}
	cr.locked[memberID] = true
	return nil
}

// Ready reports whether every member has locked an action.
func (cr *CombatRound) Ready() bool {
	for _, id := range cr.memberIDs {
		if !cr.locked[id] {
			return false
		}
	}
	return len(cr.memberIDs) > 0
}

// Actions returns the locked actions in party order. It fails if the
// round is not ready; partial rounds must never be resolved.
func (cr *CombatRound) Actions() ([]actor.ProposedAction, error) {
	if !cr.Ready() {
		return nil, fmt.Errorf("combat round is not ready: %d of %d locked", len(cr.locked), len(cr.memberIDs))
	}
	actions := make([]actor.ProposedAction, 0, len(cr.memberIDs))
	for _, id := range cr.memberIDs {
		actions = append(actions, cr.selected[id])
	}
	return actions, nil
}

func (cr *CombatRound) isMember(id string) bool {
	for _, m := range cr.memberIDs {
		if m == id {
			return true
		}
	}
	return false
}
