package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

// ErrNoEvaluation rejects an apply when no event evaluation is pending.
var ErrNoEvaluation = errors.New("no event evaluation to apply")

// EventConfirmation is the player's answer to a pending evaluation.
// Transformation and new abilities only land when confirmed; restrained
// state is applied either way, the narration already established it.
type EventConfirmation struct {
	AcceptTransformation bool
	AcceptAbilities      bool
}

// EventApplication reports what an applied evaluation changed.
type EventApplication struct {
	MemberID         string   `json:"member_id"`
	CharacterChanged bool     `json:"character_changed"`
	AbilitiesAdded   []string `json:"abilities_added,omitempty"`
	Restrained       bool     `json:"restrained"`
}

// ApplyEventEvaluation consumes the pending evaluation for the session:
// it swaps the member's character on a confirmed transformation, appends
// confirmed learned abilities to the stat sheet, and sets or clears the
// member's restrained cache. The evaluation is cleared afterwards so it
// cannot be applied twice.
func (e *Engine) ApplyEventEvaluation(ctx context.Context, sessionID uuid.UUID, confirm EventConfirmation) (*EventApplication, error) {
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

	eval, err := e.storage.LoadEventEvaluation(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event evaluation: %w", err)
	}
	// A consumed evaluation is stored without a member id, so a second
	// apply finds nothing.
	if eval == nil || eval.MemberID == "" {
		return nil, ErrNoEvaluation
	}

	session, err := e.storage.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	member, ok := session.Party.Member(eval.MemberID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMember, eval.MemberID)
	}

	result := &EventApplication{MemberID: member.ID}

	if confirm.AcceptTransformation && eval.CharacterChanged != nil {
		session.Party.ReplaceCharacter(member.ID, *eval.CharacterChanged)
		result.CharacterChanged = true
	}

	if confirm.AcceptAbilities && len(eval.AbilitiesLearned) > 0 {
		if stats, ok := session.PartyStats.StatsFor(member.ID); ok {
			for _, ability := range eval.AbilitiesLearned {
				if hasAbility(stats, ability.Name) {
					continue
				}
				stats.SpellsAndAbilities = append(stats.SpellsAndAbilities, ability)
				result.AbilitiesAdded = append(result.AbilitiesAdded, ability.Name)
			}
			session.PartyStats.SetStats(member.ID, stats)
		}
	}

	session.Party.Cache(member.ID).RestrainedExplanation = eval.RestrainedStateExplanation
	result.Restrained = eval.RestrainedStateExplanation != ""

	if err := e.storage.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	if err := e.storage.SaveEventEvaluation(ctx, sessionID, &state.EventEvaluation{}); err != nil {
		return nil, fmt.Errorf("failed to clear event evaluation: %w", err)
	}
	return result, nil
}

func hasAbility(stats actor.CharacterStats, name string) bool {
	for _, existing := range stats.SpellsAndAbilities {
		if strings.EqualFold(existing.Name, name) {
			return true
		}
	}
	return false
}
