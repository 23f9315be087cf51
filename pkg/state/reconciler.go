package state

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
)

// ErrNotEnoughResource rejects an action whose resource cost exceeds the
// character's current values. It is raised before any LLM call is made.
var ErrNotEnoughResource = errors.New("not_enough_resource")

// Reconciler applies a GameActionState delta onto the live game state.
// It is the only code allowed to mutate PlayerCharactersGameState and the
// NPC roster, and it runs at most once per resolved turn.
type Reconciler struct {
	players   PlayerCharactersGameState
	idToNames map[string]string
	npcs      actor.NPCState
	inventory InventoryState
	logger    *slog.Logger
}

// NewReconciler creates a reconciler over the session's mutable state.
func NewReconciler(players PlayerCharactersGameState, idToNames map[string]string, npcs actor.NPCState, inventory InventoryState, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		players:   players,
		idToNames: idToNames,
		npcs:      npcs,
		inventory: inventory,
		logger:    logger,
	}
}

// Apply merges the delta into the live state. Resource changes are
// additive and clamped to [0, max]; unknown targets are ignored (models
// hallucinate ids); NPCs at or below zero HP are pruned after all deltas
// for the turn have been applied, and their ids are returned.
func (r *Reconciler) Apply(delta *GameActionState) (removedNPCs []string, err error) {
	if delta == nil {
		return nil, nil
	}

	for _, update := range delta.StatsUpdate {
		r.applyStatsUpdate(update)
	}

	for _, op := range delta.InventoryUpdate {
		if err := r.applyInventoryOp(op); err != nil {
			return nil, err
		}
	}

	// Death is deletion, once per turn, after every delta has landed.
	removedNPCs = r.pruneDeadNPCs()
	return removedNPCs, nil
}

func (r *Reconciler) applyStatsUpdate(update StatsUpdate) {
	resourceKey, ok := changeResource(update.Type)
	if !ok {
		// Non-resource update types (conditions, narrative markers) carry
		// no numeric state in this model.
		return
	}
	amount, ok := update.Amount()
	if !ok {
		if r.logger != nil {
			r.logger.Warn("stats update without usable value", "type", update.Type, "target", update.Target())
		}
		return
	}

	target := update.Target()
	if target == "self" {
		target = update.SourceID
	}

	// Player target first, by id.
	if resources, ok := r.players[target]; ok {
		applyDelta(resources, resourceKey, amount)
		return
	}
	// Player target by character name (combat updates address by name).
	for id, name := range r.idToNames {
		if strings.EqualFold(name, target) {
			if resources, ok := r.players[id]; ok {
				applyDelta(resources, resourceKey, amount)
			}
			return
		}
	}
	// NPC target by id or known name.
	if npcID, npc, ok := r.npcs.Find(target); ok {
		if npc.Resources != nil {
			applyDelta(npc.Resources, resourceKey, amount)
			r.npcs[npcID] = npc
		}
		return
	}

	if r.logger != nil {
		r.logger.Debug("ignoring stats update for unknown target", "target", target, "type", update.Type)
	}
}

// changeResource extracts the resource key from an update type like
// "hp_change" or "MANA_change".
func changeResource(updateType string) (string, bool) {
	lowered := strings.ToLower(updateType)
	if !strings.HasSuffix(lowered, "_change") {
		return "", false
	}
	key := updateType[:len(updateType)-len("_change")]
	if key == "" {
		return "", false
	}
	return key, true
}

// applyDelta adds amount to the named resource, clamping the result into
// [0, max]. Missing resources on the target are ignored.
func applyDelta(resources actor.Resources, key string, amount int) {
	storedKey, value, ok := resources.LookupLive(key)
	if !ok {
		return
	}
	value.CurrentValue += amount
	if value.CurrentValue < 0 {
		value.CurrentValue = 0
	}
	if value.CurrentValue > value.MaxValue {
		value.CurrentValue = value.MaxValue
	}
	resources[storedKey] = value
}

func (r *Reconciler) applyInventoryOp(op InventoryOp) error {
	switch op.Type {
	case InventoryOpAdd:
		if op.ItemID == "" || op.Item == nil {
			return fmt.Errorf("add_item requires an id and item payload")
		}
		r.inventory[op.ItemID] = *op.Item
	case InventoryOpRemove:
		if op.ItemID == "" {
			return fmt.Errorf("remove_item requires an id")
		}
		// Removing an unknown id is a no-op.
		delete(r.inventory, op.ItemID)
	default:
		if r.logger != nil {
			r.logger.Warn("unknown inventory operation", "type", op.Type)
		}
	}
	return nil
}

// pruneDeadNPCs removes every NPC whose HP-equivalent resource is at or
// below zero and returns the removed ids.
func (r *Reconciler) pruneDeadNPCs() []string {
	var removed []string
	for id, npc := range r.npcs {
		if isDead(npc.Resources) {
			delete(r.npcs, id)
			removed = append(removed, id)
			if r.logger != nil {
				r.logger.Info("NPC removed from the tale", "npc", id)
			}
		}
	}
	return removed
}

// isDead reports whether any HP-like or game-ending resource is depleted.
func isDead(resources actor.Resources) bool {
	for key, value := range resources {
		if strings.EqualFold(key, "hp") || value.GameEndsWhenZero {
			if value.CurrentValue <= 0 {
				return true
			}
		}
	}
	return false
}

// CheckAffordability gates action submission: every listed resource cost
// must be covered by the character's current value. A missing resource
// counts as insufficient. The check runs synchronously before any LLM
// round-trip.
func CheckAffordability(resources actor.Resources, cost map[string]int) error {
	for key, amount := range cost {
		if amount <= 0 {
			continue
		}
		_, value, ok := resources.LookupLive(key)
		if !ok {
			return fmt.Errorf("%w: character has no resource %q", ErrNotEnoughResource, key)
		}
		if value.CurrentValue < amount {
			return fmt.Errorf("%w: %s %d/%d required", ErrNotEnoughResource, key, value.CurrentValue, amount)
		}
	}
	return nil
}
