package state

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func rawValue(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func newTestState() (PlayerCharactersGameState, map[string]string, actor.NPCState, InventoryState) {
	players := PlayerCharactersGameState{
		"player_character_1": actor.Resources{
			"HP": {MaxValue: 20, CurrentValue: 15, GameEndsWhenZero: true},
			"MP": {MaxValue: 10, CurrentValue: 5},
		},
	}
	idToNames := map[string]string{"player_character_1": "Thorne"}
	npcs := actor.NPCState{
		"bandit_leader": {
			Class: "Rogue",
			Resources: actor.Resources{
				"HP": {MaxValue: 12, CurrentValue: 12},
			},
			KnownNames: []string{"Scarred Bandit"},
		},
	}
	inventory := InventoryState{
		"rusty_key": {Description: "A rusty key", Effect: "Opens the cellar"},
	}
	return players, idToNames, npcs, inventory
}

func TestReconciler_AppliesAdditiveDeltas(t *testing.T) {
	players, idToNames, npcs, inventory := newTestState()
	r := NewReconciler(players, idToNames, npcs, inventory, testLogger())

	_, err := r.Apply(&GameActionState{
		StatsUpdate: []StatsUpdate{
			{TargetID: "player_character_1", Type: "hp_change", Value: rawValue(t, -4)},
			{TargetID: "player_character_1", Type: "mp_change", Value: rawValue(t, 2)},
		},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if got := players["player_character_1"]["HP"].CurrentValue; got != 11 {
		t.Errorf("HP = %d, want 11", got)
	}
	if got := players["player_character_1"]["MP"].CurrentValue; got != 7 {
		t.Errorf("MP = %d, want 7", got)
	}
}

func TestReconciler_ClampsToBounds(t *testing.T) {
	players, idToNames, npcs, inventory := newTestState()
	r := NewReconciler(players, idToNames, npcs, inventory, testLogger())

	deltas := []int{-100, 50, -3, 999, -999}
	for _, d := range deltas {
		_, err := r.Apply(&GameActionState{
			StatsUpdate: []StatsUpdate{
				{TargetID: "player_character_1", Type: "hp_change", Value: rawValue(t, d)},
			},
		})
		if err != nil {
			t.Fatalf("Apply failed: %v", err)
		}
		hp := players["player_character_1"]["HP"]
		if hp.CurrentValue < 0 || hp.CurrentValue > hp.MaxValue {
			t.Fatalf("HP %d out of [0, %d] after delta %d", hp.CurrentValue, hp.MaxValue, d)
		}
	}
}

func TestReconciler_SelfTargetResolvesToSource(t *testing.T) {
	players, idToNames, npcs, inventory := newTestState()
	r := NewReconciler(players, idToNames, npcs, inventory, testLogger())

	_, err := r.Apply(&GameActionState{
		StatsUpdate: []StatsUpdate{
			{SourceID: "player_character_1", TargetID: "self", Type: "hp_change", Value: rawValue(t, -5)},
		},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := players["player_character_1"]["HP"].CurrentValue; got != 10 {
		t.Errorf("HP = %d, want 10", got)
	}
}

func TestReconciler_CombatValueEnvelopeAndTargetName(t *testing.T) {
	players, idToNames, npcs, inventory := newTestState()
	r := NewReconciler(players, idToNames, npcs, inventory, testLogger())

	_, err := r.Apply(&GameActionState{
		StatsUpdate: []StatsUpdate{
			{TargetName: "Scarred Bandit", Type: "hp_change", Value: rawValue(t, map[string]int{"result": -7})},
		},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := npcs["bandit_leader"].Resources["HP"].CurrentValue; got != 5 {
		t.Errorf("bandit HP = %d, want 5", got)
	}
}

func TestReconciler_UnknownTargetIgnored(t *testing.T) {
	players, idToNames, npcs, inventory := newTestState()
	r := NewReconciler(players, idToNames, npcs, inventory, testLogger())

	_, err := r.Apply(&GameActionState{
		StatsUpdate: []StatsUpdate{
			{TargetID: "player_character_42", Type: "hp_change", Value: rawValue(t, -5)},
			{TargetName: "Imagined Dragon", Type: "hp_change", Value: rawValue(t, -5)},
		},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := players["player_character_1"]["HP"].CurrentValue; got != 15 {
		t.Errorf("HP changed for unknown target: %d", got)
	}
}

func TestReconciler_PrunesDeadNPCsAfterAllDeltas(t *testing.T) {
	players, idToNames, npcs, inventory := newTestState()
	r := NewReconciler(players, idToNames, npcs, inventory, testLogger())

	// Two hits in one turn; the bandit must survive until the end of the
	// batch and then be removed exactly once.
	removed, err := r.Apply(&GameActionState{
		StatsUpdate: []StatsUpdate{
			{TargetID: "bandit_leader", Type: "hp_change", Value: rawValue(t, -8)},
			{TargetID: "bandit_leader", Type: "hp_change", Value: rawValue(t, -8)},
		},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(removed) != 1 || removed[0] != "bandit_leader" {
		t.Errorf("removed = %v, want [bandit_leader]", removed)
	}
	if _, ok := npcs["bandit_leader"]; ok {
		t.Error("dead NPC still present in roster")
	}
	for id, npc := range npcs {
		for key, res := range npc.Resources {
			if (key == "HP" || res.GameEndsWhenZero) && res.CurrentValue <= 0 {
				t.Errorf("NPC %s survives with depleted %s", id, key)
			}
		}
	}
}

func TestReconciler_InventoryOps(t *testing.T) {
	players, idToNames, npcs, inventory := newTestState()
	r := NewReconciler(players, idToNames, npcs, inventory, testLogger())

	_, err := r.Apply(&GameActionState{
		InventoryUpdate: []InventoryOp{
			{Type: InventoryOpAdd, ItemID: "healing_potion", Item: &Item{Description: "Red vial", Effect: "Restores 5 HP"}},
			{Type: InventoryOpRemove, ItemID: "rusty_key"},
			{Type: InventoryOpRemove, ItemID: "no_such_item"}, // no-op
		},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, ok := inventory["healing_potion"]; !ok {
		t.Error("added item missing")
	}
	if _, ok := inventory["rusty_key"]; ok {
		t.Error("removed item still present")
	}
	if len(inventory) != 1 {
		t.Errorf("inventory size = %d, want 1", len(inventory))
	}
}

func TestReconciler_InventoryOrderMatters(t *testing.T) {
	players, idToNames, npcs, inventory := newTestState()
	r := NewReconciler(players, idToNames, npcs, inventory, testLogger())

	_, err := r.Apply(&GameActionState{
		InventoryUpdate: []InventoryOp{
			{Type: InventoryOpAdd, ItemID: "torch", Item: &Item{Description: "A torch", Effect: "Light"}},
			{Type: InventoryOpRemove, ItemID: "torch"},
		},
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if _, ok := inventory["torch"]; ok {
		t.Error("add-then-remove should leave no item")
	}
}

func TestCheckAffordability(t *testing.T) {
	resources := actor.Resources{
		"MP":      {MaxValue: 20, CurrentValue: 5},
		"STAMINA": {MaxValue: 10, CurrentValue: 10},
	}

	tests := []struct {
		name    string
		cost    map[string]int
		wantErr bool
	}{
		{"affordable", map[string]int{"MP": 5}, false},
		{"insufficient", map[string]int{"MP": 10}, true},
		{"multiple one short", map[string]int{"MP": 3, "STAMINA": 11}, true},
		{"missing resource", map[string]int{"FOCUS": 1}, true},
		{"case insensitive key", map[string]int{"mp": 4}, false},
		{"empty cost", nil, false},
		{"zero cost ignored", map[string]int{"FOCUS": 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAffordability(resources, tt.cost)
			if tt.wantErr {
				if !errors.Is(err, ErrNotEnoughResource) {
					t.Errorf("err = %v, want ErrNotEnoughResource", err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCombatRound_Gating(t *testing.T) {
	round := NewCombatRound([]string{"player_character_1", "player_character_2"})

	if round.Ready() {
		t.Error("fresh round must not be ready")
	}
	if err := round.Select("player_character_1", actor.ProposedAction{Text: "Strike"}); err != nil {
		t.Fatal(err)
	}
	if err := round.Lock("player_character_1"); err != nil {
		t.Fatal(err)
	}
	if round.Ready() {
		t.Error("round ready with only one member locked")
	}
	if _, err := round.Actions(); err == nil {
		t.Error("Actions must fail before every member locks")
	}

	if err := round.Select("player_character_2", actor.ProposedAction{Text: "Shield wall"}); err != nil {
		t.Fatal(err)
	}
	if err := round.Lock("player_character_2"); err != nil {
		t.Fatal(err)
	}
	if !round.Ready() {
		t.Error("round should be ready once all locked")
	}
	actions, err := round.Actions()
	if err != nil {
		t.Fatal(err)
	}
	if len(actions) != 2 || actions[0].Text != "Strike" || actions[1].Text != "Shield wall" {
		t.Errorf("actions = %+v", actions)
	}

	if err := round.Select("player_character_1", actor.ProposedAction{Text: "Retreat"}); err == nil {
		t.Error("re-selection after lock must fail")
	}
	if err := round.Lock("player_character_3"); err == nil {
		t.Error("locking without selection must fail")
	}
}
