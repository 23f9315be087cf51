package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

func newTestStorage(t *testing.T) *RedisStorage {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRedisStorageFromClient(client, logger)
}

func testSession() *Session {
	party := actor.NewParty()
	id := party.AddMember(actor.CharacterDescription{Name: "Thorne", Class: "Fighter"})
	return &Session{
		ID:    uuid.New(),
		Story: actor.Story{Theme: "grim", GameSystem: "fantasy"},
		Party: party,
		LiveState: state.PlayerCharactersGameState{
			id: actor.Resources{"HP": {MaxValue: 20, CurrentValue: 20, GameEndsWhenZero: true}},
		},
		Inventory: state.InventoryState{},
		NPCs:      actor.NPCState{},
	}
}

func TestRedisStorage_SessionRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	session := testSession()

	if err := s.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	loaded, err := s.LoadSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected session, got nil")
	}
	if loaded.Story.Theme != "grim" {
		t.Errorf("theme = %q", loaded.Story.Theme)
	}
	if len(loaded.Party.Members) != 1 || loaded.Party.Members[0].ID != "player_character_1" {
		t.Errorf("party = %+v", loaded.Party.Members)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped on save")
	}
}

func TestRedisStorage_LoadMissingSession(t *testing.T) {
	s := newTestStorage(t)
	loaded, err := s.LoadSession(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("LoadSession failed: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil for missing session, got %+v", loaded)
	}
}

func TestRedisStorage_ActionHistoryAndUndo(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	id := uuid.New()

	for _, story := range []string{"first", "second", "third"} {
		if err := s.AppendActionState(ctx, id, &state.GameActionState{Story: story}); err != nil {
			t.Fatalf("AppendActionState failed: %v", err)
		}
	}

	history, err := s.ActionHistory(ctx, id)
	if err != nil {
		t.Fatalf("ActionHistory failed: %v", err)
	}
	if len(history) != 3 || history[0].Story != "first" || history[2].Story != "third" {
		t.Fatalf("history = %+v", history)
	}

	popped, err := s.PopActionState(ctx, id)
	if err != nil {
		t.Fatalf("PopActionState failed: %v", err)
	}
	if popped == nil || popped.Story != "third" {
		t.Errorf("popped = %+v", popped)
	}

	history, err = s.ActionHistory(ctx, id)
	if err != nil {
		t.Fatalf("ActionHistory failed: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history length after pop = %d", len(history))
	}
}

func TestRedisStorage_PopEmptyHistory(t *testing.T) {
	s := newTestStorage(t)
	popped, err := s.PopActionState(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("PopActionState failed: %v", err)
	}
	if popped != nil {
		t.Errorf("expected nil on empty log, got %+v", popped)
	}
}

func TestRedisStorage_EventEvaluation(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	id := uuid.New()

	if err := s.SaveEventEvaluation(ctx, id, &state.EventEvaluation{RestrainedStateExplanation: "tied to a chair"}); err != nil {
		t.Fatalf("SaveEventEvaluation failed: %v", err)
	}
	eval, err := s.LoadEventEvaluation(ctx, id)
	if err != nil {
		t.Fatalf("LoadEventEvaluation failed: %v", err)
	}
	if eval == nil || eval.RestrainedStateExplanation != "tied to a chair" {
		t.Errorf("eval = %+v", eval)
	}

	// Overwritten each cycle.
	if err := s.SaveEventEvaluation(ctx, id, &state.EventEvaluation{}); err != nil {
		t.Fatalf("SaveEventEvaluation failed: %v", err)
	}
	eval, err = s.LoadEventEvaluation(ctx, id)
	if err != nil {
		t.Fatalf("LoadEventEvaluation failed: %v", err)
	}
	if eval.RestrainedStateExplanation != "" {
		t.Error("previous evaluation leaked through overwrite")
	}
}

func TestRedisStorage_BusyFlag(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	id := uuid.New()

	ok, err := s.AcquireBusy(ctx, id)
	if err != nil || !ok {
		t.Fatalf("first acquire = %v, %v", ok, err)
	}
	ok, err = s.AcquireBusy(ctx, id)
	if err != nil {
		t.Fatalf("second acquire errored: %v", err)
	}
	if ok {
		t.Error("second acquire succeeded while busy")
	}
	if err := s.ReleaseBusy(ctx, id); err != nil {
		t.Fatalf("ReleaseBusy failed: %v", err)
	}
	ok, err = s.AcquireBusy(ctx, id)
	if err != nil || !ok {
		t.Errorf("acquire after release = %v, %v", ok, err)
	}
}

func TestRedisStorage_DeleteSessionRemovesCompanions(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	session := testSession()

	if err := s.SaveSession(ctx, session); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendActionState(ctx, session.ID, &state.GameActionState{Story: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}

	loaded, err := s.LoadSession(ctx, session.ID)
	if err != nil || loaded != nil {
		t.Errorf("session survived delete: %+v, %v", loaded, err)
	}
	history, err := s.ActionHistory(ctx, session.ID)
	if err != nil || len(history) != 0 {
		t.Errorf("history survived delete: %+v, %v", history, err)
	}
}
