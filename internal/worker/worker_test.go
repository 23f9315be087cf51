package worker

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services/queue"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/agents"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testWorker(mockLLM *services.MockLLM, store storage.Storage) *Worker {
	log := testLogger()
	events := agents.NewEventAgent(agents.NewDispatcher(mockLLM, log), log)
	return New(nil, store, events, log, "worker-test")
}

func seedSession(t *testing.T, store *storage.MockStorage) (*storage.Session, string) {
	t.Helper()

	party := actor.NewParty()
	memberID := party.AddMember(actor.CharacterDescription{
		Name:  "Thorne",
		Race:  "Human",
		Class: "Ranger",
	})

	stats := &actor.PartyStats{}
	stats.SetStats(memberID, actor.CharacterStats{
		Level: 3,
		SpellsAndAbilities: []actor.Ability{
			{Name: "Hunter's Mark", Effect: "Track a single quarry."},
		},
	})

	session := &storage.Session{
		ID:         uuid.New(),
		Party:      party,
		PartyStats: stats,
	}
	if err := store.SaveSession(context.Background(), session); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	return session, memberID
}

func TestWorker_ProcessStoresEvaluation(t *testing.T) {
	mockLLM := services.NewMockLLM()
	mockLLM.SetResponse(`{"abilities_learned": [{"name": "Shadow Step", "effect": "Blink between shadows."}], "restrained_state_explanation": ""}`)
	store := storage.NewMockStorage()
	session, memberID := seedSession(t, store)

	w := testWorker(mockLLM, store)
	task := &queue.EvaluationTask{
		SessionID: session.ID,
		MemberID:  memberID,
		StoryText: "Thorne melts into the darkness and reappears behind the sentry.",
	}
	if err := w.Process(context.Background(), task); err != nil {
		t.Fatalf("Process: %v", err)
	}

	eval, err := store.LoadEventEvaluation(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("LoadEventEvaluation: %v", err)
	}
	if eval == nil {
		t.Fatal("expected stored evaluation")
	}
	if len(eval.AbilitiesLearned) != 1 || eval.AbilitiesLearned[0].Name != "Shadow Step" {
		t.Errorf("unexpected abilities learned: %+v", eval.AbilitiesLearned)
	}
	if eval.MemberID != memberID {
		t.Errorf("evaluation member id = %q, want %q", eval.MemberID, memberID)
	}

	calls := mockLLM.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 LLM call, got %d", len(calls))
	}
	instructions := strings.Join(calls[0].Request.SystemInstructions, "\n")
	if !strings.Contains(instructions, "Hunter's Mark") {
		t.Error("expected existing abilities in the prompt")
	}
	if !strings.Contains(calls[0].Request.UserMessage, "sentry") {
		t.Error("expected narration in the user message")
	}
}

func TestWorker_ProcessDropsMissingSession(t *testing.T) {
	mockLLM := services.NewMockLLM()
	store := storage.NewMockStorage()

	w := testWorker(mockLLM, store)
	task := &queue.EvaluationTask{
		SessionID: uuid.New(),
		MemberID:  "player_character_1",
		StoryText: "Nothing happens.",
	}
	if err := w.Process(context.Background(), task); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(mockLLM.Calls()) != 0 {
		t.Error("expected no LLM call for a deleted session")
	}
}

func TestWorker_ProcessDropsMissingMember(t *testing.T) {
	mockLLM := services.NewMockLLM()
	store := storage.NewMockStorage()
	session, _ := seedSession(t, store)

	w := testWorker(mockLLM, store)
	task := &queue.EvaluationTask{
		SessionID: session.ID,
		MemberID:  "player_character_9",
		StoryText: "Nothing happens.",
	}
	if err := w.Process(context.Background(), task); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(mockLLM.Calls()) != 0 {
		t.Error("expected no LLM call for a removed member")
	}
}
