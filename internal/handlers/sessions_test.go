package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/engine"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/agents"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/dice"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

func newTestHandler(mockLLM *services.MockLLM, store *storage.MockStorage) *SessionHandler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := engine.New(store, nil, engine.NewAgents(agents.NewDispatcher(mockLLM, logger), logger), logger)
	return NewSessionHandler(e, store, logger)
}

func seedSession(t *testing.T, store *storage.MockStorage) (*storage.Session, string) {
	t.Helper()

	party := actor.NewParty()
	memberID := party.AddMember(actor.CharacterDescription{Name: "Thorne", Class: "Ranger"})

	stats := &actor.PartyStats{}
	stats.SetStats(memberID, actor.CharacterStats{
		Level: 1,
		Resources: map[string]actor.ResourceTemplate{
			"HP": {MaxValue: 20, StartValue: 20, GameEndsWhenZero: true},
			"MP": {MaxValue: 10, StartValue: 10},
		},
	})

	session := &storage.Session{
		ID:             uuid.New(),
		Story:          actor.Story{GameSystem: "Fantasy"},
		Party:          party,
		PartyStats:     stats,
		LiveState:      state.PlayerCharactersGameState{},
		Inventory:      state.InventoryState{},
		NPCs:           actor.NPCState{},
		GameDifficulty: dice.GameDifficultyDefault,
	}
	memberStats, _ := stats.StatsFor(memberID)
	session.LiveState[memberID] = memberStats.Live()
	require.NoError(t, store.SaveSession(context.Background(), session))
	return session, memberID
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestSessionHandler_Create(t *testing.T) {
	mockLLM := services.NewMockLLM()
	mockLLM.GenerateContentFunc = func(ctx context.Context, req *services.LLMRequest) (*services.LLMResponse, error) {
		if strings.Contains(req.UserMessage, "player character") {
			return services.NewRawResponse(`[{"name": "Kaela", "race": "Elf", "class": "Druid"}]`), nil
		}
		return services.NewRawResponse(`{"level": 1, "resources": {"HP": {"max_value": 18, "start_value": 18, "game_ends_when_zero": true}}}`), nil
	}
	handler := newTestHandler(mockLLM, storage.NewMockStorage())

	rec := postJSON(t, handler, "/v1/sessions", CreateSessionRequest{
		Story:     actor.Story{GameSystem: "Fantasy", Theme: "wilds"},
		PartySize: 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var session storage.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
	assert.Len(t, session.Party.Members, 1)
	assert.Equal(t, "Kaela", session.Party.Members[0].Character.Name)
	assert.Equal(t, 18, session.LiveState[session.Party.Members[0].ID]["HP"].CurrentValue)
}

func TestSessionHandler_CreateValidation(t *testing.T) {
	handler := newTestHandler(services.NewMockLLM(), storage.NewMockStorage())

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler, "/v1/sessions", CreateSessionRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_CreateFromHints(t *testing.T) {
	mockLLM := services.NewMockLLM()
	mockLLM.GenerateContentFunc = func(ctx context.Context, req *services.LLMRequest) (*services.LLMResponse, error) {
		switch {
		case strings.Contains(req.UserMessage, "Create the premise"):
			return services.NewRawResponse(`{"game": "Fantasy", "world_details": "mist", "adventure_and_main_event": "a sealed vault opens", "theme": "gothic", "tonality": "grim", "character_simple_description": "wanderers", "general_image_prompt": "fog"}`), nil
		case strings.Contains(req.UserMessage, "player character"):
			return services.NewRawResponse(`[{"name": "Kaela", "race": "Elf", "class": "Druid"}]`), nil
		}
		return services.NewRawResponse(`{"level": 1, "resources": {"HP": {"max_value": 18, "start_value": 18, "game_ends_when_zero": true}}}`), nil
	}
	handler := newTestHandler(mockLLM, storage.NewMockStorage())

	rec := postJSON(t, handler, "/v1/sessions", CreateSessionRequest{
		StoryHints: "a gothic mystery",
		PartySize:  1,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var session storage.Session
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&session))
	assert.Equal(t, "Fantasy", session.Story.GameSystem)
	assert.Equal(t, "a sealed vault opens", session.Story.AdventureAndMainEvent)
	assert.Len(t, session.Party.Members, 1)
}

func TestSessionHandler_ReadAndDelete(t *testing.T) {
	store := storage.NewMockStorage()
	session, _ := seedSession(t, store)
	handler := newTestHandler(services.NewMockLLM(), store)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+session.ID.String(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var response SessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	assert.Equal(t, session.ID, response.Session.ID)
	assert.Empty(t, response.ActionHistory)

	req = httptest.NewRequest(http.MethodDelete, "/v1/sessions/"+session.ID.String(), nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/sessions/"+session.ID.String(), nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionHandler_InvalidID(t *testing.T) {
	handler := newTestHandler(services.NewMockLLM(), storage.NewMockStorage())
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_Turn(t *testing.T) {
	mockLLM := services.NewMockLLM()
	mockLLM.SetResponse(`{"story": "The gate creaks open.", "currently_present_npcs": {}}`)
	store := storage.NewMockStorage()
	session, memberID := seedSession(t, store)
	handler := newTestHandler(mockLLM, store)

	rec := postJSON(t, handler, "/v1/sessions/"+session.ID.String()+"/turn", TurnBody{
		MemberID: memberID,
		Action:   actor.ProposedAction{Text: "Open the gate", ActionDifficulty: dice.DifficultySimple},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.TurnResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, "The gate creaks open.", result.ActionState.Story)
	assert.Nil(t, result.Roll)
}

func TestSessionHandler_TurnErrors(t *testing.T) {
	store := storage.NewMockStorage()
	session, memberID := seedSession(t, store)
	handler := newTestHandler(services.NewMockLLM(), store)

	// Unaffordable action.
	rec := postJSON(t, handler, "/v1/sessions/"+session.ID.String()+"/turn", TurnBody{
		MemberID: memberID,
		Action: actor.ProposedAction{
			Text:             "Unleash the storm",
			ActionDifficulty: dice.DifficultySimple,
			ResourceCost:     map[string]int{"MP": 99},
		},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Busy session.
	acquired, err := store.AcquireBusy(context.Background(), session.ID)
	require.NoError(t, err)
	require.True(t, acquired)
	rec = postJSON(t, handler, "/v1/sessions/"+session.ID.String()+"/turn", TurnBody{
		MemberID: memberID,
		Action:   actor.ProposedAction{Text: "Wait", ActionDifficulty: dice.DifficultySimple},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NoError(t, store.ReleaseBusy(context.Background(), session.ID))

	// Unknown session.
	rec = postJSON(t, handler, "/v1/sessions/"+uuid.New().String()+"/turn", TurnBody{
		MemberID: memberID,
		Action:   actor.ProposedAction{Text: "Wait", ActionDifficulty: dice.DifficultySimple},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Missing fields.
	rec = postJSON(t, handler, "/v1/sessions/"+session.ID.String()+"/turn", TurnBody{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_TurnStream(t *testing.T) {
	mockLLM := services.NewMockLLM()
	mockLLM.SetResponse(`{"story": "Rain hammers the rooftops.", "currently_present_npcs": {}}`)
	store := storage.NewMockStorage()
	session, memberID := seedSession(t, store)
	handler := newTestHandler(mockLLM, store)

	rec := postJSON(t, handler, "/v1/sessions/"+session.ID.String()+"/turn", TurnBody{
		MemberID: memberID,
		Action:   actor.ProposedAction{Text: "Look around", ActionDifficulty: dice.DifficultySimple},
		Stream:   true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: story")
	assert.Contains(t, body, "event: result")
	assert.Contains(t, body, "Rain hammers the rooftops.")
}

func TestSessionHandler_UndoEmpty(t *testing.T) {
	store := storage.NewMockStorage()
	session, _ := seedSession(t, store)
	handler := newTestHandler(services.NewMockLLM(), store)

	rec := postJSON(t, handler, "/v1/sessions/"+session.ID.String()+"/undo", struct{}{})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSessionHandler_ActionsCustomRequiresMember(t *testing.T) {
	store := storage.NewMockStorage()
	session, _ := seedSession(t, store)
	handler := newTestHandler(services.NewMockLLM(), store)

	rec := postJSON(t, handler, "/v1/sessions/"+session.ID.String()+"/actions", ActionsBody{
		CustomAction: "Climb the wall",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionHandler_Actions(t *testing.T) {
	mockLLM := services.NewMockLLM()
	mockLLM.SetResponse(`[{"text": "Scout ahead", "type": "Misc", "action_difficulty": "simple"}]`)
	store := storage.NewMockStorage()
	session, memberID := seedSession(t, store)
	handler := newTestHandler(mockLLM, store)

	rec := postJSON(t, handler, "/v1/sessions/"+session.ID.String()+"/actions", ActionsBody{})
	require.Equal(t, http.StatusOK, rec.Code)

	var results map[string][]actor.ProposedAction
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&results))
	require.Len(t, results[memberID], 1)
	assert.Equal(t, "Scout ahead", results[memberID][0].Text)
}

func TestSessionHandler_Events(t *testing.T) {
	store := storage.NewMockStorage()
	session, _ := seedSession(t, store)
	handler := newTestHandler(services.NewMockLLM(), store)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/"+session.ID.String()+"/events", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, store.SaveEventEvaluation(context.Background(), session.ID, &state.EventEvaluation{
		MemberID:                   "player_character_1",
		RestrainedStateExplanation: "Tangled in the net",
	}))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var eval state.EventEvaluation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&eval))
	assert.Equal(t, "Tangled in the net", eval.RestrainedStateExplanation)
}

func TestSessionHandler_ApplyEvents(t *testing.T) {
	store := storage.NewMockStorage()
	session, memberID := seedSession(t, store)
	handler := newTestHandler(services.NewMockLLM(), store)

	// Nothing pending yet.
	rec := postJSON(t, handler, "/v1/sessions/"+session.ID.String()+"/events/apply", ApplyEventsBody{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, store.SaveEventEvaluation(context.Background(), session.ID, &state.EventEvaluation{
		MemberID:         memberID,
		AbilitiesLearned: []actor.Ability{{Name: "Shadow Step", Effect: "Blink between shadows."}},
	}))

	rec = postJSON(t, handler, "/v1/sessions/"+session.ID.String()+"/events/apply", ApplyEventsBody{
		AcceptAbilities: true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result engine.EventApplication
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, []string{"Shadow Step"}, result.AbilitiesAdded)

	saved, err := store.LoadSession(context.Background(), session.ID)
	require.NoError(t, err)
	stats, ok := saved.PartyStats.StatsFor(memberID)
	require.True(t, ok)
	require.Len(t, stats.SpellsAndAbilities, 1)
	assert.Equal(t, "Shadow Step", stats.SpellsAndAbilities[0].Name)

	// Consumed evaluations cannot be applied again.
	rec = postJSON(t, handler, "/v1/sessions/"+session.ID.String()+"/events/apply", ApplyEventsBody{})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
