package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/engine"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/dice"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

// SessionHandler serves the session lifecycle and turn endpoints.
// Routes:
//
//	POST   /v1/sessions               - create a session
//	GET    /v1/sessions/{id}          - read a session and its turn log
//	DELETE /v1/sessions/{id}          - delete a session
//	POST   /v1/sessions/{id}/turn     - resolve one action (optionally streamed)
//	POST   /v1/sessions/{id}/combat   - resolve a locked combat round
//	POST   /v1/sessions/{id}/undo     - undo the latest turn
//	POST   /v1/sessions/{id}/actions  - generate or classify candidate actions
//	POST   /v1/sessions/{id}/levelup  - level one member up
//	GET    /v1/sessions/{id}/events   - read the latest event evaluation
//	POST   /v1/sessions/{id}/events/apply - apply the confirmed evaluation
type SessionHandler struct {
	engine  *engine.Engine
	storage storage.Storage
	logger  *slog.Logger
}

func NewSessionHandler(e *engine.Engine, storage storage.Storage, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		engine:  e,
		storage: storage,
		logger:  logger,
	}
}

func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sessions"), "/")
	if path == "" {
		if r.Method != http.MethodPost {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
			return
		}
		h.handleCreate(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	sessionID, err := uuid.Parse(parts[0])
	if err != nil {
		h.logger.Warn("Invalid session ID", "id", parts[0], "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid session ID format")
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			h.handleRead(w, r, sessionID)
		case http.MethodDelete:
			h.handleDelete(w, r, sessionID)
		default:
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Supported methods: GET, DELETE")
		}
		return
	}

	switch parts[1] {
	case "turn":
		h.requirePost(w, r, sessionID, h.handleTurn)
	case "combat":
		h.requirePost(w, r, sessionID, h.handleCombat)
	case "undo":
		h.requirePost(w, r, sessionID, h.handleUndo)
	case "actions":
		h.requirePost(w, r, sessionID, h.handleActions)
	case "levelup":
		h.requirePost(w, r, sessionID, h.handleLevelUp)
	case "events":
		if r.Method != http.MethodGet {
			writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only GET is supported.")
			return
		}
		h.handleEvents(w, r, sessionID)
	case "events/apply":
		h.requirePost(w, r, sessionID, h.handleApplyEvents)
	default:
		writeError(w, h.logger, http.StatusNotFound, "Unknown session endpoint")
	}
}

func (h *SessionHandler) requirePost(w http.ResponseWriter, r *http.Request, id uuid.UUID, fn func(http.ResponseWriter, *http.Request, uuid.UUID)) {
	if r.Method != http.MethodPost {
		writeError(w, h.logger, http.StatusMethodNotAllowed, "Method not allowed. Only POST is supported.")
		return
	}
	fn(w, r, id)
}

// CreateSessionRequest is the body for POST /v1/sessions.
type CreateSessionRequest struct {
	Story            actor.Story         `json:"story"`
	StoryHints       string              `json:"story_hints,omitempty"`
	PartySize        int                 `json:"party_size,omitempty"`
	CharacterHints   []string            `json:"character_hints,omitempty"`
	GameDifficulty   dice.GameDifficulty `json:"game_difficulty,omitempty"`
	GenerateCampaign bool                `json:"generate_campaign,omitempty"`
	CampaignHints    string              `json:"campaign_hints,omitempty"`
}

func (h *SessionHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid JSON in request body", "error", err)
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if req.Story.GameSystem == "" && req.StoryHints == "" {
		writeError(w, h.logger, http.StatusBadRequest, "story.game or story_hints is required")
		return
	}

	session, err := h.engine.CreateSession(r.Context(), engine.CreateSessionRequest{
		Story:            req.Story,
		StoryHints:       req.StoryHints,
		PartySize:        req.PartySize,
		CharacterHints:   req.CharacterHints,
		GameDifficulty:   req.GameDifficulty,
		GenerateCampaign: req.GenerateCampaign,
		CampaignHints:    req.CampaignHints,
	})
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}

	h.logger.Info("Session created", "session_id", session.ID.String(), "party_size", len(session.Party.Members))
	writeJSON(w, h.logger, http.StatusCreated, session)
}

// SessionResponse pairs the session with its chronological turn log.
type SessionResponse struct {
	Session       *storage.Session        `json:"session"`
	ActionHistory []state.GameActionState `json:"action_history"`
}

func (h *SessionHandler) handleRead(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	session, err := h.storage.LoadSession(r.Context(), id)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	if session == nil {
		writeError(w, h.logger, http.StatusNotFound, "Session not found")
		return
	}
	history, err := h.storage.ActionHistory(r.Context(), id)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, SessionResponse{Session: session, ActionHistory: history})
}

func (h *SessionHandler) handleDelete(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	session, err := h.storage.LoadSession(r.Context(), id)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	if session == nil {
		writeError(w, h.logger, http.StatusNotFound, "Session not found")
		return
	}
	if err := h.storage.DeleteSession(r.Context(), id); err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	h.logger.Info("Session deleted", "session_id", id.String())
	w.WriteHeader(http.StatusNoContent)
}

// TurnBody is the body for POST /v1/sessions/{id}/turn.
type TurnBody struct {
	MemberID          string               `json:"member_id"`
	Action            actor.ProposedAction `json:"action"`
	SupplementaryText string               `json:"supplementary_text,omitempty"`
	Stream            bool                 `json:"stream,omitempty"`
}

func (h *SessionHandler) handleTurn(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var body TurnBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if body.MemberID == "" || body.Action.Text == "" {
		writeError(w, h.logger, http.StatusBadRequest, "member_id and action.text are required")
		return
	}

	req := engine.TurnRequest{
		MemberID:          body.MemberID,
		Action:            body.Action,
		SupplementaryText: body.SupplementaryText,
	}

	if body.Stream {
		h.streamTurn(w, r, id, req)
		return
	}

	result, err := h.engine.ResolveTurn(r.Context(), id, req)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}

// streamTurn delivers the narration as server-sent events: "story"
// events carry the growing text, one final "result" event carries the
// full turn result.
func (h *SessionHandler) streamTurn(w http.ResponseWriter, r *http.Request, id uuid.UUID, req engine.TurnRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, h.logger, http.StatusInternalServerError, "Streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	req.OnStory = func(text string, complete bool) {
		payload, err := json.Marshal(map[string]any{"text": text, "complete": complete})
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: story\ndata: %s\n\n", payload)
		flusher.Flush()
	}

	result, err := h.engine.ResolveTurn(r.Context(), id, req)
	if err != nil {
		payload, _ := json.Marshal(ErrorResponse{Error: err.Error()})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		flusher.Flush()
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		h.logger.Error("Failed to encode turn result", "error", err)
		return
	}
	fmt.Fprintf(w, "event: result\ndata: %s\n\n", payload)
	flusher.Flush()
}

// CombatBody is the body for POST /v1/sessions/{id}/combat. Actions must
// cover the whole party.
type CombatBody struct {
	Round []struct {
		MemberID string               `json:"member_id"`
		Action   actor.ProposedAction `json:"action"`
	} `json:"round"`
}

func (h *SessionHandler) handleCombat(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var body CombatBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if len(body.Round) == 0 {
		writeError(w, h.logger, http.StatusBadRequest, "round must list one action per party member")
		return
	}

	memberIDs := make([]string, 0, len(body.Round))
	for _, entry := range body.Round {
		memberIDs = append(memberIDs, entry.MemberID)
	}
	round := state.NewCombatRound(memberIDs)
	for _, entry := range body.Round {
		if err := round.Select(entry.MemberID, entry.Action); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, err.Error())
			return
		}
		if err := round.Lock(entry.MemberID); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, err.Error())
			return
		}
	}

	result, err := h.engine.ResolveCombatRound(r.Context(), id, engine.CombatTurnRequest{Round: round})
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}

func (h *SessionHandler) handleUndo(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	popped, err := h.engine.Undo(r.Context(), id)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, popped)
}

// ActionsBody is the body for POST /v1/sessions/{id}/actions. Without a
// custom action, candidates are generated for the whole party.
type ActionsBody struct {
	MemberID     string `json:"member_id,omitempty"`
	CustomAction string `json:"custom_action,omitempty"`
}

func (h *SessionHandler) handleActions(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var body ActionsBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}
	}

	if body.CustomAction != "" {
		if body.MemberID == "" {
			writeError(w, h.logger, http.StatusBadRequest, "member_id is required with custom_action")
			return
		}
		action, err := h.engine.ClassifyAction(r.Context(), id, body.MemberID, body.CustomAction)
		if err != nil {
			writeEngineError(w, h.logger, err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, action)
		return
	}

	results, err := h.engine.CandidateActions(r.Context(), id)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, results)
}

// LevelUpBody is the body for POST /v1/sessions/{id}/levelup.
type LevelUpBody struct {
	MemberID string `json:"member_id"`
}

func (h *SessionHandler) handleLevelUp(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var body LevelUpBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	if body.MemberID == "" {
		writeError(w, h.logger, http.StatusBadRequest, "member_id is required")
		return
	}
	stats, err := h.engine.LevelUpMember(r.Context(), id, body.MemberID)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, stats)
}

func (h *SessionHandler) handleEvents(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	eval, err := h.storage.LoadEventEvaluation(r.Context(), id)
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	if eval == nil || eval.MemberID == "" {
		writeError(w, h.logger, http.StatusNotFound, "No event evaluation available")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, eval)
}

// ApplyEventsBody is the body for POST /v1/sessions/{id}/events/apply.
// The booleans carry the player's confirmation dialog answers.
type ApplyEventsBody struct {
	AcceptTransformation bool `json:"accept_transformation,omitempty"`
	AcceptAbilities      bool `json:"accept_abilities,omitempty"`
}

func (h *SessionHandler) handleApplyEvents(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var body ApplyEventsBody
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "Invalid JSON in request body")
			return
		}
	}

	result, err := h.engine.ApplyEventEvaluation(r.Context(), id, engine.EventConfirmation{
		AcceptTransformation: body.AcceptTransformation,
		AcceptAbilities:      body.AcceptAbilities,
	})
	if err != nil {
		writeEngineError(w, h.logger, err)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}
