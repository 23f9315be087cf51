package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

// sessionView is the GET /v1/sessions/{id} response.
type sessionView struct {
	Session       *storage.Session        `json:"session"`
	ActionHistory []state.GameActionState `json:"action_history"`
}

// rollView mirrors the dice report attached to a resolved turn.
type rollView struct {
	Rolled        int    `json:"rolled"`
	Modifier      int    `json:"modifier"`
	KarmaBonus    int    `json:"karma_bonus,omitempty"`
	RequiredValue int    `json:"required_value"`
	Difficulty    string `json:"difficulty"`
	Result        string `json:"result"`
}

// turnView is the POST /v1/sessions/{id}/turn response.
type turnView struct {
	ActionState *state.GameActionState `json:"action_state"`
	Roll        *rollView              `json:"roll,omitempty"`
	RemovedNPCs []string               `json:"removed_npcs,omitempty"`
}

func decodeAPIError(statusCode int, body []byte, action string) error {
	var errorResp ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Error == "" {
		return fmt.Errorf("API returned status %d: %s", statusCode, string(body))
	}
	return fmt.Errorf("failed to %s: %s", action, errorResp.Error)
}

func postJSON(client *http.Client, url string, payload interface{}) (int, []byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func getSession(client *http.Client, baseURL string, sessionID uuid.UUID) (*sessionView, error) {
	resp, err := client.Get(fmt.Sprintf("%s/v1/sessions/%s", baseURL, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp.StatusCode, body, "get session")
	}

	var view sessionView
	if err := json.Unmarshal(body, &view); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	return &view, nil
}

func createSession(client *http.Client, baseURL string, story actor.Story) (*storage.Session, error) {
	payload := map[string]interface{}{
		"story": story,
	}

	status, body, err := postJSON(client, baseURL+"/v1/sessions", payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated {
		return nil, decodeAPIError(status, body, "create session")
	}

	var session storage.Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	return &session, nil
}

func sendTurn(client *http.Client, baseURL string, sessionID uuid.UUID, memberID, text string) (*turnView, error) {
	payload := map[string]interface{}{
		"member_id": memberID,
		"action": map[string]interface{}{
			"text": text,
		},
	}

	status, body, err := postJSON(client, fmt.Sprintf("%s/v1/sessions/%s/turn", baseURL, sessionID), payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeAPIError(status, body, "resolve turn")
	}

	var result turnView
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse turn response: %w", err)
	}
	return &result, nil
}

func requestActions(client *http.Client, baseURL string, sessionID uuid.UUID) (map[string][]actor.ProposedAction, error) {
	status, body, err := postJSON(client, fmt.Sprintf("%s/v1/sessions/%s/actions", baseURL, sessionID), map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeAPIError(status, body, "generate actions")
	}

	var actions map[string][]actor.ProposedAction
	if err := json.Unmarshal(body, &actions); err != nil {
		return nil, fmt.Errorf("failed to parse actions response: %w", err)
	}
	return actions, nil
}

func undoTurn(client *http.Client, baseURL string, sessionID uuid.UUID) (*state.GameActionState, error) {
	status, body, err := postJSON(client, fmt.Sprintf("%s/v1/sessions/%s/undo", baseURL, sessionID), map[string]interface{}{})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeAPIError(status, body, "undo turn")
	}

	var popped state.GameActionState
	if err := json.Unmarshal(body, &popped); err != nil {
		return nil, fmt.Errorf("failed to parse undo response: %w", err)
	}
	return &popped, nil
}

func levelUpMember(client *http.Client, baseURL string, sessionID uuid.UUID, memberID string) (*actor.CharacterStats, error) {
	payload := map[string]interface{}{
		"member_id": memberID,
	}

	status, body, err := postJSON(client, fmt.Sprintf("%s/v1/sessions/%s/levelup", baseURL, sessionID), payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, decodeAPIError(status, body, "level up")
	}

	var stats actor.CharacterStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return nil, fmt.Errorf("failed to parse level up response: %w", err)
	}
	return &stats, nil
}
