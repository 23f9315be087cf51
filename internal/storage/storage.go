package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/actor"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/agents"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/dice"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

// Session is everything persistent about one tale. The action history is
// stored separately as an append-only list; it is the replay and undo
// log, while Session carries the merged current view.
type Session struct {
	ID             uuid.UUID                       `json:"id"`
	Story          actor.Story                     `json:"story"`
	Campaign       *agents.Campaign                `json:"campaign,omitempty"`
	Party          *actor.Party                    `json:"party"`
	PartyStats     *actor.PartyStats               `json:"party_stats"`
	LiveState      state.PlayerCharactersGameState `json:"live_state"`
	Inventory      state.InventoryState            `json:"inventory"`
	NPCs           actor.NPCState                  `json:"npcs"`
	History        []services.Message              `json:"history"`
	GameDifficulty dice.GameDifficulty             `json:"game_difficulty"`
	CreatedAt      time.Time                       `json:"created_at"`
	UpdatedAt      time.Time                       `json:"updated_at"`
}

// Storage is the persistence boundary for sessions and their turn logs.
type Storage interface {
	Ping(ctx context.Context) error
	Close() error

	SaveSession(ctx context.Context, s *Session) error
	LoadSession(ctx context.Context, id uuid.UUID) (*Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error

	// AppendActionState adds a resolved turn to the session's history.
	AppendActionState(ctx context.Context, id uuid.UUID, action *state.GameActionState) error
	// ActionHistory returns the full chronological turn log.
	ActionHistory(ctx context.Context, id uuid.UUID) ([]state.GameActionState, error)
	// PopActionState removes and returns the latest turn; undo works by
	// truncation. Returns nil when the log is empty.
	PopActionState(ctx context.Context, id uuid.UUID) (*state.GameActionState, error)

	SaveEventEvaluation(ctx context.Context, id uuid.UUID, eval *state.EventEvaluation) error
	LoadEventEvaluation(ctx context.Context, id uuid.UUID) (*state.EventEvaluation, error)

	// AcquireBusy marks the session as having a turn in flight. Returns
	// false when another turn already holds the flag.
	AcquireBusy(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseBusy(ctx context.Context, id uuid.UUID) error
}
