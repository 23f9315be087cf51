package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

// MockStorage is a mock implementation of Storage for testing
type MockStorage struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]*Session
	histories map[uuid.UUID][]state.GameActionState
	events    map[uuid.UUID]*state.EventEvaluation
	busy      map[uuid.UUID]bool
	pingError error

	SaveSessionError error
	LoadSessionError error
}

// Ensure MockStorage implements Storage interface
var _ Storage = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		sessions:  make(map[uuid.UUID]*Session),
		histories: make(map[uuid.UUID][]state.GameActionState),
		events:    make(map[uuid.UUID]*state.EventEvaluation),
		busy:      make(map[uuid.UUID]bool),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// Ping mocks storage ping
func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

// Close mocks storage shutdown
func (m *MockStorage) Close() error {
	return nil
}

// SaveSession stores a session copy
func (m *MockStorage) SaveSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveSessionError != nil {
		return m.SaveSessionError
	}
	copied := *s
	m.sessions[s.ID] = &copied
	return nil
}

// LoadSession returns the stored session, or nil when absent
func (m *MockStorage) LoadSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.LoadSessionError != nil {
		return nil, m.LoadSessionError
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

// DeleteSession removes a session and all its companion data
func (m *MockStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.histories, id)
	delete(m.events, id)
	delete(m.busy, id)
	return nil
}

// AppendActionState appends a turn to the log
func (m *MockStorage) AppendActionState(ctx context.Context, id uuid.UUID, action *state.GameActionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories[id] = append(m.histories[id], *action)
	return nil
}

// ActionHistory returns a copy of the turn log
func (m *MockStorage) ActionHistory(ctx context.Context, id uuid.UUID) ([]state.GameActionState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := make([]state.GameActionState, len(m.histories[id]))
	copy(history, m.histories[id])
	return history, nil
}

// PopActionState removes and returns the latest turn
func (m *MockStorage) PopActionState(ctx context.Context, id uuid.UUID) (*state.GameActionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.histories[id]
	if len(history) == 0 {
		return nil, nil
	}
	last := history[len(history)-1]
	m.histories[id] = history[:len(history)-1]
	return &last, nil
}

// SaveEventEvaluation stores the transient evaluation
func (m *MockStorage) SaveEventEvaluation(ctx context.Context, id uuid.UUID, eval *state.EventEvaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *eval
	m.events[id] = &copied
	return nil
}

// LoadEventEvaluation returns the stored evaluation, or nil
func (m *MockStorage) LoadEventEvaluation(ctx context.Context, id uuid.UUID) (*state.EventEvaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	eval, ok := m.events[id]
	if !ok {
		return nil, nil
	}
	copied := *eval
	return &copied, nil
}

// AcquireBusy mocks the in-flight turn flag
func (m *MockStorage) AcquireBusy(ctx context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.busy[id] {
		return false, nil
	}
	m.busy[id] = true
	return true, nil
}

// ReleaseBusy clears the in-flight turn flag
func (m *MockStorage) ReleaseBusy(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.busy, id)
	return nil
}
