package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/state"
)

const (
	sessionTTL = 7 * 24 * time.Hour
	// busyTTL bounds how long a crashed turn can wedge a session.
	busyTTL = 5 * time.Minute
)

// RedisStorage implements the Storage interface on Redis. Sessions are
// JSON blobs, turn logs are lists, so undo is a plain RPOP.
type RedisStorage struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStorage implements Storage interface
var _ Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance from a redis URL.
func NewRedisStorage(redisURL string, logger *slog.Logger) (*RedisStorage, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	return &RedisStorage{
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

// NewRedisStorageFromClient wraps an existing client, used in tests.
func NewRedisStorageFromClient(client *redis.Client, logger *slog.Logger) *RedisStorage {
	return &RedisStorage{client: client, logger: logger}
}

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func sessionKey(id uuid.UUID) string { return "session:" + id.String() }
func historyKey(id uuid.UUID) string { return "session:" + id.String() + ":actions" }
func eventKey(id uuid.UUID) string   { return "session:" + id.String() + ":events" }
func busyKey(id uuid.UUID) string    { return "session:" + id.String() + ":busy" }

// Session operations

func (r *RedisStorage) SaveSession(ctx context.Context, s *Session) error {
	s.UpdatedAt = time.Now()

	data, err := json.Marshal(s)
	if err != nil {
		r.logger.Error("Failed to marshal session", "uuid", s.ID, "error", err)
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := r.client.Set(ctx, sessionKey(s.ID), string(data), sessionTTL).Err(); err != nil {
		r.logger.Error("Failed to save session", "uuid", s.ID, "error", err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Result()
	if err != nil {
		if err == redis.Nil {
			r.logger.Warn("Session not found", "uuid", id)
			return nil, nil // Return nil for not found
		}
		r.logger.Error("Failed to load session", "uuid", id, "error", err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s Session
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		r.logger.Error("Failed to unmarshal session", "uuid", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

func (r *RedisStorage) DeleteSession(ctx context.Context, id uuid.UUID) error {
	keys := []string{sessionKey(id), historyKey(id), eventKey(id), busyKey(id)}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.Error("Failed to delete session", "uuid", id, "error", err)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Turn log operations

func (r *RedisStorage) AppendActionState(ctx context.Context, id uuid.UUID, action *state.GameActionState) error {
	data, err := json.Marshal(action)
	if err != nil {
		return fmt.Errorf("failed to marshal action state: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, historyKey(id), string(data))
	pipe.Expire(ctx, historyKey(id), sessionTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to append action state", "uuid", id, "error", err)
		return fmt.Errorf("failed to append action state: %w", err)
	}
	return nil
}

func (r *RedisStorage) ActionHistory(ctx context.Context, id uuid.UUID) ([]state.GameActionState, error) {
	entries, err := r.client.LRange(ctx, historyKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load action history: %w", err)
	}

	history := make([]state.GameActionState, 0, len(entries))
	for i, entry := range entries {
		var action state.GameActionState
		if err := json.Unmarshal([]byte(entry), &action); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action %d: %w", i, err)
		}
		history = append(history, action)
	}
	return history, nil
}

func (r *RedisStorage) PopActionState(ctx context.Context, id uuid.UUID) (*state.GameActionState, error) {
	data, err := r.client.RPop(ctx, historyKey(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop action state: %w", err)
	}

	var action state.GameActionState
	if err := json.Unmarshal([]byte(data), &action); err != nil {
		return nil, fmt.Errorf("failed to unmarshal popped action: %w", err)
	}
	return &action, nil
}

// Event evaluation operations

func (r *RedisStorage) SaveEventEvaluation(ctx context.Context, id uuid.UUID, eval *state.EventEvaluation) error {
	data, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("failed to marshal event evaluation: %w", err)
	}
	if err := r.client.Set(ctx, eventKey(id), string(data), sessionTTL).Err(); err != nil {
		return fmt.Errorf("failed to save event evaluation: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadEventEvaluation(ctx context.Context, id uuid.UUID) (*state.EventEvaluation, error) {
	data, err := r.client.Get(ctx, eventKey(id)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load event evaluation: %w", err)
	}

	var eval state.EventEvaluation
	if err := json.Unmarshal([]byte(data), &eval); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event evaluation: %w", err)
	}
	return &eval, nil
}

// Busy flag operations

func (r *RedisStorage) AcquireBusy(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := r.client.SetNX(ctx, busyKey(id), "1", busyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire busy flag: %w", err)
	}
	return ok, nil
}

func (r *RedisStorage) ReleaseBusy(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, busyKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to release busy flag: %w", err)
	}
	return nil
}
