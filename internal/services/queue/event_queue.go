package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const evaluationsKey = "event-evaluations"

// EvaluationTask asks the worker to run the event scan for one member
// after a resolved turn.
type EvaluationTask struct {
	SessionID uuid.UUID `json:"session_id"`
	MemberID  string    `json:"member_id"`
	StoryText string    `json:"story_text"`
}

// EventQueue carries post-turn evaluation tasks from the API to the
// background worker over a Redis list.
type EventQueue struct {
	client *Client
}

// NewEventQueue creates an event queue on the given client.
func NewEventQueue(client *Client) *EventQueue {
	return &EventQueue{client: client}
}

// Enqueue adds an evaluation task to the end of the queue.
func (q *EventQueue) Enqueue(ctx context.Context, task *EvaluationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to serialize evaluation task: %w", err)
	}
	if err := q.client.rdb.RPush(ctx, evaluationsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue evaluation task: %w", err)
	}
	return nil
}

// Dequeue removes and returns the next task. Returns nil if the queue is
// empty.
func (q *EventQueue) Dequeue(ctx context.Context) (*EvaluationTask, error) {
	result, err := q.client.rdb.LPop(ctx, evaluationsKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil // Queue is empty
		}
		return nil, fmt.Errorf("failed to dequeue evaluation task: %w", err)
	}
	return parseTask(result)
}

// BlockingDequeue blocks until a task is available, then returns it.
func (q *EventQueue) BlockingDequeue(ctx context.Context) (*EvaluationTask, error) {
	result, err := q.client.rdb.BLPop(ctx, 0, evaluationsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue evaluation task: %w", err)
	}
	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}
	return parseTask(result[1])
}

// Depth returns the number of queued tasks.
func (q *EventQueue) Depth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, evaluationsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}

// Clear drops every queued task.
func (q *EventQueue) Clear(ctx context.Context) error {
	if err := q.client.rdb.Del(ctx, evaluationsKey).Err(); err != nil {
		return fmt.Errorf("failed to clear evaluation queue: %w", err)
	}
	return nil
}

func parseTask(data string) (*EvaluationTask, error) {
	var task EvaluationTask
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("failed to parse evaluation task: %w", err)
	}
	return &task, nil
}
