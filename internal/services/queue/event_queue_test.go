package queue

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newTestQueue(t *testing.T) *EventQueue {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEventQueue(NewClientFromRedis(rdb, logger))
}

func TestEventQueue_FIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	sessionID := uuid.New()

	tasks := []*EvaluationTask{
		{SessionID: sessionID, MemberID: "player_character_1", StoryText: "first turn"},
		{SessionID: sessionID, MemberID: "player_character_2", StoryText: "second turn"},
	}
	for _, task := range tasks {
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}

	depth, err := q.Depth(ctx)
	if err != nil || depth != 2 {
		t.Fatalf("Depth = %d, %v", depth, err)
	}

	for i, want := range tasks {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue %d failed: %v", i, err)
		}
		if got == nil || got.MemberID != want.MemberID || got.StoryText != want.StoryText {
			t.Errorf("task %d = %+v, want %+v", i, got, want)
		}
		if got.SessionID != sessionID {
			t.Errorf("task %d session = %s", i, got.SessionID)
		}
	}
}

func TestEventQueue_DequeueEmpty(t *testing.T) {
	q := newTestQueue(t)
	task, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if task != nil {
		t.Errorf("expected nil on empty queue, got %+v", task)
	}
}

func TestEventQueue_Clear(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if err := q.Enqueue(ctx, &EvaluationTask{SessionID: uuid.New(), StoryText: "x"}); err != nil {
		t.Fatal(err)
	}
	if err := q.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	depth, err := q.Depth(ctx)
	if err != nil || depth != 0 {
		t.Errorf("Depth after clear = %d, %v", depth, err)
	}
}
