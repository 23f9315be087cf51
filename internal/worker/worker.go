// Package worker runs the background event-evaluation loop: after each
// resolved turn the API enqueues a task, and the worker scans the
// narration for character-significant events off the request path.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services/queue"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/agents"
)

const dequeueTimeout = 5 * time.Second

// Worker consumes evaluation tasks from the queue
type Worker struct {
	id      string
	queue   *queue.EventQueue
	storage storage.Storage
	events  *agents.EventAgent
	log     *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a new worker instance
func New(eventQueue *queue.EventQueue, store storage.Storage, events *agents.EventAgent, log *slog.Logger, workerID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}

	return &Worker{
		id:      workerID,
		queue:   eventQueue,
		storage: store,
		events:  events,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start begins processing tasks from the queue
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id)

	for {
		select {
		case <-w.ctx.Done():
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		default:
			if err := w.processNext(); err != nil {
				w.log.Error("Error processing task", "error", err, "worker_id", w.id)
				// Continue processing even on error
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

// processNext pulls the next task from the queue and processes it
func (w *Worker) processNext() error {
	// Block waiting for the next task, with a timeout so shutdown is
	// checked periodically.
	ctx, cancel := context.WithTimeout(w.ctx, dequeueTimeout)
	defer cancel()

	task, err := w.queue.BlockingDequeue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// Timeout or shutdown, not a real failure.
			return nil
		}
		return fmt.Errorf("failed to dequeue task: %w", err)
	}
	if task == nil {
		return nil
	}

	return w.Process(w.ctx, task)
}

// Process runs the event scan for one task and stores the result.
func (w *Worker) Process(ctx context.Context, task *queue.EvaluationTask) error {
	start := time.Now()
	w.log.Info("Processing evaluation task",
		"worker_id", w.id,
		"session_id", task.SessionID.String(),
		"member_id", task.MemberID,
	)

	session, err := w.storage.LoadSession(ctx, task.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil {
		// Session deleted since the task was queued.
		w.log.Warn("Session gone, dropping task", "session_id", task.SessionID.String())
		return nil
	}

	member, ok := session.Party.Member(task.MemberID)
	if !ok {
		w.log.Warn("Member gone, dropping task", "session_id", task.SessionID.String(), "member_id", task.MemberID)
		return nil
	}
	req := agents.EventRequest{
		Character:   member.Character,
		LatestStory: task.StoryText,
	}
	if stats, ok := session.PartyStats.StatsFor(task.MemberID); ok {
		req.Abilities = stats.SpellsAndAbilities
	}

	eval, err := w.events.EvaluateEvents(ctx, req)
	if err != nil {
		return fmt.Errorf("event evaluation failed: %w", err)
	}
	eval.MemberID = task.MemberID
	if err := w.storage.SaveEventEvaluation(ctx, task.SessionID, eval); err != nil {
		return fmt.Errorf("failed to store evaluation: %w", err)
	}

	w.log.Info("Evaluation task processed",
		"worker_id", w.id,
		"session_id", task.SessionID.String(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
