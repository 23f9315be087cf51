// Dev tool: pushes a sample event-evaluation task onto the queue so the
// background worker can be exercised without running a full turn.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services/queue"
)

func main() {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	client, err := queue.NewClient(redisURL, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer client.Close()

	fmt.Println("Connected to Redis successfully!")

	eventQueue := queue.NewEventQueue(client)
	ctx := context.Background()

	task := &queue.EvaluationTask{
		SessionID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), // Test session ID
		MemberID:  "player_character_1",
		StoryText: "A mysterious figure teaches you the Shadow Step technique before vanishing into the mist.",
	}

	if err := eventQueue.Enqueue(ctx, task); err != nil {
		log.Fatal("Failed to enqueue task:", err)
	}

	fmt.Printf("✅ Enqueued evaluation task for session %s\n", task.SessionID)

	depth, err := eventQueue.Depth(ctx)
	if err != nil {
		log.Fatal("Failed to get queue depth:", err)
	}

	fmt.Printf("\n📊 Queue depth: %d tasks\n", depth)
	fmt.Println("\n💡 Now start the worker to see it process the task!")
	fmt.Println("   Run: go run cmd/worker/main.go")
}
