package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/config"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/logger"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services/queue"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/worker"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/pkg/agents"
)

// newLLMService builds one provider from config.
func newLLMService(cfg *config.Config, provider string) (services.LLMService, error) {
	switch strings.ToLower(provider) {
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("gemini API key is required when using gemini provider")
		}
		return services.NewGeminiService(cfg.GeminiAPIKey, cfg.LLMModel, cfg.StoryLanguage, cfg.Temperature), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai API key is required when using openai provider")
		}
		return services.NewOpenAIService(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.StoryLanguage, cfg.Temperature), nil
	case "pollinations":
		return services.NewPollinationsService(cfg.PollinationsURL, cfg.LLMModel, cfg.StoryLanguage, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("invalid LLM provider %q, supported: gemini, openai, pollinations", provider)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Tales Worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL)

	queueClient, err := queue.NewClient(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()
	eventQueue := queue.NewEventQueue(queueClient)
	log.Info("Queue service initialized successfully")

	store, err := storage.NewRedisStorage(cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create storage", "error", err)
		os.Exit(1)
	}
	storageCtx, storageCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer storageCancel()
	if err := store.WaitForConnection(storageCtx); err != nil {
		log.Error("Failed to connect to storage", "error", err)
		os.Exit(1)
	}
	log.Info("Storage service initialized successfully")

	llmService, err := newLLMService(cfg, cfg.LLMProvider)
	if err != nil {
		log.Error("Failed to initialize LLM provider", "error", err)
		os.Exit(1)
	}
	if cfg.FallbackProvider != "" {
		fallback, err := newLLMService(cfg, cfg.FallbackProvider)
		if err != nil {
			log.Error("Failed to initialize fallback provider", "error", err)
			os.Exit(1)
		}
		llmService = services.NewFallbackService(llmService, fallback, log)
	}

	dispatcher := agents.NewDispatcher(llmService, log)
	eventAgent := agents.NewEventAgent(dispatcher, log)

	w := worker.New(eventQueue, store, eventAgent, log, os.Getenv("WORKER_ID"))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("Worker started, waiting for tasks...")

	<-quit
	log.Info("Worker shutdown signal received")

	w.Stop()

	// Give the worker time to finish the current task.
	time.Sleep(2 * time.Second)

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	log.Info("Worker exited")
}
