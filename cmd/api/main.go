package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/config"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/engine"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/handlers"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/logger"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/middleware"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/services/queue"
	"github.com/JayJayBinks/infinite-tales-rpg-sub000/internal/storage"
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

	log.Info("Starting Tales API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"llm_provider", cfg.LLMProvider,
		"model_name", cfg.LLMModel)

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
		log.Info("Fallback provider configured", "provider", cfg.FallbackProvider)
	}

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
	log.Info("Storage connection established successfully")

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

	dispatcher := agents.NewDispatcher(llmService, log)
	gameEngine := engine.New(store, eventQueue, engine.NewAgents(dispatcher, log), log)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(store, log)
	mux.Handle("/health", healthHandler)

	sessionHandler := handlers.NewSessionHandler(gameEngine, store, log)
	mux.Handle("/v1/sessions", sessionHandler)
	mux.Handle("/v1/sessions/", sessionHandler)

	handler := middleware.Logger(mux)
	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays unset so streamed turns are not cut off.
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	if err := store.Close(); err != nil {
		log.Error("Error closing storage connection", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	log.Info("Server exited")
}
