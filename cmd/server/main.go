package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gwi.com/shot-suggestor/internal/api"
	"gwi.com/shot-suggestor/internal/config"
	"gwi.com/shot-suggestor/internal/core"
	"gwi.com/shot-suggestor/internal/events"
	"gwi.com/shot-suggestor/internal/store"
)

func newTextGenerator() (core.TextGenerator, func()) {
	switch config.AppConfig.LLMProvider {
	case "openai":
		return core.NewOpenAIService(), func() {}
	default:
		svc := core.NewLLMService()
		return svc, svc.Close
	}
}

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	catalogFlag := flag.String("catalog", config.AppConfig.CatalogFile, "YAML file with genres, moods, diffusion models and languages")
	flag.Parse()

	catalog, err := config.LoadCatalog(*catalogFlag)
	if err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	llm, closeLLM := newTextGenerator()
	defer closeLLM()
	log.Printf("Using %s for shot suggestions", config.AppConfig.LLMProvider)

	publisher := events.NewPublisher(config.AppConfig.AMQPURL, config.AppConfig.EventQueue)
	defer publisher.Close()

	// nil when Redis is down; the limiter then lets every request through.
	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}
	limiter := api.NewRateLimiter(rdb, config.AppConfig.RateLimitCapacity, time.Duration(config.AppConfig.RateLimitRefillSec)*time.Second)

	suggestionService := core.NewSuggestionService(llm)
	imageService := core.NewImageService(core.NewDiffusionClient(), suggestionService)
	projectService := core.NewProjectService(dbStore, suggestionService, imageService, publisher, catalog)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(projectService)
	router := api.NewRouter(apiHandler, limiter)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,                                 // Reference images can be several MB
		WriteTimeout: config.AppConfig.DiffusionTimeout + 30*time.Second, // Image generation waits on the diffusion backend
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
