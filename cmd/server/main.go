package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"kakehashi/internal/auth"
	"kakehashi/internal/config"
	"kakehashi/internal/handler"
	"kakehashi/internal/handler/sse"
	"kakehashi/internal/middleware"
	"kakehashi/internal/repository/postgres"
	postgresChat "kakehashi/internal/repository/postgres/chat"
	chatsvc "kakehashi/internal/service/chat"
	"kakehashi/internal/service/chat/agent"
	"kakehashi/internal/service/chat/prompts"
	"kakehashi/internal/service/chat/providers/anthropic"
	"kakehashi/internal/service/chat/streaming"
	"kakehashi/internal/service/chat/tools"
	"kakehashi/internal/service/embedding"
	"kakehashi/internal/service/feedback"
	"kakehashi/internal/service/ingest"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging. Debug defaults on in dev/test, off in prod,
	// and can be forced either way with the DEBUG env var.
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}

	logOutput := io.Writer(os.Stdout)
	if dir := os.Getenv("LOG_DIR"); dir != "" {
		logFile, err := config.SetupLogFile(dir, 10)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOutput = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOutput, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"model", cfg.Model,
	)

	// Create JWT verifier for Supabase authentication
	jwtVerifier, err := auth.NewJWTVerifier(cfg.SupabaseJWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Apply pending schema migrations
	if err := postgres.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("migrations applied")

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Logger: logger,
	}
	conversationRepo := postgresChat.NewConversationRepository(repoConfig)
	chunkRepo := postgresChat.NewChunkRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool, logger)

	// Embeddings (Gemini)
	embedder, err := embedding.NewGenAIEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}

	// Agent tools
	toolConfig := tools.DefaultConfig()
	wikipediaTool, err := tools.NewWikipediaTool(nil, toolConfig, logger)
	if err != nil {
		log.Fatalf("Failed to create wikipedia tool: %v", err)
	}
	defer wikipediaTool.Close()
	retrieverTool := tools.NewRetrieverTool(embedder, chunkRepo, toolConfig, logger)

	toolRegistry := tools.NewRegistry()
	toolRegistry.Register(retrieverTool.Definition(), retrieverTool)
	toolRegistry.Register(wikipediaTool.Definition(), wikipediaTool)

	// Model provider and reasoning loop
	provider, err := anthropic.NewProvider(cfg.AnthropicAPIKey)
	if err != nil {
		log.Fatalf("Failed to create model provider: %v", err)
	}
	loop := agent.NewLoop(provider, toolRegistry, cfg.Model, logger)

	// Prompt templates
	promptsPath := cfg.PromptsFile
	if cfg.FallbackPrompts {
		promptsPath = ""
	}
	promptLibrary, err := prompts.NewLibrary(promptsPath, logger)
	if err != nil {
		log.Fatalf("Failed to load prompts: %v", err)
	}

	// Streaming sessions with background cleanup
	sessions := streaming.NewRegistry(1*time.Minute, 10*time.Minute)
	go sessions.StartCleanup(ctx)

	// Services
	chatService := chatsvc.NewService(conversationRepo, loop, sessions, promptLibrary, txManager, logger)

	traceClient := feedback.NewLangSmithClient(cfg.LangSmithBaseURL, cfg.LangSmithAPIKey, nil)
	feedbackService := feedback.NewService(traceClient, conversationRepo, logger)

	ingestService := ingest.NewService(embedder, chunkRepo, logger)

	// Handlers
	chatHandler := handler.NewChatHandler(chatService, sse.DefaultConfig(), logger)
	conversationHandler := handler.NewConversationHandler(chatService, logger)
	feedbackHandler := handler.NewFeedbackHandler(feedbackService, logger)
	documentsHandler := handler.NewDocumentsHandler(ingestService, logger)
	healthHandler := handler.NewHealthHandler(pool)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", healthHandler.Check)

	// Chat routes
	mux.HandleFunc("POST /api/chat", chatHandler.SendMessage)
	mux.HandleFunc("POST /api/chat/{id}", chatHandler.SendMessage)
	mux.HandleFunc("GET /api/chat/sessions/{id}/stream", chatHandler.StreamSession)

	// Conversation routes ("active" must come before the {id} route)
	mux.HandleFunc("GET /api/conversations", conversationHandler.List)
	mux.HandleFunc("GET /api/conversations/active", conversationHandler.GetActive)
	mux.HandleFunc("GET /api/conversations/{id}", conversationHandler.Get)

	// Feedback and trace routes
	mux.HandleFunc("POST /api/feedback", feedbackHandler.Create)
	mux.HandleFunc("GET /api/feedback/{id}", feedbackHandler.Get)
	mux.HandleFunc("PATCH /api/feedback/{id}", feedbackHandler.Update)
	mux.HandleFunc("POST /api/runs/{id}/share", feedbackHandler.ShareRun)

	// Course material ingestion
	mux.HandleFunc("POST /api/documents/chunks", documentsHandler.IngestChunks)

	// Build middleware chain
	var root http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	root = middleware.Auth(jwtVerifier, logger, "/health")(root)
	root = middleware.Recovery(logger)(root)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
