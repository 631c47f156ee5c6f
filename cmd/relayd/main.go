package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relay-crm/relay/internal/auth"
	"github.com/relay-crm/relay/internal/config"
	"github.com/relay-crm/relay/internal/embedder"
	"github.com/relay-crm/relay/internal/ingestion"
	"github.com/relay-crm/relay/internal/llm"
	"github.com/relay-crm/relay/internal/repository"
	"github.com/relay-crm/relay/internal/repository/postgres"
	"github.com/relay-crm/relay/internal/retrieval"
	"github.com/relay-crm/relay/internal/scheduler"
	"github.com/relay-crm/relay/internal/server"
	"github.com/relay-crm/relay/internal/service"
	"github.com/relay-crm/relay/internal/vectorstore"
)

func main() {
	// Set up structured logging
	logLevel := slog.LevelInfo
	if os.Getenv("LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("failed to run server", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("starting relay service",
		"http_port", cfg.HTTPPort,
		"environment", cfg.Environment,
		"provider", cfg.Provider,
	)

	// Initialize PostgreSQL
	db, err := postgres.New(ctx, cfg.DatabaseURL, postgres.WithMaxConns(int32(cfg.DatabaseMaxConns)))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	slog.Info("connected to PostgreSQL")

	userRepo := postgres.NewUserRepo(db)
	profileRepo := postgres.NewProfileRepo(db)
	invitationRepo := postgres.NewInvitationRepo(db)
	emailRepo := postgres.NewScheduledEmailRepo(db)

	// Initialize Qdrant vector store
	vectorStore, err := vectorstore.NewQdrantStore(ctx, cfg.QdrantGRPCURL)
	if err != nil {
		return fmt.Errorf("failed to connect to Qdrant: %w", err)
	}
	defer vectorStore.Close()
	slog.Info("connected to Qdrant")

	// Initialize embedder and chat model for the configured provider.
	// A missing credential fails startup here, never at request time.
	embed, chat, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	slog.Info("initialized model provider", "provider", cfg.Provider, "embedding_model", embed.ModelName())

	// Embedding cache
	cache, err := embedder.NewBoltCache(cfg.EmbedCachePath, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to open embedding cache: %w", err)
	}
	defer cache.Close()
	cachedEmbedder := embedder.NewCachedEmbedder(embed, cache, slog.Default())

	// Retrieval pipeline
	pipeline := retrieval.NewPipeline(
		retrieval.NewQueryRewriter(chat, 0, slog.Default()),
		cachedEmbedder,
		vectorStore,
		profileRepo,
		retrieval.NewReranker(chat, retrieval.RerankerConfig{
			ContextTokens:        cfg.RerankContextTokens,
			PromptOverheadTokens: cfg.RerankOverheadTokens,
			AvgRecordTokens:      cfg.RerankRecordTokens,
		}, slog.Default()),
		retrieval.PipelineConfig{TopK: cfg.SearchTopK},
		slog.Default(),
	)

	// Services
	importer := ingestion.NewImporter(profileRepo, vectorStore, cachedEmbedder, cfg.ImportConcurrency, slog.Default())
	searchSvc := service.NewSearchService(pipeline)
	contactSvc := service.NewContactService(profileRepo, vectorStore, cachedEmbedder, importer, slog.Default())
	invitationSvc := service.NewInvitationService(invitationRepo)
	emailSvc := service.NewEmailService(emailRepo, profileRepo)

	// Auth
	jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtCfg.Expiry = cfg.JWTExpiry
	jwtManager := auth.NewJWTManager(jwtCfg)
	authMW := auth.NewMiddleware(userRepo, jwtManager, slog.Default())

	// Follow-up email scheduler
	sched := scheduler.New(
		emailRepo,
		&scheduler.LogSender{Logger: slog.Default()},
		cfg.SchedulerInterval,
		cfg.SchedulerBatchSize,
		slog.Default(),
	)
	go sched.Run(ctx)

	// HTTP server
	httpServer := server.NewHTTPServer(server.HTTPServerConfig{
		Port:           cfg.HTTPPort,
		Logger:         slog.Default(),
		AllowedOrigins: cfg.AllowedOrigins,
		Ready:          db.Ping,
		Auth:           authMW,
		JWT:            jwtManager,
		Search:         searchSvc,
		Contacts:       contactSvc,
		Invitations:    invitationSvc,
		Emails:         emailSvc,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("received shutdown signal", "signal", sig)
	}

	// Graceful shutdown
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown HTTP server", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// buildProvider constructs the embedder and chat model for the configured
// provider.
func buildProvider(cfg *config.Config) (embedder.Embedder, llm.ChatModel, error) {
	switch cfg.Provider {
	case "openai":
		embed, err := embedder.NewOpenAIEmbedder(embedder.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIEmbeddingModel,
		})
		if err != nil {
			return nil, nil, err
		}
		chat, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIChatModel)
		if err != nil {
			return nil, nil, err
		}
		return embed, chat, nil
	case "ollama":
		var opts []embedder.OllamaOption
		if cfg.OllamaURL != "" {
			opts = append(opts, embedder.WithBaseURL(cfg.OllamaURL))
		}
		if cfg.OllamaEmbeddingModel != "" {
			opts = append(opts, embedder.WithModel(cfg.OllamaEmbeddingModel))
		}
		embed, err := embedder.NewOllamaEmbedder(opts...)
		if err != nil {
			return nil, nil, err
		}
		chat := llm.NewOllamaClient(
			llm.WithBaseURL(cfg.OllamaURL),
			llm.WithModel(cfg.OllamaChatModel),
		)
		return embed, chat, nil
	default:
		return nil, nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// Ensure interfaces are satisfied at compile time
var (
	_ repository.UserRepository           = (*postgres.UserRepo)(nil)
	_ repository.ProfileRepository        = (*postgres.ProfileRepo)(nil)
	_ repository.InvitationRepository     = (*postgres.InvitationRepo)(nil)
	_ repository.ScheduledEmailRepository = (*postgres.ScheduledEmailRepo)(nil)
	_ vectorstore.VectorStore             = (*vectorstore.QdrantStore)(nil)
	_ embedder.Embedder                   = (*embedder.OllamaEmbedder)(nil)
	_ embedder.Embedder                   = (*embedder.OpenAIEmbedder)(nil)
	_ llm.ChatModel                       = (*llm.OllamaClient)(nil)
	_ llm.ChatModel                       = (*llm.OpenAIClient)(nil)
)
