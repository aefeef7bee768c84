// Ragd is a retrieval-augmented generation daemon.
//
// It ingests documents into a Qdrant-backed chunk store and answers
// questions over them through OpenAI-compatible chat backends, with an
// HTTP API for uploads and chat.
//
// Configuration is loaded from ~/.config/ragd/config.yaml and overridden
// by environment variables. See internal/config for details.
//
// Usage:
//
//	# Start the daemon with defaults
//	ragd
//
//	# Configure via environment
//	SERVER_PORT=9090 QDRANT_HOST=qdrant.internal ragd
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/chat"
	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/embeddings"
	httpapi "github.com/fyrsmithlabs/ragd/internal/http"
	"github.com/fyrsmithlabs/ragd/internal/identity"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/internal/qdrant"
	"github.com/fyrsmithlabs/ragd/internal/rag"
	"github.com/fyrsmithlabs/ragd/internal/tools"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ragd",
	Short: "Retrieval-augmented generation daemon",
	Long: `ragd ingests documents into a Qdrant-backed chunk store and answers
questions over them through OpenAI-compatible chat backends.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("ragd by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"path to config file (default ~/.config/ragd/config.yaml)")
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// run wires all services and blocks until the context is cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes the logger
//  3. Connects to Qdrant and creates the vector store gateway
//  4. Creates the embedding client and ingestion pipeline
//  5. Configures chat backends, tools, and the retrieval orchestrator
//  6. Starts the HTTP server
//  7. Performs graceful shutdown on context cancellation
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting ragd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("qdrant", fmt.Sprintf("%s:%d", cfg.Qdrant.Host, cfg.Qdrant.Port)),
		zap.String("collection", cfg.VectorStore.Collection))

	client, err := qdrant.NewGRPCClient(&qdrant.ClientConfig{
		Host:           cfg.Qdrant.Host,
		Port:           cfg.Qdrant.Port,
		UseTLS:         cfg.Qdrant.UseTLS,
		APIKey:         cfg.Qdrant.APIKey,
		RequestTimeout: cfg.Qdrant.RequestTimeout,
		RetryAttempts:  cfg.Qdrant.RetryAttempts,
	}, logger.Named("qdrant"))
	if err != nil {
		return fmt.Errorf("connecting to qdrant: %w", err)
	}
	defer client.Close()

	store, err := vectorstore.NewService(client, vectorstore.Config{
		Collection: cfg.VectorStore.Collection,
		VectorSize: cfg.VectorStore.VectorSize,
	}, logger.Named("vectorstore"))
	if err != nil {
		return fmt.Errorf("creating vector store gateway: %w", err)
	}

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey,
	})
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}

	ingestSvc, err := ingest.NewService(store, embedder,
		identity.NewGenerator(logger.Underlying()),
		ingest.Config{
			ChunkSize: cfg.Ingest.ChunkSize,
			Tolerance: cfg.Ingest.ChunkTolerance,
		}, logger.Named("ingest"))
	if err != nil {
		return fmt.Errorf("creating ingestion service: %w", err)
	}

	dispatcher, err := initChat(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating chat dispatcher: %w", err)
	}

	ragSvc, err := rag.NewService(dispatcher, embedder, store, rag.Config{
		PromptTemplate:     cfg.RAG.PromptTemplate,
		RewriteTemplate:    cfg.RAG.RewriteTemplate,
		HydeTemplate:       cfg.RAG.HydeTemplate,
		SearchLimit:        cfg.RAG.SearchLimit,
		ChunkSize:          cfg.Ingest.ChunkSize,
		DefaultTemperature: cfg.Chat.DefaultTemperature,
	}, logger.Named("rag"))
	if err != nil {
		return fmt.Errorf("creating retrieval orchestrator: %w", err)
	}

	server, err := httpapi.NewServer(ingestSvc, ragSvc, store,
		chat.NewSessionStore(), logger.Named("http"),
		&httpapi.Config{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
		})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down",
		zap.Duration("timeout", cfg.Server.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// initLogger builds the structured logger from the logging section.
func initLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	logCfg := logging.NewDefaultConfig()
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format
	return logging.NewLogger(logCfg)
}

// initChat builds one OpenAI-compatible backend per configured preset and
// wires them to the shared tool registry.
func initChat(cfg *config.Config, logger *logging.Logger) (*chat.Dispatcher, error) {
	registry := tools.Default()

	backends := make([]chat.Backend, 0, len(cfg.Chat.Backends))
	for name, preset := range cfg.Chat.Backends {
		backend, err := chat.NewOpenAIBackend(chat.OpenAIConfig{
			Name:            name,
			BaseURL:         preset.BaseURL,
			Model:           preset.Model,
			APIKey:          preset.APIKey,
			ReasoningMarker: preset.ReasoningMarker,
		}, registry, logger.Named("chat").With(zap.String("backend", name)))
		if err != nil {
			return nil, fmt.Errorf("backend %q: %w", name, err)
		}
		backends = append(backends, backend)
	}

	backendRegistry, err := chat.NewRegistry(cfg.Chat.DefaultBackend, backends...)
	if err != nil {
		return nil, err
	}
	return chat.NewDispatcher(backendRegistry, logger.Named("chat"))
}
