// Aitd is the AIT backend daemon: it indexes tenant documents into a
// vector store and serves retrieval and grounded chat over HTTP.
//
// Usage:
//
//	# Start with defaults (~/.config/aitd/config.yaml if present)
//	aitd serve
//
//	# Explicit config file
//	aitd serve --config ./config.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Galitein/Ai1st-ai/internal/composer"
	"github.com/Galitein/Ai1st-ai/internal/config"
	"github.com/Galitein/Ai1st-ai/internal/embeddings"
	"github.com/Galitein/Ai1st-ai/internal/httpapi"
	"github.com/Galitein/Ai1st-ai/internal/indexer"
	"github.com/Galitein/Ai1st-ai/internal/ledger"
	"github.com/Galitein/Ai1st-ai/internal/loader"
	"github.com/Galitein/Ai1st-ai/internal/logging"
	"github.com/Galitein/Ai1st-ai/internal/retriever"
	"github.com/Galitein/Ai1st-ai/internal/vectorstore"
)

var (
	configPath string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "aitd",
	Short:   "AIT backend daemon",
	Long:    `aitd indexes tenant documents into a vector store and serves semantic search and grounded chat over HTTP.`,
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
}

// run initializes all dependencies and blocks until the context is
// cancelled or the server fails.
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // stdout sync failure is not actionable

	embedder, err := embeddings.NewProvider(cfg.Embeddings)
	if err != nil {
		return fmt.Errorf("initializing embeddings: %w", err)
	}
	defer embedder.Close()

	store, err := newStore(cfg.VectorStore)
	if err != nil {
		return fmt.Errorf("initializing vector store: %w", err)
	}
	defer store.Close()

	records, err := ledger.NewSQLiteRecordManager(cfg.Ledger.DataDir)
	if err != nil {
		return fmt.Errorf("initializing ledger: %w", err)
	}
	defer records.Close()

	ix := indexer.New(store, records, embedder, logger)
	rt := retriever.New(store, embedder, logger)
	cp := composer.New(rt, composer.NewOpenAIGenerator(cfg.Chat.OpenAI), cfg.Chat.SystemPrompt, logger)

	loaders, err := buildLoaders(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing loaders: %w", err)
	}

	server, err := httpapi.NewServer(loaders, ix, rt, cp, logger, &httpapi.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		SearchLimit:     cfg.Retrieval.Limit,
		SearchThreshold: cfg.Retrieval.Threshold,
	})
	if err != nil {
		return fmt.Errorf("initializing http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("aitd started",
		zap.String("version", version),
		zap.String("vectorstore", cfg.VectorStore.Backend),
		zap.String("embeddings", cfg.Embeddings.Provider),
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// newStore selects the vector store backend.
func newStore(cfg config.VectorStoreConfig) (vectorstore.Store, error) {
	switch cfg.Backend {
	case "qdrant":
		return vectorstore.NewQdrantStore(cfg.Qdrant)
	case "chromem":
		return vectorstore.NewChromemStore(cfg.Chromem)
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
}

// buildLoaders registers every source adapter the configuration enables.
func buildLoaders(ctx context.Context, cfg *config.Config, logger *zap.Logger) (loader.Registry, error) {
	registry := loader.Registry{
		loader.DestinationLocal:  loader.NewLocalLoader(cfg.Loader.LocalDir, logger),
		loader.DestinationURL:    loader.NewURLLoader(nil, logger),
		loader.DestinationTrello: loader.NewTrelloLoader(nil, logger),
		loader.DestinationEmail:  loader.NewEmailLoader(logger),
	}

	// Drive needs a folder id and ambient Google credentials
	// (GOOGLE_APPLICATION_CREDENTIALS); without a folder id the
	// destination stays unregistered.
	if cfg.Loader.DriveFolderID != "" {
		ts, err := googleTokenSource(ctx)
		if err != nil {
			return nil, fmt.Errorf("google credentials: %w", err)
		}
		drive, err := loader.NewDriveLoader(ctx, ts, cfg.Loader.DriveFolderID, logger)
		if err != nil {
			return nil, err
		}
		registry[loader.DestinationGoogle] = drive
	}
	return registry, nil
}
