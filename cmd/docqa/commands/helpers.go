package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/quilldocs/docqa-go/internal/embedder"
	"github.com/quilldocs/docqa-go/internal/engine"
	"github.com/quilldocs/docqa-go/internal/provider"
	"github.com/quilldocs/docqa-go/internal/rag"
)

// buildVectorStore connects to Qdrant using the QDRANT_* environment
// variables, sizing the collection for the configured embedding backend.
func buildVectorStore(ctx context.Context, log *slog.Logger) (*rag.QdrantStore, error) {
	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "docqa-docs")
	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	vectorSize := uint64(embedder.DefaultDimensions(embBackend)) //nolint:gosec // dimensions are bounded

	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	log.Info("qdrant store ready",
		slog.String("host", host),
		slog.Int("port", port),
		slog.String("collection", collection),
	)
	return store, nil
}

// buildEngine wires the embedder, vector store, and chat model into a ready
// engine. The returned cleanup function closes the store connection.
func buildEngine(ctx context.Context, log *slog.Logger) (*engine.Engine, func(), error) {
	if err := embedder.Validate(log); err != nil {
		return nil, nil, err
	}

	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	store, err := buildVectorStore(ctx, log)
	if err != nil {
		return nil, nil, err
	}

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}

	eng, err := engine.New(emb, store, chatModel, engine.ConfigFromEnv())
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to initialise engine: %w", err)
	}

	cleanup := func() { _ = store.Close() }
	return eng, cleanup, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
