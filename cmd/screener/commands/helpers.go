package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/recruitops/screener-go/internal/embedder"
	"github.com/recruitops/screener-go/internal/rag"
)

// ragComponents bundles the embedding and retrieval collaborators shared by
// the serve, ask, and jd commands.
type ragComponents struct {
	// embedder converts text to dense vectors.
	embedder rag.Embedder
	// store is the Qdrant-backed vector store holding job descriptions.
	store *rag.QdrantStore
	// retriever performs MMR retrieval over the store.
	retriever *rag.MMRRetriever
}

// buildRAG validates the embedding configuration, connects to Qdrant, and
// wires an MMR retriever with the RETRIEVAL_* tuning knobs. The returned
// close function releases the Qdrant connection.
func buildRAG(ctx context.Context, log *slog.Logger) (*ragComponents, func(), error) {
	if err := embedder.ValidateForRAG(log); err != nil {
		return nil, nil, err
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	backend := embedder.Backend()
	log.Info("embedder initialised", slog.String("provider", backend))

	qdrantHost := getEnvOrDefault("QDRANT_HOST", "localhost")
	qdrantPort := getEnvInt("QDRANT_PORT", 6334)
	collection := getEnvOrDefault("QDRANT_COLLECTION", "job-descriptions")
	vectorSize := uint64(embedder.DefaultDimensions(backend)) //nolint:gosec // dimensions are bounded

	store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
		Host:       qdrantHost,
		Port:       qdrantPort,
		Collection: collection,
		VectorSize: vectorSize,
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", qdrantHost, qdrantPort, err)
	}
	log.Info("qdrant store ready",
		slog.String("host", qdrantHost),
		slog.Int("port", qdrantPort),
		slog.String("collection", collection),
	)

	retriever, err := rag.NewMMRRetriever(emb, store,
		getEnvInt("RETRIEVAL_TOP_K", rag.DefaultTopK),
		getEnvInt("RETRIEVAL_FETCH_K", rag.DefaultFetchK),
		getEnvFloat32("RETRIEVAL_LAMBDA", rag.DefaultLambda),
	)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("failed to create retriever: %w", err)
	}

	return &ragComponents{embedder: emb, store: store, retriever: retriever},
		func() { _ = store.Close() }, nil
}

// getEnvOrDefault returns the env var value or fallback when unset/empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the env var parsed as int, or fallback when unset or
// unparsable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat32 returns the env var parsed as float32, or fallback when unset
// or unparsable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
