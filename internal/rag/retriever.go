package rag

import (
	"context"
	"fmt"
	"math"
)

// Default MMR parameters. These mirror the retrieval behaviour the service
// was tuned with: a small final set re-ranked out of a modest candidate pool,
// weighted toward relevance but penalising near-duplicate results.
const (
	// DefaultTopK is the number of documents returned per query.
	DefaultTopK = 2
	// DefaultFetchK is the candidate pool size fetched before MMR selection.
	DefaultFetchK = 5
	// DefaultLambda is the relevance/diversity trade-off (1.0 = pure relevance).
	DefaultLambda = 0.7
)

// MMRRetriever implements Retriever by combining an Embedder and a
// VectorStore. It embeds the query, fetches fetchK nearest neighbours with
// their stored vectors, then greedily selects topK results by maximal
// marginal relevance. Deterministic for a fixed index and query embedding.
type MMRRetriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector similarity search.
	store VectorStore

	// topK is the number of results to return when the caller passes 0.
	topK int

	// fetchK is the candidate pool size for the MMR pass.
	fetchK int

	// lambda is the relevance weight in [0,1]; 1-lambda weights diversity.
	lambda float32
}

// NewMMRRetriever constructs an MMRRetriever from the given Embedder and
// VectorStore. Zero-valued parameters fall back to the package defaults.
func NewMMRRetriever(embedder Embedder, store VectorStore, topK, fetchK int, lambda float32) (*MMRRetriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if fetchK <= 0 {
		fetchK = DefaultFetchK
	}
	if fetchK < topK {
		fetchK = topK
	}
	if lambda <= 0 || lambda > 1 {
		lambda = DefaultLambda
	}
	return &MMRRetriever{
		embedder: embedder,
		store:    store,
		topK:     topK,
		fetchK:   fetchK,
		lambda:   lambda,
	}, nil
}

// Retrieve embeds the query and returns up to topK documents selected by
// maximal marginal relevance over the fetchK nearest neighbours.
// An empty store yields an empty slice and a nil error.
func (r *MMRRetriever) Retrieve(ctx context.Context, query string, topK int) ([]Document, error) {
	if topK <= 0 {
		topK = r.topK
	}

	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}

	candidates, err := r.store.Search(ctx, embeddings[0], r.fetchK, true)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	return mmrSelect(candidates, topK, r.lambda), nil
}

// mmrSelect greedily picks up to k documents from candidates, maximising
// lambda*relevance - (1-lambda)*max-similarity-to-already-selected at each
// step. Relevance is the store-assigned query similarity score; inter-result
// similarity is cosine over the stored embeddings. Ties resolve to the
// lowest candidate index, keeping selection deterministic.
func mmrSelect(candidates []Document, k int, lambda float32) []Document {
	if k > len(candidates) {
		k = len(candidates)
	}

	selected := make([]Document, 0, k)
	picked := make([]bool, len(candidates))

	for len(selected) < k {
		best := -1
		var bestScore float32
		for i, c := range candidates {
			if picked[i] {
				continue
			}
			diversity := float32(0)
			for _, s := range selected {
				if sim := cosineSimilarity(c.Embedding, s.Embedding); sim > diversity {
					diversity = sim
				}
			}
			score := lambda*c.Score - (1-lambda)*diversity
			if best == -1 || score > bestScore {
				best = i
				bestScore = score
			}
		}
		picked[best] = true
		selected = append(selected, candidates[best])
	}

	return selected
}

// cosineSimilarity returns the cosine of the angle between a and b.
// Mismatched or empty vectors score 0, so documents without stored
// embeddings never suppress other candidates.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(normA))*math.Sqrt(float64(normB)))
}
