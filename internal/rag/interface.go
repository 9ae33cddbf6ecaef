// Package rag defines the interfaces for retrieval-augmented generation
// components: vector storage, document retrieval, and embedding.
// Concrete implementations (Qdrant, etc.) satisfy these interfaces so the
// chatbot layer never depends on a specific backend.
package rag

import (
	"context"
)

// Document represents one job description stored in or retrieved from the
// vector store. A whole PDF is one Document — pages are merged at ingestion.
type Document struct {
	// ID is the stable unique identifier, here the source filename
	// (e.g. "backend-engineer.pdf").
	ID string

	// Content is the full extracted text of the document.
	Content string

	// Metadata holds arbitrary key-value pairs (source, page count, etc.).
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval (0.0–1.0).
	// Zero value means the score was not computed.
	Score float32

	// Embedding is the stored vector for this document. Populated only when
	// a search explicitly requests vectors (needed for MMR re-ranking).
	Embedding []float32
}

// VectorStore is the interface for persisting and searching document embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or updates a batch of documents with their pre-computed
	// embeddings. The embeddings slice must be parallel to docs —
	// embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search performs a semantic similarity search and returns the top-k
	// most relevant documents for the given query embedding. When withVectors
	// is true each result carries its stored Embedding.
	Search(ctx context.Context, queryEmbedding []float32, topK int, withVectors bool) ([]Document, error)

	// Delete removes documents by their IDs. Deleting an absent ID is a no-op.
	Delete(ctx context.Context, ids []string) error

	// ListIDs returns the full set of document IDs currently in the store.
	ListIDs(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the chatbot to fetch relevant
// job description context for a given query.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns up to topK relevant documents for the given query.
	// An empty store yields an empty slice, not an error.
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}
