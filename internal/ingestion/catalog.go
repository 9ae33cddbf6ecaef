package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/recruitops/screener-go/internal/logging"
	"github.com/recruitops/screener-go/internal/rag"
)

// ErrDuplicateDocument is returned by Add when a document with the same ID is
// already in the store. Re-ingesting the same file must go through Update.
var ErrDuplicateDocument = errors.New("ingestion: document already exists")

// ErrDocumentNotFound is returned by Update when the target document does not
// exist.
var ErrDocumentNotFound = errors.New("ingestion: document not found")

// ErrNoText is returned when a PDF yields no extractable text at all
// (scanned images, empty file).
var ErrNoText = errors.New("ingestion: no extractable text in document")

// Catalog manages the job description corpus: one vector store document per
// uploaded PDF, keyed by filename.
type Catalog struct {
	// extractor parses PDF bytes into per-page text.
	extractor Extractor

	// embedder converts merged document text into an embedding.
	embedder rag.Embedder

	// store persists embedded documents.
	store rag.VectorStore
}

// NewCatalog constructs a Catalog from the provided dependencies.
func NewCatalog(extractor Extractor, embedder rag.Embedder, store rag.VectorStore) (*Catalog, error) {
	if extractor == nil {
		return nil, fmt.Errorf("ingestion: extractor must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	return &Catalog{extractor: extractor, embedder: embedder, store: store}, nil
}

// Add ingests a new job description PDF under the given ID (the filename).
// Returns ErrDuplicateDocument if the ID is already present — existing
// documents are never silently overwritten.
func (c *Catalog) Add(ctx context.Context, id string, data []byte) error {
	ids, err := c.store.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("ingestion: list existing documents: %w", err)
	}
	for _, existing := range ids {
		if existing == id {
			return fmt.Errorf("%w: %s", ErrDuplicateDocument, id)
		}
	}
	return c.ingest(ctx, id, data)
}

// Update replaces an existing job description: the old vectors are deleted,
// then the new content is ingested. The two steps are not atomic — if the
// re-insert fails the document is gone and must be re-added.
// Returns ErrDocumentNotFound if the ID is not present.
func (c *Catalog) Update(ctx context.Context, id string, data []byte) error {
	ids, err := c.store.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("ingestion: list existing documents: %w", err)
	}
	found := false
	for _, existing := range ids {
		if existing == id {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}

	if err := c.store.Delete(ctx, []string{id}); err != nil {
		return fmt.Errorf("ingestion: delete before update: %w", err)
	}
	return c.ingest(ctx, id, data)
}

// Delete removes a job description from the store. Deleting an absent ID is a
// no-op.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, []string{id}); err != nil {
		return fmt.Errorf("ingestion: delete: %w", err)
	}
	return nil
}

// List returns the IDs of all ingested job descriptions.
func (c *Catalog) List(ctx context.Context) ([]string, error) {
	ids, err := c.store.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingestion: list: %w", err)
	}
	return ids, nil
}

// ingest runs extract → merge → embed → upsert for one PDF.
func (c *Catalog) ingest(ctx context.Context, id string, data []byte) error {
	log := logging.FromContext(ctx)

	pages, err := c.extractor.Extract(data)
	if err != nil {
		return fmt.Errorf("ingestion: extract %s: %w", id, err)
	}

	content := mergePages(pages)
	if content == "" {
		return fmt.Errorf("%w: %s", ErrNoText, id)
	}

	embeddings, err := c.embedder.Embed(ctx, []string{content})
	if err != nil {
		return fmt.Errorf("ingestion: embed %s: %w", id, err)
	}

	doc := rag.Document{
		ID:      id,
		Content: content,
		Metadata: map[string]string{
			"pages": strconv.Itoa(len(pages)),
		},
	}
	if err := c.store.Upsert(ctx, []rag.Document{doc}, embeddings); err != nil {
		return fmt.Errorf("ingestion: upsert %s: %w", id, err)
	}

	log.Info("ingested job description",
		"id", id,
		"pages", len(pages),
		"chars", len(content),
	)
	return nil
}
