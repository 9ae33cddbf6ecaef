package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// pointNamespace is the UUIDv5 namespace used to derive deterministic Qdrant
// point IDs from document IDs. Must never change — it is what makes a
// re-upsert of the same filename land on the same point.
var pointNamespace = uuid.MustParse("8a6e1f0c-2d4b-4f3a-9c1e-5b7d2e8f4a61")

// scrollPageSize is the number of points fetched per Scroll page in ListIDs.
const scrollPageSize = 256

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the Qdrant collection name to use.
	Collection string

	// VectorSize is the dimensionality of the embeddings stored in this collection.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance.
// Document IDs (filenames) are mapped to deterministic UUIDv5 point IDs;
// the original ID travels in the payload under "source".
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client

	// cfg holds the resolved configuration for this store.
	cfg *QdrantConfig
}

// NewQdrantStore creates a new QdrantStore, ensuring the target collection
// exists (creating it if necessary), and returns a ready-to-use VectorStore.
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	clientCfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	}

	client, err := qdrant.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	store := &QdrantStore{client: client, cfg: cfg}
	if err := store.ensureCollection(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// Client exposes the underlying gRPC client for health probes.
func (s *QdrantStore) Client() *qdrant.Client { return s.client }

// ensureCollection creates the Qdrant collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", s.cfg.Collection, err)
	}

	return nil
}

// pointID derives the deterministic Qdrant point UUID for a document ID.
func pointID(docID string) *qdrant.PointId {
	return qdrant.NewIDUUID(uuid.NewSHA1(pointNamespace, []byte(docID)).String())
}

// Upsert stores or updates a batch of documents with their embeddings.
// Each embedding must be parallel to its document; this method does not
// call the Embedder — the ingestion layer handles end-to-end upsert.
func (s *QdrantStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("qdrant: %d documents but %d embeddings", len(docs), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		payload := map[string]interface{}{
			"content": doc.Content,
			"source":  doc.ID,
		}
		for k, v := range doc.Metadata {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search performs a cosine similarity search and returns the top-k results.
// When withVectors is true each result carries its stored embedding so
// callers can run MMR re-ranking without a second round trip.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float32, topK int, withVectors bool) ([]Document, error) {
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.cfg.Collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(withVectors),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		doc := Document{
			Score:    r.Score,
			Metadata: make(map[string]string),
		}
		if p := r.Payload; p != nil {
			if v, ok := p["content"]; ok {
				doc.Content = v.GetStringValue()
			}
			if v, ok := p["source"]; ok {
				doc.ID = v.GetStringValue()
			}
			for k, v := range p {
				if k != "content" && k != "source" {
					doc.Metadata[k] = v.GetStringValue()
				}
			}
		}
		if withVectors {
			if v := r.GetVectors().GetVector(); v != nil {
				doc.Embedding = v.GetData()
			}
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// Delete removes documents from the collection by their document IDs.
// IDs not present in the collection are ignored by Qdrant.
func (s *QdrantStore) Delete(ctx context.Context, ids []string) error {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, pointID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}

	return nil
}

// ListIDs scrolls the whole collection and returns every stored document ID,
// materialised from the "source" payload field.
func (s *QdrantStore) ListIDs(ctx context.Context) ([]string, error) {
	return collectIDs(ctx, func(ctx context.Context, offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
		limit := uint32(scrollPageSize)
		return s.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: s.cfg.Collection,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude("source"),
		})
	})
}

// collectIDs drains a scroll cursor page by page, gathering the "source"
// payload of every point. The scroll offset is an inclusive start ID, so each
// page must resume from the exclusive next-page offset the server returns; a
// nil next offset means the cursor is exhausted.
func collectIDs(ctx context.Context, page func(context.Context, *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error)) ([]string, error) {
	var ids []string
	var offset *qdrant.PointId

	for {
		points, next, err := page(ctx, offset)
		if err != nil {
			return nil, fmt.Errorf("qdrant: scroll failed: %w", err)
		}
		for _, p := range points {
			if v, ok := p.Payload["source"]; ok {
				ids = append(ids, v.GetStringValue())
			}
		}
		if next == nil {
			break
		}
		offset = next
	}

	return ids, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
