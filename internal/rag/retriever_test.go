package rag

import (
	"context"
	"fmt"
	"testing"
)

// fakeEmbedder returns a fixed vector for any input text.
type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

// fakeStore serves a canned candidate list and records search parameters.
type fakeStore struct {
	docs        []Document
	err         error
	lastTopK    int
	lastVectors bool
}

func (f *fakeStore) Upsert(context.Context, []Document, [][]float32) error { return nil }

func (f *fakeStore) Search(_ context.Context, _ []float32, topK int, withVectors bool) ([]Document, error) {
	f.lastTopK = topK
	f.lastVectors = withVectors
	if f.err != nil {
		return nil, f.err
	}
	if topK > len(f.docs) {
		topK = len(f.docs)
	}
	return f.docs[:topK], nil
}

func (f *fakeStore) Delete(context.Context, []string) error     { return nil }
func (f *fakeStore) ListIDs(context.Context) ([]string, error)  { return nil, nil }
func (f *fakeStore) Close() error                               { return nil }

func Test_Retrieve_EmptyStoreYieldsEmptyResultNotError(t *testing.T) {
	t.Parallel()

	r, err := NewMMRRetriever(&fakeEmbedder{vec: []float32{1, 0}}, &fakeStore{}, 0, 0, 0)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	docs, err := r.Retrieve(context.Background(), "summarize the job description", 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("want empty result, got %d docs", len(docs))
	}
}

func Test_Retrieve_FetchesCandidatePoolWithVectors(t *testing.T) {
	t.Parallel()

	store := &fakeStore{docs: []Document{
		{ID: "a.pdf", Score: 0.9, Embedding: []float32{1, 0}},
	}}
	r, err := NewMMRRetriever(&fakeEmbedder{vec: []float32{1, 0}}, store, 2, 5, 0.7)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	if _, err := r.Retrieve(context.Background(), "query", 0); err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if store.lastTopK != 5 {
		t.Errorf("want fetchK=5 candidates requested, got %d", store.lastTopK)
	}
	if !store.lastVectors {
		t.Error("want vectors requested for MMR re-ranking")
	}
}

func Test_Retrieve_EmbedderFailurePropagates(t *testing.T) {
	t.Parallel()

	r, err := NewMMRRetriever(&fakeEmbedder{err: fmt.Errorf("model offline")}, &fakeStore{}, 0, 0, 0)
	if err != nil {
		t.Fatalf("new retriever: %v", err)
	}

	if _, err := r.Retrieve(context.Background(), "query", 0); err == nil {
		t.Error("want error when embedder fails, got nil")
	}
}

func Test_MMRSelect_PrefersDiverseSecondPick(t *testing.T) {
	t.Parallel()

	// Candidate b is a near-duplicate of a; c is less relevant but orthogonal.
	// With a diversity-weighted lambda the second pick must be c, not b.
	candidates := []Document{
		{ID: "a.pdf", Score: 0.95, Embedding: []float32{1, 0}},
		{ID: "b.pdf", Score: 0.94, Embedding: []float32{0.999, 0.01}},
		{ID: "c.pdf", Score: 0.60, Embedding: []float32{0, 1}},
	}

	got := mmrSelect(candidates, 2, 0.5)

	if len(got) != 2 {
		t.Fatalf("want 2 selections, got %d", len(got))
	}
	if got[0].ID != "a.pdf" {
		t.Errorf("first pick must be most relevant, got %s", got[0].ID)
	}
	if got[1].ID != "c.pdf" {
		t.Errorf("second pick must be the diverse candidate, got %s", got[1].ID)
	}
}

func Test_MMRSelect_PureRelevanceKeepsStoreOrder(t *testing.T) {
	t.Parallel()

	candidates := []Document{
		{ID: "a.pdf", Score: 0.9, Embedding: []float32{1, 0}},
		{ID: "b.pdf", Score: 0.8, Embedding: []float32{1, 0}},
		{ID: "c.pdf", Score: 0.7, Embedding: []float32{1, 0}},
	}

	got := mmrSelect(candidates, 3, 1.0)

	want := []string{"a.pdf", "b.pdf", "c.pdf"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("pick %d: want %s, got %s", i, id, got[i].ID)
		}
	}
}

func Test_MMRSelect_Deterministic(t *testing.T) {
	t.Parallel()

	candidates := []Document{
		{ID: "a.pdf", Score: 0.9, Embedding: []float32{1, 0, 0}},
		{ID: "b.pdf", Score: 0.85, Embedding: []float32{0.9, 0.1, 0}},
		{ID: "c.pdf", Score: 0.8, Embedding: []float32{0, 1, 0}},
		{ID: "d.pdf", Score: 0.75, Embedding: []float32{0, 0, 1}},
	}

	first := mmrSelect(candidates, 3, 0.7)
	for range 10 {
		again := mmrSelect(candidates, 3, 0.7)
		for i := range first {
			if first[i].ID != again[i].ID {
				t.Fatalf("selection not deterministic: %v vs %v", first, again)
			}
		}
	}
}

func Test_MMRSelect_KLargerThanCandidates(t *testing.T) {
	t.Parallel()

	candidates := []Document{{ID: "only.pdf", Score: 0.5}}
	got := mmrSelect(candidates, 10, 0.7)
	if len(got) != 1 {
		t.Errorf("want 1 result, got %d", len(got))
	}
}

func Test_CosineSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"empty", nil, []float32{1}, 0},
		{"mismatched length", []float32{1, 0}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-4 || diff < -1e-4 {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}
