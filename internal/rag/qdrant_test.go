package rag

import (
	"context"
	"fmt"
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

// scrollPoint builds a retrieved point carrying the given document id in its
// "source" payload.
func scrollPoint(num uint64, source string) *qdrant.RetrievedPoint {
	return &qdrant.RetrievedPoint{
		Id:      qdrant.NewIDNum(num),
		Payload: qdrant.NewValueMap(map[string]any{"source": source}),
	}
}

// Test_CollectIDs_ResumesFromNextOffset verifies that pagination resumes from
// the exclusive next-page offset the server returns, rather than re-reading
// the page boundary: every id comes back exactly once and the cursor stops at
// a nil next offset.
func Test_CollectIDs_ResumesFromNextOffset(t *testing.T) {
	t.Parallel()

	pages := []struct {
		points []*qdrant.RetrievedPoint
		next   *qdrant.PointId
	}{
		{
			points: []*qdrant.RetrievedPoint{scrollPoint(1, "a.pdf"), scrollPoint(2, "b.pdf")},
			next:   qdrant.NewIDNum(3),
		},
		{
			points: []*qdrant.RetrievedPoint{scrollPoint(3, "c.pdf"), scrollPoint(4, "d.pdf")},
			next:   qdrant.NewIDNum(5),
		},
		{
			points: []*qdrant.RetrievedPoint{scrollPoint(5, "e.pdf")},
			next:   nil,
		},
	}

	var gotOffsets []*qdrant.PointId
	call := 0
	page := func(_ context.Context, offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
		gotOffsets = append(gotOffsets, offset)
		if call >= len(pages) {
			t.Fatal("cursor did not stop at nil next offset")
		}
		p := pages[call]
		call++
		return p.points, p.next, nil
	}

	ids, err := collectIDs(context.Background(), page)
	if err != nil {
		t.Fatalf("collectIDs: %v", err)
	}

	want := []string{"a.pdf", "b.pdf", "c.pdf", "d.pdf", "e.pdf"}
	if len(ids) != len(want) {
		t.Fatalf("want %d ids, got %d: %v", len(want), len(ids), ids)
	}
	seen := make(map[string]int)
	for i, id := range ids {
		if id != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, id, want[i])
		}
		seen[id]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("id %q returned %d times, want once", id, n)
		}
	}

	// The first page starts from the beginning; each following page must start
	// from the offset the previous page returned.
	if gotOffsets[0] != nil {
		t.Errorf("first page offset: want nil, got %v", gotOffsets[0])
	}
	for i := 1; i < len(gotOffsets); i++ {
		if gotOffsets[i].GetNum() != pages[i-1].next.GetNum() {
			t.Errorf("page %d offset = %v, want %v", i, gotOffsets[i], pages[i-1].next)
		}
	}
}

func Test_CollectIDs_PropagatesPageError(t *testing.T) {
	t.Parallel()

	page := func(context.Context, *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
		return nil, nil, fmt.Errorf("connection reset")
	}

	if _, err := collectIDs(context.Background(), page); err == nil {
		t.Error("expected error from failing page fetch")
	}
}
