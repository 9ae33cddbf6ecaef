package rag

import (
	"strings"
	"testing"
)

func Test_FormatContext_EmptyInputReturnsSentinel(t *testing.T) {
	t.Parallel()

	if got := FormatContext(nil); got != NoContextSentinel {
		t.Errorf("nil input: want sentinel, got %q", got)
	}
	if got := FormatContext([]Document{}); got != NoContextSentinel {
		t.Errorf("empty input: want sentinel, got %q", got)
	}
}

func Test_FormatContext_NumberedBlocksInInputOrder(t *testing.T) {
	t.Parallel()

	docs := []Document{
		{ID: "backend.pdf", Content: "Backend engineer, Go and Postgres."},
		{ID: "frontend.pdf", Content: "Frontend engineer, React."},
		{ID: "sre.pdf", Content: "SRE, Kubernetes on-call."},
	}

	got := FormatContext(docs)

	for i, doc := range docs {
		header := "Job Description " + string(rune('1'+i)) + ":"
		if !strings.Contains(got, header) {
			t.Errorf("missing block header %q in output", header)
		}
		if !strings.Contains(got, doc.Content) {
			t.Errorf("missing content for %s", doc.ID)
		}
	}

	// Blocks must appear in input order.
	first := strings.Index(got, "Backend engineer")
	second := strings.Index(got, "Frontend engineer")
	third := strings.Index(got, "SRE")
	if !(first < second && second < third) {
		t.Errorf("blocks out of order: %d, %d, %d", first, second, third)
	}

	if blocks := strings.Count(got, "Job Description "); blocks != 3 {
		t.Errorf("want 3 numbered blocks, got %d", blocks)
	}
}

func Test_FormatContext_MetadataRendering(t *testing.T) {
	t.Parallel()

	docs := []Document{{
		ID:      "platform.pdf",
		Content: "Platform engineer.",
		Metadata: map[string]string{
			"pages":    "2",
			"language": "en",
			"empty":    "",
		},
	}}

	got := FormatContext(docs)

	if !strings.Contains(got, "[Metadata: source: platform.pdf | language: en | pages: 2]") {
		t.Errorf("unexpected metadata rendering: %q", got)
	}
	if strings.Contains(got, "empty") {
		t.Errorf("empty metadata values must be omitted: %q", got)
	}
}

func Test_FormatContext_NoMetadataLineWithoutFields(t *testing.T) {
	t.Parallel()

	got := FormatContext([]Document{{Content: "anonymous text"}})
	if strings.Contains(got, "[Metadata:") {
		t.Errorf("no metadata expected for bare document: %q", got)
	}
}
