package rag

import (
	"fmt"
	"sort"
	"strings"
)

// NoContextSentinel is returned by FormatContext when retrieval produced no
// documents. The system prompt instructs the model how to answer when it
// sees no job description context.
const NoContextSentinel = "No relevant job descriptions found for this query."

// FormatContext renders retrieved documents into a single prompt-injectable
// block: each document becomes a numbered section of its text followed by an
// inline rendering of its non-empty metadata fields, sections joined by a
// blank line. The function is total — it always returns a usable string.
func FormatContext(docs []Document) string {
	if len(docs) == 0 {
		return NoContextSentinel
	}

	parts := make([]string, 0, len(docs))
	for i, doc := range docs {
		var b strings.Builder
		fmt.Fprintf(&b, "Job Description %d:\n%s", i+1, doc.Content)
		if meta := formatMetadata(doc); meta != "" {
			fmt.Fprintf(&b, "\n[Metadata: %s]", meta)
		}
		parts = append(parts, b.String())
	}

	return strings.Join(parts, "\n\n")
}

// formatMetadata renders the document ID plus non-empty metadata fields as
// "key: value" pairs joined by " | ". Keys are sorted so output is stable.
func formatMetadata(doc Document) string {
	pairs := make([]string, 0, len(doc.Metadata)+1)
	if doc.ID != "" {
		pairs = append(pairs, "source: "+doc.ID)
	}

	keys := make([]string, 0, len(doc.Metadata))
	for k, v := range doc.Metadata {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pairs = append(pairs, k+": "+doc.Metadata[k])
	}

	return strings.Join(pairs, " | ")
}
