// Package rag retrieves previously answered questions from a hosted vector
// store and formats them as few-shot context for answer generation.
//
// The knowledge store is read-only from formfill's perspective: entries are
// loaded by a separate ingestion pipeline, this package only queries them.
package rag

import "context"

// Embedder converts text into a fixed-length vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// VectorStore performs nearest-neighbor search over knowledge entries.
type VectorStore interface {
	// Find returns the topK entries nearest to the given vector, most
	// similar first, each with its similarity score.
	Find(ctx context.Context, vector []float64, topK int) ([]Result, error)
}

// Entry is a persisted question/answer record in the knowledge store.
type Entry struct {
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Category   string `json:"category,omitempty"`
	SourceFile string `json:"source_file,omitempty"`
}

// Result is a knowledge entry with its similarity to the query vector.
// Results are ephemeral, scoped to a single answer-generation call.
type Result struct {
	Entry
	Similarity float64 `json:"similarity"`
}
