package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const (
	// DefaultTopK is the number of neighbors requested when the caller
	// passes 0.
	DefaultTopK = 5

	// DefaultSimilarityThreshold drops weak matches when the caller passes
	// a negative threshold.
	DefaultSimilarityThreshold = 0.5

	// FallbackContext is returned when no usable examples pass filtering.
	// It instructs the downstream model to answer from general knowledge
	// instead of fabricating a citation.
	FallbackContext = "No relevant examples found. Use your general knowledge about the organization and business practices."

	// errorContext is returned when retrieval itself fails. Distinct from
	// FallbackContext so operators can tell the two apart in filled
	// documents and logs.
	errorContext = "No context available due to retrieval error."
)

// nonAnswerSentinels are answer values that carry no information. Entries
// whose answer matches one of these (case-insensitively, trimmed) are
// dropped so that absence-of-answer never becomes a few-shot example.
var nonAnswerSentinels = map[string]bool{
	"unanswered": true,
	"nan":        true,
	"none":       true,
	"":           true,
	"n/a":        true,
}

// Retriever embeds questions and searches the knowledge store for similar
// previously answered ones.
type Retriever struct {
	embedder Embedder
	store    VectorStore
	logger   *slog.Logger
}

// NewRetriever constructs a Retriever.
func NewRetriever(embedder Embedder, store VectorStore, logger *slog.Logger) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		store:    store,
		logger:   logger,
	}, nil
}

// Search embeds the query, runs a nearest-neighbor search, and returns the
// results that survive similarity and non-answer filtering, in store rank
// order. Ties keep the store's native order; results are never re-sorted.
func (r *Retriever) Search(ctx context.Context, query string, topK int, threshold float64) ([]Result, error) {
	if topK < 1 {
		topK = DefaultTopK
	}
	if threshold < 0 {
		threshold = DefaultSimilarityThreshold
	}

	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}

	results, err := r.store.Find(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}

	filtered := make([]Result, 0, len(results))
	for _, res := range results {
		if res.Similarity < threshold {
			continue
		}
		if nonAnswerSentinels[strings.ToLower(strings.TrimSpace(res.Answer))] {
			continue
		}
		filtered = append(filtered, res)
	}
	return filtered, nil
}

// Context returns a formatted example block for the given question. It
// never fails: retrieval errors degrade to a fixed no-context sentence and
// a logged warning, because a retrieval outage must not block answer
// generation.
func (r *Retriever) Context(ctx context.Context, question string, topK int, threshold float64) string {
	results, err := r.Search(ctx, question, topK, threshold)
	if err != nil {
		r.logger.Warn("retrieval failed, continuing without context",
			"error", err,
			"question_prefix", prefix(question, 80),
		)
		return errorContext
	}
	return FormatContext(results)
}

// FormatContext renders results as numbered Q/A example blocks in the order
// given. Returns FallbackContext when results is empty.
func FormatContext(results []Result) string {
	if len(results) == 0 {
		return FallbackContext
	}

	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Example %d:\nQ: %s\nA: %s\n", i+1, res.Question, res.Answer)
	}
	return strings.TrimSpace(b.String())
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
