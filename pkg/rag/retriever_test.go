package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vector []float64
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeStore struct {
	results []Result
	err     error
	gotTopK int
}

func (f *fakeStore) Find(_ context.Context, _ []float64, topK int) ([]Result, error) {
	f.gotTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func newTestRetriever(t *testing.T, embedder Embedder, store VectorStore) *Retriever {
	t.Helper()
	r, err := NewRetriever(embedder, store, slog.New(slog.NewTextHandler(&strings.Builder{}, nil)))
	require.NoError(t, err)
	return r
}

func TestSearch_FiltersThresholdAndSentinels(t *testing.T) {
	store := &fakeStore{results: []Result{
		{Entry: Entry{Question: "q1", Answer: "N/A"}, Similarity: 0.9},
		{Entry: Entry{Question: "q2", Answer: "We encrypt data at rest."}, Similarity: 0.6},
		{Entry: Entry{Question: "q3", Answer: "unanswered"}, Similarity: 0.8},
		{Entry: Entry{Question: "q4", Answer: "  "}, Similarity: 0.95},
		{Entry: Entry{Question: "q5", Answer: "Backups run nightly."}, Similarity: 0.4},
	}}
	r := newTestRetriever(t, &fakeEmbedder{vector: []float64{0.1}}, store)

	results, err := r.Search(context.Background(), "how is data protected?", 5, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "q2", results[0].Question)
	assert.Equal(t, 5, store.gotTopK)
}

func TestSearch_PreservesRankOrder(t *testing.T) {
	store := &fakeStore{results: []Result{
		{Entry: Entry{Question: "first", Answer: "a"}, Similarity: 0.7},
		{Entry: Entry{Question: "second", Answer: "b"}, Similarity: 0.9},
		{Entry: Entry{Question: "third", Answer: "c"}, Similarity: 0.8},
	}}
	r := newTestRetriever(t, &fakeEmbedder{vector: []float64{0.1}}, store)

	results, err := r.Search(context.Background(), "q", 3, 0.5)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].Question)
	assert.Equal(t, "second", results[1].Question)
	assert.Equal(t, "third", results[2].Question)
}

func TestSearch_Defaults(t *testing.T) {
	store := &fakeStore{}
	r := newTestRetriever(t, &fakeEmbedder{vector: []float64{0.1}}, store)

	_, err := r.Search(context.Background(), "q", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, store.gotTopK)
}

func TestSearch_EmbedError(t *testing.T) {
	r := newTestRetriever(t, &fakeEmbedder{err: errors.New("boom")}, &fakeStore{})

	_, err := r.Search(context.Background(), "q", 5, 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding query failed")
}

func TestContext_FormatsNumberedExamples(t *testing.T) {
	store := &fakeStore{results: []Result{
		{Entry: Entry{Question: "Is SSO supported?", Answer: "Yes, via SAML 2.0."}, Similarity: 0.9},
		{Entry: Entry{Question: "Where is data stored?", Answer: "In region-local data centers."}, Similarity: 0.8},
	}}
	r := newTestRetriever(t, &fakeEmbedder{vector: []float64{0.1}}, store)

	got := r.Context(context.Background(), "auth question", 5, 0.5)
	want := "Example 1:\nQ: Is SSO supported?\nA: Yes, via SAML 2.0.\n\nExample 2:\nQ: Where is data stored?\nA: In region-local data centers."
	assert.Equal(t, want, got)
}

func TestContext_FallbackOnEmpty(t *testing.T) {
	r := newTestRetriever(t, &fakeEmbedder{vector: []float64{0.1}}, &fakeStore{})

	got := r.Context(context.Background(), "q", 5, 0.5)
	assert.Equal(t, FallbackContext, got)
}

func TestContext_NeverFailsOnRetrievalError(t *testing.T) {
	r := newTestRetriever(t, &fakeEmbedder{vector: []float64{0.1}}, &fakeStore{err: errors.New("astra down")})

	got := r.Context(context.Background(), "q", 5, 0.5)
	assert.Equal(t, "No context available due to retrieval error.", got)
}

func TestFormatContext_Empty(t *testing.T) {
	assert.Equal(t, FallbackContext, FormatContext(nil))
}
