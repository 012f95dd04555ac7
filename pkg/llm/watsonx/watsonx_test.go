package watsonx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/formfill/pkg/llm"
)

// newTestStack starts fake IAM and watsonx.ai servers and returns a client
// pointed at them.
func newTestStack(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int64) {
	t.Helper()

	var tokenCalls atomic.Int64
	iam := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "urn:ibm:params:oauth:grant-type:apikey", r.Form.Get("grant_type"))
		assert.Equal(t, "test-api-key", r.Form.Get("apikey"))
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-bearer",
			"expires_in":   3600,
			"token_type":   "Bearer",
		})
	}))
	t.Cleanup(iam.Close)

	api := httptest.NewServer(handler)
	t.Cleanup(api.Close)

	client, err := New(Config{
		URL:              api.URL,
		APIKey:           "test-api-key",
		IAMTokenURL:      iam.URL,
		ProjectID:        "proj-1",
		ModelID:          "ibm/granite-3-8b-instruct",
		EmbeddingModelID: "ibm/granite-embedding-30m-english",
		Timeout:          5 * time.Second,
	})
	require.NoError(t, err)
	return client, &tokenCalls
}

func TestClient_Complete(t *testing.T) {
	client, tokenCalls := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ml/v1/text/chat", r.URL.Path)
		assert.Equal(t, chatAPIVersion, r.URL.Query().Get("version"))
		assert.Equal(t, "Bearer test-bearer", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ibm/granite-3-8b-instruct", req.ModelID)
		assert.Equal(t, "proj-1", req.ProjectID)
		require.NotNil(t, req.Temperature)
		assert.Equal(t, 0.0, *req.Temperature)
		require.NotNil(t, req.TopP)
		assert.Equal(t, 1.0, *req.TopP)

		json.NewEncoder(w).Encode(map[string]any{
			"id":       "chat-123",
			"model_id": req.ModelID,
			"created":  time.Now().Unix(),
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "Yes. AES-256 at rest."}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 42, "completion_tokens": 9, "total_tokens": 51},
		})
	})

	resp, err := client.Complete(context.Background(), llm.Deterministic([]llm.Message{
		{Role: llm.MessageRoleSystem, Content: "You complete forms."},
		{Role: llm.MessageRoleUser, Content: "Is data encrypted at rest?"},
	}, 2000))
	require.NoError(t, err)

	assert.Equal(t, "Yes. AES-256 at rest.", resp.Content)
	assert.Equal(t, "chat-123", resp.RequestID)
	assert.Equal(t, 51, resp.Usage.TotalTokens)
	assert.Equal(t, int64(1), tokenCalls.Load())
}

func TestClient_CompleteEmptyChoices(t *testing.T) {
	client, _ := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	_, err := client.Complete(context.Background(), llm.Deterministic(nil, 0))
	assert.ErrorIs(t, err, llm.ErrEmptyCompletion)
}

func TestClient_TokenReuse(t *testing.T) {
	client, tokenCalls := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "answer"}},
			},
		})
	})

	for i := 0; i < 3; i++ {
		_, err := client.Complete(context.Background(), llm.Deterministic(nil, 0))
		require.NoError(t, err)
	}

	// Token exchanged once, then served from cache.
	assert.Equal(t, int64(1), tokenCalls.Load())
}

func TestClient_Embed(t *testing.T) {
	client, _ := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ml/v1/text/embeddings", r.URL.Path)

		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ibm/granite-embedding-30m-english", req.ModelID)
		require.Len(t, req.Inputs, 1)

		json.NewEncoder(w).Encode(map[string]any{
			"model_id": req.ModelID,
			"results":  []map[string]any{{"embedding": []float64{0.1, -0.2, 0.3}}},
		})
	})

	vec, err := client.Embed(context.Background(), "What is the data retention policy?")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, -0.2, 0.3}, vec)
}

func TestClient_APIError(t *testing.T) {
	client, _ := newTestStack(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"code":"model_not_found"}]}`, http.StatusNotFound)
	})

	_, err := client.Complete(context.Background(), llm.Deterministic(nil, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{URL: "https://us-south.ml.cloud.ibm.com", APIKey: "k", ProjectID: "p", ModelID: "m"}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.URL = "" }},
		{"missing api key", func(c *Config) { c.APIKey = "" }},
		{"missing scope", func(c *Config) { c.ProjectID = "" }},
		{"missing model", func(c *Config) { c.ModelID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
