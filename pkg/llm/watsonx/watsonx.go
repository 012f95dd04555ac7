// Package watsonx implements the llm.Provider interface against the IBM
// watsonx.ai inference API. The same client also exposes text embeddings,
// which the retrieval layer uses to vectorize questions.
package watsonx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tombee/formfill/pkg/httpclient"
	"github.com/tombee/formfill/pkg/llm"
)

const (
	// defaultIAMTokenURL is the IBM Cloud IAM token exchange endpoint.
	defaultIAMTokenURL = "https://iam.cloud.ibm.com/identity/token"

	// chatAPIVersion and embeddingsAPIVersion pin the watsonx.ai API dates.
	chatAPIVersion       = "2024-10-08"
	embeddingsAPIVersion = "2024-05-02"

	// tokenRefreshMargin refreshes the bearer token this long before expiry.
	tokenRefreshMargin = 60 * time.Second
)

// Config configures the watsonx.ai client.
type Config struct {
	// URL is the regional watsonx.ai endpoint, e.g.
	// https://us-south.ml.cloud.ibm.com (required).
	URL string

	// APIKey is the IBM Cloud API key exchanged for a bearer token (required).
	APIKey string

	// IAMTokenURL overrides the IAM token endpoint (tests only).
	IAMTokenURL string

	// ProjectID scopes inference to a watsonx project. One of ProjectID or
	// SpaceID is required.
	ProjectID string

	// SpaceID scopes inference to a deployment space.
	SpaceID string

	// ModelID is the chat model, e.g. "ibm/granite-3-8b-instruct" (required).
	ModelID string

	// EmbeddingModelID is the embedding model (required for Embed).
	EmbeddingModelID string

	// Timeout bounds a single HTTP request. Default: 120s, chat completions
	// on large models are slow.
	Timeout time.Duration
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("watsonx: url is required")
	}
	if c.APIKey == "" {
		return fmt.Errorf("watsonx: api key is required")
	}
	if c.ProjectID == "" && c.SpaceID == "" {
		return fmt.Errorf("watsonx: one of project id or space id is required")
	}
	if c.ModelID == "" {
		return fmt.Errorf("watsonx: model id is required")
	}
	return nil
}

// Client calls the watsonx.ai chat and embeddings APIs. It implements
// llm.Provider and rag.Embedder. Safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client

	tokenMu     sync.Mutex
	bearerToken string
	tokenExpiry time.Time
}

// New creates a watsonx.ai client.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IAMTokenURL == "" {
		cfg.IAMTokenURL = defaultIAMTokenURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	hcfg := httpclient.DefaultConfig()
	hcfg.Timeout = cfg.Timeout
	hcfg.UserAgent = "formfill-watsonx/1.0"
	// Chat and embeddings are read-style POSTs, safe to replay.
	hcfg.AllowNonIdempotentRetry = true

	httpClient, err := httpclient.New(hcfg)
	if err != nil {
		return nil, fmt.Errorf("watsonx: failed to create HTTP client: %w", err)
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

// Name returns the provider identifier.
func (c *Client) Name() string {
	return "watsonx"
}

// Complete sends a chat completion request to watsonx.ai.
func (c *Client) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	messages := make([]chatMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, chatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	model := req.Model
	if model == "" {
		model = c.cfg.ModelID
	}

	chatReq := chatRequest{
		ModelID:     model,
		ProjectID:   c.cfg.ProjectID,
		SpaceID:     c.cfg.SpaceID,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}

	endpoint := fmt.Sprintf("%s/ml/v1/text/chat?version=%s", strings.TrimRight(c.cfg.URL, "/"), chatAPIVersion)

	var chatResp chatResponse
	if err := c.postJSON(ctx, endpoint, token, chatReq, &chatResp); err != nil {
		return nil, err
	}

	if len(chatResp.Choices) == 0 {
		return nil, llm.ErrEmptyCompletion
	}
	content := chatResp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return nil, llm.ErrEmptyCompletion
	}

	return &llm.CompletionResponse{
		Content:   content,
		Model:     chatResp.ModelID,
		RequestID: chatResp.ID,
		Created:   time.Unix(chatResp.Created, 0),
		Usage: llm.TokenUsage{
			InputTokens:  chatResp.Usage.PromptTokens,
			OutputTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:  chatResp.Usage.TotalTokens,
		},
	}, nil
}

// Embed converts text into an embedding vector using the configured
// embedding model.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if c.cfg.EmbeddingModelID == "" {
		return nil, fmt.Errorf("watsonx: embedding model id is not configured")
	}

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	embReq := embeddingsRequest{
		ModelID:   c.cfg.EmbeddingModelID,
		ProjectID: c.cfg.ProjectID,
		SpaceID:   c.cfg.SpaceID,
		Inputs:    []string{text},
	}

	endpoint := fmt.Sprintf("%s/ml/v1/text/embeddings?version=%s", strings.TrimRight(c.cfg.URL, "/"), embeddingsAPIVersion)

	var embResp embeddingsResponse
	if err := c.postJSON(ctx, endpoint, token, embReq, &embResp); err != nil {
		return nil, err
	}

	if len(embResp.Results) == 0 || len(embResp.Results[0].Embedding) == 0 {
		return nil, fmt.Errorf("watsonx: embeddings response contained no vectors")
	}

	return embResp.Results[0].Embedding, nil
}

// accessToken returns a valid bearer token, exchanging the API key with IAM
// when the cached token is missing or near expiry.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.bearerToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenRefreshMargin)) {
		return c.bearerToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "urn:ibm:params:oauth:grant-type:apikey")
	form.Set("apikey", c.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.IAMTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("watsonx: failed to create IAM request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("watsonx: IAM token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("watsonx: IAM token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var tok iamTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("watsonx: failed to parse IAM response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("watsonx: IAM response contained no access token")
	}

	c.bearerToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.bearerToken, nil
}

// postJSON sends an authenticated JSON POST and decodes the response into out.
func (c *Client) postJSON(ctx context.Context, endpoint, token string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("watsonx: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("watsonx: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("watsonx: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("watsonx: API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("watsonx: failed to parse response: %w", err)
	}
	return nil
}

// iamTokenResponse is the IBM Cloud IAM token exchange response.
type iamTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

// chatRequest is the body for POST /ml/v1/text/chat.
type chatRequest struct {
	ModelID     string        `json:"model_id"`
	ProjectID   string        `json:"project_id,omitempty"`
	SpaceID     string        `json:"space_id,omitempty"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the body of a successful chat completion.
type chatResponse struct {
	ID      string `json:"id"`
	ModelID string `json:"model_id"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// embeddingsRequest is the body for POST /ml/v1/text/embeddings.
type embeddingsRequest struct {
	ModelID   string   `json:"model_id"`
	ProjectID string   `json:"project_id,omitempty"`
	SpaceID   string   `json:"space_id,omitempty"`
	Inputs    []string `json:"inputs"`
}

// embeddingsResponse is the body of a successful embeddings call.
type embeddingsResponse struct {
	ModelID string `json:"model_id"`
	Results []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"results"`
}
