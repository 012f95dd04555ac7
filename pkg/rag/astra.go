package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tombee/formfill/pkg/httpclient"
)

const (
	// defaultKeyspace is the Astra Data API namespace used when none is
	// configured.
	defaultKeyspace = "default_keyspace"

	// defaultCollection matches the collection name the ingestion pipeline
	// writes to.
	defaultCollection = "qa_collection"
)

// AstraConfig configures the Astra DB Data API client.
type AstraConfig struct {
	// Endpoint is the database API endpoint, e.g.
	// https://<db-id>-<region>.apps.astra.datastax.com (required).
	Endpoint string

	// Token is the application token ("AstraCS:...") (required).
	Token string

	// Keyspace is the Data API namespace. Default: "default_keyspace".
	Keyspace string

	// Collection is the vector collection name. Default: "qa_collection".
	Collection string

	// Timeout bounds a single HTTP request. Default: 30s.
	Timeout time.Duration
}

// Validate checks the configuration.
func (c *AstraConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("astra: endpoint is required")
	}
	if c.Token == "" {
		return fmt.Errorf("astra: application token is required")
	}
	return nil
}

// AstraStore queries an Astra DB vector collection through the JSON Data
// API. It implements VectorStore.
type AstraStore struct {
	cfg        AstraConfig
	httpClient *http.Client
}

// NewAstraStore creates an Astra Data API client.
func NewAstraStore(cfg AstraConfig) (*AstraStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Keyspace == "" {
		cfg.Keyspace = defaultKeyspace
	}
	if cfg.Collection == "" {
		cfg.Collection = defaultCollection
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	hcfg := httpclient.DefaultConfig()
	hcfg.Timeout = cfg.Timeout
	hcfg.UserAgent = "formfill-astra/1.0"
	// The Data API multiplexes reads over POST; find is safe to replay.
	hcfg.AllowNonIdempotentRetry = true

	httpClient, err := httpclient.New(hcfg)
	if err != nil {
		return nil, fmt.Errorf("astra: failed to create HTTP client: %w", err)
	}

	return &AstraStore{
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

// Find runs a vector similarity search and returns up to topK results in
// the store's rank order.
func (s *AstraStore) Find(ctx context.Context, vector []float64, topK int) ([]Result, error) {
	if topK < 1 {
		return nil, fmt.Errorf("astra: topK must be >= 1, got %d", topK)
	}

	reqBody := findRequest{}
	reqBody.Find.Sort = map[string]any{"$vector": vector}
	reqBody.Find.Projection = map[string]int{
		"question":    1,
		"answer":      1,
		"category":    1,
		"source_file": 1,
	}
	reqBody.Find.Options.Limit = topK
	reqBody.Find.Options.IncludeSimilarity = true

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("astra: failed to marshal find request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/json/v1/%s/%s",
		strings.TrimRight(s.cfg.Endpoint, "/"), s.cfg.Keyspace, s.cfg.Collection)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("astra: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Token", s.cfg.Token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("astra: find request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("astra: Data API returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var findResp findResponse
	if err := json.NewDecoder(resp.Body).Decode(&findResp); err != nil {
		return nil, fmt.Errorf("astra: failed to parse find response: %w", err)
	}
	if len(findResp.Errors) > 0 {
		return nil, fmt.Errorf("astra: Data API error: %s", findResp.Errors[0].Message)
	}

	results := make([]Result, 0, len(findResp.Data.Documents))
	for _, doc := range findResp.Data.Documents {
		results = append(results, Result{
			Entry: Entry{
				Question:   doc.Question,
				Answer:     doc.Answer,
				Category:   doc.Category,
				SourceFile: doc.SourceFile,
			},
			Similarity: doc.Similarity,
		})
	}
	return results, nil
}

// findRequest is the Data API find command envelope.
type findRequest struct {
	Find struct {
		Sort       map[string]any `json:"sort"`
		Projection map[string]int `json:"projection"`
		Options    struct {
			Limit             int  `json:"limit"`
			IncludeSimilarity bool `json:"includeSimilarity"`
		} `json:"options"`
	} `json:"find"`
}

// findResponse is the Data API find command response.
type findResponse struct {
	Data struct {
		Documents []struct {
			Question   string  `json:"question"`
			Answer     string  `json:"answer"`
			Category   string  `json:"category"`
			SourceFile string  `json:"source_file"`
			Similarity float64 `json:"$similarity"`
		} `json:"documents"`
	} `json:"data"`
	Errors []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	} `json:"errors"`
}
