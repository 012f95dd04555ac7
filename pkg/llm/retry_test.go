package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider fails a configurable number of times before succeeding.
type fakeProvider struct {
	failures int
	calls    int
	err      error
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return &CompletionResponse{Content: "ok", Model: "fake-model"}, nil
}

func fastRetryConfig() RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return cfg
}

func TestRetryableProvider_SucceedsAfterTransientFailure(t *testing.T) {
	fake := &fakeProvider{failures: 2, err: errors.New("watsonx API returned status 503")}
	provider := NewRetryableProvider(fake, fastRetryConfig())

	resp, err := provider.Complete(context.Background(), Deterministic(nil, 0))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 3, fake.calls)
}

func TestRetryableProvider_DoesNotRetryPermanentError(t *testing.T) {
	fake := &fakeProvider{failures: 10, err: errors.New("watsonx API returned status 401")}
	provider := NewRetryableProvider(fake, fastRetryConfig())

	_, err := provider.Complete(context.Background(), Deterministic(nil, 0))
	require.Error(t, err)
	assert.Equal(t, 1, fake.calls)
}

func TestRetryableProvider_ExhaustsRetries(t *testing.T) {
	fake := &fakeProvider{failures: 10, err: errors.New("connection refused")}
	cfg := fastRetryConfig()
	cfg.MaxRetries = 2
	provider := NewRetryableProvider(fake, cfg)

	_, err := provider.Complete(context.Background(), Deterministic(nil, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxRetriesExceeded)
	assert.Equal(t, 3, fake.calls)
}

func TestRetryableProvider_RespectsContextCancellation(t *testing.T) {
	fake := &fakeProvider{failures: 10, err: errors.New("timeout")}
	provider := NewRetryableProvider(fake, fastRetryConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Complete(ctx, Deterministic(nil, 0))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeterministic_PinsGeneration(t *testing.T) {
	req := Deterministic([]Message{{Role: MessageRoleUser, Content: "q"}}, 2000)

	require.NotNil(t, req.Temperature)
	require.NotNil(t, req.TopP)
	require.NotNil(t, req.MaxTokens)
	assert.Equal(t, 0.0, *req.Temperature)
	assert.Equal(t, 1.0, *req.TopP)
	assert.Equal(t, 2000, *req.MaxTokens)
}
