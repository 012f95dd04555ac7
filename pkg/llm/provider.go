// Package llm provides a provider-agnostic abstraction for hosted language
// model completions. formfill uses it in two modes: answer generation
// (system prompt + retrieved context + question) and column classification
// (sample rows + instruction). Both require deterministic generation, so
// requests default to temperature 0 and top-p 1.
package llm

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyCompletion indicates the model returned a response with no content.
var ErrEmptyCompletion = errors.New("model returned an empty completion")

// Provider is the interface implemented by hosted completion services.
type Provider interface {
	// Name returns the unique identifier for this provider (e.g., "watsonx").
	Name() string

	// Complete sends a synchronous completion request and returns the full
	// response. Blocks until the response is complete or ctx is done.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompletionRequest contains the parameters for a completion request.
type CompletionRequest struct {
	// Messages is the conversation to complete, in order.
	Messages []Message

	// Model overrides the provider's configured model when non-empty.
	Model string

	// Temperature controls randomness. nil means the deterministic default (0).
	Temperature *float64

	// TopP is the nucleus sampling parameter. nil means the deterministic
	// default (1).
	TopP *float64

	// MaxTokens limits the response length. nil uses the provider default.
	MaxTokens *int
}

// Message represents a single message in a conversation.
type Message struct {
	Role    MessageRole
	Content string
}

// MessageRole identifies the sender of a message.
type MessageRole string

const (
	// MessageRoleSystem indicates instructions and context for the model.
	MessageRoleSystem MessageRole = "system"

	// MessageRoleUser indicates a message from the caller.
	MessageRoleUser MessageRole = "user"

	// MessageRoleAssistant indicates a message from the model.
	MessageRoleAssistant MessageRole = "assistant"
)

// CompletionResponse contains the response from a completion request.
type CompletionResponse struct {
	// Content is the generated text.
	Content string

	// Model is the model ID that handled this request.
	Model string

	// Usage contains token consumption information.
	Usage TokenUsage

	// RequestID identifies this request for tracing, when the provider
	// returns one.
	RequestID string

	// Created is the timestamp when this response was generated.
	Created time.Time
}

// TokenUsage tracks token consumption.
type TokenUsage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Deterministic returns a CompletionRequest for the given messages with
// generation pinned to temperature 0 and top-p 1. Repeated form-filling runs
// over the same document must produce identical answers, so every formfill
// completion goes through this constructor.
func Deterministic(messages []Message, maxTokens int) CompletionRequest {
	temp := 0.0
	topP := 1.0
	req := CompletionRequest{
		Messages:    messages,
		Temperature: &temp,
		TopP:        &topP,
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	return req
}
