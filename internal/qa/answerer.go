// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package qa generates answers for document questions using retrieved
// reference examples, and detects which sheet columns hold questions and
// answers.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tombee/formfill/pkg/llm"
)

// answerSystemPrompt frames the model as the person filling out the form.
// Deviating from it tends to produce meta-commentary ("based on the
// context...") that must not appear in a completed document.
const answerSystemPrompt = `You are a professional document completion assistant. Your role is to fill out governance, compliance, and business documents with accurate, concise information.

INSTRUCTIONS:
1. You are filling out forms and documents on behalf of your organization
2. Answer questions directly and professionally, as if completing an official form
3. Use the provided context examples as reference for style, format, and content
4. Match the tone and detail level of the context examples
5. Be concise - forms require brief, direct answers, not explanations
6. If context is provided, adapt it to answer the specific question
7. Do NOT mention that you're using context or reference materials
8. Do NOT include meta-commentary like "based on the context" or "according to the information provided"
9. NEVER respond with just "unanswered" or leave the answer blank
10. If you don't have relevant information, write "Information not available" rather than making up content or writing "unanswered"

FORMATTING:
- For yes/no questions: Answer "Yes" or "No" followed by brief details if needed
- For descriptive questions: Provide 1-3 sentences maximum unless more detail is clearly needed
- For lists: Use bullet points or numbered lists as appropriate
- Maintain professional business language throughout

Remember: You ARE the person filling out this document. Write answers directly as they should appear in the form.`

// defaultChatTimeout bounds a single generation call.
const defaultChatTimeout = 120 * time.Second

// GenerationError wraps a model failure for one question. Callers use it
// to leave the answer cell blank and keep processing the sheet.
type GenerationError struct {
	Question string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("answer generation failed for %q: %v", truncate(e.Question, 60), e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ContextProvider supplies formatted reference examples for a question.
// Implementations must not fail; a degraded provider returns a fallback
// sentence instead.
type ContextProvider interface {
	Context(ctx context.Context, question string, topK int, threshold float64) string
}

// AnswererConfig tunes retrieval and generation.
type AnswererConfig struct {
	TopK                int
	SimilarityThreshold float64
	MaxTokens           int
	ChatTimeout         time.Duration
}

// Answerer produces form answers from a question plus retrieved examples.
type Answerer struct {
	provider llm.Provider
	contexts ContextProvider
	cfg      AnswererConfig
	logger   *slog.Logger
}

// NewAnswerer constructs an Answerer. Zero config fields get working
// defaults.
func NewAnswerer(provider llm.Provider, contexts ContextProvider, cfg AnswererConfig, logger *slog.Logger) (*Answerer, error) {
	if provider == nil {
		return nil, fmt.Errorf("qa: provider must not be nil")
	}
	if contexts == nil {
		return nil, fmt.Errorf("qa: context provider must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TopK < 1 {
		cfg.TopK = 5
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.5
	}
	if cfg.MaxTokens < 1 {
		cfg.MaxTokens = 2000
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = defaultChatTimeout
	}
	return &Answerer{
		provider: provider,
		contexts: contexts,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Answer retrieves reference examples for the question and generates an
// answer. Failures come back as *GenerationError so the caller can skip
// the row without aborting the document.
func (a *Answerer) Answer(ctx context.Context, question string) (string, error) {
	return a.answer(ctx, question, true)
}

// AnswerWithoutRetrieval generates an answer from model knowledge alone.
func (a *Answerer) AnswerWithoutRetrieval(ctx context.Context, question string) (string, error) {
	return a.answer(ctx, question, false)
}

func (a *Answerer) answer(ctx context.Context, question string, useRetrieval bool) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", &GenerationError{Question: question, Err: fmt.Errorf("question is empty")}
	}

	var examples string
	if useRetrieval {
		examples = a.contexts.Context(ctx, question, a.cfg.TopK, a.cfg.SimilarityThreshold)
	} else {
		examples = "No reference examples provided. Rely on your general knowledge."
	}

	userPrompt := fmt.Sprintf(`Using the following reference examples, answer the question below.

REFERENCE EXAMPLES:
%s

QUESTION TO ANSWER:
%s

Provide your answer:`, examples, question)

	chatCtx, cancel := context.WithTimeout(ctx, a.cfg.ChatTimeout)
	defer cancel()

	req := llm.Deterministic([]llm.Message{
		{Role: llm.MessageRoleSystem, Content: answerSystemPrompt},
		{Role: llm.MessageRoleUser, Content: userPrompt},
	}, a.cfg.MaxTokens)

	resp, err := a.provider.Complete(chatCtx, req)
	if err != nil {
		return "", &GenerationError{Question: question, Err: err}
	}

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", &GenerationError{Question: question, Err: llm.ErrEmptyCompletion}
	}
	return answer, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
