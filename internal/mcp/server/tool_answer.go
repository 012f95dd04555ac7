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

package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/formfill/pkg/rag"
)

// handleAnswerQuestion implements the formfill_answer_question tool.
func (s *Server) handleAnswerQuestion(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.limiter.allowCall() {
		recordToolCall("formfill_answer_question", "rate_limited")
		return errorResponse(rateLimitedMessage), nil
	}

	question, err := request.RequireString("question")
	if err != nil {
		return errorResponse("Missing or invalid 'question' argument"), nil
	}
	useRetrieval := request.GetBool("use_retrieval", true)

	answerer, err := s.engine.Answerer()
	if err != nil {
		recordToolCall("formfill_answer_question", "error")
		return errorResponse(err.Error()), nil
	}

	var answer string
	if useRetrieval {
		answer, err = answerer.Answer(ctx, question)
	} else {
		answer, err = answerer.AnswerWithoutRetrieval(ctx, question)
	}
	if err != nil {
		recordToolCall("formfill_answer_question", "error")
		return errorResponse(fmt.Sprintf("Error answering question: %v", err)), nil
	}

	recordToolCall("formfill_answer_question", "ok")
	return textResponse(answer), nil
}

// handleSearchKnowledge implements the formfill_search_knowledge tool.
func (s *Server) handleSearchKnowledge(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.limiter.allowCall() {
		recordToolCall("formfill_search_knowledge", "rate_limited")
		return errorResponse(rateLimitedMessage), nil
	}

	query, err := request.RequireString("query")
	if err != nil {
		return errorResponse("Missing or invalid 'query' argument"), nil
	}
	topK := request.GetInt("top_k", rag.DefaultTopK)
	threshold := request.GetFloat("similarity_threshold", rag.DefaultSimilarityThreshold)

	retriever, err := s.engine.Retriever()
	if err != nil {
		recordToolCall("formfill_search_knowledge", "error")
		return errorResponse(err.Error()), nil
	}

	results, err := retriever.Search(ctx, query, topK, threshold)
	if err != nil {
		recordToolCall("formfill_search_knowledge", "error")
		return errorResponse(fmt.Sprintf("Error searching knowledge store: %v", err)), nil
	}
	if len(results) == 0 {
		recordToolCall("formfill_search_knowledge", "ok")
		return textResponse(fmt.Sprintf("No relevant examples found for query: %q", query)), nil
	}

	recordToolCall("formfill_search_knowledge", "ok")
	return textResponse("Found relevant examples:\n\n" + rag.FormatContext(results)), nil
}
