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

	"github.com/tombee/formfill/internal/document"
	"github.com/tombee/formfill/internal/storage"
)

// urlResult is the response of the URL-based completion tool.
type urlResult struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	OutputURL string            `json:"output_url,omitempty"`
	Summary   *document.Summary `json:"summary,omitempty"`
}

// handleCompleteURL implements the formfill_complete_document_url tool:
// download from object storage, complete, upload the result next to the
// input object.
func (s *Server) handleCompleteURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.limiter.allowCompletion() {
		recordToolCall("formfill_complete_document_url", "rate_limited")
		return errorResponse(rateLimitedMessage), nil
	}

	fileURL, err := request.RequireString("file_url")
	if err != nil {
		return errorResponse("Missing or invalid 'file_url' argument"), nil
	}

	bucket, key, err := storage.ParseObjectURL(fileURL)
	if err != nil {
		recordToolCall("formfill_complete_document_url", "error")
		return errorResponse(err.Error()), nil
	}

	store, err := s.engine.Storage(ctx)
	if err != nil {
		recordToolCall("formfill_complete_document_url", "error")
		return errorResponse(err.Error()), nil
	}

	data, filename, err := store.Download(ctx, bucket, key)
	if err != nil {
		recordToolCall("formfill_complete_document_url", "error")
		return errorResponse(fmt.Sprintf("Error downloading document: %v", err)), nil
	}

	wb, err := document.OpenBytes(data, filename)
	if err != nil {
		recordToolCall("formfill_complete_document_url", "error")
		return errorResponse(err.Error()), nil
	}
	defer wb.Close()

	summary, err := s.completeWorkbook(ctx, wb)
	if err != nil {
		recordToolCall("formfill_complete_document_url", "error")
		return errorResponse(fmt.Sprintf("Error processing document: %v", err)), nil
	}

	completed, err := wb.Bytes()
	if err != nil {
		recordToolCall("formfill_complete_document_url", "error")
		return errorResponse(fmt.Sprintf("Error serializing completed document: %v", err)), nil
	}

	outputKey := storage.OutputKey(key, wb.OutputName())
	if _, err := store.Upload(ctx, bucket, outputKey, completed); err != nil {
		recordToolCall("formfill_complete_document_url", "error")
		return errorResponse(fmt.Sprintf("Error uploading completed document: %v", err)), nil
	}

	recordToolCall("formfill_complete_document_url", "ok")
	return jsonResponse(urlResult{
		Success:   true,
		Message:   fmt.Sprintf("Document processing complete! Answered %d questions.", summary.QuestionsAnswered),
		OutputURL: fmt.Sprintf("s3://%s/%s", bucket, outputKey),
		Summary:   summary,
	}), nil
}
