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
	"os"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/formfill/internal/document"
)

// completeResult is the response of the path-based completion tool.
type completeResult struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message"`
	OutputPath string            `json:"output_path,omitempty"`
	Summary    *document.Summary `json:"summary,omitempty"`
}

// handleCompleteDocument implements the formfill_complete_document tool.
func (s *Server) handleCompleteDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.limiter.allowCompletion() {
		recordToolCall("formfill_complete_document", "rate_limited")
		return errorResponse(rateLimitedMessage), nil
	}

	inputPath, err := request.RequireString("input_file_path")
	if err != nil {
		return errorResponse("Missing or invalid 'input_file_path' argument"), nil
	}
	outputPath := request.GetString("output_file_path", "")

	if _, err := os.Stat(inputPath); err != nil {
		recordToolCall("formfill_complete_document", "error")
		return errorResponse(fmt.Sprintf("Input file not found at %s", inputPath)), nil
	}

	wb, err := document.Open(inputPath)
	if err != nil {
		recordToolCall("formfill_complete_document", "error")
		return errorResponse(err.Error()), nil
	}
	defer wb.Close()

	summary, err := s.completeWorkbook(ctx, wb)
	if err != nil {
		recordToolCall("formfill_complete_document", "error")
		return errorResponse(fmt.Sprintf("Error processing document: %v", err)), nil
	}

	if outputPath == "" {
		outputPath = document.OutputPath(inputPath)
	}
	if err := wb.SaveAs(outputPath); err != nil {
		recordToolCall("formfill_complete_document", "error")
		return errorResponse(fmt.Sprintf("Error saving completed document: %v", err)), nil
	}

	recordToolCall("formfill_complete_document", "ok")
	return jsonResponse(completeResult{
		Success:    true,
		Message:    fmt.Sprintf("Document processing complete! Output saved to: %s", outputPath),
		OutputPath: outputPath,
		Summary:    summary,
	}), nil
}

// completeWorkbook runs the pipeline over an open workbook and records
// run metrics.
func (s *Server) completeWorkbook(ctx context.Context, wb *document.Workbook) (*document.Summary, error) {
	driver, err := s.engine.Driver()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	summary, err := driver.Complete(ctx, wb)
	if err != nil {
		return nil, err
	}
	recordSummary(summary, time.Since(start).Seconds())
	return summary, nil
}
