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
	"errors"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/formfill/internal/document"
	"github.com/tombee/formfill/internal/qa"
)

// handleListSheets implements the formfill_list_sheets tool.
func (s *Server) handleListSheets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.limiter.allowCall() {
		recordToolCall("formfill_list_sheets", "rate_limited")
		return errorResponse(rateLimitedMessage), nil
	}

	filePath, err := request.RequireString("file_path")
	if err != nil {
		return errorResponse("Missing or invalid 'file_path' argument"), nil
	}

	if _, err := os.Stat(filePath); err != nil {
		recordToolCall("formfill_list_sheets", "error")
		return errorResponse(fmt.Sprintf("File not found at %s", filePath)), nil
	}

	wb, err := document.Open(filePath)
	if err != nil {
		recordToolCall("formfill_list_sheets", "error")
		return errorResponse(err.Error()), nil
	}
	defer wb.Close()

	sheets := wb.Sheets()
	recordToolCall("formfill_list_sheets", "ok")
	return jsonResponse(struct {
		Sheets     []string `json:"sheets"`
		TotalCount int      `json:"total_count"`
	}{Sheets: sheets, TotalCount: len(sheets)}), nil
}

// handleDetectColumns implements the formfill_detect_columns tool.
func (s *Server) handleDetectColumns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.limiter.allowCall() {
		recordToolCall("formfill_detect_columns", "rate_limited")
		return errorResponse(rateLimitedMessage), nil
	}

	filePath, err := request.RequireString("file_path")
	if err != nil {
		return errorResponse("Missing or invalid 'file_path' argument"), nil
	}
	sheetName, err := request.RequireString("sheet_name")
	if err != nil {
		return errorResponse("Missing or invalid 'sheet_name' argument"), nil
	}

	if _, err := os.Stat(filePath); err != nil {
		recordToolCall("formfill_detect_columns", "error")
		return errorResponse(fmt.Sprintf("File not found at %s", filePath)), nil
	}

	wb, err := document.Open(filePath)
	if err != nil {
		recordToolCall("formfill_detect_columns", "error")
		return errorResponse(err.Error()), nil
	}
	defer wb.Close()

	rows, err := wb.File().GetRows(sheetName)
	if err != nil {
		recordToolCall("formfill_detect_columns", "error")
		return errorResponse(fmt.Sprintf("Failed to read sheet %q: %v", sheetName, err)), nil
	}
	if len(rows) == 0 {
		recordToolCall("formfill_detect_columns", "error")
		return errorResponse(fmt.Sprintf("Sheet %q is empty", sheetName)), nil
	}

	detector, err := s.engine.Detector()
	if err != nil {
		recordToolCall("formfill_detect_columns", "error")
		return errorResponse(err.Error()), nil
	}

	headers := rows[0]
	cols, err := detector.Detect(ctx, headers, rows[1:])
	if err != nil {
		recordToolCall("formfill_detect_columns", "error")
		if errors.Is(err, qa.ErrNoQAColumns) {
			return errorResponse(fmt.Sprintf("Could not detect Q&A columns in sheet %q", sheetName)), nil
		}
		return errorResponse(fmt.Sprintf("Error detecting columns: %v", err)), nil
	}

	recordToolCall("formfill_detect_columns", "ok")
	return jsonResponse(struct {
		QuestionColumn string `json:"question_column"`
		AnswerColumn   string `json:"answer_column"`
	}{
		QuestionColumn: headers[cols.Question],
		AnswerColumn:   headers[cols.Answer],
	}), nil
}
