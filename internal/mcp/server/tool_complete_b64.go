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
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/formfill/internal/document"
)

// base64Envelope is the response of the base64 completion tool. Errors
// come back inside the envelope with success=false, never as a protocol
// error, so agent workflows can branch on the flag.
type base64Envelope struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	FileBase64    string `json:"file_base64"`
	Filename      string `json:"filename"`
	FileSizeBytes int    `json:"file_size_bytes"`
}

func base64Failure(message string) *mcp.CallToolResult {
	return jsonResponse(base64Envelope{
		Success: false,
		Message: message,
	})
}

// handleCompleteBase64 implements the formfill_complete_document_b64 tool.
func (s *Server) handleCompleteBase64(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.limiter.allowCompletion() {
		recordToolCall("formfill_complete_document_b64", "rate_limited")
		return base64Failure(rateLimitedMessage), nil
	}

	encoded, err := request.RequireString("file_base64")
	if err != nil {
		return base64Failure("Missing or invalid 'file_base64' argument"), nil
	}
	filename := request.GetString("filename", "document.xlsx")

	if !strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		recordToolCall("formfill_complete_document_b64", "error")
		return base64Failure("Input file must be an Excel file (.xlsx)"), nil
	}

	wb, err := document.OpenBase64(encoded, filename)
	if err != nil {
		recordToolCall("formfill_complete_document_b64", "error")
		return base64Failure(fmt.Sprintf("Error: %v", err)), nil
	}
	defer wb.Close()

	summary, err := s.completeWorkbook(ctx, wb)
	if err != nil {
		recordToolCall("formfill_complete_document_b64", "error")
		return base64Failure(fmt.Sprintf("Error processing document: %v", err)), nil
	}

	data, err := wb.Bytes()
	if err != nil {
		recordToolCall("formfill_complete_document_b64", "error")
		return base64Failure(fmt.Sprintf("Error serializing completed document: %v", err)), nil
	}

	recordToolCall("formfill_complete_document_b64", "ok")
	return jsonResponse(base64Envelope{
		Success:       true,
		Message:       fmt.Sprintf("Document processing complete! Answered %d questions.", summary.QuestionsAnswered),
		FileBase64:    base64.StdEncoding.EncodeToString(data),
		Filename:      wb.OutputName(),
		FileSizeBytes: len(data),
	}), nil
}

// bytesResult is the response of the byte-buffer completion tool.
type bytesResult struct {
	Success       bool              `json:"success"`
	Message       string            `json:"message"`
	FileBytes     string            `json:"file_bytes,omitempty"`
	OutputPath    string            `json:"output_path,omitempty"`
	Filename      string            `json:"filename"`
	FileSizeBytes int               `json:"file_size_bytes"`
	Summary       *document.Summary `json:"summary,omitempty"`
}

// handleCompleteBytes implements the formfill_complete_document_bytes
// tool. The buffer travels base64-encoded because tool arguments are
// JSON; return_path chooses between returning the completed bytes and
// writing them to a temporary file.
func (s *Server) handleCompleteBytes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.limiter.allowCompletion() {
		recordToolCall("formfill_complete_document_bytes", "rate_limited")
		return errorResponse(rateLimitedMessage), nil
	}

	encoded, err := request.RequireString("file_bytes")
	if err != nil {
		return errorResponse("Missing or invalid 'file_bytes' argument"), nil
	}
	filename := request.GetString("filename", "document.xlsx")
	returnPath := request.GetBool("return_path", false)

	wb, err := document.OpenBase64(encoded, filename)
	if err != nil {
		recordToolCall("formfill_complete_document_bytes", "error")
		return errorResponse(err.Error()), nil
	}
	defer wb.Close()

	summary, err := s.completeWorkbook(ctx, wb)
	if err != nil {
		recordToolCall("formfill_complete_document_bytes", "error")
		return errorResponse(fmt.Sprintf("Error processing document: %v", err)), nil
	}

	data, err := wb.Bytes()
	if err != nil {
		recordToolCall("formfill_complete_document_bytes", "error")
		return errorResponse(fmt.Sprintf("Error serializing completed document: %v", err)), nil
	}

	result := bytesResult{
		Success:       true,
		Message:       "Document processing complete!",
		Filename:      wb.OutputName(),
		FileSizeBytes: len(data),
		Summary:       summary,
	}

	if returnPath {
		outputPath := filepath.Join(os.TempDir(), uuid.NewString()+"_"+wb.OutputName())
		if err := os.WriteFile(outputPath, data, 0600); err != nil {
			recordToolCall("formfill_complete_document_bytes", "error")
			return errorResponse(fmt.Sprintf("Error writing completed document: %v", err)), nil
		}
		result.OutputPath = outputPath
	} else {
		result.FileBytes = base64.StdEncoding.EncodeToString(data)
	}

	recordToolCall("formfill_complete_document_bytes", "ok")
	return jsonResponse(result), nil
}
