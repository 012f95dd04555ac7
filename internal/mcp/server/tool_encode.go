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

	"github.com/mark3labs/mcp-go/mcp"
)

// encodeResult is the formfill_encode_file envelope.
type encodeResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	FileBase64    string `json:"file_base64"`
	Filename      string `json:"filename"`
	FileSizeBytes int    `json:"file_size_bytes,omitempty"`
}

// decodeResult is the formfill_decode_file envelope.
type decodeResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	FilePath      string `json:"file_path"`
	FileSizeBytes int    `json:"file_size_bytes,omitempty"`
}

// handleEncodeFile implements the formfill_encode_file tool.
func (s *Server) handleEncodeFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.limiter.allowCall() {
		recordToolCall("formfill_encode_file", "rate_limited")
		return errorResponse(rateLimitedMessage), nil
	}

	filePath, err := request.RequireString("file_path")
	if err != nil {
		return errorResponse("Missing or invalid 'file_path' argument"), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		recordToolCall("formfill_encode_file", "error")
		return jsonResponse(encodeResult{
			Success: false,
			Message: fmt.Sprintf("File not found: %s", filePath),
		}), nil
	}

	recordToolCall("formfill_encode_file", "ok")
	return jsonResponse(encodeResult{
		Success:       true,
		Message:       "File encoded successfully",
		FileBase64:    base64.StdEncoding.EncodeToString(data),
		Filename:      filepath.Base(filePath),
		FileSizeBytes: len(data),
	}), nil
}

// handleDecodeFile implements the formfill_decode_file tool.
func (s *Server) handleDecodeFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !s.limiter.allowCall() {
		recordToolCall("formfill_decode_file", "rate_limited")
		return errorResponse(rateLimitedMessage), nil
	}

	encoded, err := request.RequireString("file_base64")
	if err != nil {
		return errorResponse("Missing or invalid 'file_base64' argument"), nil
	}
	outputPath, err := request.RequireString("output_path")
	if err != nil {
		return errorResponse("Missing or invalid 'output_path' argument"), nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		recordToolCall("formfill_decode_file", "error")
		return jsonResponse(decodeResult{
			Success: false,
			Message: fmt.Sprintf("Invalid base64 encoding: %v", err),
		}), nil
	}

	if err := os.WriteFile(outputPath, data, 0600); err != nil {
		recordToolCall("formfill_decode_file", "error")
		return jsonResponse(decodeResult{
			Success: false,
			Message: fmt.Sprintf("Error writing file: %v", err),
		}), nil
	}

	recordToolCall("formfill_decode_file", "ok")
	return jsonResponse(decodeResult{
		Success:       true,
		Message:       "File saved successfully",
		FilePath:      outputPath,
		FileSizeBytes: len(data),
	}), nil
}
