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

// Package server implements an MCP server exposing the document
// completion pipeline as tools.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/tombee/formfill/internal/engine"
)

// Server wraps the MCP server and the completion engine.
type Server struct {
	mcpServer *server.MCPServer
	engine    *engine.Engine
	name      string
	version   string
	limiter   *rateLimiter
	logger    *slog.Logger
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	// Name is the server name (default: "formfill").
	Name string

	// Version reported in health responses.
	Version string

	// LogLevel controls logging verbosity (debug, info, warn, error).
	LogLevel string

	// SettingsPath optionally points at a YAML tunables file.
	SettingsPath string

	// CompletionsPerMinute limits whole-document completion calls
	// (default: 10).
	CompletionsPerMinute int

	// CallsPerMinute limits total tool calls (default: 100).
	CallsPerMinute int
}

// createLogger creates a logger with the specified log level. Writes to
// stderr so log lines never interleave with the stdio JSON-RPC stream.
func createLogger(levelStr string) (*slog.Logger, error) {
	var level slog.Level

	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info", "":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", levelStr)
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler), nil
}

// NewServer creates an MCP server instance. The completion engine is not
// constructed here; the first tool call that needs it validates
// configuration and builds the clients.
func NewServer(config ServerConfig) (*Server, error) {
	if config.Name == "" {
		config.Name = "formfill"
	}
	if config.Version == "" {
		config.Version = "dev"
	}
	if config.CompletionsPerMinute <= 0 {
		config.CompletionsPerMinute = 10
	}
	if config.CallsPerMinute <= 0 {
		config.CallsPerMinute = 100
	}

	logger, err := createLogger(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	mcpServer := server.NewMCPServer(config.Name, config.Version)

	s := &Server{
		mcpServer: mcpServer,
		engine:    engine.New(config.SettingsPath, logger),
		name:      config.Name,
		version:   config.Version,
		limiter:   newRateLimiter(config.CompletionsPerMinute, config.CallsPerMinute),
		logger:    logger,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers the document completion tools with the MCP
// server.
func (s *Server) registerTools() {
	// Tool: formfill_complete_document
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "formfill_complete_document",
		Description: "Process an Excel document on the local filesystem and fill in unanswered questions using retrieval-augmented generation. Returns a processing summary and the output path.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"input_file_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the input Excel file (.xlsx)",
				},
				"output_file_path": map[string]interface{}{
					"type":        "string",
					"description": "Optional absolute path for the output file. Defaults to a '_completed' suffix next to the input.",
				},
			},
			Required: []string{"input_file_path"},
		},
	}, s.handleCompleteDocument)

	// Tool: formfill_complete_document_bytes
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "formfill_complete_document_bytes",
		Description: "Process an Excel document supplied as an encoded byte buffer. Returns either the completed bytes or a path to the completed file.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_bytes": map[string]interface{}{
					"type":        "string",
					"description": "Base64-encoded contents of the Excel file",
				},
				"filename": map[string]interface{}{
					"type":        "string",
					"description": "Original filename for extension checking (default: document.xlsx)",
				},
				"return_path": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, write the completed file to a temporary path and return the path instead of bytes (default: false)",
					"default":     false,
				},
			},
			Required: []string{"file_bytes"},
		},
	}, s.handleCompleteBytes)

	// Tool: formfill_complete_document_b64
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "formfill_complete_document_b64",
		Description: "Process a base64-encoded Excel document and return the completed document as base64. Designed for Orchestrate-style agent workflows where files travel as base64 strings.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_base64": map[string]interface{}{
					"type":        "string",
					"description": "Base64-encoded Excel file content",
				},
				"filename": map[string]interface{}{
					"type":        "string",
					"description": "Original filename for extension checking (default: document.xlsx)",
				},
			},
			Required: []string{"file_base64"},
		},
	}, s.handleCompleteBase64)

	// Tool: formfill_complete_document_url
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "formfill_complete_document_url",
		Description: "Download an Excel document from S3-compatible object storage, fill in unanswered questions, upload the completed document next to the input, and return its location.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_url": map[string]interface{}{
					"type":        "string",
					"description": "Object URL (s3://bucket/key or https://endpoint/bucket/key)",
				},
			},
			Required: []string{"file_url"},
		},
	}, s.handleCompleteURL)

	// Tool: formfill_list_sheets
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "formfill_list_sheets",
		Description: "List all sheet names in an Excel workbook. Helpful for understanding document structure before processing.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the Excel file",
				},
			},
			Required: []string{"file_path"},
		},
	}, s.handleListSheets)

	// Tool: formfill_detect_columns
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "formfill_detect_columns",
		Description: "Detect which columns contain questions and answers in a specific sheet, using the configured model.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the Excel file",
				},
				"sheet_name": map[string]interface{}{
					"type":        "string",
					"description": "Name of the sheet to analyze",
				},
			},
			Required: []string{"file_path", "sheet_name"},
		},
	}, s.handleDetectColumns)

	// Tool: formfill_answer_question
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "formfill_answer_question",
		Description: "Answer a single question with optional knowledge-store retrieval. Useful for testing or answering individual questions outside of document processing.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"question": map[string]interface{}{
					"type":        "string",
					"description": "The question to answer",
				},
				"use_retrieval": map[string]interface{}{
					"type":        "boolean",
					"description": "Whether to retrieve similar prior answers for context (default: true)",
					"default":     true,
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Number of similar examples to retrieve (default: 5)",
				},
			},
			Required: []string{"question"},
		},
	}, s.handleAnswerQuestion)

	// Tool: formfill_search_knowledge
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "formfill_search_knowledge",
		Description: "Search the knowledge store for relevant prior Q&A examples. Useful for checking what information is available before processing documents.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query or question",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (default: 5)",
				},
				"similarity_threshold": map[string]interface{}{
					"type":        "number",
					"description": "Minimum similarity score between 0 and 1 (default: 0.5)",
				},
			},
			Required: []string{"query"},
		},
	}, s.handleSearchKnowledge)

	// Tool: formfill_encode_file
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "formfill_encode_file",
		Description: "Encode a local file to base64 for transfer, e.g. before calling formfill_complete_document_b64.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file to encode",
				},
			},
			Required: []string{"file_path"},
		},
	}, s.handleEncodeFile)

	// Tool: formfill_decode_file
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "formfill_decode_file",
		Description: "Decode a base64 string and save it as a local file, e.g. to materialize the result of formfill_complete_document_b64.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_base64": map[string]interface{}{
					"type":        "string",
					"description": "Base64-encoded file content",
				},
				"output_path": map[string]interface{}{
					"type":        "string",
					"description": "Path where the file should be saved",
				},
			},
			Required: []string{"file_base64", "output_path"},
		},
	}, s.handleDecodeFile)

	// Tool: formfill_health
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "formfill_health",
		Description: "Health check for container orchestration. Returns service name, version and status.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleHealth)
}

// Run starts the MCP server using stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting formfill MCP server", slog.String("version", s.version))

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("MCP server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server. The stdio transport stops
// when ServeStdio returns, so there is nothing extra to tear down.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down formfill MCP server")
	return nil
}

// Helper function to create error response
func errorResponse(message string) *mcp.CallToolResult {
	return mcp.NewToolResultError(message)
}

// Helper function to create success response
func textResponse(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// jsonResponse marshals v and returns it as a text result.
func jsonResponse(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResponse(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return textResponse(string(data))
}

// rateLimited is the shared refusal message.
const rateLimitedMessage = "Rate limit exceeded. Please try again later."
