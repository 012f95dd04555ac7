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

package mcpserver

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/formfill/internal/commands/shared"
	"github.com/tombee/formfill/internal/mcp/server"
)

// NewCommand creates the mcp-server command
func NewCommand() *cobra.Command {
	var (
		logLevel     string
		transport    string
		host         string
		port         int
		settingsPath string
	)

	cmd := &cobra.Command{
		Use:   "mcp-server",
		Short: "Start the formfill MCP server",
		Long: `Start the formfill MCP (Model Context Protocol) server.

The server exposes the document completion pipeline as tools that agent
platforms (watsonx Orchestrate, Claude Desktop, and other MCP clients) can
call to fill unanswered questions in Excel questionnaires using
retrieval-augmented generation.

The server runs in stdio mode by default, which is suitable for desktop
MCP clients. Use --transport http for container deployments; the HTTP
transport also serves /healthz and Prometheus /metrics.

Configuration is read from the environment on first tool use:
  WATSONX_URL, WATSONX_API_KEY, WATSONX_PROJECT_ID (or WATSONX_SPACE_ID),
  ASTRA_DB_API_ENDPOINT, ASTRA_DB_APPLICATION_TOKEN
plus optional WATSONX_MODEL_ID, WATSONX_EMBEDDING_MODEL_ID,
ASTRA_DB_KEYSPACE, ASTRA_DB_COLLECTION and the COS_* variables for the
URL-based completion tool.

The server exposes these tools:
  - formfill_complete_document: Fill a local .xlsx file
  - formfill_complete_document_bytes: Fill an encoded byte buffer
  - formfill_complete_document_b64: Fill a base64 document, return base64
  - formfill_complete_document_url: Fill a document in object storage
  - formfill_list_sheets: List workbook sheet names
  - formfill_detect_columns: Detect Q&A columns in one sheet
  - formfill_answer_question: Answer a single question
  - formfill_search_knowledge: Search prior Q&A examples
  - formfill_encode_file / formfill_decode_file: Base64 helpers
  - formfill_health: Health check`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMCPServer(logLevel, transport, host, port, settingsPath)
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Logging verbosity (debug, info, warn, error)")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport to serve on (stdio, http)")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Bind host for HTTP transport")
	cmd.Flags().IntVar(&port, "port", 8080, "Bind port for HTTP transport")
	cmd.Flags().StringVar(&settingsPath, "settings", "", "Optional YAML settings file with pipeline tunables")

	return cmd
}

func runMCPServer(logLevel, transport, host string, port int, settingsPath string) error {
	versionStr, _, _ := shared.GetVersion()

	srv, err := server.NewServer(server.ServerConfig{
		Name:         "formfill",
		Version:      versionStr,
		LogLevel:     logLevel,
		SettingsPath: settingsPath,
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nReceived shutdown signal, shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
		}

		cancel()
	}()

	switch transport {
	case "stdio":
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
	case "http":
		if err := srv.RunHTTP(ctx, host, port); err != nil {
			return fmt.Errorf("MCP server error: %w", err)
		}
	default:
		return fmt.Errorf("invalid transport: %s (must be stdio or http)", transport)
	}

	return nil
}
