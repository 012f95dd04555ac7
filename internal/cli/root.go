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

// Package cli assembles the formfill command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/formfill/internal/commands/complete"
	"github.com/tombee/formfill/internal/commands/mcpserver"
	versioncmd "github.com/tombee/formfill/internal/commands/version"
)

// NewRootCommand creates the root formfill command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "formfill",
		Short: "Excel questionnaire auto-completion over MCP",
		Long: `formfill fills unanswered questions in Excel questionnaires using
retrieval-augmented generation: prior Q&A pairs are retrieved from a
vector store and a watsonx.ai model writes form-ready answers into the
workbook.

Run 'formfill mcp-server' to expose the pipeline as MCP tools, or
'formfill complete' for a one-shot local run.`,
		SilenceUsage: true, // Don't show usage on errors
	}

	rootCmd.AddCommand(mcpserver.NewCommand())
	rootCmd.AddCommand(complete.NewCommand())
	rootCmd.AddCommand(versioncmd.NewCommand())

	return rootCmd
}
