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

package complete

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/formfill/internal/document"
	"github.com/tombee/formfill/internal/engine"
)

// NewCommand creates the complete command for one-shot local runs
// without an MCP client.
func NewCommand() *cobra.Command {
	var (
		outputPath   string
		settingsPath string
		logLevel     string
	)

	cmd := &cobra.Command{
		Use:   "complete <input.xlsx>",
		Short: "Fill unanswered questions in an Excel document",
		Long: `Process an Excel document and fill in unanswered questions using
retrieval-augmented generation. The completed document is written next to
the input with a '_completed' suffix unless --output is given.

Requires the watsonx.ai and Astra DB environment variables; see
'formfill mcp-server --help' for the list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runComplete(args[0], outputPath, settingsPath, logLevel)
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: '<input>_completed.xlsx')")
	cmd.Flags().StringVar(&settingsPath, "settings", "", "Optional YAML settings file with pipeline tunables")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Logging verbosity (debug, info, warn, error)")

	return cmd
}

func runComplete(inputPath, outputPath, settingsPath, logLevel string) error {
	level := slog.LevelInfo
	if logLevel == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wb, err := document.Open(inputPath)
	if err != nil {
		return err
	}
	defer wb.Close()

	driver, err := engine.New(settingsPath, logger).Driver()
	if err != nil {
		return err
	}

	summary, err := driver.Complete(ctx, wb)
	if err != nil {
		return err
	}

	if outputPath == "" {
		outputPath = document.OutputPath(inputPath)
	}
	if err := wb.SaveAs(outputPath); err != nil {
		return err
	}

	fmt.Printf("Sheets processed: %d/%d\n", summary.SheetsProcessed, summary.SheetsTotal)
	fmt.Printf("Questions answered: %d\n", summary.QuestionsAnswered)
	if summary.RowFailures > 0 {
		fmt.Printf("Rows left blank after generation failures: %d\n", summary.RowFailures)
	}
	for _, sheetErr := range summary.SheetErrors {
		fmt.Printf("Sheet %q failed: %s\n", sheetErr.Sheet, sheetErr.Error)
	}
	fmt.Printf("Output file: %s\n", outputPath)
	return nil
}
