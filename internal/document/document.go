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

package document

import (
	"context"
	"fmt"
	"log/slog"
)

// SheetError records a sheet that failed unexpectedly during processing.
type SheetError struct {
	Sheet string `json:"sheet"`
	Error string `json:"error"`
}

// Summary aggregates the per-sheet outcomes of one completion run.
type Summary struct {
	SheetsTotal       int           `json:"sheets_total"`
	SheetsProcessed   int           `json:"sheets_processed"`
	SheetsSkipped     int           `json:"sheets_skipped"`
	QuestionsAnswered int           `json:"questions_answered"`
	RowFailures       int           `json:"row_failures"`
	Sheets            []SheetResult `json:"sheets"`
	SheetErrors       []SheetError  `json:"sheet_errors,omitempty"`
	OutputFilename    string        `json:"output_filename"`
}

// Driver runs the completion pipeline over whole workbooks.
type Driver struct {
	processor *Processor
	logger    *slog.Logger
}

// NewDriver constructs a Driver.
func NewDriver(processor *Processor, logger *slog.Logger) (*Driver, error) {
	if processor == nil {
		return nil, fmt.Errorf("document: processor must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{processor: processor, logger: logger}, nil
}

// Complete processes every sheet of the workbook exactly once, in workbook
// order, mutating it in place. A sheet that fails unexpectedly is recorded
// in the summary and processing continues with the next sheet; only
// cancellation aborts the run.
func (d *Driver) Complete(ctx context.Context, wb *Workbook) (*Summary, error) {
	sheets := wb.Sheets()
	summary := &Summary{
		SheetsTotal:    len(sheets),
		OutputFilename: wb.OutputName(),
	}

	d.logger.Info("starting document completion",
		"document", wb.Name(), "sheets", len(sheets))

	for _, sheet := range sheets {
		result, err := d.processor.ProcessSheet(ctx, wb.File(), sheet)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.SheetErrors = append(summary.SheetErrors, SheetError{
				Sheet: sheet,
				Error: err.Error(),
			})
			d.logger.Error("sheet processing failed, continuing",
				"sheet", sheet, "error", err)
			continue
		}

		summary.Sheets = append(summary.Sheets, result)
		if result.Skipped {
			summary.SheetsSkipped++
		} else {
			summary.SheetsProcessed++
		}
		summary.QuestionsAnswered += result.QuestionsAnswered
		summary.RowFailures += result.RowFailures
	}

	d.logger.Info("document completion finished",
		"document", wb.Name(),
		"sheets_processed", summary.SheetsProcessed,
		"sheets_skipped", summary.SheetsSkipped,
		"sheet_errors", len(summary.SheetErrors),
		"questions_answered", summary.QuestionsAnswered,
		"row_failures", summary.RowFailures,
	)
	return summary, nil
}
