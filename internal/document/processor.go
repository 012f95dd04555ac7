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
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/tombee/formfill/internal/qa"
)

// unansweredValues mark an answer cell as still needing an answer, beyond
// plain blank/whitespace. Compared case-insensitively after trimming.
var unansweredValues = map[string]bool{
	"nan":        true,
	"unanswered": true,
}

// Row formatting bounds for the cosmetic post-pass.
const (
	minRowHeight      = 15.0
	maxRowHeight      = 150.0
	wrapCharsPerLine  = 80
	pointsPerTextLine = 15.0
)

// Detector locates the question and answer columns of a sheet.
type Detector interface {
	Detect(ctx context.Context, headers []string, rows [][]string) (qa.Columns, error)
}

// Answerer generates an answer for one question.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, error)
}

// ProcessorConfig carries the sheet-level tunables.
type ProcessorConfig struct {
	QuestionColumnWidth float64
	AnswerColumnWidth   float64
	SkipSheetKeywords   []string
}

// SheetResult reports what happened to a single sheet.
type SheetResult struct {
	Sheet             string `json:"sheet"`
	Skipped           bool   `json:"skipped"`
	SkipReason        string `json:"skip_reason,omitempty"`
	QuestionsAnswered int    `json:"questions_answered"`
	RowFailures       int    `json:"row_failures"`
}

// Processor fills the unanswered rows of one sheet at a time.
type Processor struct {
	detector Detector
	answerer Answerer
	cfg      ProcessorConfig
	logger   *slog.Logger
}

// NewProcessor constructs a Processor. Zero widths get the standard 60/80.
func NewProcessor(detector Detector, answerer Answerer, cfg ProcessorConfig, logger *slog.Logger) (*Processor, error) {
	if detector == nil {
		return nil, fmt.Errorf("document: detector must not be nil")
	}
	if answerer == nil {
		return nil, fmt.Errorf("document: answerer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QuestionColumnWidth <= 0 {
		cfg.QuestionColumnWidth = 60
	}
	if cfg.AnswerColumnWidth <= 0 {
		cfg.AnswerColumnWidth = 80
	}
	return &Processor{
		detector: detector,
		answerer: answerer,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// ProcessSheet detects the Q&A columns of the sheet and answers every row
// whose question cell is filled but whose answer cell is blank or marked
// unanswered. Per-row generation failures log a warning and leave the cell
// blank. Cancellation is honored at row boundaries.
func (p *Processor) ProcessSheet(ctx context.Context, f *excelize.File, sheet string) (SheetResult, error) {
	result := SheetResult{Sheet: sheet}

	if reason, skip := p.shouldSkip(sheet); skip {
		result.Skipped = true
		result.SkipReason = reason
		p.logger.Info("skipping sheet", "sheet", sheet, "reason", reason)
		return result, nil
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return result, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		result.Skipped = true
		result.SkipReason = "no data rows"
		return result, nil
	}

	headers := rows[0]
	cols, err := p.detector.Detect(ctx, headers, rows[1:])
	if err != nil {
		if errors.Is(err, qa.ErrNoQAColumns) {
			result.Skipped = true
			result.SkipReason = "no question/answer columns detected"
			p.logger.Info("skipping sheet", "sheet", sheet, "reason", result.SkipReason)
			return result, nil
		}
		return result, fmt.Errorf("column detection failed for sheet %q: %w", sheet, err)
	}

	p.logger.Info("detected columns",
		"sheet", sheet,
		"question_column", columnName(headers, cols.Question),
		"answer_column", columnName(headers, cols.Answer),
	)

	wrapStyle, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})
	if err != nil {
		return result, fmt.Errorf("failed to create wrap style for sheet %q: %w", sheet, err)
	}

	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		excelRow := i + 2 // 1-based, after the header row

		question := strings.TrimSpace(cellAt(row, cols.Question))
		if question == "" {
			continue
		}
		if !needsAnswer(cellAt(row, cols.Answer)) {
			continue
		}

		answer, err := p.answerer.Answer(ctx, question)
		if err != nil {
			// Row stays blank; the failure shows up in the summary.
			result.RowFailures++
			p.logger.Warn("answer generation failed, leaving row blank",
				"sheet", sheet, "row", excelRow, "error", err)
			continue
		}

		if err := p.writeAnswer(f, sheet, excelRow, cols, answer, wrapStyle); err != nil {
			return result, fmt.Errorf("failed to write answer at row %d of sheet %q: %w", excelRow, sheet, err)
		}
		result.QuestionsAnswered++
	}

	if result.QuestionsAnswered > 0 {
		if err := p.applyColumnWidths(f, sheet, cols); err != nil {
			return result, err
		}
	}

	p.logger.Info("sheet complete",
		"sheet", sheet,
		"questions_answered", result.QuestionsAnswered,
		"row_failures", result.RowFailures,
	)
	return result, nil
}

// writeAnswer dissolves any merge range covering the target cells, writes
// the answer into the answer cell, and applies wrap formatting plus an
// estimated row height. Dissolved ranges are not re-merged.
func (p *Processor) writeAnswer(f *excelize.File, sheet string, row int, cols qa.Columns, answer string, wrapStyle int) error {
	answerCell, err := excelize.CoordinatesToCellName(cols.Answer+1, row)
	if err != nil {
		return err
	}
	questionCell, err := excelize.CoordinatesToCellName(cols.Question+1, row)
	if err != nil {
		return err
	}

	for _, cell := range []string{answerCell, questionCell} {
		if err := dissolveMerge(f, sheet, cell); err != nil {
			return err
		}
	}

	if err := f.SetCellStr(sheet, answerCell, answer); err != nil {
		return err
	}
	for _, cell := range []string{answerCell, questionCell} {
		if err := f.SetCellStyle(sheet, cell, cell, wrapStyle); err != nil {
			return err
		}
	}

	return f.SetRowHeight(sheet, row, estimateRowHeight(answer))
}

// dissolveMerge unmerges the range containing the cell, if any. The value
// lands in the range's top-left cell; members become independent blanks.
func dissolveMerge(f *excelize.File, sheet, cell string) error {
	merges, err := f.GetMergeCells(sheet)
	if err != nil {
		return err
	}
	col, row, err := excelize.CellNameToCoordinates(cell)
	if err != nil {
		return err
	}
	for _, m := range merges {
		if mergeContains(m, col, row) {
			return f.UnmergeCell(sheet, m.GetStartAxis(), m.GetEndAxis())
		}
	}
	return nil
}

func mergeContains(m excelize.MergeCell, col, row int) bool {
	startCol, startRow, err := excelize.CellNameToCoordinates(m.GetStartAxis())
	if err != nil {
		return false
	}
	endCol, endRow, err := excelize.CellNameToCoordinates(m.GetEndAxis())
	if err != nil {
		return false
	}
	return col >= startCol && col <= endCol && row >= startRow && row <= endRow
}

func (p *Processor) applyColumnWidths(f *excelize.File, sheet string, cols qa.Columns) error {
	questionCol, err := excelize.ColumnNumberToName(cols.Question + 1)
	if err != nil {
		return err
	}
	answerCol, err := excelize.ColumnNumberToName(cols.Answer + 1)
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, questionCol, questionCol, p.cfg.QuestionColumnWidth); err != nil {
		return fmt.Errorf("failed to set question column width on sheet %q: %w", sheet, err)
	}
	if err := f.SetColWidth(sheet, answerCol, answerCol, p.cfg.AnswerColumnWidth); err != nil {
		return fmt.Errorf("failed to set answer column width on sheet %q: %w", sheet, err)
	}
	return nil
}

// estimateRowHeight sizes a row for wrapped answer text, one text line per
// 80 characters, clamped to [15, 150] points.
func estimateRowHeight(answer string) float64 {
	lines := (len(answer) + wrapCharsPerLine - 1) / wrapCharsPerLine
	if lines < 1 {
		lines = 1
	}
	height := pointsPerTextLine * float64(lines)
	if height < minRowHeight {
		return minRowHeight
	}
	if height > maxRowHeight {
		return maxRowHeight
	}
	return height
}

// needsAnswer reports whether an answer cell still needs filling: blank,
// whitespace-only, or an explicit unanswered marker.
func needsAnswer(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	return v == "" || unansweredValues[v]
}

// shouldSkip matches the sheet name against the configured skip keywords,
// case-insensitively.
func (p *Processor) shouldSkip(sheet string) (string, bool) {
	lower := strings.ToLower(sheet)
	for _, keyword := range p.cfg.SkipSheetKeywords {
		if keyword != "" && strings.Contains(lower, strings.ToLower(keyword)) {
			return fmt.Sprintf("sheet name matches skip keyword %q", keyword), true
		}
	}
	return "", false
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func columnName(headers []string, idx int) string {
	if idx >= 0 && idx < len(headers) {
		return headers[idx]
	}
	return fmt.Sprintf("column %d", idx+1)
}
