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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tombee/formfill/internal/qa"
)

// fixedDetector always reports the same Q&A columns.
type fixedDetector struct {
	cols qa.Columns
	err  error
}

func (d fixedDetector) Detect(context.Context, []string, [][]string) (qa.Columns, error) {
	if d.err != nil {
		return qa.Columns{}, d.err
	}
	return d.cols, nil
}

// echoAnswerer answers every question with a derived string, optionally
// failing for specific questions.
type echoAnswerer struct {
	failFor map[string]bool
	calls   []string
}

func (a *echoAnswerer) Answer(_ context.Context, question string) (string, error) {
	a.calls = append(a.calls, question)
	if a.failFor[question] {
		return "", errors.New("model unavailable")
	}
	return "answer to: " + question, nil
}

// buildWorkbook creates an in-memory workbook with the given sheets, each
// a grid of rows starting at A1.
func buildWorkbook(t *testing.T, sheets map[string][][]interface{}, order []string) *excelize.File {
	t.Helper()
	f := excelize.NewFile()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	return f
}

func newProcessor(t *testing.T, detector Detector, answerer Answerer) *Processor {
	t.Helper()
	p, err := NewProcessor(detector, answerer, ProcessorConfig{
		SkipSheetKeywords: []string{"instruction", "dv_sheet", "legend"},
	}, nil)
	require.NoError(t, err)
	return p
}

func TestProcessSheet_AnswersBlankRows(t *testing.T) {
	f := buildWorkbook(t, map[string][][]interface{}{
		"Questionnaire": {
			{"Question", "Answer"},
			{"Is data encrypted?", ""},
			{"Who owns the platform?", "Platform team"},
			{"Is MFA enforced?", "unanswered"},
			{"", "orphan answer"},
			{"What is the retention period?", "NaN"},
		},
	}, []string{"Questionnaire"})

	answerer := &echoAnswerer{}
	p := newProcessor(t, fixedDetector{cols: qa.Columns{Question: 0, Answer: 1}}, answerer)

	result, err := p.ProcessSheet(context.Background(), f, "Questionnaire")
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, 3, result.QuestionsAnswered)
	assert.Equal(t, 0, result.RowFailures)
	assert.Equal(t, []string{
		"Is data encrypted?",
		"Is MFA enforced?",
		"What is the retention period?",
	}, answerer.calls)

	// filled cells
	v, err := f.GetCellValue("Questionnaire", "B2")
	require.NoError(t, err)
	assert.Equal(t, "answer to: Is data encrypted?", v)
	v, err = f.GetCellValue("Questionnaire", "B4")
	require.NoError(t, err)
	assert.Equal(t, "answer to: Is MFA enforced?", v)

	// already-answered cell untouched
	v, err = f.GetCellValue("Questionnaire", "B3")
	require.NoError(t, err)
	assert.Equal(t, "Platform team", v)
}

func TestProcessSheet_Idempotent(t *testing.T) {
	f := buildWorkbook(t, map[string][][]interface{}{
		"QA": {
			{"Question", "Answer"},
			{"Is data encrypted?", ""},
		},
	}, []string{"QA"})

	answerer := &echoAnswerer{}
	p := newProcessor(t, fixedDetector{cols: qa.Columns{Question: 0, Answer: 1}}, answerer)

	first, err := p.ProcessSheet(context.Background(), f, "QA")
	require.NoError(t, err)
	assert.Equal(t, 1, first.QuestionsAnswered)

	// second run finds nothing blank
	second, err := p.ProcessSheet(context.Background(), f, "QA")
	require.NoError(t, err)
	assert.Equal(t, 0, second.QuestionsAnswered)
	assert.Len(t, answerer.calls, 1)
}

func TestProcessSheet_RowFailureLeavesCellBlank(t *testing.T) {
	f := buildWorkbook(t, map[string][][]interface{}{
		"QA": {
			{"Question", "Answer"},
			{"bad question", ""},
			{"good question", ""},
		},
	}, []string{"QA"})

	answerer := &echoAnswerer{failFor: map[string]bool{"bad question": true}}
	p := newProcessor(t, fixedDetector{cols: qa.Columns{Question: 0, Answer: 1}}, answerer)

	result, err := p.ProcessSheet(context.Background(), f, "QA")
	require.NoError(t, err)
	assert.Equal(t, 1, result.QuestionsAnswered)
	assert.Equal(t, 1, result.RowFailures)

	v, err := f.GetCellValue("QA", "B2")
	require.NoError(t, err)
	assert.Empty(t, v)

	v, err = f.GetCellValue("QA", "B3")
	require.NoError(t, err)
	assert.Equal(t, "answer to: good question", v)
}

func TestProcessSheet_SkipKeyword(t *testing.T) {
	f := buildWorkbook(t, map[string][][]interface{}{
		"Instructions": {{"read me"}},
	}, []string{"Instructions"})

	answerer := &echoAnswerer{}
	p := newProcessor(t, fixedDetector{cols: qa.Columns{Question: 0, Answer: 1}}, answerer)

	result, err := p.ProcessSheet(context.Background(), f, "Instructions")
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Contains(t, result.SkipReason, "instruction")
	assert.Empty(t, answerer.calls)
}

func TestProcessSheet_NoColumnsDetected(t *testing.T) {
	f := buildWorkbook(t, map[string][][]interface{}{
		"Data": {
			{"Region", "Revenue"},
			{"EMEA", "7"},
		},
	}, []string{"Data"})

	p := newProcessor(t, fixedDetector{err: qa.ErrNoQAColumns}, &echoAnswerer{})

	result, err := p.ProcessSheet(context.Background(), f, "Data")
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "no question/answer columns detected", result.SkipReason)
}

func TestProcessSheet_DetectorFailureIsSheetError(t *testing.T) {
	f := buildWorkbook(t, map[string][][]interface{}{
		"Data": {
			{"Question", "Answer"},
			{"q", ""},
		},
	}, []string{"Data"})

	p := newProcessor(t, fixedDetector{err: errors.New("model down")}, &echoAnswerer{})

	_, err := p.ProcessSheet(context.Background(), f, "Data")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "column detection failed")
}

func TestProcessSheet_EmptySheetSkipped(t *testing.T) {
	f := buildWorkbook(t, map[string][][]interface{}{
		"Empty": {{"Header only"}},
	}, []string{"Empty"})

	p := newProcessor(t, fixedDetector{cols: qa.Columns{Question: 0, Answer: 1}}, &echoAnswerer{})

	result, err := p.ProcessSheet(context.Background(), f, "Empty")
	require.NoError(t, err)
	assert.True(t, result.Skipped)
	assert.Equal(t, "no data rows", result.SkipReason)
}

func TestProcessSheet_DissolvesMergedAnswerCell(t *testing.T) {
	f := buildWorkbook(t, map[string][][]interface{}{
		"QA": {
			{"Question", "Answer", "Notes"},
			{"Is data encrypted?", "", ""},
		},
	}, []string{"QA"})
	// answer cell is part of a merge range
	require.NoError(t, f.MergeCell("QA", "B2", "C2"))

	p := newProcessor(t, fixedDetector{cols: qa.Columns{Question: 0, Answer: 1}}, &echoAnswerer{})

	result, err := p.ProcessSheet(context.Background(), f, "QA")
	require.NoError(t, err)
	assert.Equal(t, 1, result.QuestionsAnswered)

	merges, err := f.GetMergeCells("QA")
	require.NoError(t, err)
	assert.Empty(t, merges, "written cell must not remain merged")

	v, err := f.GetCellValue("QA", "B2")
	require.NoError(t, err)
	assert.Equal(t, "answer to: Is data encrypted?", v)
}

func TestProcessSheet_CancellationAtRowBoundary(t *testing.T) {
	f := buildWorkbook(t, map[string][][]interface{}{
		"QA": {
			{"Question", "Answer"},
			{"q1", ""},
			{"q2", ""},
		},
	}, []string{"QA"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newProcessor(t, fixedDetector{cols: qa.Columns{Question: 0, Answer: 1}}, &echoAnswerer{})

	_, err := p.ProcessSheet(ctx, f, "QA")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDriver_TwoSheetDocument(t *testing.T) {
	f := buildWorkbook(t, map[string][][]interface{}{
		"Questionnaire": {
			{"Question", "Answer"},
			{"q1", ""},
			{"q2", "done"},
		},
		"Instructions": {{"Fill in the blanks."}},
	}, []string{"Questionnaire", "Instructions"})

	wb := &Workbook{file: f, name: "vendor_form.xlsx"}

	p := newProcessor(t, fixedDetector{cols: qa.Columns{Question: 0, Answer: 1}}, &echoAnswerer{})
	driver, err := NewDriver(p, nil)
	require.NoError(t, err)

	summary, err := driver.Complete(context.Background(), wb)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.SheetsTotal)
	assert.Equal(t, 1, summary.SheetsProcessed)
	assert.Equal(t, 1, summary.SheetsSkipped)
	assert.Equal(t, 1, summary.QuestionsAnswered)
	assert.Empty(t, summary.SheetErrors)
	assert.Equal(t, "vendor_form_completed.xlsx", summary.OutputFilename)
}

func TestDriver_SheetErrorDoesNotSinkDocument(t *testing.T) {
	f := buildWorkbook(t, map[string][][]interface{}{
		"Broken": {
			{"Question", "Answer"},
			{"q", ""},
		},
		"Fine": {
			{"Question", "Answer"},
			{"q", ""},
		},
	}, []string{"Broken", "Fine"})

	wb := &Workbook{file: f, name: "form.xlsx"}

	detector := &perSheetDetector{failFor: "Broken"}
	p := newProcessor(t, detector, &echoAnswerer{})
	driver, err := NewDriver(p, nil)
	require.NoError(t, err)

	summary, err := driver.Complete(context.Background(), wb)
	require.NoError(t, err)

	require.Len(t, summary.SheetErrors, 1)
	assert.Equal(t, "Broken", summary.SheetErrors[0].Sheet)
	assert.Equal(t, 1, summary.SheetsProcessed)
	assert.Equal(t, 1, summary.QuestionsAnswered)
}

// perSheetDetector fails for one sheet by matching its header marker row.
type perSheetDetector struct {
	failFor string
	seen    int
}

func (d *perSheetDetector) Detect(_ context.Context, _ []string, _ [][]string) (qa.Columns, error) {
	// Driver processes sheets in order; first call is "Broken".
	d.seen++
	if d.seen == 1 && d.failFor != "" {
		return qa.Columns{}, fmt.Errorf("detector exploded")
	}
	return qa.Columns{Question: 0, Answer: 1}, nil
}

func TestEstimateRowHeight(t *testing.T) {
	tests := []struct {
		length int
		want   float64
	}{
		{0, 15},
		{40, 15},
		{80, 15},
		{81, 30},
		{240, 45},
		{10000, 150},
	}
	for _, tt := range tests {
		answer := make([]byte, tt.length)
		for i := range answer {
			answer[i] = 'x'
		}
		assert.Equal(t, tt.want, estimateRowHeight(string(answer)), "length %d", tt.length)
	}
}
