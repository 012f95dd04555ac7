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

package qa

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tombee/formfill/pkg/llm"
)

// ErrNoQAColumns indicates the model could not identify a question and an
// answer column for a sheet. Callers skip the sheet rather than failing
// the document.
var ErrNoQAColumns = errors.New("no question/answer columns detected")

// detectSampleRows is how many data rows after the header are shown to the
// model.
const detectSampleRows = 5

var (
	questionColRe = regexp.MustCompile(`(?m)^\s*Question column:\s*(.+?)\s*$`)
	answerColRe   = regexp.MustCompile(`(?m)^\s*Answer column:\s*(.+?)\s*$`)
)

// Columns are 0-based indexes of the detected question and answer columns.
type Columns struct {
	Question int
	Answer   int
}

// ColumnDetector asks a model to identify Q&A columns from a sheet sample.
type ColumnDetector struct {
	provider llm.Provider
	timeout  time.Duration
}

// NewColumnDetector constructs a ColumnDetector.
func NewColumnDetector(provider llm.Provider) (*ColumnDetector, error) {
	if provider == nil {
		return nil, fmt.Errorf("qa: provider must not be nil")
	}
	return &ColumnDetector{
		provider: provider,
		timeout:  defaultChatTimeout,
	}, nil
}

// Detect samples the sheet (header plus up to five data rows), asks the
// model which columns hold questions and answers, and maps the returned
// column names back to header indexes. Any unparseable or unmatchable
// response returns ErrNoQAColumns; Detect never aborts the caller for a
// sheet the model cannot read.
func (d *ColumnDetector) Detect(ctx context.Context, headers []string, rows [][]string) (Columns, error) {
	if len(headers) == 0 {
		return Columns{}, ErrNoQAColumns
	}

	prompt := fmt.Sprintf(`Given this spreadsheet data, identify which column contains questions and which contains answers.

%s

Respond in this exact format:
Question column: [column name]
Answer column: [column name]`, renderSample(headers, rows))

	chatCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req := llm.Deterministic([]llm.Message{
		{Role: llm.MessageRoleUser, Content: prompt},
	}, 200)

	resp, err := d.provider.Complete(chatCtx, req)
	if err != nil {
		return Columns{}, fmt.Errorf("column detection failed: %w", err)
	}

	questionName, answerName, ok := parseDetection(resp.Content)
	if !ok {
		return Columns{}, ErrNoQAColumns
	}

	questionIdx := headerIndex(headers, questionName)
	answerIdx := headerIndex(headers, answerName)
	if questionIdx < 0 || answerIdx < 0 || questionIdx == answerIdx {
		return Columns{}, ErrNoQAColumns
	}

	return Columns{Question: questionIdx, Answer: answerIdx}, nil
}

// parseDetection extracts the two column names from the model's response.
func parseDetection(response string) (question, answer string, ok bool) {
	qm := questionColRe.FindStringSubmatch(response)
	am := answerColRe.FindStringSubmatch(response)
	if qm == nil || am == nil {
		return "", "", false
	}
	question = strings.Trim(strings.TrimSpace(qm[1]), "[]")
	answer = strings.Trim(strings.TrimSpace(am[1]), "[]")
	if question == "" || answer == "" {
		return "", "", false
	}
	return question, answer, true
}

// headerIndex matches a model-reported column name against the headers,
// case-insensitively with surrounding whitespace ignored.
func headerIndex(headers []string, name string) int {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, h := range headers {
		if strings.ToLower(strings.TrimSpace(h)) == name {
			return i
		}
	}
	return -1
}

// renderSample formats the header and sample rows as a plain text table.
func renderSample(headers []string, rows [][]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(headers, " | "))
	b.WriteString("\n")

	limit := len(rows)
	if limit > detectSampleRows {
		limit = detectSampleRows
	}
	for _, row := range rows[:limit] {
		cells := make([]string, len(headers))
		for i := range headers {
			if i < len(row) {
				cells[i] = row[i]
			}
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
