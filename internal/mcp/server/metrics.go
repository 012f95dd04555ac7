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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/formfill/internal/document"
)

var (
	toolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formfill_tool_calls_total",
			Help: "Total MCP tool calls by tool and status",
		},
		[]string{"tool", "status"},
	)

	completionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "formfill_completion_duration_seconds",
		Help:    "Duration of whole-document completion runs",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	})

	questionsAnswered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formfill_questions_answered_total",
		Help: "Total questions answered across all documents",
	})

	rowFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formfill_row_failures_total",
		Help: "Total per-row answer generation failures",
	})

	sheetErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "formfill_sheet_errors_total",
		Help: "Total sheets that failed unexpectedly during processing",
	})
)

// recordToolCall records one tool invocation outcome.
func recordToolCall(tool, status string) {
	toolCalls.WithLabelValues(tool, status).Inc()
}

// recordSummary records the aggregate counters of a completion run.
func recordSummary(summary *document.Summary, duration float64) {
	completionDuration.Observe(duration)
	questionsAnswered.Add(float64(summary.QuestionsAnswered))
	rowFailures.Add(float64(summary.RowFailures))
	sheetErrors.Add(float64(len(summary.SheetErrors)))
}
