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

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings are the pipeline tunables. All have working defaults; a YAML
// settings file overrides individual fields.
type Settings struct {
	// TopK is the number of nearest neighbors fetched per question.
	TopK int `yaml:"top_k"`

	// SimilarityThreshold drops retrieved examples scoring below it.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// MaxTokens caps generated answer length.
	MaxTokens int `yaml:"max_tokens"`

	// QuestionColumnWidth and AnswerColumnWidth are applied to detected
	// columns in completed sheets.
	QuestionColumnWidth float64 `yaml:"question_column_width"`
	AnswerColumnWidth   float64 `yaml:"answer_column_width"`

	// SkipSheetKeywords marks sheets to pass over when the sheet name
	// contains one of these, case-insensitively.
	SkipSheetKeywords []string `yaml:"skip_sheet_keywords"`
}

// DefaultSettings returns the built-in tunables.
func DefaultSettings() Settings {
	return Settings{
		TopK:                5,
		SimilarityThreshold: 0.5,
		MaxTokens:           2000,
		QuestionColumnWidth: 60,
		AnswerColumnWidth:   80,
		SkipSheetKeywords:   []string{"instruction", "dv_sheet", "legend"},
	}
}

// LoadSettings reads a YAML settings file, overlaying it on the defaults.
// Unset fields keep their default values.
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("failed to read settings file: %w", err)
	}

	var overlay struct {
		TopK                *int     `yaml:"top_k"`
		SimilarityThreshold *float64 `yaml:"similarity_threshold"`
		MaxTokens           *int     `yaml:"max_tokens"`
		QuestionColumnWidth *float64 `yaml:"question_column_width"`
		AnswerColumnWidth   *float64 `yaml:"answer_column_width"`
		SkipSheetKeywords   []string `yaml:"skip_sheet_keywords"`
	}
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return settings, fmt.Errorf("failed to parse settings file: %w", err)
	}

	if overlay.TopK != nil {
		settings.TopK = *overlay.TopK
	}
	if overlay.SimilarityThreshold != nil {
		settings.SimilarityThreshold = *overlay.SimilarityThreshold
	}
	if overlay.MaxTokens != nil {
		settings.MaxTokens = *overlay.MaxTokens
	}
	if overlay.QuestionColumnWidth != nil {
		settings.QuestionColumnWidth = *overlay.QuestionColumnWidth
	}
	if overlay.AnswerColumnWidth != nil {
		settings.AnswerColumnWidth = *overlay.AnswerColumnWidth
	}
	if overlay.SkipSheetKeywords != nil {
		settings.SkipSheetKeywords = overlay.SkipSheetKeywords
	}

	if err := settings.Validate(); err != nil {
		return settings, err
	}
	return settings, nil
}

// Validate checks tunables for values the pipeline cannot work with.
func (s Settings) Validate() error {
	if s.TopK < 1 {
		return fmt.Errorf("top_k must be >= 1, got %d", s.TopK)
	}
	if s.SimilarityThreshold < 0 || s.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0, 1], got %g", s.SimilarityThreshold)
	}
	if s.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be >= 1, got %d", s.MaxTokens)
	}
	if s.QuestionColumnWidth <= 0 || s.AnswerColumnWidth <= 0 {
		return fmt.Errorf("column widths must be positive")
	}
	return nil
}
