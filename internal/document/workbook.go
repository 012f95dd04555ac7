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

// Package document loads Excel workbooks, fills unanswered question rows
// via a pluggable answer generator, and serializes the completed result.
package document

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// FormatError indicates the input is not a readable .xlsx workbook. It is
// fatal to the whole request: no sheet is touched after it.
type FormatError struct {
	Filename string
	Err      error
}

func (e *FormatError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: not an .xlsx workbook", e.Filename)
	}
	return fmt.Sprintf("%s: unreadable workbook: %v", e.Filename, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// completedSuffix is appended to the input stem when naming output files.
const completedSuffix = "_completed"

// Workbook is an open spreadsheet plus the name it arrived under.
type Workbook struct {
	file *excelize.File
	name string
}

// Open reads a workbook from a local path.
func Open(path string) (*Workbook, error) {
	name := filepath.Base(path)
	if err := checkExtension(name); err != nil {
		return nil, err
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &FormatError{Filename: name, Err: err}
	}
	return &Workbook{file: f, name: name}, nil
}

// OpenBytes reads a workbook from an in-memory buffer. filename is used
// for error reporting and output naming; empty defaults to
// "workbook.xlsx".
func OpenBytes(data []byte, filename string) (*Workbook, error) {
	if filename == "" {
		filename = "workbook.xlsx"
	}
	if err := checkExtension(filename); err != nil {
		return nil, err
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FormatError{Filename: filename, Err: err}
	}
	return &Workbook{file: f, name: filename}, nil
}

// OpenBase64 decodes a base64 payload and reads the workbook from it.
func OpenBase64(encoded, filename string) (*Workbook, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &FormatError{Filename: filename, Err: fmt.Errorf("invalid base64 payload: %w", err)}
	}
	return OpenBytes(data, filename)
}

func checkExtension(name string) error {
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return &FormatError{Filename: name}
	}
	return nil
}

// File exposes the underlying spreadsheet.
func (w *Workbook) File() *excelize.File { return w.file }

// Name returns the filename the workbook arrived under.
func (w *Workbook) Name() string { return w.name }

// Sheets returns sheet names in workbook order.
func (w *Workbook) Sheets() []string { return w.file.GetSheetList() }

// Bytes serializes the workbook to an in-memory .xlsx.
func (w *Workbook) Bytes() ([]byte, error) {
	buf, err := w.file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveAs writes the workbook to the given path.
func (w *Workbook) SaveAs(path string) error {
	if err := w.file.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

// Close releases the underlying file resources.
func (w *Workbook) Close() error { return w.file.Close() }

// OutputName derives the completed-document filename from the input name:
// "vendor_form.xlsx" becomes "vendor_form_completed.xlsx".
func (w *Workbook) OutputName() string { return OutputName(w.name) }

// OutputName derives the completed-document filename for any input name.
func OutputName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(filepath.Base(name), ext)
	if ext == "" {
		ext = ".xlsx"
	}
	return stem + completedSuffix + ext
}

// OutputPath derives the completed-document path next to the input file.
func OutputPath(inputPath string) string {
	return filepath.Join(filepath.Dir(inputPath), OutputName(inputPath))
}
