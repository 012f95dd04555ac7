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
	"encoding/base64"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "QA"))
	require.NoError(t, f.SetCellStr("QA", "A1", "Question"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestOpenBytes_RoundTrip(t *testing.T) {
	wb, err := OpenBytes(sampleXLSX(t), "form.xlsx")
	require.NoError(t, err)
	defer wb.Close()

	assert.Equal(t, "form.xlsx", wb.Name())
	assert.Equal(t, []string{"QA"}, wb.Sheets())
	assert.Equal(t, "form_completed.xlsx", wb.OutputName())

	data, err := wb.Bytes()
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestOpen_Path(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.xlsx")
	wb, err := OpenBytes(sampleXLSX(t), "input.xlsx")
	require.NoError(t, err)
	require.NoError(t, wb.SaveAs(path))
	require.NoError(t, wb.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, []string{"QA"}, reopened.Sheets())
}

func TestOpen_WrongExtension(t *testing.T) {
	_, err := Open("/tmp/report.csv")
	var formatErr *FormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, "report.csv", formatErr.Filename)
}

func TestOpenBytes_CorruptData(t *testing.T) {
	_, err := OpenBytes([]byte("this is not a zip archive"), "form.xlsx")
	var formatErr *FormatError
	require.True(t, errors.As(err, &formatErr))
}

func TestOpenBase64(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString(sampleXLSX(t))
	wb, err := OpenBase64(encoded, "form.xlsx")
	require.NoError(t, err)
	defer wb.Close()
	assert.Equal(t, []string{"QA"}, wb.Sheets())
}

func TestOpenBase64_Malformed(t *testing.T) {
	_, err := OpenBase64("!!!not-base64!!!", "form.xlsx")
	var formatErr *FormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Contains(t, err.Error(), "base64")
}

func TestOutputName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"vendor_form.xlsx", "vendor_form_completed.xlsx"},
		{"/data/in/Q3 review.xlsx", "Q3 review_completed.xlsx"},
		{"UPPER.XLSX", "UPPER_completed.XLSX"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, OutputName(tt.in))
	}
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, filepath.FromSlash("/data/in/form_completed.xlsx"),
		OutputPath(filepath.FromSlash("/data/in/form.xlsx")))
}
