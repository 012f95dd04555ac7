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

package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObjectURL(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{"s3 scheme", "s3://forms/in/vendor.xlsx", "forms", "in/vendor.xlsx", false},
		{"https path style", "https://s3.us-south.cloud-object-storage.appdomain.cloud/forms/in/vendor.xlsx", "forms", "in/vendor.xlsx", false},
		{"https missing key", "https://host/forms", "", "", true},
		{"s3 missing key", "s3://forms", "", "", true},
		{"bad scheme", "ftp://host/forms/a.xlsx", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := ParseObjectURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBucket, bucket)
			assert.Equal(t, tt.wantKey, key)
		})
	}
}

func TestOutputKey(t *testing.T) {
	assert.Equal(t, "in/vendor_completed.xlsx", OutputKey("in/vendor.xlsx", "vendor_completed.xlsx"))
	assert.Equal(t, "vendor_completed.xlsx", OutputKey("vendor.xlsx", "vendor_completed.xlsx"))
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{Endpoint: "https://s3.example.com", AccessKey: "ak", SecretKey: "sk"}
	assert.NoError(t, valid.Validate())

	noEndpoint := valid
	noEndpoint.Endpoint = ""
	assert.Error(t, noEndpoint.Validate())

	noKeys := valid
	noKeys.SecretKey = ""
	assert.Error(t, noKeys.Validate())
}
