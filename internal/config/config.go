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

// Package config loads service credentials from the environment and
// optional pipeline tunables from a YAML settings file.
package config

import (
	"fmt"
	"os"
	"strings"
)

// Environment variable names for the watsonx.ai and Astra DB connections.
const (
	EnvWatsonxURL         = "WATSONX_URL"
	EnvWatsonxAPIKey      = "WATSONX_API_KEY"
	EnvWatsonxProjectID   = "WATSONX_PROJECT_ID"
	EnvWatsonxSpaceID     = "WATSONX_SPACE_ID"
	EnvWatsonxModelID     = "WATSONX_MODEL_ID"
	EnvWatsonxEmbModelID  = "WATSONX_EMBEDDING_MODEL_ID"
	EnvWatsonxIAMTokenURL = "WATSONX_IAM_TOKEN_URL"

	EnvAstraEndpoint   = "ASTRA_DB_API_ENDPOINT"
	EnvAstraToken      = "ASTRA_DB_APPLICATION_TOKEN"
	EnvAstraKeyspace   = "ASTRA_DB_KEYSPACE"
	EnvAstraCollection = "ASTRA_DB_COLLECTION"

	EnvCOSEndpoint  = "COS_ENDPOINT"
	EnvCOSRegion    = "COS_REGION"
	EnvCOSBucket    = "COS_BUCKET"
	EnvCOSAccessKey = "COS_ACCESS_KEY_ID"
	EnvCOSSecretKey = "COS_SECRET_ACCESS_KEY"
)

// Defaults applied when the corresponding variable is unset.
const (
	DefaultModelID          = "meta-llama/llama-3-3-70b-instruct"
	DefaultEmbeddingModelID = "ibm/slate-125m-english-rtrvr"
)

// MissingEnvError reports every required variable that is unset, so an
// operator fixes the deployment in one pass instead of one variable at a
// time.
type MissingEnvError struct {
	Names []string
}

func (e *MissingEnvError) Error() string {
	return fmt.Sprintf("missing required environment variables: %s", strings.Join(e.Names, ", "))
}

// Watsonx holds the watsonx.ai connection settings.
type Watsonx struct {
	URL              string
	APIKey           string
	IAMTokenURL      string
	ProjectID        string
	SpaceID          string
	ModelID          string
	EmbeddingModelID string
}

// Astra holds the Astra DB Data API connection settings.
type Astra struct {
	Endpoint   string
	Token      string
	Keyspace   string
	Collection string
}

// ObjectStorage holds the S3-compatible object storage settings. These are
// optional: only the URL-based completion tool needs them, and it validates
// presence itself.
type ObjectStorage struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
}

// Configured reports whether enough is set to construct a storage client.
func (o ObjectStorage) Configured() bool {
	return o.Endpoint != "" && o.AccessKey != "" && o.SecretKey != ""
}

// Config is the full service configuration.
type Config struct {
	Watsonx  Watsonx
	Astra    Astra
	Storage  ObjectStorage
	Settings Settings
}

// Load reads configuration from the environment and, when settingsPath is
// non-empty, merges pipeline tunables from the YAML file at that path. It
// collects all missing required variables into a single MissingEnvError.
func Load(settingsPath string) (*Config, error) {
	cfg := &Config{
		Watsonx: Watsonx{
			URL:              os.Getenv(EnvWatsonxURL),
			APIKey:           os.Getenv(EnvWatsonxAPIKey),
			IAMTokenURL:      os.Getenv(EnvWatsonxIAMTokenURL),
			ProjectID:        os.Getenv(EnvWatsonxProjectID),
			SpaceID:          os.Getenv(EnvWatsonxSpaceID),
			ModelID:          os.Getenv(EnvWatsonxModelID),
			EmbeddingModelID: os.Getenv(EnvWatsonxEmbModelID),
		},
		Astra: Astra{
			Endpoint:   os.Getenv(EnvAstraEndpoint),
			Token:      os.Getenv(EnvAstraToken),
			Keyspace:   os.Getenv(EnvAstraKeyspace),
			Collection: os.Getenv(EnvAstraCollection),
		},
		Storage: ObjectStorage{
			Endpoint:  os.Getenv(EnvCOSEndpoint),
			Region:    os.Getenv(EnvCOSRegion),
			Bucket:    os.Getenv(EnvCOSBucket),
			AccessKey: os.Getenv(EnvCOSAccessKey),
			SecretKey: os.Getenv(EnvCOSSecretKey),
		},
		Settings: DefaultSettings(),
	}

	if cfg.Watsonx.ModelID == "" {
		cfg.Watsonx.ModelID = DefaultModelID
	}
	if cfg.Watsonx.EmbeddingModelID == "" {
		cfg.Watsonx.EmbeddingModelID = DefaultEmbeddingModelID
	}

	var missing []string
	if cfg.Watsonx.URL == "" {
		missing = append(missing, EnvWatsonxURL)
	}
	if cfg.Watsonx.APIKey == "" {
		missing = append(missing, EnvWatsonxAPIKey)
	}
	if cfg.Watsonx.ProjectID == "" && cfg.Watsonx.SpaceID == "" {
		missing = append(missing, EnvWatsonxProjectID)
	}
	if cfg.Astra.Endpoint == "" {
		missing = append(missing, EnvAstraEndpoint)
	}
	if cfg.Astra.Token == "" {
		missing = append(missing, EnvAstraToken)
	}
	if len(missing) > 0 {
		return nil, &MissingEnvError{Names: missing}
	}

	if settingsPath != "" {
		settings, err := LoadSettings(settingsPath)
		if err != nil {
			return nil, err
		}
		cfg.Settings = settings
	}

	return cfg, nil
}
