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

// Package engine wires configuration and the external service clients
// into one lazily-constructed bundle. The server starts without touching
// the environment; the first tool call that needs the pipeline validates
// configuration and builds the clients exactly once, and every later call
// reuses them.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tombee/formfill/internal/config"
	"github.com/tombee/formfill/internal/document"
	"github.com/tombee/formfill/internal/qa"
	"github.com/tombee/formfill/internal/storage"
	"github.com/tombee/formfill/pkg/llm"
	"github.com/tombee/formfill/pkg/llm/watsonx"
	"github.com/tombee/formfill/pkg/rag"
)

// Engine owns the completion pipeline's shared clients.
type Engine struct {
	settingsPath string
	logger       *slog.Logger

	once    sync.Once
	initErr error

	cfg       *config.Config
	retriever *rag.Retriever
	answerer  *qa.Answerer
	detector  *qa.ColumnDetector
	driver    *document.Driver

	storageOnce sync.Once
	storageErr  error
	store       *storage.Client
}

// New creates an Engine. No configuration is read until first use.
func New(settingsPath string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		settingsPath: settingsPath,
		logger:       logger,
	}
}

// init builds the pipeline on first use. The error, if any, is sticky:
// a misconfigured process reports the same failure on every call rather
// than retrying construction.
func (e *Engine) init() error {
	e.once.Do(func() {
		e.initErr = e.build()
	})
	return e.initErr
}

func (e *Engine) build() error {
	cfg, err := config.Load(e.settingsPath)
	if err != nil {
		return err
	}
	e.cfg = cfg

	wx, err := watsonx.New(watsonx.Config{
		URL:              cfg.Watsonx.URL,
		APIKey:           cfg.Watsonx.APIKey,
		IAMTokenURL:      cfg.Watsonx.IAMTokenURL,
		ProjectID:        cfg.Watsonx.ProjectID,
		SpaceID:          cfg.Watsonx.SpaceID,
		ModelID:          cfg.Watsonx.ModelID,
		EmbeddingModelID: cfg.Watsonx.EmbeddingModelID,
	})
	if err != nil {
		return fmt.Errorf("failed to create watsonx client: %w", err)
	}
	provider := llm.NewRetryableProvider(wx, llm.DefaultRetryConfig())

	store, err := rag.NewAstraStore(rag.AstraConfig{
		Endpoint:   cfg.Astra.Endpoint,
		Token:      cfg.Astra.Token,
		Keyspace:   cfg.Astra.Keyspace,
		Collection: cfg.Astra.Collection,
		Timeout:    30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create Astra client: %w", err)
	}

	retriever, err := rag.NewRetriever(wx, store, e.logger)
	if err != nil {
		return err
	}
	e.retriever = retriever

	answerer, err := qa.NewAnswerer(provider, retriever, qa.AnswererConfig{
		TopK:                cfg.Settings.TopK,
		SimilarityThreshold: cfg.Settings.SimilarityThreshold,
		MaxTokens:           cfg.Settings.MaxTokens,
	}, e.logger)
	if err != nil {
		return err
	}
	e.answerer = answerer

	detector, err := qa.NewColumnDetector(provider)
	if err != nil {
		return err
	}
	e.detector = detector

	processor, err := document.NewProcessor(detector, answerer, document.ProcessorConfig{
		QuestionColumnWidth: cfg.Settings.QuestionColumnWidth,
		AnswerColumnWidth:   cfg.Settings.AnswerColumnWidth,
		SkipSheetKeywords:   cfg.Settings.SkipSheetKeywords,
	}, e.logger)
	if err != nil {
		return err
	}

	driver, err := document.NewDriver(processor, e.logger)
	if err != nil {
		return err
	}
	e.driver = driver

	e.logger.Info("completion engine initialized",
		"model", cfg.Watsonx.ModelID,
		"embedding_model", cfg.Watsonx.EmbeddingModelID,
		"top_k", cfg.Settings.TopK,
		"similarity_threshold", cfg.Settings.SimilarityThreshold,
	)
	return nil
}

// Config returns the validated configuration.
func (e *Engine) Config() (*config.Config, error) {
	if err := e.init(); err != nil {
		return nil, err
	}
	return e.cfg, nil
}

// Driver returns the document completion driver.
func (e *Engine) Driver() (*document.Driver, error) {
	if err := e.init(); err != nil {
		return nil, err
	}
	return e.driver, nil
}

// Answerer returns the question answerer.
func (e *Engine) Answerer() (*qa.Answerer, error) {
	if err := e.init(); err != nil {
		return nil, err
	}
	return e.answerer, nil
}

// Detector returns the column detector.
func (e *Engine) Detector() (*qa.ColumnDetector, error) {
	if err := e.init(); err != nil {
		return nil, err
	}
	return e.detector, nil
}

// Retriever returns the knowledge-store retriever.
func (e *Engine) Retriever() (*rag.Retriever, error) {
	if err := e.init(); err != nil {
		return nil, err
	}
	return e.retriever, nil
}

// Storage returns the object storage client. It is built on first use and
// fails when the COS variables are not set; only URL-based tools need it.
func (e *Engine) Storage(ctx context.Context) (*storage.Client, error) {
	if err := e.init(); err != nil {
		return nil, err
	}
	e.storageOnce.Do(func() {
		if !e.cfg.Storage.Configured() {
			e.storageErr = fmt.Errorf("object storage is not configured: set %s, %s and %s",
				config.EnvCOSEndpoint, config.EnvCOSAccessKey, config.EnvCOSSecretKey)
			return
		}
		e.store, e.storageErr = storage.New(ctx, storage.Config{
			Endpoint:  e.cfg.Storage.Endpoint,
			Region:    e.cfg.Storage.Region,
			Bucket:    e.cfg.Storage.Bucket,
			AccessKey: e.cfg.Storage.AccessKey,
			SecretKey: e.cfg.Storage.SecretKey,
		})
	})
	if e.storageErr != nil {
		return nil, e.storageErr
	}
	return e.store, nil
}
