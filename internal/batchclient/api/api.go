/*
Copyright 2026 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package api defines the capability set the engine needs from an OpenAI-compatible
// batch service.
package api

import (
	"context"
	"io"

	"github.com/llm-d-incubation/llm-batch-engine/internal/shared/openai"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/rest"
)

const (
	TypeHTTP = "http"
	TypeSDK  = "sdk"
)

// Client talks to the Files and Batches APIs. Errors are *rest.ClientError values where
// the failure could be categorized.
type Client interface {
	// UploadFile uploads a JSONL input file with purpose "batch".
	UploadFile(ctx context.Context, name string, content io.Reader) (*openai.File, error)
	CreateBatch(ctx context.Context, req *openai.CreateBatchRequest) (*openai.Batch, error)
	RetrieveBatch(ctx context.Context, batchID string) (*openai.Batch, error)
	// FileContent returns the full content of a file.
	FileContent(ctx context.Context, fileID string) ([]byte, error)
}

// Config selects and configures the client. BaseURL is the service root without the
// /v1 suffix, e.g. https://api.openai.com.
type Config struct {
	Type        string `yaml:"type" json:"type"`
	rest.Config `yaml:",inline" json:",inline"`
}
