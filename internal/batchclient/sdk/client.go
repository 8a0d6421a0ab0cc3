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

// Package sdk implements the batch service client with the go-openai SDK.
package sdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/shared/openai"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/rest"
	utls "github.com/llm-d-incubation/llm-batch-engine/internal/util/tls"
)

// sdkAPI is the subset of *goopenai.Client the adapter uses.
type sdkAPI interface {
	CreateFileBytes(ctx context.Context, request goopenai.FileBytesRequest) (goopenai.File, error)
	CreateBatch(ctx context.Context, request goopenai.CreateBatchRequest) (goopenai.BatchResponse, error)
	RetrieveBatch(ctx context.Context, batchID string) (goopenai.BatchResponse, error)
	GetFileContent(ctx context.Context, fileID string) (goopenai.RawResponse, error)
}

type Client struct {
	client sdkAPI
}

var _ api.Client = (*Client)(nil)

func New(config rest.Config) (*Client, error) {
	sdkConfig := goopenai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		base := strings.TrimRight(config.BaseURL, "/")
		if !strings.HasSuffix(base, "/v1") {
			base += "/v1"
		}
		sdkConfig.BaseURL = base
	}
	tlsConfig, err := utls.ClientConfig(config.TLSInsecureSkipVerify, config.TLSCertificates)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch service client: %w", err)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if tlsConfig != nil {
		transport.TLSClientConfig = tlsConfig
	}
	sdkConfig.HTTPClient = &http.Client{Transport: transport, Timeout: config.Timeout}
	return &Client{client: goopenai.NewClientWithConfig(sdkConfig)}, nil
}

func (c *Client) UploadFile(ctx context.Context, name string, content io.Reader) (*openai.File, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, fmt.Errorf("failed to read batch input: %w", err)
	}
	f, err := c.client.CreateFileBytes(ctx, goopenai.FileBytesRequest{
		Name:    name,
		Bytes:   data,
		Purpose: goopenai.PurposeBatch,
	})
	if err != nil {
		return nil, toClientError(ctx, err)
	}
	return &openai.File{
		ID:        f.ID,
		Object:    f.Object,
		Bytes:     int64(f.Bytes),
		CreatedAt: int64(f.CreatedAt),
		Filename:  f.FileName,
		Purpose:   f.Purpose,
	}, nil
}

func (c *Client) CreateBatch(ctx context.Context, req *openai.CreateBatchRequest) (*openai.Batch, error) {
	if req == nil || req.InputFileID == "" {
		return nil, &rest.ClientError{Category: rest.ErrCategoryInvalidReq, Message: "input file id cannot be empty"}
	}
	var metadata map[string]any
	if len(req.Metadata) > 0 {
		metadata = make(map[string]any, len(req.Metadata))
		for k, v := range req.Metadata {
			metadata[k] = v
		}
	}
	resp, err := c.client.CreateBatch(ctx, goopenai.CreateBatchRequest{
		InputFileID:      req.InputFileID,
		Endpoint:         goopenai.BatchEndpoint(req.Endpoint),
		CompletionWindow: req.CompletionWindow,
		Metadata:         metadata,
	})
	if err != nil {
		return nil, toClientError(ctx, err)
	}
	return fromSDKBatch(&resp.Batch), nil
}

func (c *Client) RetrieveBatch(ctx context.Context, batchID string) (*openai.Batch, error) {
	resp, err := c.client.RetrieveBatch(ctx, batchID)
	if err != nil {
		return nil, toClientError(ctx, err)
	}
	return fromSDKBatch(&resp.Batch), nil
}

func (c *Client) FileContent(ctx context.Context, fileID string) ([]byte, error) {
	raw, err := c.client.GetFileContent(ctx, fileID)
	if err != nil {
		return nil, toClientError(ctx, err)
	}
	defer raw.Close()
	data, err := io.ReadAll(raw)
	if err != nil {
		return nil, rest.ErrorFromRequest(ctx, err)
	}
	return data, nil
}

func fromSDKBatch(b *goopenai.Batch) *openai.Batch {
	out := &openai.Batch{
		ID:               b.ID,
		Object:           b.Object,
		Endpoint:         string(b.Endpoint),
		InputFileID:      b.InputFileID,
		CompletionWindow: b.CompletionWindow,
		Status:           openai.BatchStatus(string(b.Status)),
		CreatedAt:        int64(b.CreatedAt),
		RequestCounts: openai.BatchRequestCounts{
			Total:     int32(b.RequestCounts.Total),
			Completed: int32(b.RequestCounts.Completed),
			Failed:    int32(b.RequestCounts.Failed),
		},
	}
	if b.OutputFileID != nil {
		out.OutputFileID = *b.OutputFileID
	}
	if b.ErrorFileID != nil {
		out.ErrorFileID = *b.ErrorFileID
	}
	if b.Errors != nil {
		out.Errors = &openai.BatchErrors{Object: b.Errors.Object}
		for _, e := range b.Errors.Data {
			out.Errors.Data = append(out.Errors.Data, openai.BatchErrorsData{Code: e.Code, Message: e.Message})
		}
	}
	if len(b.Metadata) > 0 {
		out.Metadata = make(map[string]string, len(b.Metadata))
		for k, v := range b.Metadata {
			out.Metadata[k] = fmt.Sprint(v)
		}
	}
	return out
}

func toClientError(ctx context.Context, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return &rest.ClientError{
			Category:   rest.MapStatusCode(apiErr.HTTPStatusCode),
			StatusCode: apiErr.HTTPStatusCode,
			Message:    fmt.Sprintf("HTTP %d: %s", apiErr.HTTPStatusCode, apiErr.Message),
			RawError:   err,
		}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return &rest.ClientError{
			Category:   rest.MapStatusCode(reqErr.HTTPStatusCode),
			StatusCode: reqErr.HTTPStatusCode,
			Message:    fmt.Sprintf("HTTP %d: %v", reqErr.HTTPStatusCode, reqErr.Err),
			RawError:   err,
		}
	}
	return rest.ErrorFromRequest(ctx, err)
}
