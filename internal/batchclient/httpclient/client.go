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

// Package httpclient implements the batch service client over plain HTTP with resty.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-resty/resty/v2"
	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/shared/openai"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/logging"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/rest"
	"k8s.io/klog/v2"
)

const (
	filesPath   = "/v1/files"
	batchesPath = "/v1/batches"
)

type Client struct {
	client *resty.Client
}

var _ api.Client = (*Client)(nil)

func New(config rest.Config) (*Client, error) {
	config.RetryNonIdempotent = false
	client, err := rest.New(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch service client: %w", err)
	}
	return &Client{client: client}, nil
}

func (c *Client) UploadFile(ctx context.Context, name string, content io.Reader) (*openai.File, error) {
	var file openai.File
	resp, err := c.client.R().
		SetContext(ctx).
		SetMultipartFormData(map[string]string{"purpose": openai.FilePurposeBatch}).
		SetFileReader("file", name, content).
		Post(filesPath)
	if err := decode(ctx, resp, err, &file); err != nil {
		return nil, err
	}
	klog.FromContext(ctx).V(logging.DEBUG).Info("Uploaded batch input file", "fileID", file.ID, "bytes", file.Bytes)
	return &file, nil
}

func (c *Client) CreateBatch(ctx context.Context, req *openai.CreateBatchRequest) (*openai.Batch, error) {
	if req == nil || req.InputFileID == "" {
		return nil, &rest.ClientError{Category: rest.ErrCategoryInvalidReq, Message: "input file id cannot be empty"}
	}
	var batch openai.Batch
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req).
		Post(batchesPath)
	if err := decode(ctx, resp, err, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (c *Client) RetrieveBatch(ctx context.Context, batchID string) (*openai.Batch, error) {
	var batch openai.Batch
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("batchID", batchID).
		Get(batchesPath + "/{batchID}")
	if err := decode(ctx, resp, err, &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (c *Client) FileContent(ctx context.Context, fileID string) ([]byte, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("fileID", fileID).
		Get(filesPath + "/{fileID}/content")
	if err := checkResponse(ctx, resp, err); err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func checkResponse(ctx context.Context, resp *resty.Response, err error) error {
	if err != nil {
		return rest.ErrorFromRequest(ctx, err)
	}
	if !resp.IsSuccess() {
		ce := rest.ErrorFromResponse(resp.StatusCode(), resp.Body())
		klog.FromContext(ctx).V(logging.INFO).Info("Batch service request failed",
			"method", resp.Request.Method, "url", resp.Request.URL,
			"status", resp.StatusCode(), "category", ce.Category)
		return ce
	}
	return nil
}

func decode(ctx context.Context, resp *resty.Response, err error, out any) error {
	if err := checkResponse(ctx, resp, err); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return &rest.ClientError{
			Category:   rest.ErrCategoryServer,
			StatusCode: resp.StatusCode(),
			Message:    fmt.Sprintf("invalid JSON response from batch service: %v", err),
			RawError:   err,
		}
	}
	return nil
}
