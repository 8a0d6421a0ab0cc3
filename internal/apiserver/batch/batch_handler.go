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

// The file provides HTTP handlers that run chat requests through the batch engine and
// reconcile externally run batch jobs into the cache.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/llm-batch-engine/internal/apiserver/common"
	"github.com/llm-d-incubation/llm-batch-engine/internal/apiserver/metrics"
	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
	"github.com/llm-d-incubation/llm-batch-engine/internal/engine"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/logging"
)

const (
	GeneratePath  = "/v1/generate"
	ReconcilePath = "/v1/reconcile"
)

// Engine is the part of engine.Engine the handlers use.
type Engine interface {
	SubmitWithSummary(ctx context.Context, requests []chat.Request, opts *engine.SubmitOptions) ([]*chat.Result, *engine.Summary, error)
	ReconcileExternalAll(ctx context.Context, inputRefs, outputRefs []string) (int, error)
}

type GenerateRequest struct {
	Requests          []chat.Request `json:"requests"`
	MaxRequestsPerJob int            `json:"max_requests_per_job,omitempty"`
}

type GenerateResponse struct {
	Results []*chat.Result  `json:"results"`
	Summary *engine.Summary `json:"summary"`
}

// ReconcileRequest pairs input and output files by position. Only files held by the batch
// service ("openai://<file id>") are accepted over HTTP.
type ReconcileRequest struct {
	InputFiles  []string `json:"input_files"`
	OutputFiles []string `json:"output_files"`
}

type ReconcileResponse struct {
	Cached int `json:"cached"`
}

type BatchApiHandler struct {
	engine       Engine
	maxBodyBytes int64
}

func NewBatchApiHandler(eng Engine, maxBodyBytes int64) *BatchApiHandler {
	return &BatchApiHandler{engine: eng, maxBodyBytes: maxBodyBytes}
}

func (c *BatchApiHandler) GetRoutes() []common.Route {
	return []common.Route{
		{
			Method:      http.MethodPost,
			Pattern:     GeneratePath,
			HandlerFunc: c.Generate,
		},
		{
			Method:      http.MethodPost,
			Pattern:     ReconcilePath,
			HandlerFunc: c.Reconcile,
		},
	}
}

func (c *BatchApiHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if c.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, c.maxBodyBytes)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			common.WriteError(r.Context(), w, http.StatusRequestEntityTooLarge, common.ErrTypeInvalidRequest,
				"body_too_large", err.Error())
			return false
		}
		common.WriteError(r.Context(), w, http.StatusBadRequest, common.ErrTypeInvalidRequest,
			"invalid_json", fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (c *BatchApiHandler) Generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.GetRequestLogger(r)

	var req GenerateRequest
	if !c.decode(w, r, &req) {
		return
	}
	if req.MaxRequestsPerJob < 0 {
		common.WriteError(ctx, w, http.StatusBadRequest, common.ErrTypeInvalidRequest, "invalid_value",
			"max_requests_per_job must not be negative")
		return
	}
	for i, cr := range req.Requests {
		if err := cr.Validate(); err != nil {
			common.WriteError(ctx, w, http.StatusBadRequest, common.ErrTypeInvalidRequest, "invalid_request",
				fmt.Sprintf("requests[%d]: %v", i, err))
			return
		}
	}

	metrics.RecordGenerateSize(len(req.Requests))
	logger.V(logging.DEBUG).Info("generate", "requests", len(req.Requests))
	results, summary, err := c.engine.SubmitWithSummary(ctx, req.Requests,
		&engine.SubmitOptions{MaxRequestsPerJob: req.MaxRequestsPerJob})
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	if results == nil {
		results = []*chat.Result{}
	}
	common.WriteJSON(ctx, w, http.StatusOK, GenerateResponse{Results: results, Summary: summary})
}

func (c *BatchApiHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ReconcileRequest
	if !c.decode(w, r, &req) {
		return
	}
	if len(req.InputFiles) == 0 || len(req.InputFiles) != len(req.OutputFiles) {
		common.WriteError(ctx, w, http.StatusBadRequest, common.ErrTypeInvalidRequest, "invalid_value",
			"input_files and output_files must be non-empty and of equal length")
		return
	}
	for _, ref := range append(append([]string(nil), req.InputFiles...), req.OutputFiles...) {
		if !strings.HasPrefix(ref, engine.RemoteFilePrefix) {
			common.WriteError(ctx, w, http.StatusBadRequest, common.ErrTypeInvalidRequest, "invalid_value",
				fmt.Sprintf("%q is not a %s file reference", ref, engine.RemoteFilePrefix))
			return
		}
	}

	n, err := c.engine.ReconcileExternalAll(ctx, req.InputFiles, req.OutputFiles)
	if err != nil {
		writeEngineError(ctx, w, err)
		return
	}
	common.WriteJSON(ctx, w, http.StatusOK, ReconcileResponse{Cached: n})
}

func writeEngineError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := klog.FromContext(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		logger.V(logging.INFO).Info("request cancelled", "err", err)
		common.WriteError(ctx, w, http.StatusServiceUnavailable, common.ErrTypeUnavailable, "cancelled", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		common.WriteError(ctx, w, http.StatusGatewayTimeout, common.ErrTypeUnavailable, "timeout", err.Error())
	case engine.StageOf(err) != "":
		logger.Error(err, "batch engine failed")
		common.WriteError(ctx, w, http.StatusBadGateway, common.ErrTypeUpstream, string(engine.StageOf(err)), err.Error())
	default:
		logger.Error(err, "request failed")
		common.WriteError(ctx, w, http.StatusInternalServerError, common.ErrTypeServer, "", err.Error())
	}
}
