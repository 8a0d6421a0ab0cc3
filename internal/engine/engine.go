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

// Package engine executes chat requests through an asynchronous batch service. Requests
// answered before are served from the request cache; the rest are split into chunks,
// each submitted as one batch job, polled to completion and reconciled back into
// request order.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/llm-batch-engine/internal/artifacts"
	artifactsapi "github.com/llm-d-incubation/llm-batch-engine/internal/artifacts/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/cache"
	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
	"github.com/llm-d-incubation/llm-batch-engine/internal/metrics"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/logging"
)

// SubmitOptions override engine defaults for one call.
type SubmitOptions struct {
	MaxRequestsPerJob int
	// ArtifactDirectory retains the job files of this call in a local directory.
	ArtifactDirectory string
}

// Engine is safe for concurrent use.
type Engine struct {
	config *Config
	model  ChatModel
	cache  cache.RequestCache
	client api.Client
	store  artifactsapi.Store
	poller *Poller
}

// New builds an engine. reqCache may be nil to disable caching. store may be nil; when
// it is, and the config names an artifact directory, a file store is opened there.
func New(config *Config, model ChatModel, reqCache cache.RequestCache, client api.Client, store artifactsapi.Store) (*Engine, error) {
	if config == nil {
		config = NewConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if model == nil || client == nil {
		return nil, errors.New("engine requires a model and a batch client")
	}
	if reqCache == nil {
		reqCache = cache.NewNoopCache()
	}
	if store == nil && config.ArtifactDirectory != "" {
		s, err := openDirectoryStore(context.Background(), config.ArtifactDirectory)
		if err != nil {
			return nil, err
		}
		store = s
	}
	limiter := rate.NewLimiter(rate.Limit(config.PollRate), config.PollBurst)
	return &Engine{
		config: config,
		model:  model,
		cache:  reqCache,
		client: client,
		store:  store,
		poller: NewPoller(client, PollConfig{
			Interval:    config.PollInterval,
			MaxInterval: config.MaxPollInterval,
			MaxElapsed:  config.PollMaxElapsed,
		}, limiter),
	}, nil
}

func openDirectoryStore(ctx context.Context, dir string) (artifactsapi.Store, error) {
	store, err := artifacts.New(ctx, &artifactsapi.Config{Type: "fs", Directory: dir})
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact directory %s: %w", dir, err)
	}
	return store, nil
}

func (e *Engine) Model() ChatModel {
	return e.model
}

// Submit returns one result per request, in request order.
func (e *Engine) Submit(ctx context.Context, requests []chat.Request, opts *SubmitOptions) ([]*chat.Result, error) {
	results, _, err := e.SubmitWithSummary(ctx, requests, opts)
	return results, err
}

// SubmitWithSummary is Submit that also reports how the results were obtained.
func (e *Engine) SubmitWithSummary(ctx context.Context, requests []chat.Request, opts *SubmitOptions) (results []*chat.Result, summary *Summary, err error) {
	metrics.RecordSubmitStart()
	defer func() {
		if err != nil {
			reason := string(StageOf(err))
			if reason == "" {
				reason = "cancelled"
			}
			metrics.RecordSubmitFinish(metrics.ResultFailed, reason)
			return
		}
		metrics.RecordSubmitFinish(metrics.ResultSuccess, "")
	}()

	ctx, logger := logging.WithValues(ctx, "submitID", uuid.NewString())

	chunkSize := e.config.MaxRequestsPerJob
	store := e.store
	if opts != nil {
		if opts.MaxRequestsPerJob < 0 {
			return nil, nil, fmt.Errorf("max requests per job must be positive, got %d", opts.MaxRequestsPerJob)
		}
		if opts.MaxRequestsPerJob > 0 {
			chunkSize = opts.MaxRequestsPerJob
		}
		if opts.ArtifactDirectory != "" {
			s, err := openDirectoryStore(ctx, opts.ArtifactDirectory)
			if err != nil {
				return nil, nil, err
			}
			defer s.Close()
			store = s
		}
	}

	hits := make([]*chat.Result, len(requests))
	var items []pending
	for i, req := range requests {
		if err := req.Validate(); err != nil {
			return nil, nil, &Error{Stage: StageSubmission, Err: fmt.Errorf("request %d: %w", i, err)}
		}
		prompt, err := req.Serialize()
		if err != nil {
			return nil, nil, &Error{Stage: StageSubmission, Err: fmt.Errorf("request %d: %w", i, err)}
		}
		key := cache.Key{Prompt: prompt, Signature: e.model.Signature(req)}
		if res := e.lookup(ctx, key); res != nil {
			hits[i] = res
			continue
		}
		items = append(items, pending{index: i, request: req, key: key})
	}
	logger.V(logging.INFO).Info("Submitting requests", "requests", len(requests), "cacheHits", len(requests)-len(items))

	r := &reconciler{
		model:     e.model,
		client:    e.client,
		cache:     e.cache,
		store:     store,
		writer:    NewFileWriter(e.client, store),
		poller:    e.poller,
		config:    e.config,
		chunkSize: chunkSize,
	}
	if err := r.run(ctx, items); err != nil {
		logger.Error(err, "Submit failed", "jobs", r.jobIDs)
		return nil, nil, err
	}

	results, summary, err = aggregate(hits, items, r.resolved, r.jobIDs)
	if err != nil {
		return nil, nil, &Error{Stage: StageOutput, Err: err}
	}
	logger.V(logging.INFO).Info("Submit finished", "jobs", len(summary.JobIDs), "computed", summary.Computed,
		"totalTokens", summary.Usage.TotalTokens)
	return results, summary, nil
}

// lookup treats a failing cache as a miss.
func (e *Engine) lookup(ctx context.Context, key cache.Key) *chat.Result {
	res, ok, err := e.cache.Lookup(ctx, key)
	switch {
	case err != nil:
		metrics.RecordCacheLookup(metrics.CacheError)
		klog.FromContext(ctx).V(logging.WARNING).Info("Cache lookup failed", "err", err)
		return nil
	case !ok || res == nil:
		metrics.RecordCacheLookup(metrics.CacheMiss)
		return nil
	default:
		metrics.RecordCacheLookup(metrics.CacheHit)
		return res
	}
}

// Close releases the cache and the artifact store.
func (e *Engine) Close() error {
	var errs []error
	if e.store != nil {
		errs = append(errs, e.store.Close())
	}
	errs = append(errs, e.cache.Close())
	return errors.Join(errs...)
}
