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

// Package app wires the configured components into an engine.
package app

import (
	"context"
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/llm-batch-engine/internal/artifacts"
	artifactsapi "github.com/llm-d-incubation/llm-batch-engine/internal/artifacts/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient"
	"github.com/llm-d-incubation/llm-batch-engine/internal/cache"
	"github.com/llm-d-incubation/llm-batch-engine/internal/config"
	"github.com/llm-d-incubation/llm-batch-engine/internal/engine"
	"github.com/llm-d-incubation/llm-batch-engine/internal/inference"
)

// Checker reports whether a dependency is usable.
type Checker interface {
	Check(ctx context.Context) error
}

type App struct {
	Engine *engine.Engine
	// Store is nil when artifacts are not retained.
	Store    artifactsapi.Store
	Checkers []Checker
}

// Build opens the cache, the artifact store and the batch service client described by
// cfg. An unusable cache does not fail the build; the engine then runs without one.
func Build(ctx context.Context, cfg *config.Config, serviceName string) (*App, error) {
	logger := klog.FromContext(ctx)

	model, err := inference.NewChatClient(cfg.Model)
	if err != nil {
		return nil, err
	}
	client, err := batchclient.New(&cfg.BatchService)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch service client: %w", err)
	}
	store, err := artifacts.New(ctx, &cfg.ArtifactStore)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	reqCache := cache.NewFromConfig(ctx, &cfg.Cache)

	a := &App{Store: store}
	if rc, ok := reqCache.(*cache.RedisCache); ok {
		a.Checkers = append(a.Checkers, rc.NewChecker(serviceName))
	}

	a.Engine, err = engine.New(&cfg.Engine, model, reqCache, client, store)
	if err != nil {
		closeErr := reqCache.Close()
		if store != nil {
			closeErr = errors.Join(closeErr, store.Close())
		}
		if closeErr != nil {
			logger.Error(closeErr, "failed to release resources")
		}
		return nil, err
	}
	logger.Info("engine ready",
		"model", a.Engine.Model().ModelName(),
		"batchService", cfg.BatchService.Type,
		"cache", cfg.Cache.Type,
		"artifactStore", cfg.ArtifactStore.Type,
		"maxRequestsPerJob", cfg.Engine.MaxRequestsPerJob)
	return a, nil
}

func (a *App) Close() error {
	return a.Engine.Close()
}
