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

package cache

import (
	"context"
	"fmt"

	uredis "github.com/llm-d-incubation/llm-batch-engine/internal/util/redis"
	"k8s.io/klog/v2"
)

// Open builds the backend described by cfg. Errors wrap ErrUnavailable.
func Open(ctx context.Context, cfg *Config) (RequestCache, error) {
	if cfg == nil {
		return NewNoopCache(), nil
	}
	switch cfg.Type {
	case "", TypeNone:
		return NewNoopCache(), nil
	case TypeMemory:
		return NewMemoryCache(), nil
	case TypeSQLite:
		return OpenSQLite(cfg.Path)
	case TypePostgres:
		return OpenPostgres(cfg.DSN)
	case TypeRedis:
		rds, err := uredis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return NewRedisCache(rds, cfg.KeyPrefix, true), nil
	default:
		return nil, fmt.Errorf("%w: unknown cache type %q", ErrUnavailable, cfg.Type)
	}
}

// NewFromConfig is like Open but never fails: an unavailable backend is logged and
// replaced by the noop cache, so every request goes to the batch service.
func NewFromConfig(ctx context.Context, cfg *Config) RequestCache {
	c, err := Open(ctx, cfg)
	if err != nil {
		klog.FromContext(ctx).Error(err, "CacheUnavailable: continuing without cache", "type", cfg.Type)
		return NewNoopCache()
	}
	return c
}
