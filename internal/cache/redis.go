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
	"encoding/json"
	"fmt"
	"time"

	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
	uredis "github.com/llm-d-incubation/llm-batch-engine/internal/util/redis"
	gredis "github.com/redis/go-redis/v9"
)

const (
	checkTimeout = 2 * time.Second

	fieldPrompt    = "prompt"
	fieldSignature = "signature"
	fieldResult    = "result"
)

// RedisCache stores each entry as a hash under a digest of its key. The full prompt and
// signature are stored alongside the result and compared on lookup.
type RedisCache struct {
	rds       *gredis.Client
	keyPrefix string
	owned     bool
}

// NewRedisCache wraps an existing client. The client is closed by Close only when owned.
func NewRedisCache(rds *gredis.Client, keyPrefix string, owned bool) *RedisCache {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	return &RedisCache{rds: rds, keyPrefix: keyPrefix, owned: owned}
}

func (c *RedisCache) redisKey(key Key) string {
	return c.keyPrefix + key.Hash()
}

func (c *RedisCache) Lookup(ctx context.Context, key Key) (*chat.Result, bool, error) {
	vals, err := c.rds.HGetAll(ctx, c.redisKey(key)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}
	if len(vals) == 0 {
		return nil, false, nil
	}
	if vals[fieldPrompt] != key.Prompt || vals[fieldSignature] != key.Signature {
		return nil, false, nil
	}
	var result chat.Result
	if err := json.Unmarshal([]byte(vals[fieldResult]), &result); err != nil {
		return nil, false, fmt.Errorf("cache entry decode: %w", err)
	}
	return &result, true, nil
}

func (c *RedisCache) Update(ctx context.Context, key Key, result *chat.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("cache entry encode: %w", err)
	}
	err = c.rds.HSet(ctx, c.redisKey(key),
		fieldPrompt, key.Prompt,
		fieldSignature, key.Signature,
		fieldResult, string(data),
	).Err()
	if err != nil {
		return fmt.Errorf("cache update: %w", err)
	}
	return nil
}

// NewChecker returns a health checker for the underlying connection.
func (c *RedisCache) NewChecker(serviceName string) *uredis.RedisClientChecker {
	return uredis.NewRedisClientChecker(c.rds, c.keyPrefix, serviceName, checkTimeout)
}

func (c *RedisCache) Close() error {
	if c.owned {
		return c.rds.Close()
	}
	return nil
}
