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

// Package cache persists chat results keyed by the serialized prompt and the model
// signature. Lookups and updates use exact string equality on both parts of the key.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
	uredis "github.com/llm-d-incubation/llm-batch-engine/internal/util/redis"
)

// ErrUnavailable is returned when a cache backend cannot be opened.
var ErrUnavailable = errors.New("cache unavailable")

const (
	TypeNone     = "none"
	TypeMemory   = "memory"
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeRedis    = "redis"

	DefaultKeyPrefix = "llm_batch:cache:"
)

// Key identifies a cache entry.
type Key struct {
	Prompt    string
	Signature string
}

// Hash returns a stable digest of the key for backends with bounded key sizes.
func (k Key) Hash() string {
	sum := sha256.Sum256([]byte(k.Signature + "|" + k.Prompt))
	return hex.EncodeToString(sum[:])
}

// RequestCache is implemented by every backend. Implementations are safe for concurrent
// use and overwrite existing entries on Update.
type RequestCache interface {
	Lookup(ctx context.Context, key Key) (*chat.Result, bool, error)
	Update(ctx context.Context, key Key, result *chat.Result) error
	Close() error
}

type Config struct {
	Type      string                    `yaml:"type" json:"type"`
	Path      string                    `yaml:"path" json:"path"` // sqlite database file
	DSN       string                    `yaml:"dsn" json:"dsn"`   // postgres connection string
	KeyPrefix string                    `yaml:"key_prefix" json:"key_prefix"`
	Redis     *uredis.RedisClientConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}
