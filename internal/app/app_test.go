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

package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d-incubation/llm-batch-engine/internal/cache"
	"github.com/llm-d-incubation/llm-batch-engine/internal/config"
)

func TestBuild(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Model.Model = "m"
	cfg.BatchService.BaseURL = "http://127.0.0.1:1"
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")
	cfg.ArtifactStore.Type = "fs"
	cfg.ArtifactStore.Directory = t.TempDir()

	a, err := Build(context.Background(), cfg, "test")
	require.NoError(t, err)
	assert.NotNil(t, a.Engine)
	assert.Equal(t, "m", a.Engine.Model().ModelName())
	assert.NotNil(t, a.Store)
	assert.Empty(t, a.Checkers)
	assert.NoError(t, a.Close())
}

func TestBuildDegradesWithoutCache(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Model.Model = "m"
	cfg.BatchService.BaseURL = "http://127.0.0.1:1"
	cfg.Cache.Type = cache.TypeSQLite
	cfg.Cache.Path = filepath.Join(t.TempDir(), "missing", "dir", "cache.db")

	a, err := Build(context.Background(), cfg, "test")
	require.NoError(t, err)
	assert.Nil(t, a.Store)
	assert.NoError(t, a.Close())
}

func TestBuildErrors(t *testing.T) {
	cfg := config.NewConfig()
	cfg.BatchService.BaseURL = "http://127.0.0.1:1"
	_, err := Build(context.Background(), cfg, "test")
	assert.Error(t, err, "a model name is required")

	cfg = config.NewConfig()
	cfg.Model.Model = "m"
	cfg.Cache.Type = cache.TypeMemory
	cfg.BatchService.BaseURL = "http://127.0.0.1:1"
	cfg.Engine.MaxRequestsPerJob = 0
	_, err = Build(context.Background(), cfg, "test")
	assert.Error(t, err)
}
