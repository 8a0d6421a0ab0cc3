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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d-incubation/llm-batch-engine/internal/cache"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 50000, cfg.Engine.MaxRequestsPerJob)
	assert.Equal(t, "/v1/chat/completions", cfg.Engine.Endpoint)
	assert.Equal(t, "24h", cfg.Engine.CompletionWindow)
	assert.Equal(t, 60*time.Second, cfg.Engine.PollInterval)
	assert.Equal(t, 300*time.Second, cfg.Engine.MaxPollInterval)
	assert.Zero(t, cfg.Engine.PollMaxElapsed)
	assert.Equal(t, cache.TypeSQLite, cfg.Cache.Type)
	assert.Equal(t, ":9090", cfg.MetricsAddress)
	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Address())

	// defaults are complete except for the model
	assert.ErrorContains(t, cfg.Validate(), "model.model")
	cfg.Model.Model = "m"
	cfg.BatchService.BaseURL = "http://localhost:8000"
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	path := writeFile(t, `
engine:
  max_requests_per_job: 100
  job_artifact_directory: /tmp/jobs
  poll_interval: 5s
  max_poll_interval: 1m
cache:
  type: redis
  redis:
    url: redis://localhost:6379/0
batch_service:
  type: sdk
  api_key: from-file
  max_retries: 3
model:
  model: gpt-4o-mini
  stop: ["###"]
  params:
    temperature: 0.2
artifact_store:
  type: s3
  s3:
    bucket: jobs
    region: us-east-1
metrics_address: ":9191"
`)
	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromYAML(path))

	assert.Equal(t, 100, cfg.Engine.MaxRequestsPerJob)
	assert.Equal(t, "/tmp/jobs", cfg.Engine.ArtifactDirectory)
	assert.Equal(t, 5*time.Second, cfg.Engine.PollInterval)
	assert.Equal(t, time.Minute, cfg.Engine.MaxPollInterval)
	assert.Equal(t, "24h", cfg.Engine.CompletionWindow, "unset fields keep defaults")
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.Redis.Url)
	assert.Equal(t, "sdk", cfg.BatchService.Type)
	assert.Equal(t, "from-file", cfg.BatchService.APIKey)
	assert.Equal(t, 3, cfg.BatchService.MaxRetries)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.Model)
	assert.Equal(t, []string{"###"}, cfg.Model.Stop)
	require.NotNil(t, cfg.Model.Params.Temperature)
	assert.InDelta(t, 0.2, *cfg.Model.Params.Temperature, 1e-9)
	assert.Equal(t, "jobs", cfg.ArtifactStore.S3.Bucket)
	assert.Equal(t, ":9191", cfg.MetricsAddress)
	assert.NoError(t, cfg.Validate())

	t.Setenv(EnvBatchAPIKey, "from-env")
	cfg.ApplyEnv()
	assert.Equal(t, "from-env", cfg.BatchService.APIKey)
}

func TestLoadFromYAMLErrors(t *testing.T) {
	cfg := NewConfig()
	assert.Error(t, cfg.LoadFromYAML(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorContains(t, cfg.LoadFromYAML(writeFile(t, "engine:\n  max_requests: 5\n")), "max_requests")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := NewConfig()
		cfg.Model.Model = "m"
		cfg.BatchService.BaseURL = "http://localhost"
		return cfg
	}
	cases := map[string]func(*Config){
		"unknown batch service": func(c *Config) { c.BatchService.Type = "grpc" },
		"http without url":      func(c *Config) { c.BatchService.BaseURL = "" },
		"unknown cache":         func(c *Config) { c.Cache.Type = "memcached" },
		"sqlite without path":   func(c *Config) { c.Cache.Path = "" },
		"postgres without dsn":  func(c *Config) { c.Cache.Type = cache.TypePostgres },
		"redis without url":     func(c *Config) { c.Cache.Type = cache.TypeRedis },
		"zero chunk":            func(c *Config) { c.Engine.MaxRequestsPerJob = 0 },
		"max poll below poll":   func(c *Config) { c.Engine.MaxPollInterval = time.Second },
		"no workers":            func(c *Config) { c.Runner.MaxWorkers = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
