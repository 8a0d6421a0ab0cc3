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

// The engine's configuration definitions.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	artifactsapi "github.com/llm-d-incubation/llm-batch-engine/internal/artifacts/api"
	batchapi "github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/cache"
	"github.com/llm-d-incubation/llm-batch-engine/internal/engine"
	"github.com/llm-d-incubation/llm-batch-engine/internal/inference"
	utls "github.com/llm-d-incubation/llm-batch-engine/internal/util/tls"
)

// Environment variables that override secrets from the config file.
const (
	EnvBatchAPIKey = "LLM_BATCH_API_KEY"
	EnvModelAPIKey = "LLM_BATCH_MODEL_API_KEY"
)

type ServerConfig struct {
	Host            string             `yaml:"host" json:"host"`
	Port            string             `yaml:"port" json:"port"`
	ReadTimeout     time.Duration      `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout    time.Duration      `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout time.Duration      `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	MaxBodyBytes    int64              `yaml:"max_body_bytes" json:"max_body_bytes"`
	TLS             *utls.Certificates `yaml:"tls,omitempty" json:"tls,omitempty"`
}

func (s *ServerConfig) Address() string {
	return s.Host + ":" + s.Port
}

type RunnerConfig struct {
	// Number of input files processed concurrently.
	MaxWorkers int `yaml:"max_workers" json:"max_workers"`
}

type Config struct {
	Engine         engine.Config       `yaml:"engine" json:"engine"`
	Cache          cache.Config        `yaml:"cache" json:"cache"`
	BatchService   batchapi.Config     `yaml:"batch_service" json:"batch_service"`
	Model          inference.Config    `yaml:"model" json:"model"`
	ArtifactStore  artifactsapi.Config `yaml:"artifact_store" json:"artifact_store"`
	Server         ServerConfig        `yaml:"server" json:"server"`
	Runner         RunnerConfig        `yaml:"runner" json:"runner"`
	MetricsAddress string              `yaml:"metrics_address" json:"metrics_address"`
}

// LoadFromYAML loads the configuration from a YAML file. Fields missing from the file keep
// their current values.
func (c *Config) LoadFromYAML(filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filePath, err)
	}
	return nil
}

// ApplyEnv fills secrets from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvBatchAPIKey); v != "" {
		c.BatchService.APIKey = v
	}
	if v := os.Getenv(EnvModelAPIKey); v != "" {
		c.Model.APIKey = v
	}
}

func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if c.Model.Model == "" {
		return fmt.Errorf("model.model is required")
	}
	switch c.BatchService.Type {
	case batchapi.TypeHTTP:
		if c.BatchService.BaseURL == "" {
			return fmt.Errorf("batch_service.base_url is required for type %q", batchapi.TypeHTTP)
		}
	case batchapi.TypeSDK:
	default:
		return fmt.Errorf("unknown batch_service.type %q", c.BatchService.Type)
	}
	switch c.Cache.Type {
	case "", cache.TypeNone, cache.TypeMemory:
	case cache.TypeSQLite:
		if c.Cache.Path == "" {
			return fmt.Errorf("cache.path is required for type %q", cache.TypeSQLite)
		}
	case cache.TypePostgres:
		if c.Cache.DSN == "" {
			return fmt.Errorf("cache.dsn is required for type %q", cache.TypePostgres)
		}
	case cache.TypeRedis:
		if c.Cache.Redis == nil || c.Cache.Redis.Url == "" {
			return fmt.Errorf("cache.redis.url is required for type %q", cache.TypeRedis)
		}
	default:
		return fmt.Errorf("unknown cache.type %q", c.Cache.Type)
	}
	if c.Runner.MaxWorkers <= 0 {
		return fmt.Errorf("runner.max_workers must be positive, got %d", c.Runner.MaxWorkers)
	}
	return nil
}

// NewConfig returns a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Engine: *engine.NewConfig(),
		Cache: cache.Config{
			Type:      cache.TypeSQLite,
			Path:      ".llm_batch_cache.db",
			KeyPrefix: cache.DefaultKeyPrefix,
		},
		BatchService: batchapi.Config{
			Type: batchapi.TypeHTTP,
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8000",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    100 << 20,
		},
		Runner: RunnerConfig{
			MaxWorkers: 4,
		},
		MetricsAddress: ":9090",
	}
}
