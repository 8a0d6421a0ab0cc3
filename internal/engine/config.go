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

package engine

import (
	"fmt"
	"time"

	"github.com/llm-d-incubation/llm-batch-engine/internal/shared/openai"
)

type Config struct {
	// Upper bound on requests per submitted batch job.
	MaxRequestsPerJob int `yaml:"max_requests_per_job" json:"max_requests_per_job"`
	// When set, input and output files are retained in this directory.
	ArtifactDirectory string `yaml:"job_artifact_directory" json:"job_artifact_directory"`
	Endpoint          string `yaml:"endpoint" json:"endpoint"`
	CompletionWindow  string `yaml:"completion_window" json:"completion_window"`
	JobDescription    string `yaml:"job_description" json:"job_description"`

	// Status polling starts at PollInterval and doubles up to MaxPollInterval.
	PollInterval    time.Duration `yaml:"poll_interval" json:"poll_interval"`
	MaxPollInterval time.Duration `yaml:"max_poll_interval" json:"max_poll_interval"`
	// Zero waits for as long as the batch service keeps the job running.
	PollMaxElapsed time.Duration `yaml:"poll_max_elapsed" json:"poll_max_elapsed"`
	// Status calls per second across all jobs of the engine.
	PollRate  float64 `yaml:"poll_rate" json:"poll_rate"`
	PollBurst int     `yaml:"poll_burst" json:"poll_burst"`

	// Parallelism of response conversion within a chunk.
	ConvertWorkers int `yaml:"convert_workers" json:"convert_workers"`
}

// NewConfig returns a Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxRequestsPerJob: 50000,
		Endpoint:          openai.EndpointChatCompletions,
		CompletionWindow:  openai.DefaultCompletionWindow,
		JobDescription:    "llm batch engine job",
		PollInterval:      60 * time.Second,
		MaxPollInterval:   300 * time.Second,
		PollMaxElapsed:    0,
		PollRate:          10,
		PollBurst:         10,
		ConvertWorkers:    8,
	}
}

func (c *Config) Validate() error {
	if c.MaxRequestsPerJob <= 0 {
		return fmt.Errorf("max_requests_per_job must be positive, got %d", c.MaxRequestsPerJob)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.MaxPollInterval < c.PollInterval {
		return fmt.Errorf("max_poll_interval (%s) must not be below poll_interval (%s)", c.MaxPollInterval, c.PollInterval)
	}
	if c.PollMaxElapsed < 0 {
		return fmt.Errorf("poll_max_elapsed must not be negative")
	}
	if c.PollRate <= 0 || c.PollBurst <= 0 {
		return fmt.Errorf("poll_rate and poll_burst must be positive")
	}
	if c.ConvertWorkers <= 0 {
		return fmt.Errorf("convert_workers must be positive, got %d", c.ConvertWorkers)
	}
	if c.Endpoint == "" || c.CompletionWindow == "" {
		return fmt.Errorf("endpoint and completion_window are required")
	}
	return nil
}
