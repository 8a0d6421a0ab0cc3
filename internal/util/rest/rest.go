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

// Package rest builds resty clients for OpenAI-compatible HTTP services.
package rest

import (
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/logging"
	utls "github.com/llm-d-incubation/llm-batch-engine/internal/util/tls"
	"k8s.io/klog/v2"
)

const RequestIDHeader = "X-Request-ID"

// Config holds configuration for an HTTP client.
type Config struct {
	BaseURL         string        `yaml:"base_url" json:"base_url"`
	APIKey          string        `yaml:"api_key" json:"-"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`                     // default: 5 minutes
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`       // default: 100
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout" json:"idle_conn_timeout"` // default: 90 seconds

	TLSInsecureSkipVerify bool               `yaml:"tls_insecure_skip_verify" json:"tls_insecure_skip_verify"`
	TLSCertificates       *utls.Certificates `yaml:"tls_certificates,omitempty" json:"tls_certificates,omitempty"`

	// Retries use resty's exponential backoff with jitter. MaxRetries 0 disables them.
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"` // default: 1 second
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff"`         // default: 60 seconds
	// Only GET requests are retried unless this is set.
	RetryNonIdempotent bool `yaml:"retry_non_idempotent" json:"retry_non_idempotent"`
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 100
	}
	if c.IdleConnTimeout == 0 {
		c.IdleConnTimeout = 90 * time.Second
	}
	if c.MaxRetries > 0 {
		if c.InitialBackoff == 0 {
			c.InitialBackoff = 1 * time.Second
		}
		if c.MaxBackoff == 0 {
			c.MaxBackoff = 60 * time.Second
		}
	}
}

// New creates a resty client. A TLS configuration that cannot be loaded is an error.
func New(config Config) (*resty.Client, error) {
	config.applyDefaults()

	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout)
	if config.APIKey != "" {
		client.SetAuthToken(config.APIKey)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = config.MaxIdleConns
	transport.MaxIdleConnsPerHost = config.MaxIdleConns
	transport.IdleConnTimeout = config.IdleConnTimeout
	transport.ResponseHeaderTimeout = 30 * time.Second

	tlsConfig, err := utls.ClientConfig(config.TLSInsecureSkipVerify, config.TLSCertificates)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		if tlsConfig.InsecureSkipVerify {
			klog.Warning("TLS certificate verification is disabled - this is insecure and should only be used for testing")
		}
		transport.TLSClientConfig = tlsConfig
	}
	client.SetTransport(transport)

	if config.MaxRetries > 0 {
		client.SetRetryCount(config.MaxRetries).
			SetRetryWaitTime(config.InitialBackoff).
			SetRetryMaxWaitTime(config.MaxBackoff)
		client.AddRetryCondition(RetryCondition(config.RetryNonIdempotent))
		client.AddRetryHook(func(resp *resty.Response, err error) {
			logger := klog.FromContext(resp.Request.Context())
			logger.V(logging.INFO).Info("Retrying request",
				"method", resp.Request.Method,
				"url", resp.Request.URL,
				"requestID", resp.Request.Header.Get(RequestIDHeader),
				"attempt", resp.Request.Attempt,
				"maxRetries", config.MaxRetries)
		})
	}
	return client, nil
}

// RetryCondition retries network errors, 429 and 5xx. Non-GET requests are only retried
// when allowNonIdempotent is set, so creating a batch job is never silently repeated.
func RetryCondition(allowNonIdempotent bool) resty.RetryConditionFunc {
	return func(r *resty.Response, err error) bool {
		if r != nil && r.Request != nil && !allowNonIdempotent && r.Request.Method != http.MethodGet {
			return false
		}
		if err != nil {
			return true
		}
		statusCode := r.StatusCode()
		return statusCode == http.StatusTooManyRequests || statusCode >= 500
	}
}
