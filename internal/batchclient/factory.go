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

// Package batchclient opens the configured batch service client.
package batchclient

import (
	"fmt"

	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/httpclient"
	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/sdk"
)

func New(cfg *api.Config) (api.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("batch service config was not provided")
	}
	if cfg.BaseURL == "" && cfg.Type != api.TypeSDK {
		return nil, fmt.Errorf("batch service config has empty base url")
	}
	switch cfg.Type {
	case "", api.TypeHTTP:
		c, err := httpclient.New(cfg.Config)
		if err != nil {
			return nil, err
		}
		return c, nil
	case api.TypeSDK:
		c, err := sdk.New(cfg.Config)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown batch service client type %q", cfg.Type)
	}
}
