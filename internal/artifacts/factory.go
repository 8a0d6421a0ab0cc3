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

// Package artifacts opens the configured job artifact store.
package artifacts

import (
	"context"
	"fmt"

	"github.com/llm-d-incubation/llm-batch-engine/internal/artifacts/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/artifacts/fs"
	"github.com/llm-d-incubation/llm-batch-engine/internal/artifacts/s3"
)

const (
	TypeFS = "fs"
	TypeS3 = "s3"
)

// New returns nil with no error when artifact retention is disabled.
func New(ctx context.Context, cfg *api.Config) (api.Store, error) {
	if cfg == nil {
		return nil, nil
	}
	var (
		store api.Store
		err   error
	)
	switch cfg.Type {
	case "":
		if cfg.Directory == "" {
			return nil, nil
		}
		store, err = fs.New(cfg.Directory, cfg.FileSizeLimit)
	case TypeFS:
		if cfg.Directory == "" {
			return nil, fmt.Errorf("fs artifact store requires a directory")
		}
		store, err = fs.New(cfg.Directory, cfg.FileSizeLimit)
	case TypeS3:
		store, err = s3.New(ctx, cfg.S3, cfg.FileSizeLimit)
	default:
		return nil, fmt.Errorf("unknown artifact store type %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
