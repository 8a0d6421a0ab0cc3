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

// Package fs stores job artifacts in a local directory.
package fs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/llm-d-incubation/llm-batch-engine/internal/artifacts/api"
)

// Client implements api.Store on the local filesystem.
type Client struct {
	basePath      string
	fileSizeLimit int64
}

var _ api.Store = (*Client)(nil)

// New creates the base directory when missing.
func New(basePath string, fileSizeLimit int64) (*Client, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	if fileSizeLimit <= 0 {
		fileSizeLimit = api.DefaultFileSizeLimit
	}
	return &Client{
		basePath:      filepath.Clean(absPath),
		fileSizeLimit: fileSizeLimit,
	}, nil
}

// BasePath returns the absolute artifact directory.
func (c *Client) BasePath() string {
	return c.basePath
}

// resolvePath rejects names that escape the base directory.
func (c *Client) resolvePath(name string) (string, error) {
	fullPath := filepath.Join(c.basePath, filepath.Clean(name))
	if !strings.HasPrefix(fullPath, c.basePath+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid artifact name %q: %w", name, os.ErrInvalid)
	}
	return fullPath, nil
}

// Store writes to a temp file in the target directory and renames it into place, so
// readers never observe a partial artifact.
func (c *Client) Store(ctx context.Context, name string, reader io.Reader) (*api.Metadata, error) {
	fullPath, err := c.resolvePath(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(fullPath); err == nil {
		return nil, api.ErrFileExists
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	written, err := io.Copy(tmpFile, io.LimitReader(reader, c.fileSizeLimit+1))
	if err != nil {
		_ = tmpFile.Close()
		return nil, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	if written > c.fileSizeLimit {
		return nil, api.ErrFileTooLarge
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		return nil, fmt.Errorf("failed to rename artifact: %w", err)
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat artifact: %w", err)
	}
	return &api.Metadata{Location: fullPath, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (c *Client) Retrieve(ctx context.Context, name string) (io.ReadCloser, *api.Metadata, error) {
	fullPath, err := c.resolvePath(name)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, nil, fmt.Errorf("failed to stat artifact: %w", err)
	}
	return file, &api.Metadata{Location: fullPath, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (c *Client) Close() error {
	return nil
}
