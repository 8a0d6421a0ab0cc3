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

// Package api defines the job artifact store used to retain batch input and output files.
package api

import (
	"context"
	"errors"
	"io"
	"time"
)

// DefaultFileSizeLimit matches the batch input file limit of the OpenAI Files API.
const DefaultFileSizeLimit int64 = 200 << 20

var (
	ErrFileTooLarge = errors.New("file size exceeds limit")
	ErrFileExists   = errors.New("file already exists")
)

// Metadata describes a stored artifact.
type Metadata struct {
	Location string
	Size     int64
	ModTime  time.Time
}

// Store persists job artifacts by name. Names are relative; each store resolves them
// against its own root.
type Store interface {
	Store(ctx context.Context, name string, reader io.Reader) (*Metadata, error)
	Retrieve(ctx context.Context, name string) (io.ReadCloser, *Metadata, error)
	Close() error
}

type S3Config struct {
	Bucket          string `yaml:"bucket" json:"bucket"`
	Region          string `yaml:"region" json:"region"`
	Endpoint        string `yaml:"endpoint" json:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id" json:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" json:"-"`
	Prefix          string `yaml:"prefix" json:"prefix"`
	UsePathStyle    bool   `yaml:"use_path_style" json:"use_path_style"`
}

// Config selects a store. An empty Type disables artifact retention.
type Config struct {
	Type          string   `yaml:"type" json:"type"` // "", "fs" or "s3"
	Directory     string   `yaml:"directory" json:"directory"`
	FileSizeLimit int64    `yaml:"file_size_limit" json:"file_size_limit"`
	S3            S3Config `yaml:"s3" json:"s3"`
}
