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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	artifactsapi "github.com/llm-d-incubation/llm-batch-engine/internal/artifacts/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/shared/openai"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/logging"
)

// UploadedFile is a batch input file known to the batch service.
type UploadedFile struct {
	FileID string
	// Artifact names the retained input file. It is empty for transient files.
	Artifact string
	Lines    int
}

// OutputArtifact returns the name under which the output of the job is retained.
func (u *UploadedFile) OutputArtifact() string {
	if u.Artifact == "" {
		return ""
	}
	return u.Artifact[:len(u.Artifact)-len(filepath.Ext(u.Artifact))] + ".output.jsonl"
}

// FileWriter serializes input lines to JSONL and uploads them.
type FileWriter struct {
	client api.Client
	store  artifactsapi.Store
}

// NewFileWriter returns a writer. With a nil store the input file is transient and removed
// once uploaded.
func NewFileWriter(client api.Client, store artifactsapi.Store) *FileWriter {
	return &FileWriter{client: client, store: store}
}

func encodeLines(w io.Writer, lines []openai.BatchInputLine) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range lines {
		if err := enc.Encode(&lines[i]); err != nil {
			return fmt.Errorf("failed to encode line %s: %w", lines[i].CustomID, err)
		}
	}
	return nil
}

// Write uploads lines as one input file.
func (w *FileWriter) Write(ctx context.Context, lines []openai.BatchInputLine) (*UploadedFile, error) {
	if w.store != nil {
		return w.writeArtifact(ctx, lines)
	}
	return w.writeTransient(ctx, lines)
}

func (w *FileWriter) writeArtifact(ctx context.Context, lines []openai.BatchInputLine) (*UploadedFile, error) {
	logger := klog.FromContext(ctx)
	name := uuid.NewString() + ".jsonl"

	var buf bytes.Buffer
	if err := encodeLines(&buf, lines); err != nil {
		return nil, err
	}
	md, err := w.store.Store(ctx, name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to retain input file %s: %w", name, err)
	}
	logger.V(logging.DEBUG).Info("Input file retained", "location", md.Location, "size", md.Size)

	file, err := w.client.UploadFile(ctx, name, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("failed to upload input file %s: %w", name, err)
	}
	return &UploadedFile{FileID: file.ID, Artifact: name, Lines: len(lines)}, nil
}

func (w *FileWriter) writeTransient(ctx context.Context, lines []openai.BatchInputLine) (*UploadedFile, error) {
	logger := klog.FromContext(ctx)

	tmp, err := os.CreateTemp("", "llm-batch-*.jsonl")
	if err != nil {
		return nil, fmt.Errorf("failed to create input file: %w", err)
	}
	path := tmp.Name()
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Info("Failed to remove transient input file", "path", path, "err", err)
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err := encodeLines(bw, lines); err != nil {
		tmp.Close()
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write input file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to rewind input file: %w", err)
	}
	defer tmp.Close()

	file, err := w.client.UploadFile(ctx, filepath.Base(path), tmp)
	if err != nil {
		return nil, fmt.Errorf("failed to upload input file: %w", err)
	}
	return &UploadedFile{FileID: file.ID, Lines: len(lines)}, nil
}
