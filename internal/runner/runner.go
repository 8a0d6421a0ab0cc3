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

// Package runner executes files of chat requests through the engine. Each input file is
// one Submit call; files are processed concurrently by a bounded worker pool.
package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
	"github.com/llm-d-incubation/llm-batch-engine/internal/engine"
	"github.com/llm-d-incubation/llm-batch-engine/internal/metrics"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/logging"
)

const maxLineSize = 64 << 20

// Submitter is the part of engine.Engine the runner uses.
type Submitter interface {
	SubmitWithSummary(ctx context.Context, requests []chat.Request, opts *engine.SubmitOptions) ([]*chat.Result, *engine.Summary, error)
}

// Task reads requests from Input and writes one result per line to Output.
type Task struct {
	Input  string
	Output string
}

// OutputPath derives the default output file of an input file.
func OutputPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + ".results.jsonl"
}

type Outcome struct {
	Task    Task
	Summary *engine.Summary
	Err     error
}

type Runner struct {
	engine Submitter
	pool   *WorkerPool
	opts   *engine.SubmitOptions
}

func New(eng Submitter, maxWorkers int, opts *engine.SubmitOptions) *Runner {
	return &Runner{engine: eng, pool: NewWorkerPool(maxWorkers), opts: opts}
}

// Run processes every task and returns their outcomes in task order. A failing task
// does not stop the others.
func (r *Runner) Run(ctx context.Context, tasks []Task) []Outcome {
	logger := klog.FromContext(ctx)
	outcomes := make([]Outcome, len(tasks))

	for i, task := range tasks {
		outcomes[i].Task = task
		if err := r.pool.Acquire(ctx); err != nil {
			outcomes[i].Err = err
			continue
		}
		go func() {
			defer r.pool.Release()
			metrics.RecordWorkerStart()
			result := metrics.ResultSuccess
			defer func() {
				if rec := recover(); rec != nil {
					outcomes[i].Err = fmt.Errorf("panic while processing %s: %v", task.Input, rec)
				}
				if outcomes[i].Err != nil {
					result = metrics.ResultFailed
				}
				metrics.RecordWorkerFinish(result)
			}()

			taskCtx, taskLogger := logging.WithValues(ctx, "input", task.Input)
			summary, err := r.runTask(taskCtx, task)
			outcomes[i].Summary, outcomes[i].Err = summary, err
			if err != nil {
				taskLogger.Error(err, "Input file failed")
				return
			}
			taskLogger.Info("Input file done", "output", task.Output, "requests", summary.Requests,
				"cacheHits", summary.CacheHits, "jobs", len(summary.JobIDs))
		}()
	}
	r.pool.WaitAll()
	logger.V(logging.DEBUG).Info("All input files processed", "files", len(tasks))
	return outcomes
}

func (r *Runner) runTask(ctx context.Context, task Task) (*engine.Summary, error) {
	f, err := os.Open(task.Input)
	if err != nil {
		return nil, err
	}
	requests, err := ReadRequests(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", task.Input, err)
	}

	results, summary, err := r.engine.SubmitWithSummary(ctx, requests, r.opts)
	if err != nil {
		return nil, err
	}
	if err := writeResultsFile(task.Output, results); err != nil {
		return nil, err
	}
	return summary, nil
}

// ReadRequests reads one JSON encoded chat.Request per line. Blank lines are skipped.
func ReadRequests(r io.Reader) ([]chat.Request, error) {
	var requests []chat.Request
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var req chat.Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := req.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		requests = append(requests, req)
	}
	return requests, scanner.Err()
}

// WriteResults writes one JSON encoded result per line.
func WriteResults(w io.Writer, results []*chat.Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, res := range results {
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return nil
}

// writeResultsFile replaces path atomically.
func writeResultsFile(path string, results []*chat.Result) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".results-*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	bw := bufio.NewWriter(tmp)
	if err := WriteResults(bw, results); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := bw.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
