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
	"bytes"
	"context"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"

	artifactsapi "github.com/llm-d-incubation/llm-batch-engine/internal/artifacts/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/cache"
	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
	"github.com/llm-d-incubation/llm-batch-engine/internal/metrics"
	"github.com/llm-d-incubation/llm-batch-engine/internal/shared/openai"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/logging"
)

// pending is a request that missed the cache.
type pending struct {
	index   int
	request chat.Request
	key     cache.Key
}

// reconciler runs the chunk loop of one Submit call.
type reconciler struct {
	model     ChatModel
	client    api.Client
	cache     cache.RequestCache
	store     artifactsapi.Store
	writer    *FileWriter
	poller    *Poller
	config    *Config
	chunkSize int

	resolved []*chat.Result
	jobIDs   []string
}

// nextChunk returns the positions of the first chunkSize unresolved requests in order.
func (r *reconciler) nextChunk() []int {
	var chunk []int
	for i, res := range r.resolved {
		if res != nil {
			continue
		}
		chunk = append(chunk, i)
		if len(chunk) == r.chunkSize {
			break
		}
	}
	return chunk
}

// run resolves every pending request, one batch job per chunk. It stops at the first
// failing chunk; results of earlier chunks are already cached at that point.
func (r *reconciler) run(ctx context.Context, items []pending) error {
	r.resolved = make([]*chat.Result, len(items))
	for {
		chunk := r.nextChunk()
		if len(chunk) == 0 {
			return nil
		}
		if err := r.runChunk(ctx, items, chunk); err != nil {
			return err
		}
	}
}

func (r *reconciler) runChunk(ctx context.Context, items []pending, chunk []int) error {
	ctx, logger := logging.WithValues(ctx, "chunk", len(r.jobIDs), "requests", len(chunk))

	lines := make([]openai.BatchInputLine, len(chunk))
	for n, pos := range chunk {
		payload, err := r.model.BuildPayload(items[pos].request)
		if err != nil {
			return &Error{Stage: StageSubmission, Err: fmt.Errorf("request %d: %w", items[pos].index, err)}
		}
		lines[n] = openai.BatchInputLine{
			CustomID: customID(n),
			Method:   http.MethodPost,
			URL:      r.config.Endpoint,
			Body:     payload,
		}
	}

	file, err := r.writer.Write(ctx, lines)
	if err != nil {
		return &Error{Stage: StageSubmission, Err: err}
	}
	batch, err := r.client.CreateBatch(ctx, &openai.CreateBatchRequest{
		InputFileID:      file.FileID,
		Endpoint:         r.config.Endpoint,
		CompletionWindow: r.config.CompletionWindow,
		Metadata:         map[string]string{"description": r.config.JobDescription},
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("creating batch job: %w", ctx.Err())
		}
		return &Error{Stage: StageSubmission, Err: err}
	}
	metrics.RecordJobSubmitted(len(chunk))
	r.jobIDs = append(r.jobIDs, batch.ID)
	ctx, logger = logging.WithValues(ctx, "jobID", batch.ID)
	logger.V(logging.INFO).Info("Batch job created", "state", JobSubmitted, "inputFileID", file.FileID, "artifact", file.Artifact)

	done, err := r.poller.Wait(ctx, batch.ID)
	if err != nil {
		return err
	}
	if done.OutputFileID == "" {
		return &Error{Stage: StageOutput, JobID: batch.ID, Status: string(done.Status),
			Err: fmt.Errorf("completed job has no output file")}
	}
	content, err := r.client.FileContent(ctx, done.OutputFileID)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("downloading output of job %s: %w", batch.ID, ctx.Err())
		}
		return &Error{Stage: StageOutput, JobID: batch.ID, Err: err}
	}
	r.retainOutput(ctx, file, content)

	bodies, err := parseChunkOutput(content, len(chunk))
	if err != nil {
		return &Error{Stage: StageOutput, JobID: batch.ID, Err: err}
	}

	parsed := make([]chat.ParseResult, len(chunk))
	var g errgroup.Group
	g.SetLimit(r.config.ConvertWorkers)
	for n := range bodies {
		g.Go(func() error {
			parsed[n] = r.model.ParseResponse(bodies[n])
			return nil
		})
	}
	_ = g.Wait()
	for n, p := range parsed {
		if !p.OK() {
			var cause error = p.Failure
			if p.Failure == nil {
				cause = fmt.Errorf("empty parse result")
			}
			return &Error{Stage: StageParsing, JobID: batch.ID, Err: fmt.Errorf("%s: %w", customID(n), cause)}
		}
	}

	for n, pos := range chunk {
		r.resolved[pos] = parsed[n].Result
		if err := r.cache.Update(ctx, items[pos].key, parsed[n].Result); err != nil {
			logger.Error(err, "Failed to cache result", "customID", customID(n))
		}
	}
	logger.V(logging.INFO).Info("Batch job reconciled", "outputFileID", done.OutputFileID)
	return nil
}

func (r *reconciler) retainOutput(ctx context.Context, file *UploadedFile, content []byte) {
	name := file.OutputArtifact()
	if r.store == nil || name == "" {
		return
	}
	logger := klog.FromContext(ctx)
	md, err := r.store.Store(ctx, name, bytes.NewReader(content))
	if err != nil {
		logger.Error(err, "Failed to retain output file", "name", name)
		return
	}
	logger.V(logging.DEBUG).Info("Output file retained", "location", md.Location, "size", md.Size)
}
