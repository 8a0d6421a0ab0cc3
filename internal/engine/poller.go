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
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/klog/v2"

	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/metrics"
	"github.com/llm-d-incubation/llm-batch-engine/internal/shared/openai"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/logging"
)

// JobState is the engine's view of a batch job. A job is SUBMITTED once it has been
// created and before its first status call.
type JobState string

const (
	JobSubmitted  JobState = "SUBMITTED"
	JobValidating JobState = "VALIDATING"
	JobInProgress JobState = "IN_PROGRESS"
	JobFinalizing JobState = "FINALIZING"
	JobCompleted  JobState = "COMPLETED"
	JobFailed     JobState = "FAILED"
)

// StateOf maps a batch service status to a JobState. Every status other than the
// known non-terminal ones and completed is a failure.
func StateOf(status openai.BatchStatus) JobState {
	switch status {
	case openai.BatchStatusValidating:
		return JobValidating
	case openai.BatchStatusInProgress:
		return JobInProgress
	case openai.BatchStatusFinalizing:
		return JobFinalizing
	case openai.BatchStatusCompleted:
		return JobCompleted
	default:
		return JobFailed
	}
}

func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type PollConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
	MaxElapsed  time.Duration
}

// Poller waits for batch jobs to reach a terminal state. One Poller is shared by all
// jobs of an engine so that its limiter bounds the combined status call rate.
type Poller struct {
	client  api.Client
	config  PollConfig
	limiter *rate.Limiter
	after   func(time.Duration) <-chan time.Time
}

func NewPoller(client api.Client, config PollConfig, limiter *rate.Limiter) *Poller {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	return &Poller{client: client, config: config, limiter: limiter, after: time.After}
}

// Wait polls jobID until it completes. The first status call is made immediately; the
// delay before each further call starts at the poll interval and doubles up to the
// maximum interval. A job ending in any status other than completed yields an *Error
// with StagePolling.
func (p *Poller) Wait(ctx context.Context, jobID string) (*openai.Batch, error) {
	logger := klog.FromContext(ctx)
	start := time.Now()
	interval := p.config.Interval
	current := JobSubmitted

	for {
		if err := p.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("polling job %s: %w", jobID, ctx.Err())
			}
			return nil, fmt.Errorf("polling job %s: %w", jobID, err)
		}
		batch, err := p.client.RetrieveBatch(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("polling job %s: %w", jobID, ctx.Err())
			}
			return nil, &Error{Stage: StagePolling, JobID: jobID, Err: err}
		}
		metrics.RecordPoll(string(batch.Status))

		state := StateOf(batch.Status)
		if state != current {
			logger.V(logging.DEBUG).Info("Batch job state changed", "from", current, "to", state, "status", batch.Status)
			current = state
		}
		switch state {
		case JobCompleted:
			metrics.RecordJobOutcome(string(batch.Status), time.Since(start), int(batch.RequestCounts.Total))
			return batch, nil
		case JobFailed:
			metrics.RecordJobOutcome(string(batch.Status), time.Since(start), int(batch.RequestCounts.Total))
			var cause error
			if msg := batch.FirstError(); msg != "" {
				cause = errors.New(msg)
			}
			return nil, &Error{Stage: StagePolling, JobID: jobID, Status: string(batch.Status), Err: cause}
		}

		if p.config.MaxElapsed > 0 && time.Since(start)+interval > p.config.MaxElapsed {
			return nil, &Error{Stage: StagePolling, JobID: jobID, Status: string(batch.Status),
				Err: fmt.Errorf("job did not finish within %s", p.config.MaxElapsed)}
		}
		logger.V(logging.DEBUG).Info("Batch job not finished", "status", batch.Status, "nextPoll", interval)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("polling job %s: %w", jobID, ctx.Err())
		case <-p.after(interval):
		}
		interval = min(interval*2, p.config.MaxInterval)
	}
}
