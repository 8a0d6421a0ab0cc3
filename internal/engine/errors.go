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
	"errors"
	"fmt"
	"strings"

	"github.com/llm-d-incubation/llm-batch-engine/internal/cache"
)

// Stage names the step of a Submit call that failed. Submit and ReconcileExternal never
// fail in StageCache: lookup errors count as misses and write errors are logged.
// StageCache and ErrCacheUnavailable classify failures to open a cache backend.
type Stage string

const (
	StageCache      Stage = "cache"
	StageSubmission Stage = "submission"
	StagePolling    Stage = "polling"
	StageOutput     Stage = "output"
	StageParsing    Stage = "parsing"
)

var (
	ErrCacheUnavailable = cache.ErrUnavailable
	ErrJobSubmission    = errors.New("batch job submission failed")
	ErrJobFailed        = errors.New("batch job failed")
	ErrOutputIntegrity  = errors.New("batch output integrity violated")
	ErrResponseParsing  = errors.New("response parsing failed")
)

// Error is returned by Submit and ReconcileExternal. It matches the sentinel of its
// stage with errors.Is and unwraps to the underlying cause.
type Error struct {
	Stage  Stage
	JobID  string
	Status string
	Err    error
}

func (e *Error) kind() error {
	switch e.Stage {
	case StageCache:
		return ErrCacheUnavailable
	case StageSubmission:
		return ErrJobSubmission
	case StagePolling:
		return ErrJobFailed
	case StageOutput:
		return ErrOutputIntegrity
	case StageParsing:
		return ErrResponseParsing
	default:
		return errors.New(string(e.Stage))
	}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.kind().Error())
	if e.JobID != "" {
		fmt.Fprintf(&b, " (job %s", e.JobID)
		if e.Status != "" {
			fmt.Fprintf(&b, ", status %s", e.Status)
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Is(target error) bool {
	return target == e.kind()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StageOf returns the failing stage of err, or "" when err is not an *Error.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}
