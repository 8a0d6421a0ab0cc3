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
	"fmt"
	"os"
	"strings"

	"github.com/llm-d-incubation/llm-batch-engine/internal/cache"
	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
	"github.com/llm-d-incubation/llm-batch-engine/internal/metrics"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/logging"
)

// RemoteFilePrefix marks a reference to a file held by the batch service.
const RemoteFilePrefix = "openai://"

func (e *Engine) readRef(ctx context.Context, ref string) ([]byte, error) {
	if id, ok := strings.CutPrefix(ref, RemoteFilePrefix); ok {
		data, err := e.client.FileContent(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to download %s: %w", ref, err)
		}
		return data, nil
	}
	data, err := os.ReadFile(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ref, err)
	}
	return data, nil
}

type recovered struct {
	key    cache.Key
	result *chat.Result
}

// ReconcileExternal fills the cache from a batch job run outside the engine. inputRef and
// outputRef are local paths or "openai://<file id>" references. Input lines without a
// response are skipped. Nothing is written when any matched line fails to parse.
func (e *Engine) ReconcileExternal(ctx context.Context, inputRef, outputRef string) (int, error) {
	ctx, logger := logging.WithValues(ctx, "input", inputRef, "output", outputRef)

	inData, err := e.readRef(ctx, inputRef)
	if err != nil {
		return 0, err
	}
	outData, err := e.readRef(ctx, outputRef)
	if err != nil {
		return 0, err
	}
	inputs, err := parseInputLines(inData)
	if err != nil {
		return 0, &Error{Stage: StageParsing, Err: err}
	}
	bodies, err := parseOutputBodies(outData)
	if err != nil {
		return 0, &Error{Stage: StageOutput, Err: err}
	}

	entries := make([]recovered, 0, len(bodies))
	for _, in := range inputs {
		body, ok := bodies[in.CustomID]
		if !ok {
			continue
		}
		req, err := e.model.RequestFromPayload(in.Body)
		if err != nil {
			return 0, &Error{Stage: StageParsing, Err: fmt.Errorf("input %s: %w", in.CustomID, err)}
		}
		prompt, err := req.Serialize()
		if err != nil {
			return 0, &Error{Stage: StageParsing, Err: fmt.Errorf("input %s: %w", in.CustomID, err)}
		}
		parsed := e.model.ParseResponse(body)
		if !parsed.OK() {
			return 0, &Error{Stage: StageParsing, Err: fmt.Errorf("output %s: %w", in.CustomID, parsed.Failure)}
		}
		entries = append(entries, recovered{
			key:    cache.Key{Prompt: prompt, Signature: e.model.Signature(req)},
			result: parsed.Result,
		})
	}

	written := 0
	for _, entry := range entries {
		if err := e.cache.Update(ctx, entry.key, entry.result); err != nil {
			logger.Error(err, "Failed to cache recovered result")
			continue
		}
		written++
	}
	metrics.RecordReconciled(written)
	logger.V(logging.INFO).Info("Reconciled external job", "inputs", len(inputs), "outputs", len(bodies), "cached", written)
	return written, nil
}

// ReconcileExternalAll reconciles pairs of input and output files.
func (e *Engine) ReconcileExternalAll(ctx context.Context, inputRefs, outputRefs []string) (int, error) {
	if len(inputRefs) != len(outputRefs) {
		return 0, fmt.Errorf("%d input files but %d output files", len(inputRefs), len(outputRefs))
	}
	total := 0
	for i := range inputRefs {
		n, err := e.ReconcileExternal(ctx, inputRefs[i], outputRefs[i])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
