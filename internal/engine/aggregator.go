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
	"fmt"

	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
)

// Summary is the combined outcome of a Submit call.
type Summary struct {
	Model             string `json:"model,omitempty"`
	SystemFingerprint string `json:"system_fingerprint,omitempty"`
	// Usage sums token usage over results computed by this call. Cache hits cost nothing.
	Usage     chat.Usage `json:"usage"`
	Requests  int        `json:"requests"`
	CacheHits int        `json:"cache_hits"`
	Computed  int        `json:"computed"`
	JobIDs    []string   `json:"job_ids,omitempty"`
}

// aggregate merges cache hits and computed results into one list in request order.
// hits has one slot per request; computed[i] fills the slot items[i].index.
func aggregate(hits []*chat.Result, items []pending, computed []*chat.Result, jobIDs []string) ([]*chat.Result, *Summary, error) {
	if len(items) != len(computed) {
		return nil, nil, fmt.Errorf("%d pending requests but %d computed results", len(items), len(computed))
	}
	results := make([]*chat.Result, len(hits))
	summary := &Summary{Requests: len(hits), JobIDs: jobIDs}

	for i, r := range hits {
		if r != nil {
			results[i] = r
			summary.CacheHits++
		}
	}
	for i, it := range items {
		r := computed[i]
		if r == nil {
			return nil, nil, fmt.Errorf("request %d was not resolved", it.index)
		}
		if results[it.index] != nil {
			return nil, nil, fmt.Errorf("request %d was resolved twice", it.index)
		}
		results[it.index] = r
		summary.Computed++
		summary.Usage.Add(r.Usage)
		if summary.Model == "" {
			summary.Model = r.Model
		}
		if summary.SystemFingerprint == "" {
			summary.SystemFingerprint = r.SystemFingerprint
		}
	}
	for i, r := range results {
		if r == nil {
			return nil, nil, fmt.Errorf("request %d has no result", i)
		}
		if summary.Model == "" {
			summary.Model = r.Model
		}
		if summary.SystemFingerprint == "" {
			summary.SystemFingerprint = r.SystemFingerprint
		}
	}
	return results, summary, nil
}
