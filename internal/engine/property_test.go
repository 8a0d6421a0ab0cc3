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
	"testing"

	"pgregory.net/rapid"

	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/fake"
	"github.com/llm-d-incubation/llm-batch-engine/internal/cache"
)

func TestSubmitProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		contents := rapid.SliceOfN(rapid.StringMatching(`[a-e]{1,3}`), 0, 25).Draw(t, "contents")
		chunk := rapid.IntRange(1, 8).Draw(t, "chunk")
		warm := rapid.SliceOfNDistinct(rapid.IntRange(0, 24), 0, 10, rapid.ID[int]).Draw(t, "warm")

		svc := fake.New()
		svc.ReverseOutput = rapid.Bool().Draw(t, "reverse")
		mem := cache.NewMemoryCache()
		eng, err := newTestEngine(nil, svc, mem)
		if err != nil {
			t.Fatal(err)
		}
		ctx := context.Background()

		var warmed []string
		for _, i := range warm {
			if i < len(contents) {
				warmed = append(warmed, contents[i])
			}
		}
		if _, err := eng.Submit(ctx, prompts(warmed...), nil); err != nil {
			t.Fatal(err)
		}
		_, createsBefore, _ := svc.Counts()

		results, summary, err := eng.SubmitWithSummary(ctx, prompts(contents...), &SubmitOptions{MaxRequestsPerJob: chunk})
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != len(contents) {
			t.Fatalf("got %d results for %d requests", len(results), len(contents))
		}
		for i, r := range results {
			if r.Content() != contents[i] {
				t.Fatalf("result %d is %q, want %q", i, r.Content(), contents[i])
			}
		}

		misses := summary.Computed
		if summary.CacheHits+misses != len(contents) {
			t.Fatalf("hits %d + computed %d != %d", summary.CacheHits, misses, len(contents))
		}
		_, createsAfter, _ := svc.Counts()
		wantJobs := (misses + chunk - 1) / chunk
		if got := createsAfter - createsBefore; got != wantJobs {
			t.Fatalf("created %d jobs for %d misses with chunk %d, want %d", got, misses, chunk, wantJobs)
		}
		for _, lines := range svc.JobInputs()[len(svc.JobInputs())-wantJobs:] {
			if len(lines) > chunk {
				t.Fatalf("job with %d lines exceeds chunk %d", len(lines), chunk)
			}
			for n, l := range lines {
				if l.CustomID != fmt.Sprintf("request-%d", n) {
					t.Fatalf("line %d has custom_id %s", n, l.CustomID)
				}
			}
		}

		_, createsBefore, _ = svc.Counts()
		again, err := eng.Submit(ctx, prompts(contents...), &SubmitOptions{MaxRequestsPerJob: chunk})
		if err != nil {
			t.Fatal(err)
		}
		_, createsAfter, _ = svc.Counts()
		if createsAfter != createsBefore {
			t.Fatalf("repeated submit created %d jobs", createsAfter-createsBefore)
		}
		for i := range again {
			if again[i].Content() != results[i].Content() {
				t.Fatalf("repeated result %d differs", i)
			}
		}
	})
}
