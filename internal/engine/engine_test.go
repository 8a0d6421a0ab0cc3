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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/fake"
	"github.com/llm-d-incubation/llm-batch-engine/internal/cache"
	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
	"github.com/llm-d-incubation/llm-batch-engine/internal/shared/openai"
)

var _ = Describe("Engine", func() {
	var (
		ctx context.Context
		svc *fake.Service
		mem *cache.MemoryCache
		eng *Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		svc = fake.New()
		mem = cache.NewMemoryCache()
		var err error
		eng, err = newTestEngine(nil, svc, mem)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Submit", func() {
		It("returns nothing for no requests without contacting the service", func() {
			results, err := eng.Submit(ctx, nil, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(BeEmpty())
			uploads, creates, retrieves := svc.Counts()
			Expect([]int{uploads, creates, retrieves}).To(Equal([]int{0, 0, 0}))
		})

		It("keeps request order when the service answers out of order", func() {
			svc.ReverseOutput = true
			results, err := eng.Submit(ctx, prompts("a", "b", "c", "d"), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(contentsOf(results)).To(Equal([]string{"a", "b", "c", "d"}))
		})

		It("serves a repeated call from the cache without new jobs", func() {
			reqs := prompts("x", "y", "z")
			first, err := eng.Submit(ctx, reqs, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(mem.Len()).To(Equal(3))
			_, createsBefore, _ := svc.Counts()

			second, summary, err := eng.SubmitWithSummary(ctx, reqs, nil)
			Expect(err).NotTo(HaveOccurred())
			_, createsAfter, _ := svc.Counts()
			Expect(createsAfter).To(Equal(createsBefore))
			Expect(second).To(Equal(first))
			Expect(summary.CacheHits).To(Equal(3))
			Expect(summary.JobIDs).To(BeEmpty())
			Expect(summary.Usage.TotalTokens).To(BeZero())
		})

		It("only submits cache misses", func() {
			_, err := eng.Submit(ctx, prompts("b", "d"), nil)
			Expect(err).NotTo(HaveOccurred())

			results, summary, err := eng.SubmitWithSummary(ctx, prompts("a", "b", "c", "d", "e"), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(contentsOf(results)).To(Equal([]string{"a", "b", "c", "d", "e"}))
			Expect(summary.CacheHits).To(Equal(2))
			Expect(summary.Computed).To(Equal(3))
			Expect(summary.Usage.TotalTokens).To(Equal(45))
			Expect(summary.Model).To(Equal("fake-model"))
			Expect(summary.SystemFingerprint).To(Equal("fp_fake"))

			inputs := svc.JobInputs()
			Expect(inputs).To(HaveLen(2))
			Expect(inputs[1]).To(HaveLen(3))
		})

		It("splits misses into chunks with chunk-local custom ids", func() {
			results, summary, err := eng.SubmitWithSummary(ctx, prompts("0", "1", "2", "3", "4", "5", "6"),
				&SubmitOptions{MaxRequestsPerJob: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(contentsOf(results)).To(Equal([]string{"0", "1", "2", "3", "4", "5", "6"}))
			Expect(summary.JobIDs).To(HaveLen(3))

			inputs := svc.JobInputs()
			Expect(inputs).To(HaveLen(3))
			sizes := []int{}
			for _, lines := range inputs {
				sizes = append(sizes, len(lines))
				for n, l := range lines {
					Expect(l.CustomID).To(Equal(fmt.Sprintf("request-%d", n)))
					Expect(l.Method).To(Equal("POST"))
					Expect(l.URL).To(Equal(openai.EndpointChatCompletions))
				}
			}
			Expect(sizes).To(Equal([]int{3, 3, 1}))
		})

		It("sends the payload the model builds for inline calls", func() {
			reqs := prompts("hello")
			_, err := eng.Submit(ctx, reqs, nil)
			Expect(err).NotTo(HaveOccurred())
			want, err := testModel().BuildPayload(reqs[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(svc.JobInputs()[0][0].Body).To(MatchJSON(want))
		})

		It("fails with the job status when a job fails", func() {
			svc.Statuses = []openai.BatchStatus{openai.BatchStatusValidating, openai.BatchStatusFailed}
			_, err := eng.Submit(ctx, prompts("a"), nil)
			Expect(err).To(MatchError(ErrJobFailed))
			var e *Error
			Expect(errors.As(err, &e)).To(BeTrue())
			Expect(e.Status).To(Equal("failed"))
			Expect(e.JobID).NotTo(BeEmpty())
			Expect(mem.Len()).To(BeZero())
		})

		It("treats expired and cancelled jobs as failed", func() {
			for _, status := range []openai.BatchStatus{openai.BatchStatusExpired, openai.BatchStatusCancelled} {
				svc.Statuses = []openai.BatchStatus{openai.BatchStatusInProgress, status}
				_, err := eng.Submit(ctx, prompts("a"), nil)
				Expect(err).To(MatchError(ErrJobFailed))
			}
		})

		It("reports submission failures", func() {
			svc.CreateErr = errors.New("quota exceeded")
			_, err := eng.Submit(ctx, prompts("a"), nil)
			Expect(err).To(MatchError(ErrJobSubmission))
			Expect(err.Error()).To(ContainSubstring("quota exceeded"))
		})

		It("rejects invalid requests before any job is created", func() {
			reqs := append(prompts("a"), chat.Request{})
			_, err := eng.Submit(ctx, reqs, nil)
			Expect(err).To(MatchError(ErrJobSubmission))
			_, creates, _ := svc.Counts()
			Expect(creates).To(BeZero())
		})

		It("keeps results of earlier chunks when a later chunk breaks", func() {
			jobs := 0
			svc.MutateOutput = func(_ string, lines []openai.BatchOutputLine) []openai.BatchOutputLine {
				jobs++
				if jobs == 2 {
					return lines[1:]
				}
				return lines
			}
			_, err := eng.Submit(ctx, prompts("a", "b", "c", "d"), &SubmitOptions{MaxRequestsPerJob: 2})
			Expect(err).To(MatchError(ErrOutputIntegrity))
			Expect(err.Error()).To(ContainSubstring("request-0"))
			Expect(mem.Len()).To(Equal(2))

			svc.MutateOutput = nil
			results, summary, err := eng.SubmitWithSummary(ctx, prompts("a", "b", "c", "d"), &SubmitOptions{MaxRequestsPerJob: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(contentsOf(results)).To(Equal([]string{"a", "b", "c", "d"}))
			Expect(summary.CacheHits).To(Equal(2))
		})

		It("keeps results of earlier chunks when a later job fails", func() {
			svc.JobStatuses = func(n int) []openai.BatchStatus {
				if n == 1 {
					return []openai.BatchStatus{openai.BatchStatusInProgress, openai.BatchStatusFailed}
				}
				return nil
			}
			results, err := eng.Submit(ctx, prompts("a", "b", "c", "d", "e"), &SubmitOptions{MaxRequestsPerJob: 3})
			Expect(err).To(MatchError(ErrJobFailed))
			Expect(results).To(BeNil())
			var e *Error
			Expect(errors.As(err, &e)).To(BeTrue())
			Expect(e.Status).To(Equal("failed"))
			Expect(mem.Len()).To(Equal(3))

			svc.JobStatuses = nil
			results, summary, err := eng.SubmitWithSummary(ctx, prompts("a", "b", "c", "d", "e"), &SubmitOptions{MaxRequestsPerJob: 3})
			Expect(err).NotTo(HaveOccurred())
			Expect(contentsOf(results)).To(Equal([]string{"a", "b", "c", "d", "e"}))
			Expect(summary.CacheHits).To(Equal(3))
			Expect(summary.JobIDs).To(HaveLen(1))
		})

		It("rejects duplicate output lines", func() {
			svc.MutateOutput = func(_ string, lines []openai.BatchOutputLine) []openai.BatchOutputLine {
				return append(lines, lines[0])
			}
			_, err := eng.Submit(ctx, prompts("a", "b"), nil)
			Expect(err).To(MatchError(ErrOutputIntegrity))
			Expect(err.Error()).To(ContainSubstring("duplicate"))
		})

		It("reports unparseable response bodies", func() {
			svc.MutateOutput = func(_ string, lines []openai.BatchOutputLine) []openai.BatchOutputLine {
				lines[1].Response.Body = json.RawMessage(`{"object":"chat.completion","choices":[]}`)
				return lines
			}
			_, err := eng.Submit(ctx, prompts("a", "b"), nil)
			Expect(err).To(MatchError(ErrResponseParsing))
			Expect(err.Error()).To(ContainSubstring("request-1"))
			Expect(mem.Len()).To(BeZero())
		})

		It("stops polling when the context ends", func() {
			cfg := testConfig()
			cfg.PollInterval = time.Hour
			cfg.MaxPollInterval = time.Hour
			eng, err := newTestEngine(cfg, svc, mem)
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			_, err = eng.Submit(ctx, prompts("a"), nil)
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(StageOf(err)).To(BeEmpty())
		})

		It("retains job files in the artifact directory", func() {
			dir := GinkgoT().TempDir()
			_, err := eng.Submit(ctx, prompts("a", "b"), &SubmitOptions{ArtifactDirectory: dir})
			Expect(err).NotTo(HaveOccurred())

			outputs, err := filepath.Glob(filepath.Join(dir, "*.output.jsonl"))
			Expect(err).NotTo(HaveOccurred())
			Expect(outputs).To(HaveLen(1))
			input := strings.TrimSuffix(outputs[0], ".output.jsonl") + ".jsonl"
			data, err := os.ReadFile(input)
			Expect(err).NotTo(HaveOccurred())
			lines, err := parseInputLines(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(lines).To(HaveLen(2))
		})

		It("removes transient input files", func() {
			dir := GinkgoT().TempDir()
			DeferCleanup(os.Setenv, "TMPDIR", os.Getenv("TMPDIR"))
			Expect(os.Setenv("TMPDIR", dir)).To(Succeed())

			_, err := eng.Submit(ctx, prompts("a"), nil)
			Expect(err).NotTo(HaveOccurred())
			entries, err := os.ReadDir(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("treats a failing cache as empty", func() {
			eng, err := newTestEngine(nil, svc, failingCache{})
			Expect(err).NotTo(HaveOccurred())
			results, err := eng.Submit(ctx, prompts("a", "b"), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(contentsOf(results)).To(Equal([]string{"a", "b"}))
		})
	})

	Describe("ReconcileExternal", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
		})

		writeInput := func(reqs []chat.Request, ids []string) string {
			model := testModel()
			lines := make([]openai.BatchInputLine, len(reqs))
			for i, r := range reqs {
				body, err := model.BuildPayload(r)
				Expect(err).NotTo(HaveOccurred())
				lines[i] = openai.BatchInputLine{CustomID: ids[i], Method: "POST", URL: openai.EndpointChatCompletions, Body: body}
			}
			var sb strings.Builder
			Expect(encodeLines(&sb, lines)).To(Succeed())
			path := filepath.Join(dir, "input.jsonl")
			Expect(os.WriteFile(path, []byte(sb.String()), 0o644)).To(Succeed())
			return path
		}

		outputFor := func(contents map[string]string) []byte {
			respond := fake.EchoResponder("fake-model")
			var sb strings.Builder
			for id, content := range contents {
				body, err := respond(openai.BatchInputLine{CustomID: id,
					Body: json.RawMessage(fmt.Sprintf(`{"messages":[{"role":"user","content":%q}]}`, content))})
				Expect(err).NotTo(HaveOccurred())
				line, err := json.Marshal(openai.BatchOutputLine{CustomID: id,
					Response: &openai.BatchOutputResponse{StatusCode: 200, Body: body}})
				Expect(err).NotTo(HaveOccurred())
				sb.Write(line)
				sb.WriteString("\n\n")
			}
			return []byte(sb.String())
		}

		It("fills the cache so that Submit needs no job", func() {
			reqs := prompts("p", "q", "r")
			input := writeInput(reqs, []string{"a-1", "a-2", "a-3"})
			svc.PutFile("file-out", outputFor(map[string]string{"a-1": "p", "a-3": "r", "zz": "ignored"}))

			n, err := eng.ReconcileExternal(ctx, input, RemoteFilePrefix+"file-out")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(2))
			Expect(mem.Len()).To(Equal(2))

			results, summary, err := eng.SubmitWithSummary(ctx, prompts("p", "r"), nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(contentsOf(results)).To(Equal([]string{"p", "r"}))
			Expect(summary.CacheHits).To(Equal(2))
			_, creates, _ := svc.Counts()
			Expect(creates).To(BeZero())
		})

		It("writes nothing when an output cannot be parsed", func() {
			input := writeInput(prompts("p"), []string{"a-1"})
			output := filepath.Join(dir, "output.jsonl")
			Expect(os.WriteFile(output, []byte(`{"custom_id":"a-1","response":{"status_code":200,"body":{"choices":[]}}}`), 0o644)).To(Succeed())

			_, err := eng.ReconcileExternal(ctx, input, output)
			Expect(err).To(MatchError(ErrResponseParsing))
			Expect(mem.Len()).To(BeZero())
		})

		It("requires matching file lists", func() {
			_, err := eng.ReconcileExternalAll(ctx, []string{"a"}, nil)
			Expect(err).To(HaveOccurred())
		})

		It("fails on a missing file", func() {
			_, err := eng.ReconcileExternal(ctx, filepath.Join(dir, "nope.jsonl"), RemoteFilePrefix+"file-x")
			Expect(err).To(MatchError(os.ErrNotExist))
		})
	})
})

type failingCache struct{}

func (failingCache) Lookup(context.Context, cache.Key) (*chat.Result, bool, error) {
	return nil, false, cache.ErrUnavailable
}

func (failingCache) Update(context.Context, cache.Key, *chat.Result) error {
	return cache.ErrUnavailable
}

func (failingCache) Close() error { return nil }
