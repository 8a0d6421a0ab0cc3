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

// Package fake provides an in-memory batch service. Jobs advance one status per
// RetrieveBatch call and produce their output file when they reach "completed".
package fake

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/api"
	"github.com/llm-d-incubation/llm-batch-engine/internal/shared/openai"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/rest"
)

// Responder produces the response body for one input line.
type Responder func(line openai.BatchInputLine) (json.RawMessage, error)

// Service is safe for concurrent use.
type Service struct {
	// Statuses reported after creation, in order. The last one is terminal.
	Statuses []openai.BatchStatus
	// JobStatuses overrides Statuses for the n-th created job, counting from zero, when it
	// returns a non-empty list.
	JobStatuses func(n int) []openai.BatchStatus
	Respond     Responder
	// MutateOutput may rewrite the output lines of a job before they are stored.
	MutateOutput func(batchID string, lines []openai.BatchOutputLine) []openai.BatchOutputLine
	// ReverseOutput writes output lines in reverse input order.
	ReverseOutput bool
	CreateErr     error
	RetrieveErr   error

	mu        sync.Mutex
	seq       int
	files     map[string][]byte
	jobs      map[string]*job
	uploads   int
	creates   int
	retrieves int
}

type job struct {
	batch    openai.Batch
	statuses []openai.BatchStatus
	step     int
	input    []openai.BatchInputLine
}

var _ api.Client = (*Service)(nil)

// New returns a service whose jobs go validating, in_progress, completed and whose
// responses echo the last message of each request.
func New() *Service {
	return &Service{
		Statuses: []openai.BatchStatus{
			openai.BatchStatusValidating,
			openai.BatchStatusInProgress,
			openai.BatchStatusCompleted,
		},
		Respond: EchoResponder("fake-model"),
		files:   make(map[string][]byte),
		jobs:    make(map[string]*job),
	}
}

func (s *Service) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *Service) UploadFile(_ context.Context, name string, content io.Reader) (*openai.File, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	id := s.nextID("file")
	s.files[id] = data
	return &openai.File{
		ID:        id,
		Object:    "file",
		Bytes:     int64(len(data)),
		CreatedAt: time.Now().Unix(),
		Filename:  name,
		Purpose:   openai.FilePurposeBatch,
	}, nil
}

// PutFile stores content under a fixed id, e.g. to stage files for recovery.
func (s *Service) PutFile(id string, content []byte) {
	s.mu.Lock()
	s.files[id] = content
	s.mu.Unlock()
}

func (s *Service) CreateBatch(_ context.Context, req *openai.CreateBatchRequest) (*openai.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.CreateErr != nil {
		return nil, s.CreateErr
	}
	data, ok := s.files[req.InputFileID]
	if !ok {
		return nil, &rest.ClientError{Category: rest.ErrCategoryNotFound, StatusCode: 404,
			Message: fmt.Sprintf("HTTP 404: no such file %s", req.InputFileID)}
	}
	input, err := parseInput(data)
	if err != nil {
		return nil, &rest.ClientError{Category: rest.ErrCategoryInvalidReq, StatusCode: 400,
			Message: fmt.Sprintf("HTTP 400: %v", err)}
	}
	statuses := s.Statuses
	if s.JobStatuses != nil {
		if override := s.JobStatuses(len(s.jobs)); len(override) > 0 {
			statuses = override
		}
	}
	id := s.nextID("batch")
	j := &job{
		batch: openai.Batch{
			ID:               id,
			Object:           "batch",
			Endpoint:         req.Endpoint,
			InputFileID:      req.InputFileID,
			CompletionWindow: req.CompletionWindow,
			Status:           openai.BatchStatusValidating,
			CreatedAt:        time.Now().Unix(),
			Metadata:         req.Metadata,
			RequestCounts:    openai.BatchRequestCounts{Total: int32(len(input))},
		},
		statuses: append([]openai.BatchStatus(nil), statuses...),
		input:    input,
	}
	s.jobs[id] = j
	b := j.batch
	return &b, nil
}

func (s *Service) RetrieveBatch(_ context.Context, batchID string) (*openai.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retrieves++
	if s.RetrieveErr != nil {
		return nil, s.RetrieveErr
	}
	j, ok := s.jobs[batchID]
	if !ok {
		return nil, &rest.ClientError{Category: rest.ErrCategoryNotFound, StatusCode: 404,
			Message: fmt.Sprintf("HTTP 404: no such batch %s", batchID)}
	}
	if j.step < len(j.statuses) {
		j.batch.Status = j.statuses[j.step]
		j.step++
		if j.batch.Status == openai.BatchStatusCompleted && j.batch.OutputFileID == "" {
			if err := s.complete(j); err != nil {
				return nil, err
			}
		}
	}
	b := j.batch
	return &b, nil
}

func (s *Service) complete(j *job) error {
	lines := make([]openai.BatchOutputLine, 0, len(j.input))
	for _, in := range j.input {
		body, err := s.Respond(in)
		if err != nil {
			return err
		}
		lines = append(lines, openai.BatchOutputLine{
			ID:       "resp-" + in.CustomID,
			CustomID: in.CustomID,
			Response: &openai.BatchOutputResponse{StatusCode: 200, Body: body},
		})
	}
	if s.ReverseOutput {
		for i, k := 0, len(lines)-1; i < k; i, k = i+1, k-1 {
			lines[i], lines[k] = lines[k], lines[i]
		}
	}
	if s.MutateOutput != nil {
		lines = s.MutateOutput(j.batch.ID, lines)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			return err
		}
	}
	outID := s.nextID("file")
	s.files[outID] = buf.Bytes()
	j.batch.OutputFileID = outID
	j.batch.CompletedAt = time.Now().Unix()
	j.batch.RequestCounts.Completed = int32(len(lines))
	return nil
}

func (s *Service) FileContent(_ context.Context, fileID string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[fileID]
	if !ok {
		return nil, &rest.ClientError{Category: rest.ErrCategoryNotFound, StatusCode: 404,
			Message: fmt.Sprintf("HTTP 404: no such file %s", fileID)}
	}
	return append([]byte(nil), data...), nil
}

// Counts reports the number of uploads, job creations and status polls served.
func (s *Service) Counts() (uploads, creates, retrieves int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads, s.creates, s.retrieves
}

// JobInputs returns the input lines of every created job in creation order.
func (s *Service) JobInputs() [][]openai.BatchInputLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]openai.BatchInputLine, 0, len(s.jobs))
	for i := 1; i <= s.seq; i++ {
		if j, ok := s.jobs[fmt.Sprintf("batch-%d", i)]; ok {
			out = append(out, j.input)
		}
	}
	return out
}

func parseInput(data []byte) ([]openai.BatchInputLine, error) {
	var lines []openai.BatchInputLine
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if len(bytes.TrimSpace(scanner.Bytes())) == 0 {
			continue
		}
		var l openai.BatchInputLine
		if err := json.Unmarshal(scanner.Bytes(), &l); err != nil {
			return nil, fmt.Errorf("line %d: %w", len(lines)+1, err)
		}
		lines = append(lines, l)
	}
	return lines, scanner.Err()
}

// EchoResponder answers each request with its last message content.
func EchoResponder(model string) Responder {
	return func(line openai.BatchInputLine) (json.RawMessage, error) {
		var body struct {
			Messages []openai.ChatCompletionMessage `json:"messages"`
		}
		if err := json.Unmarshal(line.Body, &body); err != nil {
			return nil, err
		}
		content := ""
		if n := len(body.Messages); n > 0 {
			content = body.Messages[n-1].Content
		}
		return json.Marshal(openai.ChatCompletionResponse{
			ID:                "chatcmpl-" + line.CustomID,
			Object:            "chat.completion",
			Model:             model,
			SystemFingerprint: "fp_fake",
			Choices: []openai.ChatCompletionChoice{{
				Message:      openai.ChatCompletionMessage{Role: "assistant", Content: content},
				FinishReason: "stop",
			}},
			Usage: &openai.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}
}
