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

// The file contains unit tests for the generate and reconcile handlers.
package batch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/llm-d-incubation/llm-batch-engine/internal/apiserver/common"
	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/fake"
	"github.com/llm-d-incubation/llm-batch-engine/internal/cache"
	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
	"github.com/llm-d-incubation/llm-batch-engine/internal/engine"
	"github.com/llm-d-incubation/llm-batch-engine/internal/inference"
	"github.com/llm-d-incubation/llm-batch-engine/internal/shared/openai"
)

func newTestMux(t *testing.T, svc *fake.Service, maxBody int64) *http.ServeMux {
	t.Helper()
	cfg := engine.NewConfig()
	cfg.PollInterval = time.Millisecond
	cfg.MaxPollInterval = time.Millisecond
	model, err := inference.NewChatClient(inference.Config{Model: "fake-model"})
	if err != nil {
		t.Fatal(err)
	}
	eng, err := engine.New(cfg, model, cache.NewMemoryCache(), svc, nil)
	if err != nil {
		t.Fatal(err)
	}
	mux := http.NewServeMux()
	common.RegisterHandler(mux, NewBatchApiHandler(eng, maxBody))
	return mux
}

func post(mux *http.ServeMux, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp common.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body %q: %v", w.Body.String(), err)
	}
	return resp.Error.Code
}

const twoRequests = `{"requests":[
	{"messages":[{"role":"user","content":"first"}]},
	{"messages":[{"role":"system","content":"s"},{"role":"user","content":"second"}]}
]}`

func TestGenerate(t *testing.T) {
	svc := fake.New()
	mux := newTestMux(t, svc, 0)

	w := post(mux, GeneratePath, twoRequests)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Results) != 2 || resp.Results[0].Content() != "first" || resp.Results[1].Content() != "second" {
		t.Fatalf("unexpected results %+v", resp.Results)
	}
	if resp.Summary == nil || resp.Summary.Computed != 2 || len(resp.Summary.JobIDs) != 1 {
		t.Fatalf("unexpected summary %+v", resp.Summary)
	}

	w = post(mux, GeneratePath, twoRequests)
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Summary.CacheHits != 2 {
		t.Errorf("expected the second call to be served from cache, got %+v", resp.Summary)
	}

	w = post(mux, GeneratePath, `{"requests":[]}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("expected empty results, got %d: %s", w.Code, w.Body.String())
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		statuses       []openai.BatchStatus
		maxBody        int64
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "invalid json",
			body:           `{"requests":`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_json",
		},
		{
			name:           "unknown field",
			body:           `{"prompts":[]}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_json",
		},
		{
			name:           "request without messages",
			body:           `{"requests":[{"messages":[]}]}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_request",
		},
		{
			name:           "negative chunk size",
			body:           `{"requests":[],"max_requests_per_job":-1}`,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_value",
		},
		{
			name:           "body too large",
			body:           twoRequests,
			maxBody:        16,
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedCode:   "body_too_large",
		},
		{
			name:           "failed batch job",
			body:           twoRequests,
			statuses:       []openai.BatchStatus{openai.BatchStatusValidating, openai.BatchStatusFailed},
			expectedStatus: http.StatusBadGateway,
			expectedCode:   string(engine.StagePolling),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := fake.New()
			if tt.statuses != nil {
				svc.Statuses = tt.statuses
			}
			mux := newTestMux(t, svc, tt.maxBody)
			w := post(mux, GeneratePath, tt.body)
			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if code := errorCode(t, w); code != tt.expectedCode {
				t.Errorf("expected code %q, got %q", tt.expectedCode, code)
			}
		})
	}
}

func TestGenerateMethodNotAllowed(t *testing.T) {
	mux := newTestMux(t, fake.New(), 0)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, GeneratePath, nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestReconcile(t *testing.T) {
	svc := fake.New()
	mux := newTestMux(t, svc, 0)

	model, err := inference.NewChatClient(inference.Config{Model: "fake-model"})
	if err != nil {
		t.Fatal(err)
	}
	var input, output bytes.Buffer
	respond := fake.EchoResponder("fake-model")
	for i, content := range []string{"first", "third"} {
		payload, err := model.BuildPayload(chatRequest(content))
		if err != nil {
			t.Fatal(err)
		}
		in := openai.BatchInputLine{CustomID: fmt.Sprintf("ext-%d", i), Method: http.MethodPost,
			URL: openai.EndpointChatCompletions, Body: payload}
		body, err := respond(in)
		if err != nil {
			t.Fatal(err)
		}
		json.NewEncoder(&input).Encode(in)
		json.NewEncoder(&output).Encode(openai.BatchOutputLine{CustomID: in.CustomID,
			Response: &openai.BatchOutputResponse{StatusCode: 200, Body: body}})
	}
	svc.PutFile("file-in", input.Bytes())
	svc.PutFile("file-out", output.Bytes())

	w := post(mux, ReconcilePath, `{"input_files":["openai://file-in"],"output_files":["openai://file-out"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp ReconcileResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Cached != 2 {
		t.Errorf("expected 2 cached entries, got %d", resp.Cached)
	}

	w = post(mux, GeneratePath, `{"requests":[{"messages":[{"role":"user","content":"first"}]}]}`)
	var gen GenerateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &gen); err != nil {
		t.Fatal(err)
	}
	if gen.Summary.CacheHits != 1 {
		t.Errorf("expected reconciled result to be served from cache, got %+v", gen.Summary)
	}
	if _, creates, _ := svc.Counts(); creates != 0 {
		t.Errorf("expected no batch jobs, got %d", creates)
	}
}

func TestReconcileErrors(t *testing.T) {
	mux := newTestMux(t, fake.New(), 0)
	for name, body := range map[string]string{
		"local path":      `{"input_files":["/etc/passwd"],"output_files":["openai://file-1"]}`,
		"length mismatch": `{"input_files":["openai://a","openai://b"],"output_files":["openai://c"]}`,
		"empty":           `{"input_files":[],"output_files":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			w := post(mux, ReconcilePath, body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
		})
	}

	w := post(mux, ReconcilePath, `{"input_files":["openai://missing"],"output_files":["openai://missing"]}`)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 for an unreadable file, got %d: %s", w.Code, w.Body.String())
	}
}

func chatRequest(content string) chat.Request {
	return chat.NewRequest(chat.User(content))
}
