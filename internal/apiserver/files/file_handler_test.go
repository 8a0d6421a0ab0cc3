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

// The file contains unit tests for the artifact download handler.
package files

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/llm-d-incubation/llm-batch-engine/internal/apiserver/common"
	"github.com/llm-d-incubation/llm-batch-engine/internal/artifacts/fs"
)

func TestDownloadFile(t *testing.T) {
	store, err := fs.New(t.TempDir(), 0)
	if err != nil {
		t.Fatal(err)
	}
	content := "{\"custom_id\":\"request-0\"}\n"
	if _, err := store.Store(context.Background(), "job.jsonl", strings.NewReader(content)); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	common.RegisterHandler(mux, NewFilesApiHandler(store))

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		expectedBody   string
	}{
		{"existing artifact", http.MethodGet, "/v1/artifacts/job.jsonl", http.StatusOK, content},
		{"missing artifact", http.MethodGet, "/v1/artifacts/other.jsonl", http.StatusNotFound, ""},
		{"wrong method", http.MethodDelete, "/v1/artifacts/job.jsonl", http.StatusMethodNotAllowed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))
			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedBody != "" && w.Body.String() != tt.expectedBody {
				t.Errorf("expected body %q, got %q", tt.expectedBody, w.Body.String())
			}
		})
	}
}

func TestDownloadFileWithoutStore(t *testing.T) {
	mux := http.NewServeMux()
	common.RegisterHandler(mux, NewFilesApiHandler(nil))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/artifacts/job.jsonl", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
