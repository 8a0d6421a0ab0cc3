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
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llm-d-incubation/llm-batch-engine/internal/artifacts/fs"
	"github.com/llm-d-incubation/llm-batch-engine/internal/batchclient/fake"
	"github.com/llm-d-incubation/llm-batch-engine/internal/shared/openai"
)

func bytesReader(s string) io.Reader {
	return strings.NewReader(s)
}

func TestParseCustomID(t *testing.T) {
	cases := []struct {
		id   string
		size int
		want int
		ok   bool
	}{
		{"request-0", 1, 0, true},
		{"request-41", 42, 41, true},
		{"request-42", 42, 0, false},
		{"request--1", 5, 0, false},
		{"request-01", 5, 0, false},
		{"request-", 5, 0, false},
		{"req-1", 5, 0, false},
		{"", 5, 0, false},
	}
	for _, tc := range cases {
		got, ok := parseCustomID(tc.id, tc.size)
		assert.Equal(t, tc.ok, ok, tc.id)
		if tc.ok {
			assert.Equal(t, tc.want, got, tc.id)
		}
	}
}

func TestParseChunkOutput(t *testing.T) {
	line := func(id, body string) string {
		return `{"custom_id":"` + id + `","response":{"status_code":200,"body":` + body + `}}`
	}

	t.Run("maps lines back in any order", func(t *testing.T) {
		data := strings.Join([]string{line("request-1", `{"n":1}`), "", line("request-0", `{"n":0}`), ""}, "\n")
		bodies, err := parseChunkOutput([]byte(data), 2)
		require.NoError(t, err)
		assert.JSONEq(t, `{"n":0}`, string(bodies[0]))
		assert.JSONEq(t, `{"n":1}`, string(bodies[1]))
	})

	errCases := map[string]struct {
		data string
		want string
	}{
		"missing":    {line("request-0", "{}"), "no output for request-1"},
		"duplicate":  {line("request-0", "{}") + "\n" + line("request-0", "{}"), "duplicate"},
		"foreign id": {line("request-0", "{}") + "\n" + line("other", "{}"), "unexpected custom_id"},
		"not json":   {line("request-0", "{}") + "\n{oops", "not valid JSON"},
		"null body":  {line("request-0", "{}") + "\n" + line("request-1", "null"), "no response body"},
		"line error": {line("request-0", "{}") + "\n" + `{"custom_id":"request-1","response":null,"error":{"code":"x","message":"rate limited"}}`, "rate limited"},
	}
	for name, tc := range errCases {
		t.Run(name, func(t *testing.T) {
			_, err := parseChunkOutput([]byte(tc.data), 2)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestFileWriter(t *testing.T) {
	lines := []openai.BatchInputLine{
		{CustomID: "request-0", Method: "POST", URL: openai.EndpointChatCompletions, Body: []byte(`{"messages":[{"role":"user","content":"<b>&</b>"}]}`)},
		{CustomID: "request-1", Method: "POST", URL: openai.EndpointChatCompletions, Body: []byte(`{"messages":[{"role":"user","content":"y"}]}`)},
	}

	t.Run("artifact store", func(t *testing.T) {
		svc := fake.New()
		store, err := fs.New(t.TempDir(), 0)
		require.NoError(t, err)
		w := NewFileWriter(svc, store)

		file, err := w.Write(context.Background(), lines)
		require.NoError(t, err)
		assert.Equal(t, 2, file.Lines)
		assert.True(t, strings.HasSuffix(file.Artifact, ".jsonl"))
		assert.Equal(t, strings.TrimSuffix(file.Artifact, ".jsonl")+".output.jsonl", file.OutputArtifact())

		uploaded, err := svc.FileContent(context.Background(), file.FileID)
		require.NoError(t, err)
		rc, _, err := store.Retrieve(context.Background(), file.Artifact)
		require.NoError(t, err)
		defer rc.Close()
		retained, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, string(retained), string(uploaded))
		assert.Contains(t, string(uploaded), "<b>&</b>")
		assert.Equal(t, 2, strings.Count(string(uploaded), "\n"))
	})

	t.Run("transient file", func(t *testing.T) {
		t.Setenv("TMPDIR", t.TempDir())
		svc := fake.New()
		w := NewFileWriter(svc, nil)

		file, err := w.Write(context.Background(), lines)
		require.NoError(t, err)
		assert.Empty(t, file.Artifact)
		assert.Empty(t, file.OutputArtifact())

		entries, err := os.ReadDir(os.TempDir())
		require.NoError(t, err)
		assert.Empty(t, entries, "transient input file must be removed")

		uploaded, err := svc.FileContent(context.Background(), file.FileID)
		require.NoError(t, err)
		parsed, err := parseInputLines(uploaded)
		require.NoError(t, err)
		assert.Len(t, parsed, 2)
	})
}
