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

package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerialize(t *testing.T) {
	t.Run("is deterministic", func(t *testing.T) {
		req := NewRequest(System("be brief"), User("hello"))
		a, err := req.Serialize()
		require.NoError(t, err)
		b, err := req.Serialize()
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Equal(t, `[{"role":"system","content":"be brief"},{"role":"user","content":"hello"}]`, a)
	})

	t.Run("ignores invocation parameters", func(t *testing.T) {
		temp := 0.5
		a, _ := NewRequest(User("hi")).Serialize()
		withParams := Request{Messages: []Message{User("hi")}, Stop: []string{"\n"}, Params: Params{Temperature: &temp}}
		b, _ := withParams.Serialize()
		assert.Equal(t, a, b)
	})

	t.Run("differs by message order", func(t *testing.T) {
		a, _ := NewRequest(User("a"), User("b")).Serialize()
		b, _ := NewRequest(User("b"), User("a")).Serialize()
		assert.NotEqual(t, a, b)
	})
}

func TestValidate(t *testing.T) {
	assert.Error(t, Request{}.Validate())
	assert.Error(t, NewRequest(Message{Content: "no role"}).Validate())
	assert.NoError(t, NewRequest(User("ok")).Validate())
}

func TestUsageAdd(t *testing.T) {
	u := &Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3}
	u.Add(&Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30})
	u.Add(nil)
	assert.Equal(t, Usage{PromptTokens: 11, CompletionTokens: 22, TotalTokens: 33}, *u)
}

func TestParseResult(t *testing.T) {
	ok := Parsed(&Result{Message: Assistant("x")})
	assert.True(t, ok.OK())
	assert.Equal(t, "x", ok.Result.Content())

	bad := Failed(strings.Repeat("z", 300), "no choices")
	assert.False(t, bad.OK())
	assert.Contains(t, bad.Failure.Error(), "no choices")
	assert.Contains(t, bad.Failure.Error(), "...")

	var nilResult *Result
	assert.Equal(t, "", nilResult.Content())
}

func TestResultClone(t *testing.T) {
	orig := &Result{Message: Assistant("x"), Usage: &Usage{TotalTokens: 5}}
	cp := orig.Clone()
	cp.Usage.TotalTokens = 9
	cp.Message.Content = "y"
	assert.Equal(t, 5, orig.Usage.TotalTokens)
	assert.Equal(t, "x", orig.Content())

	var nilResult *Result
	assert.Nil(t, nilResult.Clone())
}
