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

import "fmt"

// Usage is the token accounting of a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other *Usage) {
	if other == nil {
		return
	}
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// Result is a parsed completion. Results served from the cache and results computed by a
// batch job are indistinguishable.
type Result struct {
	ID                string  `json:"id,omitempty"`
	Model             string  `json:"model,omitempty"`
	SystemFingerprint string  `json:"system_fingerprint,omitempty"`
	Message           Message `json:"message"`
	ReasoningContent  string  `json:"reasoning_content,omitempty"`
	FinishReason      string  `json:"finish_reason,omitempty"`
	Usage             *Usage  `json:"usage,omitempty"`
}

// Content returns the assistant message text.
func (r *Result) Content() string {
	if r == nil {
		return ""
	}
	return r.Message.Content
}

// Clone returns a deep copy of r.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	out := *r
	if r.Usage != nil {
		u := *r.Usage
		out.Usage = &u
	}
	if r.Message.ToolCalls != nil {
		out.Message.ToolCalls = append([]ToolCall(nil), r.Message.ToolCalls...)
	}
	return &out
}

// ParsingFailure describes a response body that could not be turned into a Result.
type ParsingFailure struct {
	Text   string
	Reason string
}

func (f *ParsingFailure) Error() string {
	text := f.Text
	if len(text) > 256 {
		text = text[:256] + "..."
	}
	return fmt.Sprintf("%s: %q", f.Reason, text)
}

// ParseResult holds either a Result or a ParsingFailure, never both.
type ParseResult struct {
	Result  *Result
	Failure *ParsingFailure
}

func Parsed(r *Result) ParseResult {
	return ParseResult{Result: r}
}

func Failed(text, reason string) ParseResult {
	return ParseResult{Failure: &ParsingFailure{Text: text, Reason: reason}}
}

func (p ParseResult) OK() bool {
	return p.Failure == nil && p.Result != nil
}
