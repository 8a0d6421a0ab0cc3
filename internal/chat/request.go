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

// Package chat defines the normalized chat request and result types shared by the
// inline client, the batch engine and the request cache.
package chat

import (
	"encoding/json"
	"fmt"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single chat message.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

type ToolCall struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Params are per-request decoding overrides. Nil fields fall back to the model configuration.
type Params struct {
	Temperature      *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty"`
	Seed             *int     `json:"seed,omitempty" yaml:"seed,omitempty"`
	N                *int     `json:"n,omitempty" yaml:"n,omitempty"`
}

// Request is an ordered message sequence plus invocation parameters.
// Requests are treated as immutable once handed to the engine.
type Request struct {
	Messages []Message `json:"messages"`
	Stop     []string  `json:"stop,omitempty"`
	Params   Params    `json:"params,omitempty"`
}

// NewRequest builds a request from messages.
func NewRequest(messages ...Message) Request {
	return Request{Messages: messages}
}

// Validate checks that the request can be sent to a model.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("request has no messages")
	}
	for i, m := range r.Messages {
		if m.Role == "" {
			return fmt.Errorf("message %d has an empty role", i)
		}
	}
	return nil
}

// Serialize returns the deterministic serialization of the message sequence.
// It is the prompt half of a cache key.
func (r Request) Serialize() (string, error) {
	data, err := json.Marshal(r.Messages)
	if err != nil {
		return "", fmt.Errorf("failed to serialize messages: %w", err)
	}
	return string(data), nil
}

func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}
