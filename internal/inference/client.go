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

// Package inference builds chat completion payloads for a configured model and parses
// their responses. The same payload and parsing code serves inline requests and batch jobs.
package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-resty/resty/v2"
	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
	"github.com/llm-d-incubation/llm-batch-engine/internal/shared/openai"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/logging"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/rest"
	"k8s.io/klog/v2"
)

// Config describes the model and, for inline requests, the inference endpoint.
type Config struct {
	Model string   `yaml:"model" json:"model"`
	Stop  []string `yaml:"stop" json:"stop,omitempty"`
	// Default decoding parameters. Request parameters take precedence.
	Params chat.Params `yaml:"params" json:"params"`
	// Additional model-specific body fields. They never override the fields above.
	ExtraBody   map[string]any `yaml:"extra_body" json:"extra_body,omitempty"`
	rest.Config `yaml:",inline" json:",inline"`
}

// ChatClient is safe for concurrent use.
type ChatClient struct {
	config Config
	client *resty.Client
}

// NewChatClient creates a client. The HTTP client is only created when a base URL is
// configured; without it the client can still build payloads and parse responses.
func NewChatClient(config Config) (*ChatClient, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model name cannot be empty")
	}
	c := &ChatClient{config: config}
	if config.BaseURL != "" {
		config.Config.RetryNonIdempotent = true
		client, err := rest.New(config.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to create inference client: %w", err)
		}
		c.client = client.SetHeader("Content-Type", "application/json")
	}
	return c, nil
}

func (c *ChatClient) ModelName() string {
	return c.config.Model
}

// chatCompletionRequest is the body of POST /v1/chat/completions. Field order is fixed so
// the encoding is deterministic.
type chatCompletionRequest struct {
	Model            string                         `json:"model"`
	Messages         []openai.ChatCompletionMessage `json:"messages"`
	Stop             []string                       `json:"stop,omitempty"`
	Temperature      *float64                       `json:"temperature,omitempty"`
	TopP             *float64                       `json:"top_p,omitempty"`
	MaxTokens        *int                           `json:"max_tokens,omitempty"`
	PresencePenalty  *float64                       `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64                       `json:"frequency_penalty,omitempty"`
	Seed             *int                           `json:"seed,omitempty"`
	N                *int                           `json:"n,omitempty"`
}

// signature is the model identity used as the second half of a cache key.
type signature struct {
	Model  string         `json:"model"`
	Params chat.Params    `json:"params"`
	Stop   []string       `json:"stop,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

func (c *ChatClient) mergedParams(req chat.Request) chat.Params {
	p := c.config.Params
	o := req.Params
	if o.Temperature != nil {
		p.Temperature = o.Temperature
	}
	if o.TopP != nil {
		p.TopP = o.TopP
	}
	if o.MaxTokens != nil {
		p.MaxTokens = o.MaxTokens
	}
	if o.PresencePenalty != nil {
		p.PresencePenalty = o.PresencePenalty
	}
	if o.FrequencyPenalty != nil {
		p.FrequencyPenalty = o.FrequencyPenalty
	}
	if o.Seed != nil {
		p.Seed = o.Seed
	}
	if o.N != nil {
		p.N = o.N
	}
	return p
}

func (c *ChatClient) stop(req chat.Request) []string {
	if len(req.Stop) > 0 {
		return req.Stop
	}
	return c.config.Stop
}

// BuildPayload returns the request body for req. It is a pure function of the request
// and the model configuration.
func (c *ChatClient) BuildPayload(req chat.Request) (json.RawMessage, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	p := c.mergedParams(req)
	body := chatCompletionRequest{
		Model:            c.config.Model,
		Messages:         toWireMessages(req.Messages),
		Stop:             c.stop(req),
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		MaxTokens:        p.MaxTokens,
		PresencePenalty:  p.PresencePenalty,
		FrequencyPenalty: p.FrequencyPenalty,
		Seed:             p.Seed,
		N:                p.N,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	if len(c.config.ExtraBody) == 0 {
		return data, nil
	}
	merged := make(map[string]any, len(c.config.ExtraBody)+4)
	for k, v := range c.config.ExtraBody {
		if k == "stream" || k == "stream_options" {
			continue
		}
		merged[k] = v
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	for k, v := range fields {
		merged[k] = v
	}
	data, err = json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// Signature identifies the model configuration req would be executed with.
func (c *ChatClient) Signature(req chat.Request) string {
	sig := signature{
		Model:  c.config.Model,
		Params: c.mergedParams(req),
		Stop:   c.stop(req),
		Extra:  c.config.ExtraBody,
	}
	data, err := json.Marshal(sig)
	if err != nil {
		// Extra body values that cannot be encoded would also fail BuildPayload.
		keys := make([]string, 0, len(c.config.ExtraBody))
		for k := range c.config.ExtraBody {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Sprintf("%s|%v", c.config.Model, keys)
	}
	return string(data)
}

// ParseResponse turns a chat completion body into a Result.
func (c *ChatClient) ParseResponse(body []byte) chat.ParseResult {
	text := string(body)
	var resp openai.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return chat.Failed(text, fmt.Sprintf("invalid completion body: %v", err))
	}
	if len(resp.Choices) == 0 {
		return chat.Failed(text, "completion has no choices")
	}
	choice := resp.Choices[0]
	msg := fromWireMessage(choice.Message)
	if msg.Role == "" {
		msg.Role = chat.RoleAssistant
	}
	result := &chat.Result{
		ID:                resp.ID,
		Model:             resp.Model,
		SystemFingerprint: resp.SystemFingerprint,
		Message:           msg,
		ReasoningContent:  choice.Message.ReasoningContent,
		FinishReason:      choice.FinishReason,
	}
	if resp.Usage != nil {
		result.Usage = &chat.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return chat.Parsed(result)
}

// RequestFromPayload rebuilds the request a payload was built from. Parameters equal to
// the model defaults come back as explicit overrides, which yields the same signature.
func (c *ChatClient) RequestFromPayload(body []byte) (chat.Request, error) {
	var payload struct {
		chatCompletionRequest
		Stop json.RawMessage `json:"stop,omitempty"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return chat.Request{}, fmt.Errorf("invalid payload: %w", err)
	}
	req := chat.Request{
		Messages: fromWireMessages(payload.Messages),
		Params: chat.Params{
			Temperature:      payload.Temperature,
			TopP:             payload.TopP,
			MaxTokens:        payload.MaxTokens,
			PresencePenalty:  payload.PresencePenalty,
			FrequencyPenalty: payload.FrequencyPenalty,
			Seed:             payload.Seed,
			N:                payload.N,
		},
	}
	if len(payload.Stop) > 0 && string(payload.Stop) != "null" {
		var stops []string
		if err := json.Unmarshal(payload.Stop, &stops); err != nil {
			var single string
			if err := json.Unmarshal(payload.Stop, &single); err != nil {
				return chat.Request{}, fmt.Errorf("invalid stop field: %w", err)
			}
			stops = []string{single}
		}
		req.Stop = stops
	}
	if err := req.Validate(); err != nil {
		return chat.Request{}, err
	}
	return req, nil
}

// Generate executes req as a single inline request.
func (c *ChatClient) Generate(ctx context.Context, req chat.Request) (*chat.Result, error) {
	if c.client == nil {
		return nil, &rest.ClientError{Category: rest.ErrCategoryInvalidReq, Message: "inference endpoint is not configured"}
	}
	payload, err := c.BuildPayload(req)
	if err != nil {
		return nil, &rest.ClientError{Category: rest.ErrCategoryInvalidReq, Message: err.Error(), RawError: err}
	}
	logger := klog.FromContext(ctx)
	logger.V(logging.DEBUG).Info("Sending inference request", "model", c.config.Model, "endpoint", openai.EndpointChatCompletions)

	resp, err := c.client.R().SetContext(ctx).SetBody([]byte(payload)).Post(openai.EndpointChatCompletions)
	if err != nil {
		return nil, rest.ErrorFromRequest(ctx, err)
	}
	if !resp.IsSuccess() {
		return nil, rest.ErrorFromResponse(resp.StatusCode(), resp.Body())
	}
	if resp.Request.Attempt > 1 {
		logger.V(logging.INFO).Info("Inference request succeeded after retries", "retries", resp.Request.Attempt-1)
	}
	parsed := c.ParseResponse(resp.Body())
	if !parsed.OK() {
		return nil, parsed.Failure
	}
	return parsed.Result, nil
}

func toWireMessages(msgs []chat.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		out[i] = openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			out[i].ToolCalls = append(out[i].ToolCalls, openai.ToolCall{
				ID:       tc.ID,
				Type:     tc.Type,
				Function: openai.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
	}
	return out
}

func fromWireMessage(m openai.ChatCompletionMessage) chat.Message {
	out := chat.Message{
		Role:       chat.Role(m.Role),
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	for _, tc := range m.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, chat.ToolCall{
			ID:        tc.ID,
			Type:      tc.Type,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func fromWireMessages(msgs []openai.ChatCompletionMessage) []chat.Message {
	out := make([]chat.Message, len(msgs))
	for i, m := range msgs {
		out[i] = fromWireMessage(m)
	}
	return out
}
