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
	"encoding/json"

	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
)

// ChatModel is the model the engine executes requests against. Payloads built here are
// identical to the ones the model sends inline, and responses are parsed the same way.
type ChatModel interface {
	ModelName() string
	BuildPayload(req chat.Request) (json.RawMessage, error)
	Signature(req chat.Request) string
	ParseResponse(body []byte) chat.ParseResult
	RequestFromPayload(body []byte) (chat.Request, error)
}
