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

package cache

import (
	"context"

	"github.com/llm-d-incubation/llm-batch-engine/internal/chat"
)

// NoopCache never finds anything and drops every write.
type NoopCache struct{}

func NewNoopCache() *NoopCache {
	return &NoopCache{}
}

func (NoopCache) Lookup(context.Context, Key) (*chat.Result, bool, error) {
	return nil, false, nil
}

func (NoopCache) Update(context.Context, Key, *chat.Result) error {
	return nil
}

func (NoopCache) Close() error {
	return nil
}
