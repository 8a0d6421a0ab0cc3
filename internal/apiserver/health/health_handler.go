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

// The file provides HTTP handlers for health check endpoints.
// The server is healthy when every registered dependency check passes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/llm-d-incubation/llm-batch-engine/internal/apiserver/common"
	"github.com/llm-d-incubation/llm-batch-engine/internal/util/logging"
)

const (
	HealthPath = "/health"

	checkTimeout = 2 * time.Second
)

// Checker reports whether a dependency is usable.
type Checker interface {
	Check(ctx context.Context) error
}

type HealthApiHandler struct {
	checkers []Checker
}

func NewHealthApiHandler(checkers ...Checker) *HealthApiHandler {
	return &HealthApiHandler{checkers: checkers}
}

func (c *HealthApiHandler) GetRoutes() []common.Route {
	return []common.Route{
		{
			Method:      http.MethodGet,
			Pattern:     HealthPath,
			HandlerFunc: c.HealthHandler,
		},
		{
			Method:      http.MethodHead,
			Pattern:     HealthPath,
			HandlerFunc: c.HealthHandler,
		},
	}
}

func (c *HealthApiHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()
	for _, checker := range c.checkers {
		if err := checker.Check(ctx); err != nil {
			logging.GetRequestLogger(r).Error(err, "health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("UNAVAILABLE"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
