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

// This file defines categorized errors returned by HTTP clients.

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

type ErrorCategory string

const (
	ErrCategoryRateLimit  ErrorCategory = "RATE_LIMIT"   // retryable
	ErrCategoryServer     ErrorCategory = "SERVER_ERROR" // retryable
	ErrCategoryInvalidReq ErrorCategory = "INVALID_REQ"  // not retryable
	ErrCategoryAuth       ErrorCategory = "AUTH_ERROR"   // not retryable
	ErrCategoryNotFound   ErrorCategory = "NOT_FOUND"    // not retryable
	ErrCategoryCancelled  ErrorCategory = "CANCELLED"    // not retryable
	ErrCategoryUnknown    ErrorCategory = "UNKNOWN"      // not retryable
)

type ClientError struct {
	Category   ErrorCategory
	StatusCode int
	Message    string
	RawError   error
}

func (e *ClientError) Error() string {
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.RawError
}

// IsRetryable reports whether the same call may succeed later.
func (e *ClientError) IsRetryable() bool {
	return e.Category == ErrCategoryRateLimit || e.Category == ErrCategoryServer
}

// CategoryOf returns the category of err, or ErrCategoryUnknown.
func CategoryOf(err error) ErrorCategory {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ErrCategoryUnknown
}

// MapStatusCode maps HTTP status codes to error categories.
func MapStatusCode(statusCode int) ErrorCategory {
	switch statusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrCategoryInvalidReq
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrCategoryAuth
	case http.StatusNotFound:
		return ErrCategoryNotFound
	case http.StatusTooManyRequests:
		return ErrCategoryRateLimit
	default:
		if statusCode >= 500 {
			return ErrCategoryServer
		}
		return ErrCategoryUnknown
	}
}

// ErrorFromResponse parses an OpenAI-style error body.
func ErrorFromResponse(statusCode int, body []byte) *ClientError {
	var errorResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	message := string(body)
	if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
		message = errorResp.Error.Message
	}
	return &ClientError{
		Category:   MapStatusCode(statusCode),
		StatusCode: statusCode,
		Message:    fmt.Sprintf("HTTP %d: %s", statusCode, message),
		RawError:   fmt.Errorf("status code: %d, body: %s", statusCode, string(body)),
	}
}

// ErrorFromRequest classifies transport level failures.
func ErrorFromRequest(ctx context.Context, err error) *ClientError {
	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		return &ClientError{Category: ErrCategoryCancelled, Message: "request cancelled", RawError: err}
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &ClientError{Category: ErrCategoryServer, Message: "request timeout", RawError: err}
	default:
		return &ClientError{
			Category: ErrCategoryServer,
			Message:  fmt.Sprintf("failed to execute request: %v", err),
			RawError: err,
		}
	}
}
