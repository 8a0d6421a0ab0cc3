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

// The file defines the Batch API data structures of the OpenAI Batch API.
package openai

// BatchStatus is the lifecycle status reported for a batch job.
type BatchStatus string

const (
	BatchStatusValidating BatchStatus = "validating"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusInProgress BatchStatus = "in_progress"
	BatchStatusFinalizing BatchStatus = "finalizing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusExpired    BatchStatus = "expired"
	BatchStatusCancelling BatchStatus = "cancelling"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

const (
	// EndpointChatCompletions is the only endpoint the engine submits batches for.
	EndpointChatCompletions = "/v1/chat/completions"

	// DefaultCompletionWindow is the completion window declared on job creation.
	DefaultCompletionWindow = "24h"

	// FilePurposeBatch is the purpose used when uploading batch input files.
	FilePurposeBatch = "batch"
)

// https://platform.openai.com/docs/api-reference/batch
type Batch struct {
	ID string `json:"id"`

	// The object type, which is always `batch`.
	Object string `json:"object"`

	// The OpenAI API endpoint used by the batch.
	Endpoint string `json:"endpoint"`

	Errors *BatchErrors `json:"errors,omitempty"`

	// The ID of the input file for the batch.
	InputFileID string `json:"input_file_id"`

	// The time frame within which the batch should be processed.
	CompletionWindow string `json:"completion_window"`

	// The current status of the batch.
	Status BatchStatus `json:"status"`

	// The ID of the file containing the outputs of successfully executed requests.
	OutputFileID string `json:"output_file_id,omitempty"`

	// The ID of the file containing the outputs of requests with errors.
	ErrorFileID string `json:"error_file_id,omitempty"`

	// The Unix timestamp (in seconds) for when the batch was created.
	CreatedAt int64 `json:"created_at"`

	// The Unix timestamp (in seconds) for when the batch started processing.
	InProgressAt int64 `json:"in_progress_at,omitempty"`

	// The Unix timestamp (in seconds) for when the batch will expire.
	ExpiresAt int64 `json:"expires_at,omitempty"`

	// The Unix timestamp (in seconds) for when the batch started finalizing.
	FinalizingAt int64 `json:"finalizing_at,omitempty"`

	// The Unix timestamp (in seconds) for when the batch was completed.
	CompletedAt int64 `json:"completed_at,omitempty"`

	// The Unix timestamp (in seconds) for when the batch failed.
	FailedAt int64 `json:"failed_at,omitempty"`

	// The Unix timestamp (in seconds) for when the batch expired.
	ExpiredAt int64 `json:"expired_at,omitempty"`

	// The Unix timestamp (in seconds) for when the batch started cancelling.
	CancellingAt int64 `json:"cancelling_at,omitempty"`

	// The Unix timestamp (in seconds) for when the batch was cancelled.
	CancelledAt int64 `json:"cancelled_at,omitempty"`

	RequestCounts BatchRequestCounts `json:"request_counts,omitempty"`

	// Set of 16 key-value pairs that can be attached to an object.
	Metadata map[string]string `json:"metadata,omitempty"`
}

type BatchErrorsData struct {

	// An error code identifying the error type.
	Code string `json:"code,omitempty"`

	// A human-readable message providing more details about the error.
	Message string `json:"message,omitempty"`

	// The name of the parameter that caused the error, if applicable.
	Param *string `json:"param,omitempty"`

	// The line number of the input file where the error occurred, if applicable.
	Line *int32 `json:"line,omitempty"`
}

type BatchErrors struct {

	// The object type, which is always `list`.
	Object string `json:"object,omitempty"`

	Data []BatchErrorsData `json:"data,omitempty"`
}

// BatchRequestCounts - The request counts for different statuses within the batch.
type BatchRequestCounts struct {

	// Total number of requests in the batch.
	Total int32 `json:"total"`

	// Number of requests that have been completed successfully.
	Completed int32 `json:"completed"`

	// Number of requests that have failed.
	Failed int32 `json:"failed"`
}

// FirstError returns the first reported batch error message, if any.
func (b *Batch) FirstError() string {
	if b == nil || b.Errors == nil || len(b.Errors.Data) == 0 {
		return ""
	}
	e := b.Errors.Data[0]
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// CreateBatchRequest is the body of POST /v1/batches.
type CreateBatchRequest struct {
	InputFileID      string            `json:"input_file_id"`
	Endpoint         string            `json:"endpoint"`
	CompletionWindow string            `json:"completion_window"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// File is the object returned by the Files API.
type File struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
}
