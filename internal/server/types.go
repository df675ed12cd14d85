// Package server provides the HTTP surface of the relay: handlers,
// middleware, routes and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/genbot-io/genrelay/internal/job"
)

// CreateJobRequest is the HTTP request body for starting a generation job.
type CreateJobRequest struct {
	// OwnerKey identifies the requesting principal, e.g. a chat id.
	OwnerKey string `json:"owner_key" validate:"required"`
	// Prompt is the generation prompt. Overlong prompts are truncated, not
	// rejected.
	Prompt string `json:"prompt" validate:"required"`
	// Provider selects the generation variant.
	Provider string `json:"provider" validate:"required,oneof=minimax kling"`
}

// CreateJobResponse is the HTTP response after a job is accepted.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// State is the initial job state.
	State string `json:"state"`
	// Provider echoes the variant the job will run on.
	Provider string `json:"provider"`
}

// JobResponse is the HTTP response for job status reads.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// OwnerKey identifies the requesting principal.
	OwnerKey string `json:"owner_key"`
	// Provider is the variant the job runs on.
	Provider string `json:"provider"`
	// State is the current lifecycle state.
	State string `json:"state"`
	// ResultURL is the artifact locator, present once completed.
	ResultURL string `json:"result_url,omitempty"`
	// Error is the failure cause, present once failed.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the job was admitted.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the job reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// newJobResponse maps a job snapshot to its DTO.
func newJobResponse(j *job.Job) JobResponse {
	resp := JobResponse{
		ID:        j.ID,
		OwnerKey:  j.OwnerKey,
		Provider:  j.Provider,
		State:     string(j.State),
		ResultURL: j.ResultURL,
		Error:     j.ErrorInfo,
		CreatedAt: j.CreatedAt,
	}
	if !j.CompletedAt.IsZero() {
		t := j.CompletedAt
		resp.CompletedAt = &t
	}
	return resp
}

// JobListResponse is the HTTP response for listing an owner's jobs.
type JobListResponse struct {
	// Jobs holds the owner's jobs, newest state first is not guaranteed.
	Jobs []JobResponse `json:"jobs"`
}

// CancelJobResponse is the HTTP response after a cancellation request.
type CancelJobResponse struct {
	// ID is the job the cancellation was requested for.
	ID string `json:"id"`
	// State is the job state at the time of the request. Cancellation is
	// cooperative, so this is usually still a non-terminal state.
	State string `json:"state"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
