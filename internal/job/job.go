// Package job provides the Job aggregate for one in-flight video generation
// request: its state machine, cancellation flag and repository interface.
// A job is mutated only by the lifecycle task that owns it; everything else
// reads clones.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/genbot-io/genrelay/internal/job/id"
)

// State represents the current state of a Job.
type State string

const (
	// StatePending indicates the job is admitted but not yet submitted.
	StatePending State = "PENDING"
	// StateSubmitted indicates the provider accepted the job.
	StateSubmitted State = "SUBMITTED"
	// StatePolling indicates the poll loop is running.
	StatePolling State = "POLLING"
	// StateCompleted indicates the job finished with an artifact.
	StateCompleted State = "COMPLETED"
	// StateFailed indicates the job failed, timed out or errored.
	StateFailed State = "FAILED"
	// StateCancelled indicates a cancellation request was observed.
	StateCancelled State = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
// Transitions are monotonic: terminal states have no outgoing edges and no
// state is ever revisited.
var validTransitions = map[State][]State{
	StatePending:   {StateSubmitted, StateFailed, StateCancelled},
	StateSubmitted: {StatePolling, StateFailed, StateCancelled},
	StatePolling:   {StateCompleted, StateFailed, StateCancelled},
	StateCompleted: {},
	StateFailed:    {},
	StateCancelled: {},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job represents one video generation request in flight.
type Job struct {
	mu sync.RWMutex

	// ID is the local handle for this job, assigned at admission.
	ID string
	// ProviderJobID is the opaque handle assigned by the provider once
	// submission succeeds; empty while pending.
	ProviderJobID string
	// OwnerKey identifies the requesting principal (e.g. a chat id).
	OwnerKey string
	// Provider is the variant name the job was submitted with.
	Provider string
	// Prompt is the input text, already truncated to the configured cap.
	Prompt string
	// State is the current lifecycle state.
	State State
	// ResultURL is the artifact locator; set only in COMPLETED.
	ResultURL string
	// ErrorInfo is the human-readable cause; set only in FAILED.
	ErrorInfo string
	// CreatedAt is when the job was admitted.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when the provider accepted the submission.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time

	// cancelRequested is a one-way flag observed cooperatively at poll
	// checkpoints. It never forces a transition by itself.
	cancelRequested bool
}

// New creates a new Job in PENDING state with a generated ID.
// The prompt is truncated to maxPromptLen when the cap is positive.
func New(ownerKey, prompt, providerName string, maxPromptLen int) *Job {
	if maxPromptLen > 0 && len(prompt) > maxPromptLen {
		prompt = prompt[:maxPromptLen]
	}
	now := time.Now()
	return &Job{
		ID:        id.Generate(),
		OwnerKey:  ownerKey,
		Provider:  providerName,
		Prompt:    prompt,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(state State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.State, state) {
		return ErrInvalidTransition
	}

	j.State = state
	j.UpdatedAt = time.Now()

	// Set timestamps based on state
	switch state {
	case StateSubmitted:
		j.StartedAt = j.UpdatedAt
	case StateCompleted, StateFailed, StateCancelled:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// MarkSubmitted records the provider's job ID and transitions to SUBMITTED.
func (j *Job) MarkSubmitted(providerJobID string) error {
	j.mu.Lock()
	j.ProviderJobID = providerJobID
	j.mu.Unlock()
	return j.TransitionTo(StateSubmitted)
}

// StartPolling transitions the job from SUBMITTED to POLLING.
func (j *Job) StartPolling() error {
	return j.TransitionTo(StatePolling)
}

// Complete transitions the job to COMPLETED with the artifact locator.
func (j *Job) Complete(resultURL string) error {
	j.mu.Lock()
	j.ResultURL = resultURL
	j.mu.Unlock()
	return j.TransitionTo(StateCompleted)
}

// Fail transitions the job to FAILED with a human-readable cause.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	j.ErrorInfo = errMsg
	j.mu.Unlock()
	return j.TransitionTo(StateFailed)
}

// Cancel transitions the job to CANCELLED.
func (j *Job) Cancel() error {
	return j.TransitionTo(StateCancelled)
}

// RequestCancel sets the one-way cancellation flag. Setting it again is a
// no-op. The flag is observed at the next poll checkpoint; it does not
// interrupt an in-flight provider call.
func (j *Job) RequestCancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancelRequested = true
}

// CancelRequested reports whether cancellation has been requested.
func (j *Job) CancelRequested() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.cancelRequested
}

// GetState returns the current job state (thread-safe).
func (j *Job) GetState() State {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.State
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.State == StateCompleted ||
		j.State == StateFailed ||
		j.State == StateCancelled
}

// Elapsed returns how long the job has been in flight.
func (j *Job) Elapsed(now time.Time) time.Duration {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return now.Sub(j.CreatedAt)
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:              j.ID,
		ProviderJobID:   j.ProviderJobID,
		OwnerKey:        j.OwnerKey,
		Provider:        j.Provider,
		Prompt:          j.Prompt,
		State:           j.State,
		ResultURL:       j.ResultURL,
		ErrorInfo:       j.ErrorInfo,
		CreatedAt:       j.CreatedAt,
		UpdatedAt:       j.UpdatedAt,
		StartedAt:       j.StartedAt,
		CompletedAt:     j.CompletedAt,
		cancelRequested: j.cancelRequested,
	}
}
