// Package provider defines the common adapter interface over heterogeneous
// video generation backends. Concrete backends differ only in their
// submission parameters and timing profile, expressed as a Variant.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// State is the normalized poll state across providers.
type State string

// The three normalized poll states.
const (
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateFailed    State = "FAILED"
)

// PollResult is the normalized outcome of one status poll.
type PollResult struct {
	State State
	// ArtifactURL is set only when State is StateCompleted.
	ArtifactURL string
	// Reason is set only when State is StateFailed.
	Reason string
}

// ErrorKind classifies a submission failure.
type ErrorKind int

const (
	// Transient failures may be retried by the caller.
	Transient ErrorKind = iota
	// Permanent failures must not be retried.
	Permanent
)

// String returns the human-readable name of the error kind.
func (k ErrorKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// SubmissionError is a submit failure carrying its retry classification.
// The classification is decided once, at the adapter boundary.
type SubmissionError struct {
	Kind ErrorKind
	Err  error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission failed (%s): %v", e.Kind, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err is a SubmissionError classified Permanent.
func IsPermanent(err error) bool {
	var se *SubmissionError
	return errors.As(err, &se) && se.Kind == Permanent
}

// ErrMalformedSuccess is returned when a provider reports success without a
// usable artifact locator.
var ErrMalformedSuccess = errors.New("provider: completed without artifact locator")

// Variant describes one concrete backend configuration. Backends share the
// same submit/poll/cancel code path and differ only in these values.
type Variant struct {
	// Name is the user-facing variant identifier, e.g. "minimax".
	Name string
	// Model is the provider model identifier.
	Model string
	// Width and Height are the submission dimensions.
	Width  int
	Height int
	// PollInterval is the delay between status polls.
	PollInterval time.Duration
	// WaitBudget is the total time allowed before the job is failed as timed out.
	WaitBudget time.Duration
	// AvgDuration is the fixed estimate used for remaining-time reporting.
	// It is a constant per variant, not a measurement.
	AvgDuration time.Duration
}

// Known variants, matching the models the relay fronts.
var (
	// VariantMinimax is the low-cost, fast model.
	VariantMinimax = Variant{
		Name:         "minimax",
		Model:        "minimax/minimax-01-director",
		Width:        1280,
		Height:       720,
		PollInterval: 5 * time.Second,
		WaitBudget:   5 * time.Minute,
		AvgDuration:  3 * time.Minute,
	}
	// VariantKling is the higher-fidelity, slower model.
	VariantKling = Variant{
		Name:         "kling",
		Model:        "kwaivgI/kling-1.6-standard",
		Width:        1280,
		Height:       720,
		PollInterval: 5 * time.Second,
		WaitBudget:   8 * time.Minute,
		AvgDuration:  5 * time.Minute,
	}
)

// Variants lists all known variants keyed by name.
func Variants() map[string]Variant {
	return map[string]Variant{
		VariantMinimax.Name: VariantMinimax,
		VariantKling.Name:   VariantKling,
	}
}

// Adapter is the uniform capability set over a generation backend.
type Adapter interface {
	// Submit sends a generation job and returns the provider's job ID.
	// Failures are returned as *SubmissionError with a Transient or
	// Permanent classification.
	Submit(ctx context.Context, prompt string) (jobID string, err error)

	// Poll checks the status of a job and returns the normalized result.
	Poll(ctx context.Context, jobID string) (PollResult, error)

	// Cancel requests best-effort cancellation of a job. The returned bool
	// reports whether the provider acknowledged it.
	Cancel(ctx context.Context, jobID string) (bool, error)
}
