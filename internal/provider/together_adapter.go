package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/genbot-io/genrelay/internal/together"
)

// TogetherAdapter adapts the Together client to the Adapter interface for
// one variant. Two adapters over the same client differ only in variant
// configuration.
type TogetherAdapter struct {
	client  together.Client
	variant Variant
	logger  *slog.Logger
}

// NewTogetherAdapter creates a new Together-backed adapter for the variant.
func NewTogetherAdapter(client together.Client, variant Variant, logger *slog.Logger) *TogetherAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TogetherAdapter{client: client, variant: variant, logger: logger}
}

// Variant returns the variant configuration this adapter submits with.
func (a *TogetherAdapter) Variant() Variant {
	return a.variant
}

// Submit sends a generation job and returns the provider's job ID.
// Failures are classified once here: credential and quota errors are
// Permanent, transport-level failures are Transient.
func (a *TogetherAdapter) Submit(ctx context.Context, prompt string) (string, error) {
	jobID, err := a.client.Submit(ctx, together.SubmitRequest{
		Model:  a.variant.Model,
		Prompt: prompt,
		Width:  a.variant.Width,
		Height: a.variant.Height,
	})
	if err != nil {
		return "", &SubmissionError{Kind: classifySubmitError(err), Err: err}
	}
	return jobID, nil
}

// Poll checks the status of a job and returns the normalized result.
// Unrecognized status vocabulary maps to Running so the loop keeps polling
// rather than spuriously failing.
func (a *TogetherAdapter) Poll(ctx context.Context, jobID string) (PollResult, error) {
	resp, err := a.client.Poll(ctx, jobID)
	if err != nil {
		return PollResult{}, fmt.Errorf("together adapter poll: %w", err)
	}

	switch normalizeStatus(resp.Status) {
	case StateCompleted:
		url := extractArtifactURL(resp)
		if url == "" {
			a.logger.Error("provider reported success without artifact locator",
				slog.String("job_id", jobID),
				slog.String("status", resp.Status),
				slog.String("raw_response", string(resp.Raw)),
			)
			return PollResult{State: StateFailed, Reason: ErrMalformedSuccess.Error()}, nil
		}
		return PollResult{State: StateCompleted, ArtifactURL: url}, nil
	case StateFailed:
		reason := resp.Error
		if reason == "" {
			reason = "generation failed"
		}
		return PollResult{State: StateFailed, Reason: reason}, nil
	default:
		return PollResult{State: StateRunning}, nil
	}
}

// Cancel requests best-effort cancellation of a job.
func (a *TogetherAdapter) Cancel(ctx context.Context, jobID string) (bool, error) {
	ok, err := a.client.Cancel(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("together adapter cancel: %w", err)
	}
	return ok, nil
}

// normalizeStatus maps the provider's status vocabulary onto the three
// normalized states. Providers disagree on spelling; anything unknown is
// treated as still running.
func normalizeStatus(status string) State {
	switch strings.ToLower(status) {
	case "succeeded", "completed", "complete", "done":
		return StateCompleted
	case "failed", "error", "cancelled", "canceled":
		return StateFailed
	default:
		return StateRunning
	}
}

// extractArtifactURL pulls the artifact locator out of the response,
// trying the known shapes in order: direct URL field, first URL-bearing
// list item, nested object.
func extractArtifactURL(resp together.StatusResponse) string {
	if resp.OutputURL != "" {
		return resp.OutputURL
	}
	for _, item := range resp.Output {
		if item.URL != "" {
			return item.URL
		}
	}
	if resp.Result != nil && resp.Result.URL != "" {
		return resp.Result.URL
	}
	return ""
}

// classifySubmitError decides the retry classification for a submit failure.
func classifySubmitError(err error) ErrorKind {
	if together.IsRetryable(err) {
		return Transient
	}
	// Auth, quota and malformed-request failures won't heal on retry.
	return Permanent
}

// Compile-time check that TogetherAdapter implements Adapter.
var _ Adapter = (*TogetherAdapter)(nil)
