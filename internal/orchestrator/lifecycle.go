package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/genbot-io/genrelay/internal/job"
	"github.com/genbot-io/genrelay/internal/notify"
	"github.com/genbot-io/genrelay/internal/progress"
	"github.com/genbot-io/genrelay/internal/provider"
)

// run is the lifecycle task for a single job. It owns the job aggregate
// exclusively from here on: it acquires admission, submits, polls to a
// terminal state and delivers exactly one final notification. The admission
// ticket is released on every exit path, including panics.
func (o *Orchestrator) run(ctx context.Context, j *job.Job, entry providerEntry) {
	defer o.evict(j.ID)

	ticket, err := o.admission.Acquire(ctx, j.OwnerKey)
	if err != nil {
		// Only possible when the detached context is cancelled at shutdown.
		o.finish(ctx, j, notify.MessageRef{}, func() error { return j.Fail("shutdown before admission") })
		return
	}
	defer ticket.Release()

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("lifecycle panic",
				slog.String("job_id", j.ID),
				slog.Any("panic", r),
			)
			if !j.IsTerminal() {
				o.finish(ctx, j, notify.MessageRef{}, func() error { return j.Fail("internal error") })
			}
		}
	}()

	o.drive(ctx, j, entry)
}

// drive walks the job through submission and polling. All waiting goes
// through the injected clock.
func (o *Orchestrator) drive(ctx context.Context, j *job.Job, entry providerEntry) {
	started := o.clock.Now()

	ref := o.sendInitialProgress(ctx, j, entry.reporter)
	lastText := ""
	if ref != (notify.MessageRef{}) {
		lastText = entry.reporter.Render(j.Prompt, 0)
	}

	// Cancellation requested while the job was queued in admission.
	if j.CancelRequested() {
		o.finish(ctx, j, ref, j.Cancel)
		return
	}

	providerJobID, err := o.submit(ctx, j, entry.adapter)
	if err != nil {
		o.logger.Error("submission failed",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		o.finish(ctx, j, ref, func() error { return j.Fail("submission failed: " + err.Error()) })
		return
	}

	if err := j.MarkSubmitted(providerJobID); err != nil {
		o.finish(ctx, j, ref, func() error { return j.Fail("internal error") })
		return
	}
	o.persist(ctx, j)

	if err := j.StartPolling(); err != nil {
		o.finish(ctx, j, ref, func() error { return j.Fail("internal error") })
		return
	}
	o.persist(ctx, j)

	transientErrs := 0
	for {
		// Checkpoint: cancellation wins over everything else and is observed
		// before any network call.
		if j.CancelRequested() {
			o.cancelUpstream(ctx, entry.adapter, j)
			o.finish(ctx, j, ref, j.Cancel)
			return
		}

		if entry.policy.Expired(o.clock.Now().Sub(started)) {
			o.finish(ctx, j, ref, func() error { return j.Fail("timeout") })
			return
		}

		res, err := entry.adapter.Poll(ctx, j.ProviderJobID)
		switch {
		case err != nil:
			transientErrs++
			o.logger.Warn("poll error",
				slog.String("job_id", j.ID),
				slog.Int("consecutive", transientErrs),
				slog.String("error", err.Error()),
			)
			if transientErrs > entry.policy.TransientCeiling {
				o.finish(ctx, j, ref, func() error { return j.Fail("provider unreachable: " + err.Error()) })
				return
			}
		case res.State == provider.StateCompleted:
			locator := o.archiveArtifact(ctx, j, res.ArtifactURL)
			o.finish(ctx, j, ref, func() error { return j.Complete(locator) })
			return
		case res.State == provider.StateFailed:
			o.finish(ctx, j, ref, func() error { return j.Fail(res.Reason) })
			return
		default:
			transientErrs = 0
		}

		lastText = o.editProgress(ctx, j, entry.reporter, ref, lastText, o.clock.Now().Sub(started))

		select {
		case <-ctx.Done():
			o.finish(ctx, j, ref, j.Cancel)
			return
		case <-o.clock.After(entry.policy.Interval):
		}
	}
}

// submit sends the job to the provider, retrying exactly once when the
// failure is classified transient. Permanent failures surface immediately.
func (o *Orchestrator) submit(ctx context.Context, j *job.Job, adapter provider.Adapter) (string, error) {
	providerJobID, err := adapter.Submit(ctx, j.Prompt)
	if err == nil || provider.IsPermanent(err) {
		return providerJobID, err
	}

	o.logger.Warn("transient submission failure, retrying once",
		slog.String("job_id", j.ID),
		slog.String("error", err.Error()),
	)

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-o.clock.After(o.submitRetryDelay):
	}

	return adapter.Submit(ctx, j.Prompt)
}

// finish applies the terminal transition, persists the snapshot and delivers
// exactly one final notification.
func (o *Orchestrator) finish(ctx context.Context, j *job.Job, ref notify.MessageRef, transition func() error) {
	if err := transition(); err != nil {
		o.logger.Error("terminal transition rejected",
			slog.String("job_id", j.ID),
			slog.String("state", string(j.GetState())),
			slog.String("error", err.Error()),
		)
	}
	o.persist(ctx, j)

	snapshot := j.Clone()
	o.logger.Info("job finished",
		slog.String("job_id", snapshot.ID),
		slog.String("state", string(snapshot.State)),
		slog.String("result_url", snapshot.ResultURL),
		slog.String("error_info", snapshot.ErrorInfo),
	)

	switch snapshot.State {
	case job.StateCompleted:
		caption := "Done: " + snapshot.Prompt
		if err := o.sink.SendArtifact(ctx, snapshot.OwnerKey, snapshot.ResultURL, caption); err != nil {
			o.logger.Warn("artifact delivery failed",
				slog.String("job_id", snapshot.ID),
				slog.String("error", err.Error()),
			)
		}
	case job.StateFailed:
		o.deliverFinalText(ctx, snapshot, ref, "Generation failed: "+snapshot.ErrorInfo)
	case job.StateCancelled:
		o.deliverFinalText(ctx, snapshot, ref, "Generation cancelled")
	}
}

// deliverFinalText edits the progress message in place when one exists and
// falls back to a fresh message otherwise. Sink failures are logged, never
// escalated: notification delivery does not affect job state.
func (o *Orchestrator) deliverFinalText(ctx context.Context, snapshot *job.Job, ref notify.MessageRef, text string) {
	var err error
	if ref != (notify.MessageRef{}) {
		err = o.sink.Edit(ctx, ref, text)
		if err == nil || errors.Is(err, notify.ErrNotModified) {
			return
		}
	} else {
		_, err = o.sink.Send(ctx, snapshot.OwnerKey, text)
		if err == nil {
			return
		}
	}
	o.logger.Warn("final notification failed",
		slog.String("job_id", snapshot.ID),
		slog.String("error", err.Error()),
	)
}

// sendInitialProgress posts the first progress message. A zero MessageRef
// means the sink refused it; progress edits are then skipped for this job.
func (o *Orchestrator) sendInitialProgress(ctx context.Context, j *job.Job, reporter *progress.Reporter) notify.MessageRef {
	ref, err := o.sink.Send(ctx, j.OwnerKey, reporter.Render(j.Prompt, 0))
	if err != nil {
		o.logger.Warn("initial progress message failed",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return notify.MessageRef{}
	}
	return ref
}

// editProgress updates the progress message when the rendered text changed.
// Returns the text now shown, for the next comparison.
func (o *Orchestrator) editProgress(ctx context.Context, j *job.Job, reporter *progress.Reporter, ref notify.MessageRef, lastText string, elapsed time.Duration) string {
	if ref == (notify.MessageRef{}) {
		return lastText
	}

	next, changed := progress.IdempotentUpdate(lastText, reporter.Render(j.Prompt, elapsed))
	if !changed {
		return lastText
	}

	if err := o.sink.Edit(ctx, ref, next); err != nil && !errors.Is(err, notify.ErrNotModified) {
		o.logger.Debug("progress edit failed",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
	return next
}

// cancelUpstream asks the provider to stop work on a submitted job. Outcome
// is logged only; the local transition to CANCELLED does not depend on it.
func (o *Orchestrator) cancelUpstream(ctx context.Context, adapter provider.Adapter, j *job.Job) {
	snapshot := j.Clone()
	if snapshot.ProviderJobID == "" {
		return
	}
	acked, err := adapter.Cancel(ctx, snapshot.ProviderJobID)
	if err != nil {
		o.logger.Warn("upstream cancel failed",
			slog.String("job_id", snapshot.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	o.logger.Info("upstream cancel requested",
		slog.String("job_id", snapshot.ID),
		slog.Bool("acknowledged", acked),
	)
}

// archiveArtifact downloads and archives the artifact when archiving is
// configured, returning the archived locator. On any failure the provider's
// URL is kept so completion is never blocked by archiving.
func (o *Orchestrator) archiveArtifact(ctx context.Context, j *job.Job, artifactURL string) string {
	if o.archiver == nil || o.fetcher == nil {
		return artifactURL
	}

	body, err := o.fetcher.Download(ctx, artifactURL)
	if err != nil {
		o.logger.Warn("artifact download failed, keeping provider URL",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return artifactURL
	}
	defer func() { _ = body.Close() }()

	stored, err := o.archiver.Archive(ctx, j.ID+".mp4", body)
	if err != nil {
		o.logger.Warn("artifact archive failed, keeping provider URL",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return artifactURL
	}
	return stored
}

// persist saves the current snapshot. Persistence failures are logged and
// swallowed: the in-memory aggregate stays authoritative for the lifecycle.
func (o *Orchestrator) persist(ctx context.Context, j *job.Job) {
	if err := o.repo.Save(ctx, j); err != nil {
		o.logger.Warn("failed to persist job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
}
