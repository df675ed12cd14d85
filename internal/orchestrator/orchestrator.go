// Package orchestrator drives video generation jobs from admission to a
// terminal state: it bounds concurrency through the admission controller,
// submits and polls through a provider adapter, reports throttled progress
// through the notification sink and supports cooperative cancellation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/genbot-io/genrelay/internal/admission"
	"github.com/genbot-io/genrelay/internal/backoff"
	"github.com/genbot-io/genrelay/internal/job"
	"github.com/genbot-io/genrelay/internal/notify"
	"github.com/genbot-io/genrelay/internal/progress"
	"github.com/genbot-io/genrelay/internal/provider"
	"github.com/genbot-io/genrelay/internal/storage"
)

// Static errors for orchestrator operations.
var (
	// ErrUnknownProvider is returned when a start request names a variant
	// the orchestrator was not configured with.
	ErrUnknownProvider = errors.New("orchestrator: unknown provider")
	// ErrJobNotActive is returned when cancellation is requested for a job
	// that already reached a terminal state.
	ErrJobNotActive = errors.New("orchestrator: job is not active")
)

// defaultSubmitRetryDelay is the fixed pause before the single retry of a
// transient submission failure.
const defaultSubmitRetryDelay = 2 * time.Second

// ArtifactFetcher downloads a completed artifact for archiving.
type ArtifactFetcher interface {
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}

// providerEntry bundles everything needed to run jobs on one variant.
type providerEntry struct {
	adapter  provider.Adapter
	policy   backoff.Policy
	reporter *progress.Reporter
}

// Orchestrator starts, tracks and cancels generation jobs. Construct with
// New; it holds no ambient global state.
type Orchestrator struct {
	admission *admission.Controller
	repo      job.Repository
	sink      notify.Sink
	logger    *slog.Logger

	clock            backoff.Clock
	archiver         storage.Archiver
	fetcher          ArtifactFetcher
	promptMaxLen     int
	submitRetryDelay time.Duration

	providers map[string]providerEntry

	// active tracks live jobs so cancellation can reach the aggregate the
	// lifecycle task owns. Entries are evicted once terminal state has been
	// reported, so the map is bounded by in-flight work.
	mu     sync.Mutex
	active map[string]*job.Job
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithProvider registers a variant the orchestrator can run jobs on.
func WithProvider(name string, adapter provider.Adapter, policy backoff.Policy, reporter *progress.Reporter) Option {
	return func(o *Orchestrator) {
		o.providers[name] = providerEntry{adapter: adapter, policy: policy, reporter: reporter}
	}
}

// WithArchiver enables artifact archiving on completion. The fetcher
// downloads the provider's artifact; the archiver stores it.
func WithArchiver(archiver storage.Archiver, fetcher ArtifactFetcher) Option {
	return func(o *Orchestrator) {
		o.archiver = archiver
		o.fetcher = fetcher
	}
}

// WithClock injects a clock, used by tests to drive the poll loop without
// real delays.
func WithClock(clock backoff.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// WithPromptMaxLen caps prompt length; longer prompts are truncated silently.
func WithPromptMaxLen(n int) Option {
	return func(o *Orchestrator) {
		o.promptMaxLen = n
	}
}

// WithSubmitRetryDelay overrides the pause before the single transient
// submit retry.
func WithSubmitRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.submitRetryDelay = d
	}
}

// New creates an Orchestrator.
func New(adm *admission.Controller, repo job.Repository, sink notify.Sink, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		admission:        adm,
		repo:             repo,
		sink:             sink,
		logger:           logger,
		clock:            backoff.NewClock(),
		submitRetryDelay: defaultSubmitRetryDelay,
		providers:        make(map[string]providerEntry),
		active:           make(map[string]*job.Job),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start admits a new job and returns its handle immediately. The lifecycle
// runs on its own goroutine with a detached context: admission may queue the
// job behind the owner's previous one or the global ceiling.
func (o *Orchestrator) Start(ctx context.Context, ownerKey, prompt, providerName string) (*job.Job, error) {
	entry, ok := o.providers[providerName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
	}

	j := job.New(ownerKey, prompt, providerName, o.promptMaxLen)
	if err := o.repo.Save(ctx, j); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}

	o.mu.Lock()
	o.active[j.ID] = j
	o.mu.Unlock()

	o.logger.Info("job accepted",
		slog.String("job_id", j.ID),
		slog.String("owner_key", ownerKey),
		slog.String("provider", providerName),
	)

	// Detach from the request context so the job survives the HTTP request.
	go o.run(context.WithoutCancel(ctx), j, entry)

	return j.Clone(), nil
}

// Cancel sets the one-way cancellation flag on an active job. The flag is
// observed at the next poll checkpoint; the transition to CANCELLED is
// cooperative, not immediate.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) error {
	o.mu.Lock()
	j, ok := o.active[jobID]
	o.mu.Unlock()

	if !ok {
		if _, err := o.repo.FindByID(ctx, jobID); err != nil {
			return err
		}
		return ErrJobNotActive
	}

	j.RequestCancel()
	if err := o.repo.Save(ctx, j); err != nil {
		o.logger.Warn("failed to persist cancel request",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	o.logger.Info("cancellation requested", slog.String("job_id", jobID))
	return nil
}

// Status returns the latest snapshot of a job.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*job.Job, error) {
	return o.repo.FindByID(ctx, jobID)
}

// ListByOwner returns snapshots of all jobs belonging to an owner.
func (o *Orchestrator) ListByOwner(ctx context.Context, ownerKey string) ([]*job.Job, error) {
	return o.repo.ListByOwner(ctx, ownerKey)
}

// ActiveJobs returns the number of jobs whose lifecycle task is still live.
func (o *Orchestrator) ActiveJobs() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// evict removes a job from the active table once its terminal state has
// been reported.
func (o *Orchestrator) evict(jobID string) {
	o.mu.Lock()
	delete(o.active, jobID)
	o.mu.Unlock()
}
