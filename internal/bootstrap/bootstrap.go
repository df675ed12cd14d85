// Package bootstrap wires configuration into the object graph the HTTP
// server runs on.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/genbot-io/genrelay/internal/admission"
	"github.com/genbot-io/genrelay/internal/backoff"
	"github.com/genbot-io/genrelay/internal/config"
	"github.com/genbot-io/genrelay/internal/job"
	"github.com/genbot-io/genrelay/internal/notify"
	"github.com/genbot-io/genrelay/internal/orchestrator"
	"github.com/genbot-io/genrelay/internal/progress"
	"github.com/genbot-io/genrelay/internal/provider"
	"github.com/genbot-io/genrelay/internal/storage"
	"github.com/genbot-io/genrelay/internal/together"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Orchestrator *orchestrator.Orchestrator
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	client, err := together.NewClient(
		together.WithAPIKey(cfg.TogetherAPIKey),
		together.WithBaseURL(cfg.TogetherBaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("create Together client: %w", err)
	}

	archiver, err := initArchiver(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []orchestrator.Option{
		orchestrator.WithPromptMaxLen(cfg.PromptMaxLen),
		orchestrator.WithArchiver(archiver, client),
	}
	for _, variant := range provider.Variants() {
		adapter := provider.NewTogetherAdapter(client, variant, logger)
		opts = append(opts, orchestrator.WithProvider(
			variant.Name,
			adapter,
			policyFor(cfg, variant),
			progress.NewReporter(variant.AvgDuration),
		))
	}

	orch := orchestrator.New(
		admission.New(int64(cfg.MaxConcurrentJobs)),
		job.NewMemoryRepository(),
		notify.NewLogSink(logger),
		logger,
		opts...,
	)

	return &Dependencies{Orchestrator: orch}, nil
}

// policyFor builds the poll schedule for a variant, applying global
// configuration overrides when set.
func policyFor(cfg *config.Config, variant provider.Variant) backoff.Policy {
	policy := backoff.Policy{
		Interval:         variant.PollInterval,
		WaitBudget:       variant.WaitBudget,
		TransientCeiling: backoff.DefaultPolicy().TransientCeiling,
	}
	if cfg.PollInterval > 0 {
		policy.Interval = cfg.PollInterval
	}
	if cfg.WaitBudget > 0 {
		policy.WaitBudget = cfg.WaitBudget
	}
	return policy
}

// initArchiver creates the artifact archiver based on configuration.
func initArchiver(cfg *config.Config, logger *slog.Logger) (storage.Archiver, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Archiver, err := storage.NewS3Archiver(s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 archiver: %w", err)
		}
		logger.Info("S3 archiving configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Archiver, nil
	}

	localArchiver, err := storage.NewLocalArchiver(cfg.ArchiveDir)
	if err != nil {
		return nil, fmt.Errorf("create local archiver: %w", err)
	}
	logger.Info("local archiving configured",
		slog.String("archive_dir", localArchiver.Dir()),
	)
	return localArchiver, nil
}
