// Package relay runs one scrape request through the provider job lifecycle:
// submit, poll at a fixed interval up to an attempt ceiling, then normalize
// or classify the failure.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/scrape-relay/internal/metrics"
	"github.com/sells-group/scrape-relay/internal/model"
	"github.com/sells-group/scrape-relay/internal/normalize"
	"github.com/sells-group/scrape-relay/pkg/firecrawl"
)

// Settings is the process-wide, read-only configuration of the orchestrator.
type Settings struct {
	APIKey       string
	PollInterval time.Duration
	MaxAttempts  int
}

// Service runs scrape jobs. It holds no per-request state and is safe for
// concurrent use.
type Service struct {
	client   firecrawl.Client
	settings Settings
	metrics  *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records job outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// New creates a Service.
func New(client firecrawl.Client, settings Settings, opts ...Option) *Service {
	s := &Service{client: client, settings: settings}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scrape submits req as one provider job and waits for its terminal state.
// Errors are one of *ValidationError, *ConfigurationError, *SubmissionError,
// *PollFailure or *PollTimeout; anything else is unexpected.
func (s *Service) Scrape(ctx context.Context, req model.ScrapeRequest) (*model.ScrapeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}
	if s.settings.APIKey == "" {
		return nil, &ConfigurationError{Message: "FIRECRAWL_API_KEY not set"}
	}

	log := zap.L().With(zap.Int("urls", len(req.URLs)))
	job := model.Job{Status: model.JobStatusPending}

	submitted, err := s.client.StartBatchScrape(ctx, firecrawl.BatchScrapeRequest{
		URLs:            req.URLs,
		OnlyMainContent: req.OnlyMainContent,
	})
	if err != nil {
		s.metrics.IncJob("start_failed")
		return nil, s.submitError(log, err)
	}
	job.ID = submitted.ID
	log = log.With(zap.String("job_id", job.ID))
	log.Info("firecrawl job submitted")

	polled, err := firecrawl.PollBatchScrape(ctx, s.client, job.ID,
		firecrawl.WithPollInterval(s.settings.PollInterval),
		firecrawl.WithMaxAttempts(s.settings.MaxAttempts),
		firecrawl.WithAttemptHook(func(attempt int, st *firecrawl.StatusResponse) {
			job.Attempts = attempt
			log.Debug("firecrawl job polled",
				zap.Int("attempt", attempt),
				zap.String("status", st.Status),
				zap.Int("http_status", st.HTTPStatus),
			)
		}),
	)
	s.metrics.ObservePollAttempts(job.Attempts)
	if err != nil {
		return nil, s.pollError(log, &job, err)
	}

	job.Status = model.JobStatusCompleted
	records, dialect, err := normalize.Normalize(polled.Status.Body, req.URLs)
	if err != nil {
		s.metrics.IncJob("error")
		return nil, eris.Wrap(err, "relay: normalize completed job")
	}
	s.metrics.IncJob(string(job.Status))
	log.Info("firecrawl job completed",
		zap.Int("attempts", job.Attempts),
		zap.Int("records", len(records)),
		zap.Stringer("dialect", dialect),
	)

	return model.NewScrapeResult(job.ID, records), nil
}

func (s *Service) submitError(log *zap.Logger, err error) error {
	if errors.Is(err, firecrawl.ErrMissingAPIKey) {
		return &ConfigurationError{Message: "FIRECRAWL_API_KEY not set"}
	}

	var apiErr *firecrawl.APIError
	if errors.As(err, &apiErr) {
		log.Warn("firecrawl job rejected", zap.Int("upstream_status", apiErr.StatusCode), zap.Error(err))
		return &SubmissionError{HTTPStatus: apiErr.StatusCode, Body: apiErr.Body, Err: err}
	}

	log.Error("firecrawl job submission failed", zap.Error(err))
	return eris.Wrap(err, "relay: submit job")
}

func (s *Service) pollError(log *zap.Logger, job *model.Job, err error) error {
	var failed *firecrawl.JobFailedError
	if errors.As(err, &failed) {
		job.Status = model.JobStatusFailed
		s.metrics.IncJob(string(job.Status))
		log.Warn("firecrawl job failed",
			zap.Int("attempt", failed.Attempt),
			zap.Int("upstream_status", failed.HTTPStatus),
		)
		return &PollFailure{JobID: job.ID, Attempt: failed.Attempt, HTTPStatus: failed.HTTPStatus, Body: failed.Body}
	}

	var timeout *firecrawl.PollTimeoutError
	if errors.As(err, &timeout) {
		job.Status = model.JobStatusTimeout
		s.metrics.IncJob(string(job.Status))
		log.Warn("firecrawl job did not complete in time", zap.Int("attempts", timeout.Attempts))
		return &PollTimeout{JobID: job.ID, Attempts: timeout.Attempts, Last: timeout.Last}
	}

	s.metrics.IncJob("error")
	log.Error("firecrawl job polling failed", zap.Int("attempts", job.Attempts), zap.Error(err))
	return eris.Wrap(err, "relay: poll job")
}
