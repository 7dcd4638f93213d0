package firecrawl

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultPollInterval    = 2 * time.Second
	defaultPollMaxAttempts = 20
)

// Provider job states the poll loop reacts to. Anything else means the job is
// still running.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// PollOption configures polling behavior.
type PollOption func(*pollConfig)

type pollConfig struct {
	interval    time.Duration
	maxAttempts int
	onAttempt   func(attempt int, status *StatusResponse)
}

func defaultPollConfig() pollConfig {
	return pollConfig{
		interval:    defaultPollInterval,
		maxAttempts: defaultPollMaxAttempts,
	}
}

// WithPollInterval overrides the fixed wait before each status request.
func WithPollInterval(d time.Duration) PollOption {
	return func(c *pollConfig) {
		if d >= 0 {
			c.interval = d
		}
	}
}

// WithMaxAttempts overrides the number of status requests made before the
// loop gives up.
func WithMaxAttempts(n int) PollOption {
	return func(c *pollConfig) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithAttemptHook registers a callback run after every status response.
func WithAttemptHook(fn func(attempt int, status *StatusResponse)) PollOption {
	return func(c *pollConfig) {
		c.onAttempt = fn
	}
}

// JobFailedError reports that the provider ended the job unsuccessfully, or
// answered a status request with a non-2xx code.
type JobFailedError struct {
	ID         string
	Attempt    int
	HTTPStatus int
	Body       json.RawMessage
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("firecrawl: batch scrape %s failed on attempt %d (HTTP %d)", e.ID, e.Attempt, e.HTTPStatus)
}

// PollTimeoutError reports that the attempt ceiling was reached without a
// terminal state. The job may still finish on the provider side.
type PollTimeoutError struct {
	ID       string
	Attempts int
	Last     json.RawMessage
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("firecrawl: batch scrape %s not finished after %d attempts", e.ID, e.Attempts)
}

// PollResult is the completed job as seen on the final status request.
type PollResult struct {
	Status   *StatusResponse
	Attempts int
}

// PollBatchScrape waits the configured interval, requests the job status, and
// repeats until the job completes, fails, or maxAttempts requests have been
// made. Interval is fixed; there is no backoff.
func PollBatchScrape(ctx context.Context, client Client, id string, opts ...PollOption) (*PollResult, error) {
	cfg := defaultPollConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	var last json.RawMessage
	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		if err := sleepCtx(ctx, cfg.interval); err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("firecrawl: poll batch scrape %s interrupted", id))
		}

		status, err := client.GetBatchScrapeStatus(ctx, id)
		if err != nil {
			return nil, eris.Wrap(err, fmt.Sprintf("firecrawl: poll batch scrape %s", id))
		}
		last = status.Body
		if cfg.onAttempt != nil {
			cfg.onAttempt(attempt, status)
		}

		if status.HTTPStatus < 200 || status.HTTPStatus >= 300 {
			return nil, &JobFailedError{ID: id, Attempt: attempt, HTTPStatus: status.HTTPStatus, Body: status.Body}
		}

		switch status.Status {
		case StatusCompleted:
			return &PollResult{Status: status, Attempts: attempt}, nil
		case StatusFailed:
			return nil, &JobFailedError{ID: id, Attempt: attempt, HTTPStatus: status.HTTPStatus, Body: status.Body}
		}
	}

	return nil, &PollTimeoutError{ID: id, Attempts: cfg.maxAttempts, Last: last}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
