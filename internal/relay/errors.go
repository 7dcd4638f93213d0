package relay

import (
	"encoding/json"
	"fmt"
)

// Steps reported with upstream failures.
const (
	StepStart = "start"
	StepPoll  = "poll"
)

// ValidationError means the caller's request was rejected before any
// provider call.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// ConfigurationError means a required setting is missing. No provider call
// is attempted.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// SubmissionError means the provider rejected the job or returned a
// malformed submission response.
type SubmissionError struct {
	HTTPStatus int
	Body       json.RawMessage
	Err        error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("relay: submit job: %v", e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollFailure means the provider reported the job as failed. Polling stopped
// at Attempt.
type PollFailure struct {
	JobID      string
	Attempt    int
	HTTPStatus int
	Body       json.RawMessage
}

func (e *PollFailure) Error() string {
	return fmt.Sprintf("relay: job %s failed on poll attempt %d", e.JobID, e.Attempt)
}

// PollTimeout means the attempt ceiling was reached without a terminal
// state. The job's real outcome is unknown.
type PollTimeout struct {
	JobID    string
	Attempts int
	Last     json.RawMessage
}

func (e *PollTimeout) Error() string {
	return fmt.Sprintf("relay: job %s not completed after %d poll attempts", e.JobID, e.Attempts)
}
