package model

// JobStatus is the relay's view of a provider job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusTimeout   JobStatus = "timeout"
)

// IsTerminal reports whether no further polling happens in this state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusTimeout:
		return true
	}
	return false
}

// Job tracks one provider job for the lifetime of a single request. It is
// never persisted.
type Job struct {
	ID       string    `json:"id"`
	Status   JobStatus `json:"status"`
	Attempts int       `json:"attempts"`
}
