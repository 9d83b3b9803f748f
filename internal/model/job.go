package model

import "time"

// JobStatus represents the current state of an on-demand scoring job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status will no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job is a persisted on-demand scoring job. Creation and polling may
// happen across process restarts, so no in-memory registry is kept.
type Job struct {
	ID           string     `json:"id"`
	Query        BookQuery  `json:"query"`
	Identity     string     `json:"identity,omitempty"`
	Status       JobStatus  `json:"status"`
	Result       *JobResult `json:"result,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// JobResult is what a completed job hands back to pollers.
type JobResult struct {
	BookID  int64        `json:"book_id,omitempty"`
	Score   *ScoreResult `json:"score,omitempty"`
	Context *Context     `json:"context,omitempty"`
	Cached  bool         `json:"cached"`
}
