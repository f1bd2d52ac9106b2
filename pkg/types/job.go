// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// JobState is the EmbeddingJob state machine position.
type JobState string

const (
	JobQueued     JobState = "queued"
	JobRunning    JobState = "running"
	JobDone       JobState = "done"
	JobFailed     JobState = "failed"
	JobDeadLetter JobState = "deadletter"
)

// ParseJobState validates s.
func ParseJobState(s string) (JobState, error) {
	switch JobState(s) {
	case JobQueued, JobRunning, JobDone, JobFailed, JobDeadLetter:
		return JobState(s), nil
	default:
		return "", fmt.Errorf("unknown job state %q", s)
	}
}

// EmbeddingJob tracks (re)computation of one entity's embedding.
type EmbeddingJob struct {
	Ref       EntityRef `json:"ref"`
	State     JobState  `json:"state"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	NotBefore time.Time `json:"not_before,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
