// internal/model/job.go
package model

import (
	"encoding/json"
	"time"
)

type JobState string

const (
	JobStateQueued JobState = "queued"
	JobStateActive JobState = "active"
	JobStateFailed JobState = "failed"
)

type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
	State       JobState        `json:"state"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	RunAt       time.Time       `json:"run_at"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Exhausted reports whether the job has used all of its attempts.
func (j *Job) Exhausted() bool {
	return j.Attempts >= j.MaxAttempts
}

// SelectionPayload is carried by jobs on the selection queue.
type SelectionPayload struct {
	JobKey        string    `json:"job_key"`
	WindowIndex   int       `json:"window_index"`
	ScheduledTime time.Time `json:"scheduled_time"`
}

// PublishPayload is carried by jobs on the publish queue.
type PublishPayload struct {
	PostID       string  `json:"post_id"`
	JobKey       string  `json:"job_key"`
	CandidateID  string  `json:"candidate_id"`
	Text         string  `json:"text"`
	TrackingLink string  `json:"tracking_link"`
	MediaRef     *string `json:"media_ref"`
}
