package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unclebandit/autoposter/internal/model"
)

const (
	SelectionQueue = "selection"
	PublishQueue   = "publish"
)

// Request describes a job to enqueue. Key deduplicates live jobs within a queue.
type Request struct {
	Queue       string
	Key         string
	Payload     any
	MaxAttempts int
	RunAt       time.Time
}

// Broker stores jobs between stages.
//
// Claim marks the oldest ready job active and counts the attempt; it returns nil
// when nothing is ready. Complete removes a job. Retry puts it back with a new
// run time and Fail parks it in the failed state until Requeue. Release returns an
// interrupted job to the queue without counting the attempt.
type Broker interface {
	Enqueue(ctx context.Context, req Request) (bool, error)
	Claim(ctx context.Context, queue string) (*model.Job, error)
	Complete(ctx context.Context, job *model.Job) error
	Retry(ctx context.Context, job *model.Job, runAt time.Time, cause error) error
	Release(ctx context.Context, job *model.Job) error
	Fail(ctx context.Context, job *model.Job, cause error) error
	ListFailed(ctx context.Context, queue string, limit int) ([]model.Job, error)
	Requeue(ctx context.Context, jobID string) error
}

// Leader is implemented by brokers shared between processes. Lead blocks until the caller
// is the only process allowed to run the pipeline, retrying every poll interval.
type Leader interface {
	Lead(ctx context.Context, poll time.Duration) (release func() error, err error)
}

// waiter is implemented by brokers that can signal new work without polling.
type waiter interface {
	Wait(queue string) <-chan struct{}
}

// DefaultMaxAttempts returns the attempt budget of a known queue.
func DefaultMaxAttempts(queue string) int {
	switch queue {
	case SelectionQueue:
		return 3
	case PublishQueue:
		return 5
	}
	return 1
}

func encodePayload(payload any) (json.RawMessage, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	return data, nil
}

// Decode unmarshals a job payload into v.
func Decode(job *model.Job, v any) error {
	if err := json.Unmarshal(job.Payload, v); err != nil {
		return fmt.Errorf("decode %s job %s: %w", job.Queue, job.ID, err)
	}
	return nil
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
