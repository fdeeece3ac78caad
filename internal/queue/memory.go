package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/autoposter/internal/errors"
	"github.com/unclebandit/autoposter/internal/model"
)

// MemoryBroker keeps jobs in process memory. Jobs do not survive a restart.
type MemoryBroker struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
	keys map[string]string
	wake map[string]chan struct{}
	now  func() time.Time
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		jobs: make(map[string]*model.Job),
		keys: make(map[string]string),
		wake: make(map[string]chan struct{}),
		now:  time.Now,
	}
}

// SetClock replaces the broker's time source.
func (b *MemoryBroker) SetClock(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}

func dedupKey(queue, key string) string {
	return queue + "\x00" + key
}

func (b *MemoryBroker) Enqueue(_ context.Context, req Request) (bool, error) {
	payload, err := encodePayload(req.Payload)
	if err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	dk := dedupKey(req.Queue, req.Key)
	if _, exists := b.keys[dk]; exists {
		return false, nil
	}

	now := b.now()
	runAt := req.RunAt
	if runAt.IsZero() {
		runAt = now
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts(req.Queue)
	}

	job := &model.Job{
		ID:          uuid.NewString(),
		Queue:       req.Queue,
		Key:         req.Key,
		Payload:     payload,
		State:       model.JobStateQueued,
		MaxAttempts: maxAttempts,
		RunAt:       runAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	b.jobs[job.ID] = job
	b.keys[dk] = job.ID
	b.signalLocked(req.Queue)
	return true, nil
}

func (b *MemoryBroker) Claim(_ context.Context, queue string) (*model.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	var ready []*model.Job
	for _, job := range b.jobs {
		if job.Queue == queue && job.State == model.JobStateQueued && !job.RunAt.After(now) {
			ready = append(ready, job)
		}
	}
	if len(ready) == 0 {
		return nil, nil
	}
	sort.Slice(ready, func(i, j int) bool {
		if !ready[i].RunAt.Equal(ready[j].RunAt) {
			return ready[i].RunAt.Before(ready[j].RunAt)
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})

	job := ready[0]
	job.State = model.JobStateActive
	job.Attempts++
	job.UpdatedAt = now
	claimed := *job
	return &claimed, nil
}

func (b *MemoryBroker) Complete(_ context.Context, job *model.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.jobs[job.ID]
	if !ok {
		return appErrors.NewJobNotFound(job.ID)
	}
	delete(b.jobs, job.ID)
	delete(b.keys, dedupKey(stored.Queue, stored.Key))
	return nil
}

func (b *MemoryBroker) Retry(_ context.Context, job *model.Job, runAt time.Time, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.jobs[job.ID]
	if !ok {
		return appErrors.NewJobNotFound(job.ID)
	}
	stored.State = model.JobStateQueued
	stored.RunAt = runAt
	stored.LastError = errText(cause)
	stored.UpdatedAt = b.now()
	b.signalLocked(stored.Queue)
	return nil
}

func (b *MemoryBroker) Release(_ context.Context, job *model.Job) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.jobs[job.ID]
	if !ok {
		return appErrors.NewJobNotFound(job.ID)
	}
	now := b.now()
	stored.State = model.JobStateQueued
	if stored.Attempts > 0 {
		stored.Attempts--
	}
	stored.RunAt = now
	stored.UpdatedAt = now
	b.signalLocked(stored.Queue)
	return nil
}

func (b *MemoryBroker) Fail(_ context.Context, job *model.Job, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	stored, ok := b.jobs[job.ID]
	if !ok {
		return appErrors.NewJobNotFound(job.ID)
	}
	stored.State = model.JobStateFailed
	stored.LastError = errText(cause)
	stored.UpdatedAt = b.now()
	return nil
}

func (b *MemoryBroker) ListFailed(_ context.Context, queue string, limit int) ([]model.Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var failed []model.Job
	for _, job := range b.jobs {
		if job.Queue == queue && job.State == model.JobStateFailed {
			failed = append(failed, *job)
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].UpdatedAt.After(failed[j].UpdatedAt) })
	if limit > 0 && len(failed) > limit {
		failed = failed[:limit]
	}
	return failed, nil
}

func (b *MemoryBroker) Requeue(_ context.Context, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.jobs[jobID]
	if !ok || job.State != model.JobStateFailed {
		return appErrors.NewJobNotFound(jobID)
	}
	now := b.now()
	job.State = model.JobStateQueued
	job.Attempts = 0
	job.LastError = ""
	job.RunAt = now
	job.UpdatedAt = now
	b.signalLocked(job.Queue)
	return nil
}

// Get returns a copy of a stored job.
func (b *MemoryBroker) Get(jobID string) (model.Job, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[jobID]
	if !ok {
		return model.Job{}, false
	}
	return *job, true
}

// Jobs returns copies of every stored job in a queue, oldest first.
func (b *MemoryBroker) Jobs(queue string) []model.Job {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []model.Job
	for _, job := range b.jobs {
		if job.Queue == queue {
			out = append(out, *job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Wait returns a channel closed on the next enqueue or retry in queue.
func (b *MemoryBroker) Wait(queue string) <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.wake[queue]
	if !ok {
		ch = make(chan struct{})
		b.wake[queue] = ch
	}
	return ch
}

func (b *MemoryBroker) signalLocked(queue string) {
	if ch, ok := b.wake[queue]; ok {
		close(ch)
		delete(b.wake, queue)
	}
}

var (
	_ Broker = (*MemoryBroker)(nil)
	_ waiter = (*MemoryBroker)(nil)
)
