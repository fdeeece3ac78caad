package queue

import (
	"context"
	"sync"
	"time"

	"github.com/unclebandit/autoposter/internal/logging"
	"github.com/unclebandit/autoposter/internal/metrics"
	"github.com/unclebandit/autoposter/internal/model"
)

// StageConfig sizes one pipeline stage.
type StageConfig struct {
	Name         string
	Concurrency  int
	MaxAttempts  int
	Backoff      time.Duration
	PollInterval time.Duration
}

func SelectionStage(concurrency int, poll time.Duration) StageConfig {
	return StageConfig{
		Name:         SelectionQueue,
		Concurrency:  concurrency,
		MaxAttempts:  DefaultMaxAttempts(SelectionQueue),
		Backoff:      5 * time.Second,
		PollInterval: poll,
	}
}

// PublishStage is single-threaded so posts go out one at a time.
func PublishStage(poll time.Duration) StageConfig {
	return StageConfig{
		Name:         PublishQueue,
		Concurrency:  1,
		MaxAttempts:  DefaultMaxAttempts(PublishQueue),
		Backoff:      10 * time.Second,
		PollInterval: poll,
	}
}

// Backoff returns the delay before the attempt after the given one: base * 2^(attempt-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base << (attempt - 1)
}

// Handler processes one claimed job. A non-nil error schedules a retry.
type Handler func(ctx context.Context, job *model.Job) error

// ExhaustedFunc runs once when a job fails its final attempt.
type ExhaustedFunc func(ctx context.Context, job *model.Job, err error)

type Pool struct {
	broker      Broker
	stage       StageConfig
	handler     Handler
	logger      logging.Logger
	metrics     *metrics.Metrics
	onExhausted ExhaustedFunc
	now         func() time.Time
}

type PoolOption func(*Pool)

func WithMetrics(m *metrics.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

func WithExhaustedHook(fn ExhaustedFunc) PoolOption {
	return func(p *Pool) { p.onExhausted = fn }
}

func WithClock(now func() time.Time) PoolOption {
	return func(p *Pool) { p.now = now }
}

func NewPool(broker Broker, stage StageConfig, handler Handler, logger logging.Logger, opts ...PoolOption) *Pool {
	if stage.Concurrency < 1 {
		stage.Concurrency = 1
	}
	if stage.PollInterval <= 0 {
		stage.PollInterval = time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	p := &Pool{
		broker:  broker,
		stage:   stage,
		handler: handler,
		logger:  logger.WithFields(logging.Fields{"component": "queue", "queue": stage.Name}),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts the stage workers and blocks until ctx is cancelled and every worker has returned.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.WithField("concurrency", p.stage.Concurrency).Info("Starting worker pool")

	var wg sync.WaitGroup
	for i := 0; i < p.stage.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.work(ctx, id)
		}(i)
	}
	wg.Wait()

	p.logger.Info("Worker pool stopped")
	return nil
}

func (p *Pool) work(ctx context.Context, id int) {
	for ctx.Err() == nil {
		processed, err := p.ProcessNext(ctx)
		if err != nil {
			p.logger.WithError(err).WithField("worker", id).Error("Failed to claim job")
		}
		if !processed {
			p.idle(ctx)
		}
	}
}

func (p *Pool) idle(ctx context.Context) {
	var wake <-chan struct{}
	if w, ok := p.broker.(waiter); ok {
		wake = w.Wait(p.stage.Name)
	}
	timer := time.NewTimer(p.stage.PollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-wake:
	}
}

// ProcessNext claims and handles at most one job. It reports whether a job was claimed.
func (p *Pool) ProcessNext(ctx context.Context) (bool, error) {
	job, err := p.broker.Claim(ctx, p.stage.Name)
	if err != nil || job == nil {
		return false, err
	}
	p.process(ctx, job)
	return true, nil
}

func (p *Pool) process(ctx context.Context, job *model.Job) {
	log := p.logger.WithFields(logging.Fields{
		"job_id":   job.ID,
		"job_key":  job.Key,
		"attempt":  job.Attempts,
		"attempts": job.MaxAttempts,
	})

	herr := p.handler(ctx, job)

	// Bookkeeping must land even when shutdown cancelled the handler.
	bctx := context.WithoutCancel(ctx)

	if herr == nil {
		if err := p.broker.Complete(bctx, job); err != nil {
			log.WithError(err).Error("Failed to complete job")
		}
		p.metrics.JobResult(p.stage.Name, "completed")
		log.Debug("Job completed")
		return
	}

	if ctx.Err() != nil {
		if err := p.broker.Release(bctx, job); err != nil {
			log.WithError(err).Error("Failed to release job on shutdown")
		}
		log.WithError(herr).Info("Job released on shutdown")
		return
	}

	if job.Exhausted() {
		if err := p.broker.Fail(bctx, job, herr); err != nil {
			log.WithError(err).Error("Failed to mark job failed")
		}
		p.metrics.JobResult(p.stage.Name, "failed")
		log.WithError(herr).Error("Job permanently failed")
		if p.onExhausted != nil {
			p.onExhausted(bctx, job, herr)
		}
		return
	}

	delay := Backoff(p.stage.Backoff, job.Attempts)
	if err := p.broker.Retry(bctx, job, p.now().Add(delay), herr); err != nil {
		log.WithError(err).Error("Failed to schedule retry")
	}
	p.metrics.JobResult(p.stage.Name, "retried")
	log.WithError(herr).WithField("retry_in", delay.String()).Warn("Job failed, retrying")
}
