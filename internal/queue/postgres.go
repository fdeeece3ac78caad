package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/autoposter/internal/errors"
	"github.com/unclebandit/autoposter/internal/model"
)

// DefaultLease is how long an active job may go without an update before another worker reclaims it.
const DefaultLease = 5 * time.Minute

// PipelineLockKey is the session advisory lock held by the process running the pipeline.
const PipelineLockKey int64 = 0x6175746f706f7374

const jobColumns = `id, queue, key, payload, state, attempts, max_attempts, run_at, last_error, created_at, updated_at`

// PostgresBroker persists jobs in the jobs table so queued work and key dedup survive restarts.
type PostgresBroker struct {
	DB    *sql.DB
	Lease time.Duration
	Now   func() time.Time
}

func NewPostgresBroker(db *sql.DB) *PostgresBroker {
	return &PostgresBroker{DB: db, Lease: DefaultLease, Now: time.Now}
}

func (b *PostgresBroker) Enqueue(ctx context.Context, req Request) (bool, error) {
	payload, err := encodePayload(req.Payload)
	if err != nil {
		return false, err
	}
	now := b.Now()
	runAt := req.RunAt
	if runAt.IsZero() {
		runAt = now
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts(req.Queue)
	}

	query := `
		INSERT INTO jobs (id, queue, key, payload, state, attempts, max_attempts, run_at, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, '', $8, $8)
		ON CONFLICT (queue, key) DO NOTHING
	`
	res, err := b.DB.ExecContext(ctx, query,
		uuid.NewString(), req.Queue, req.Key, string(payload), model.JobStateQueued, maxAttempts, runAt, now,
	)
	if err != nil {
		return false, fmt.Errorf("enqueue %s/%s: %w", req.Queue, req.Key, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// Claim locks the oldest ready job with SKIP LOCKED so concurrent workers never share one.
// Active jobs whose lease expired are reclaimed.
func (b *PostgresBroker) Claim(ctx context.Context, queue string) (*model.Job, error) {
	now := b.Now()
	query := `
		UPDATE jobs SET state = $2, attempts = attempts + 1, updated_at = $4
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue = $1
			  AND ((state = $3 AND run_at <= $4) OR (state = $2 AND updated_at <= $5))
			ORDER BY run_at, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	row := b.DB.QueryRowContext(ctx, query,
		queue, model.JobStateActive, model.JobStateQueued, now, now.Add(-b.Lease),
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim %s job: %w", queue, err)
	}
	return job, nil
}

func (b *PostgresBroker) Complete(ctx context.Context, job *model.Job) error {
	_, err := b.DB.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, job.ID)
	if err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}
	return nil
}

func (b *PostgresBroker) Retry(ctx context.Context, job *model.Job, runAt time.Time, cause error) error {
	query := `UPDATE jobs SET state = $2, run_at = $3, last_error = $4, updated_at = $5 WHERE id = $1`
	return b.update(ctx, job.ID, query, model.JobStateQueued, runAt, errText(cause), b.Now())
}

func (b *PostgresBroker) Release(ctx context.Context, job *model.Job) error {
	query := `UPDATE jobs SET state = $2, attempts = GREATEST(attempts - 1, 0), run_at = $3, updated_at = $3 WHERE id = $1`
	return b.update(ctx, job.ID, query, model.JobStateQueued, b.Now())
}

func (b *PostgresBroker) Fail(ctx context.Context, job *model.Job, cause error) error {
	query := `UPDATE jobs SET state = $2, last_error = $3, updated_at = $4 WHERE id = $1`
	return b.update(ctx, job.ID, query, model.JobStateFailed, errText(cause), b.Now())
}

func (b *PostgresBroker) ListFailed(ctx context.Context, queue string, limit int) ([]model.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE queue = $1 AND state = $2 ORDER BY updated_at DESC LIMIT $3`
	rows, err := b.DB.QueryContext(ctx, query, queue, model.JobStateFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("list failed %s jobs: %w", queue, err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (b *PostgresBroker) Requeue(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs SET state = $2, attempts = 0, last_error = '', run_at = $4, updated_at = $4
		WHERE id = $1 AND state = $3
	`
	return b.update(ctx, jobID, query, model.JobStateQueued, model.JobStateFailed, b.Now())
}

func (b *PostgresBroker) update(ctx context.Context, jobID, query string, args ...any) error {
	res, err := b.DB.ExecContext(ctx, query, append([]any{jobID}, args...)...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return appErrors.NewJobNotFound(jobID)
	}
	return nil
}

// Lead holds PipelineLockKey on a dedicated connection. The lock is released by the returned
// func, or by Postgres when the connection drops.
func (b *PostgresBroker) Lead(ctx context.Context, poll time.Duration) (func() error, error) {
	if poll <= 0 {
		poll = time.Second
	}
	conn, err := b.DB.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pipeline lock connection: %w", err)
	}
	for {
		var acquired bool
		if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, PipelineLockKey).Scan(&acquired); err != nil {
			conn.Close()
			return nil, fmt.Errorf("acquire pipeline lock: %w", err)
		}
		if acquired {
			return func() error {
				defer conn.Close()
				if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, PipelineLockKey); err != nil {
					return fmt.Errorf("release pipeline lock: %w", err)
				}
				return nil
			}, nil
		}

		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			conn.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

var _ Leader = (*PostgresBroker)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var job model.Job
	var payload []byte
	var state string
	if err := row.Scan(
		&job.ID, &job.Queue, &job.Key, &payload, &state, &job.Attempts, &job.MaxAttempts,
		&job.RunAt, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Payload = append(job.Payload[:0], payload...)
	job.State = model.JobState(state)
	return &job, nil
}

var _ Broker = (*PostgresBroker)(nil)
