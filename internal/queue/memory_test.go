package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/autoposter/internal/errors"
	"github.com/unclebandit/autoposter/internal/model"
)

type manualClock struct{ t time.Time }

func (c *manualClock) Now() time.Time          { return c.t }
func (c *manualClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBroker() (*MemoryBroker, *manualClock) {
	clock := &manualClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	b := NewMemoryBroker()
	b.SetClock(clock.Now)
	return b, clock
}

func TestMemoryBrokerDeduplicatesKeys(t *testing.T) {
	b, _ := newTestBroker()
	ctx := context.Background()
	req := Request{Queue: SelectionQueue, Key: "2026-03-01|0|0", Payload: model.SelectionPayload{JobKey: "2026-03-01|0|0"}}

	ok, err := b.Enqueue(ctx, req)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Enqueue(ctx, req)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.Enqueue(ctx, Request{Queue: PublishQueue, Key: req.Key})
	require.NoError(t, err)
	assert.True(t, ok, "keys are scoped per queue")

	jobs := b.Jobs(SelectionQueue)
	require.Len(t, jobs, 1)
	assert.Equal(t, 3, jobs[0].MaxAttempts)
}

func TestMemoryBrokerClaimHonoursRunAt(t *testing.T) {
	b, clock := newTestBroker()
	ctx := context.Background()

	_, err := b.Enqueue(ctx, Request{Queue: PublishQueue, Key: "later", RunAt: clock.t.Add(time.Minute)})
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = b.Enqueue(ctx, Request{Queue: PublishQueue, Key: "now"})
	require.NoError(t, err)

	job, err := b.Claim(ctx, PublishQueue)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "now", job.Key)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, model.JobStateActive, job.State)

	job, err = b.Claim(ctx, PublishQueue)
	require.NoError(t, err)
	assert.Nil(t, job)

	clock.Advance(time.Minute)
	job, err = b.Claim(ctx, PublishQueue)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "later", job.Key)
}

func TestMemoryBrokerLifecycle(t *testing.T) {
	b, clock := newTestBroker()
	ctx := context.Background()

	_, err := b.Enqueue(ctx, Request{Queue: PublishQueue, Key: "k"})
	require.NoError(t, err)
	job, err := b.Claim(ctx, PublishQueue)
	require.NoError(t, err)

	require.NoError(t, b.Retry(ctx, job, clock.t.Add(10*time.Second), errors.New("HTTP 503")))
	stored, _ := b.Get(job.ID)
	assert.Equal(t, model.JobStateQueued, stored.State)
	assert.Equal(t, "HTTP 503", stored.LastError)

	clock.Advance(10 * time.Second)
	job, err = b.Claim(ctx, PublishQueue)
	require.NoError(t, err)
	assert.Equal(t, 2, job.Attempts)

	require.NoError(t, b.Fail(ctx, job, errors.New("gave up")))
	failed, err := b.ListFailed(ctx, PublishQueue, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	ok, err := b.Enqueue(ctx, Request{Queue: PublishQueue, Key: "k"})
	require.NoError(t, err)
	assert.False(t, ok, "failed jobs keep their key")

	require.NoError(t, b.Requeue(ctx, job.ID))
	job, err = b.Claim(ctx, PublishQueue)
	require.NoError(t, err)
	assert.Equal(t, 1, job.Attempts)

	require.NoError(t, b.Complete(ctx, job))
	_, found := b.Get(job.ID)
	assert.False(t, found)

	var nf *appErrors.ErrJobNotFound
	assert.ErrorAs(t, b.Requeue(ctx, job.ID), &nf)
}

func TestMemoryBrokerWaitSignalsOnEnqueue(t *testing.T) {
	b, _ := newTestBroker()
	wake := b.Wait(SelectionQueue)

	_, err := b.Enqueue(context.Background(), Request{Queue: SelectionQueue, Key: "k"})
	require.NoError(t, err)

	select {
	case <-wake:
	default:
		t.Fatal("expected wake channel to be closed")
	}
}
