package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/autoposter/internal/model"
	"github.com/unclebandit/autoposter/internal/queue"
	"github.com/unclebandit/autoposter/internal/service"
)

func run(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	output = "text"
	var buf bytes.Buffer
	cmd := newRootCmd(open)
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func memoryOpener(b *queue.MemoryBroker, preview *service.Preview) opener {
	return func(context.Context, bool) (*runtime, error) {
		return &runtime{
			Broker:   b,
			Location: time.UTC,
			Preview:  func(context.Context) (*service.Preview, error) { return preview, nil },
			Close:    func() {},
		}, nil
	}
}

func TestEnqueueIsIdempotentPerKey(t *testing.T) {
	b := queue.NewMemoryBroker()
	open := memoryOpener(b, nil)

	out, err := run(t, open, "enqueue", "--window", "1", "--at", "2026-05-01T09:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "Enqueued selection job 2026-05-01|1|0")

	out, err = run(t, open, "enqueue", "--window", "1", "--at", "2026-05-01T09:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	_, err = run(t, open, "enqueue", "--window", "1", "--attempt", "1", "--at", "2026-05-01T09:00:00Z")
	require.NoError(t, err)

	jobs := b.Jobs(queue.SelectionQueue)
	require.Len(t, jobs, 2)
	var payload model.SelectionPayload
	require.NoError(t, queue.Decode(&jobs[0], &payload))
	assert.Equal(t, 1, payload.WindowIndex)
	assert.Equal(t, 3, jobs[0].MaxAttempts)
}

func TestEnqueueRejectsBadTime(t *testing.T) {
	_, err := run(t, memoryOpener(queue.NewMemoryBroker(), nil), "enqueue", "--at", "tomorrow")
	assert.ErrorContains(t, err, "invalid --at")
}

func TestDLQListAndRetry(t *testing.T) {
	ctx := context.Background()
	b := queue.NewMemoryBroker()
	_, err := b.Enqueue(ctx, queue.Request{Queue: queue.PublishQueue, Key: "publish|2026-05-01|0|0", MaxAttempts: 1})
	require.NoError(t, err)
	job, err := b.Claim(ctx, queue.PublishQueue)
	require.NoError(t, err)
	require.NoError(t, b.Fail(ctx, job, errors.New("HTTP 503 from platform")))
	open := memoryOpener(b, nil)

	out, err := run(t, open, "dlq", "list")
	require.NoError(t, err)
	assert.Contains(t, out, job.ID)
	assert.Contains(t, out, "HTTP 503 from platform")

	out, err = run(t, open, "dlq", "list", "--queue", "selection")
	require.NoError(t, err)
	assert.Contains(t, out, "No failed selection jobs")

	_, err = run(t, open, "dlq", "list", "--queue", "bogus")
	assert.ErrorContains(t, err, "invalid queue")

	out, err = run(t, open, "dlq", "retry", job.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Requeued "+job.ID)

	stored, ok := b.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, model.JobStateQueued, stored.State)
	assert.Equal(t, 0, stored.Attempts)

	_, err = run(t, open, "dlq", "retry", job.ID)
	assert.ErrorContains(t, err, "not found")
}

func TestDryRunOutput(t *testing.T) {
	preview := &service.Preview{
		Outcome:      service.OutcomeEnqueued,
		Candidate:    &model.Candidate{ID: "v1", Title: "Harbour Lights"},
		Text:         "New release! Check out Harbour Lights. [18+ only]",
		Style:        "template",
		Fallback:     true,
		Reason:       "no generator configured",
		TrackingLink: "https://example.com/v/1?utm_source=x",
		Body:         "New release! Check out Harbour Lights. [18+ only]\nhttps://example.com/v/1?utm_source=x",
	}

	out, err := run(t, memoryOpener(queue.NewMemoryBroker(), preview), "dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Selected candidate: [v1] Harbour Lights")
	assert.Contains(t, out, "Template fallback: no generator configured")
	assert.Contains(t, out, "Passed duplicate guard.")

	out, err = run(t, memoryOpener(queue.NewMemoryBroker(), preview), "dry-run", "--output", "json")
	require.NoError(t, err)
	var decoded service.Preview
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "v1", decoded.Candidate.ID)

	out, err = run(t, memoryOpener(queue.NewMemoryBroker(), &service.Preview{Outcome: service.OutcomeCircuitOpen}), "dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Circuit is open")
}
