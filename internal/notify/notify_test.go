package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (c *fakeChannel) Publish(_, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.keys = append(c.keys, key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublishPostEvent(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, DefaultQueue, nil)
	at := time.Date(2026, 2, 2, 12, 0, 0, 0, time.UTC)

	err := p.PublishPostEvent(context.Background(), PostEvent{PostID: "p1", JobKey: "2026-02-02|0|0", Status: "POSTED", PlatformPostID: "x1", OccurredAt: at})
	require.NoError(t, err)

	require.Len(t, ch.published, 1)
	msg := ch.published[0]
	assert.Equal(t, "post_events", ch.keys[0])
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "post.POSTED", msg.Type)

	var got PostEvent
	require.NoError(t, json.Unmarshal(msg.Body, &got))
	assert.Equal(t, "x1", got.PlatformPostID)
	assert.True(t, got.OccurredAt.Equal(at))

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestPublishPostEventError(t *testing.T) {
	p := newPublisher(&fakeChannel{err: errors.New("channel closed")}, DefaultQueue, nil)
	err := p.PublishPostEvent(context.Background(), PostEvent{PostID: "p1"})
	assert.ErrorContains(t, err, "channel closed")
	assert.NoError(t, NopPublisher{}.PublishPostEvent(context.Background(), PostEvent{}))
}
