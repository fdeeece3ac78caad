// Package notify announces post lifecycle changes to other services.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/unclebandit/autoposter/internal/logging"
)

const DefaultQueue = "post_events"

// PostEvent is published whenever a post reaches a new status.
type PostEvent struct {
	PostID         string    `json:"post_id"`
	JobKey         string    `json:"job_key"`
	CandidateID    string    `json:"candidate_id"`
	Status         string    `json:"status"`
	PlatformPostID string    `json:"platform_post_id,omitempty"`
	ErrorCode      string    `json:"error_code,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

type Publisher interface {
	PublishPostEvent(ctx context.Context, event PostEvent) error
}

// NopPublisher drops events.
type NopPublisher struct{}

func (NopPublisher) PublishPostEvent(context.Context, PostEvent) error { return nil }

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher writes events as persistent JSON messages to a durable queue.
type AMQPPublisher struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     channel
	queue  string
	logger logging.Logger
}

// DialAMQP connects and declares the durable event queue.
func DialAMQP(url, queue string, logger logging.Logger) (*AMQPPublisher, error) {
	if queue == "" {
		queue = DefaultQueue
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	p := newPublisher(ch, q.Name, logger)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, queue string, logger logging.Logger) *AMQPPublisher {
	if logger == nil {
		logger = logging.Discard()
	}
	return &AMQPPublisher{ch: ch, queue: queue, logger: logger.WithField("component", "notify")}
}

func (p *AMQPPublisher) PublishPostEvent(_ context.Context, event PostEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode post event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish("", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Type:         "post." + event.Status,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish post event: %w", err)
	}
	p.logger.WithFields(logging.Fields{"post_id": event.PostID, "status": event.Status}).Debug("Published post event")
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		return err
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

var (
	_ Publisher = NopPublisher{}
	_ Publisher = (*AMQPPublisher)(nil)
)
