// internal/service/publish_worker.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/autoposter/internal/errors"
	"github.com/unclebandit/autoposter/internal/logging"
	"github.com/unclebandit/autoposter/internal/metrics"
	"github.com/unclebandit/autoposter/internal/model"
	"github.com/unclebandit/autoposter/internal/notify"
	"github.com/unclebandit/autoposter/internal/platform"
	"github.com/unclebandit/autoposter/internal/queue"
)

// BreakerRecorder is the write side of the circuit breaker.
type BreakerRecorder interface {
	RecordSuccess()
	RecordFailure()
}

// PublishPostStore is the part of the post repository the publish stage writes through.
type PublishPostStore interface {
	GetByID(ctx context.Context, id string) (*model.Post, error)
	MarkPosted(ctx context.Context, postID, platformPostID string, mediaRef *string, postedAt time.Time) error
	MarkFailed(ctx context.Context, postID, code, message string) error
}

type PublishWorker struct {
	Platform platform.Client
	Posts    PublishPostStore
	Breaker  BreakerRecorder
	Notifier notify.Publisher
	Metrics  *metrics.Metrics
	Logger   logging.Logger
	Now      func() time.Time
}

func (w *PublishWorker) logger() logging.Logger {
	if w.Logger == nil {
		return logging.Discard()
	}
	return w.Logger.WithField("component", "publish_worker")
}

func (w *PublishWorker) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

// Handle is the queue.Handler for the publish stage. Errors are returned so the queue retries.
func (w *PublishWorker) Handle(ctx context.Context, job *model.Job) error {
	var payload model.PublishPayload
	if err := queue.Decode(job, &payload); err != nil {
		return err
	}
	_, err := w.Publish(ctx, payload)
	return err
}

// Publish uploads the clip if there is one, submits the post and records the result on the Post.
// A Post that is already POSTED or BLOCKED is left alone, so a redelivered job never posts twice.
func (w *PublishWorker) Publish(ctx context.Context, p model.PublishPayload) (string, error) {
	log := w.logger().WithFields(logging.Fields{"job_key": p.JobKey, "post_id": p.PostID})

	post, err := w.Posts.GetByID(ctx, p.PostID)
	if err != nil {
		return "", fmt.Errorf("load post %s: %w", p.PostID, err)
	}
	if post.Status.Final() {
		log.WithField("status", post.Status).Info("Post already finalized, skipping redelivered job")
		if post.PlatformPostID != nil {
			return *post.PlatformPostID, nil
		}
		return "", nil
	}

	var mediaIDs []string
	if p.MediaRef != nil && *p.MediaRef != "" {
		id, err := w.Platform.UploadMedia(ctx, *p.MediaRef)
		if err != nil {
			return "", w.fail(ctx, log, p, err)
		}
		mediaIDs = append(mediaIDs, id)
	}

	platformPostID, err := w.Platform.SubmitPost(ctx, ComposeBody(p.Text, p.TrackingLink), mediaIDs)
	if err != nil {
		return "", w.fail(ctx, log, p, err)
	}

	// The post is live from here on. The write outlives shutdown, and a store error must not
	// cause a second submission.
	postedAt := w.now()
	if err := w.Posts.MarkPosted(context.WithoutCancel(ctx), p.PostID, platformPostID, p.MediaRef, postedAt); err != nil {
		log.WithError(err).WithField("platform_post_id", platformPostID).Error("Failed to record published post")
	}
	w.Breaker.RecordSuccess()
	w.Metrics.PostStatus(string(model.PostStatusPosted))
	log.WithFields(logging.Fields{
		"platform_post_id": platformPostID,
		"with_media":       len(mediaIDs) > 0,
	}).Info("Post published")

	w.announce(ctx, notify.PostEvent{
		PostID:         p.PostID,
		JobKey:         p.JobKey,
		CandidateID:    p.CandidateID,
		Status:         string(model.PostStatusPosted),
		PlatformPostID: platformPostID,
		OccurredAt:     postedAt,
	})
	return platformPostID, nil
}

func (w *PublishWorker) fail(ctx context.Context, log logging.Logger, p model.PublishPayload, cause error) error {
	code := appErrors.Code(cause)
	kind := "error"
	if appErrors.IsRateLimit(cause) {
		kind = "rate_limit"
	}
	w.Metrics.PublishFailure(kind)
	log.WithError(cause).WithFields(logging.Fields{"kind": kind, "code": code}).Warn("Publish attempt failed")

	if err := w.Posts.MarkFailed(context.WithoutCancel(ctx), p.PostID, code, cause.Error()); err != nil {
		if errors.Is(err, appErrors.ErrPostFinalized) {
			log.Warn("Post already finalized, leaving status untouched")
		} else {
			log.WithError(err).Error("Failed to record publish failure")
		}
	}
	return fmt.Errorf("publish post %s: %w", p.PostID, cause)
}

// OnExhausted is the publish pool's exhaustion hook: one breaker failure per abandoned post.
func (w *PublishWorker) OnExhausted(ctx context.Context, job *model.Job, cause error) {
	w.Breaker.RecordFailure()
	w.Metrics.PostStatus(string(model.PostStatusFailed))

	var payload model.PublishPayload
	if err := queue.Decode(job, &payload); err != nil {
		w.logger().WithError(err).WithField("job_id", job.ID).Error("Undecodable exhausted publish job")
		return
	}
	w.logger().WithError(cause).WithFields(logging.Fields{
		"job_key":  payload.JobKey,
		"post_id":  payload.PostID,
		"attempts": job.Attempts,
	}).Error("Publish job exhausted")

	event := notify.PostEvent{
		PostID:      payload.PostID,
		JobKey:      payload.JobKey,
		CandidateID: payload.CandidateID,
		Status:      string(model.PostStatusFailed),
		OccurredAt:  w.now(),
	}
	if cause != nil {
		event.ErrorCode = appErrors.Code(cause)
		event.ErrorMessage = cause.Error()
	}
	w.announce(ctx, event)
}

func (w *PublishWorker) announce(ctx context.Context, event notify.PostEvent) {
	if w.Notifier == nil {
		return
	}
	if err := w.Notifier.PublishPostEvent(ctx, event); err != nil {
		w.logger().WithError(err).WithField("post_id", event.PostID).Warn("Failed to publish post event")
	}
}

// ComposeBody joins the caption and tracking link on separate lines.
func ComposeBody(text, link string) string {
	if link == "" {
		return text
	}
	return text + "\n" + link
}
