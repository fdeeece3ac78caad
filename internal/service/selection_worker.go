// internal/service/selection_worker.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/unclebandit/autoposter/internal/creative"
	"github.com/unclebandit/autoposter/internal/dedupe"
	appErrors "github.com/unclebandit/autoposter/internal/errors"
	"github.com/unclebandit/autoposter/internal/logging"
	"github.com/unclebandit/autoposter/internal/media"
	"github.com/unclebandit/autoposter/internal/metrics"
	"github.com/unclebandit/autoposter/internal/model"
	"github.com/unclebandit/autoposter/internal/notify"
	"github.com/unclebandit/autoposter/internal/queue"
	"github.com/unclebandit/autoposter/internal/repository"
	"github.com/unclebandit/autoposter/internal/selector"
)

const (
	OutcomeEnqueued         = "enqueued"
	OutcomeCircuitOpen      = "aborted/circuit_open"
	OutcomeNoCandidate      = "skipped/no_candidate"
	OutcomeDuplicate        = "skipped/duplicate"
	OutcomeAlreadyProcessed = "skipped/already_processed"
)

// Outcome reports how a selection job ended when it did not error.
type Outcome struct {
	Status      string `json:"status"`
	JobKey      string `json:"job_key"`
	PostID      string `json:"post_id,omitempty"`
	CandidateID string `json:"candidate_id,omitempty"`
}

// Skipped reports whether the job ended without enqueueing a publish job.
func (o Outcome) Skipped() bool {
	return o.Status != OutcomeEnqueued
}

type CircuitChecker interface {
	IsOpen(ctx context.Context) bool
}

type CandidateSelector interface {
	Select(ctx context.Context) (*model.Candidate, error)
}

type TextGenerator interface {
	Generate(ctx context.Context, c *model.Candidate) creative.Result
}

type DuplicateChecker interface {
	IsDuplicate(ctx context.Context, text, mediaRef string) (bool, error)
}

// SelectionPostStore is the part of the post repository the selection stage writes through.
type SelectionPostStore interface {
	CreatePending(ctx context.Context, jobKey, candidateID string) (*model.Post, bool, error)
	AttachVariant(ctx context.Context, postID, candidateID, variantID, assetRef string) error
	MarkBlocked(ctx context.Context, postID, reason string) error
}

type SelectionWorker struct {
	Breaker           CircuitChecker
	Selector          CandidateSelector
	Creative          TextGenerator
	Guard             DuplicateChecker
	Media             media.Preparer
	Posts             SelectionPostStore
	Variants          repository.VariantRepositoryInterface
	Broker            queue.Broker
	Notifier          notify.Publisher
	Metrics           *metrics.Metrics
	Logger            logging.Logger
	Campaign          string
	FallbackMediaPath string
}

func (w *SelectionWorker) logger() logging.Logger {
	if w.Logger == nil {
		return logging.Discard()
	}
	return w.Logger.WithField("component", "selection_worker")
}

// Handle is the queue.Handler for the selection stage.
func (w *SelectionWorker) Handle(ctx context.Context, job *model.Job) error {
	var payload model.SelectionPayload
	if err := queue.Decode(job, &payload); err != nil {
		return err
	}
	if payload.JobKey == "" {
		payload.JobKey = job.Key
	}

	outcome, err := w.Process(ctx, payload)
	if err != nil {
		return err
	}
	w.Metrics.SelectionOutcome(outcome.Status)
	w.logger().WithFields(logging.Fields{
		"job_key":      outcome.JobKey,
		"outcome":      outcome.Status,
		"post_id":      outcome.PostID,
		"candidate_id": outcome.CandidateID,
		"attempt":      job.Attempts,
	}).Info("Selection job finished")
	return nil
}

// Process runs one selection attempt. Skips come back as an Outcome with a nil error.
func (w *SelectionWorker) Process(ctx context.Context, payload model.SelectionPayload) (Outcome, error) {
	log := w.logger().WithField("job_key", payload.JobKey)
	out := Outcome{JobKey: payload.JobKey}

	if w.Breaker.IsOpen(ctx) {
		log.Warn("Circuit open, skipping selection")
		out.Status = OutcomeCircuitOpen
		return out, nil
	}

	candidate, err := w.Selector.Select(ctx)
	if err != nil {
		return out, fmt.Errorf("select candidate: %w", err)
	}
	if candidate == nil {
		out.Status = OutcomeNoCandidate
		return out, nil
	}
	out.CandidateID = candidate.ID

	post, created, err := w.Posts.CreatePending(ctx, payload.JobKey, candidate.ID)
	if err != nil {
		return out, fmt.Errorf("create pending post: %w", err)
	}
	out.PostID = post.ID
	if !created && post.Status != model.PostStatusPending {
		log.WithField("status", post.Status).Info("Job key already processed")
		out.Status = OutcomeAlreadyProcessed
		return out, nil
	}

	result := w.Creative.Generate(ctx, candidate)
	if result.Fallback {
		w.Metrics.Fallback("text")
	}

	assetRef := candidate.ThumbnailURL
	dup, err := w.Guard.IsDuplicate(ctx, result.Text, assetRef)
	if err != nil {
		return out, fmt.Errorf("duplicate check: %w", err)
	}
	if dup {
		if err := w.Posts.MarkBlocked(ctx, post.ID, "duplicate content within lookback window"); err != nil && !errors.Is(err, appErrors.ErrPostFinalized) {
			return out, fmt.Errorf("block duplicate post: %w", err)
		}
		w.Metrics.PostStatus(string(model.PostStatusBlocked))
		w.announce(ctx, notify.PostEvent{
			PostID:      post.ID,
			JobKey:      payload.JobKey,
			CandidateID: candidate.ID,
			Status:      string(model.PostStatusBlocked),
			ErrorCode:   "DUPLICATE",
		})
		out.Status = OutcomeDuplicate
		return out, nil
	}

	variant := &model.Variant{
		CandidateID: candidate.ID,
		Text:        result.Text,
		Fingerprint: dedupe.Fingerprint(result.Text),
		Style:       result.Style,
	}
	if err := w.Variants.Create(ctx, variant); err != nil {
		return out, fmt.Errorf("create variant: %w", err)
	}
	if err := w.Posts.AttachVariant(ctx, post.ID, candidate.ID, variant.ID, assetRef); err != nil {
		return out, fmt.Errorf("attach variant: %w", err)
	}

	mediaRef := w.prepareMedia(ctx, log, candidate, payload.JobKey)
	link := w.trackingLink(log, candidate)

	_, err = w.Broker.Enqueue(ctx, queue.Request{
		Queue: queue.PublishQueue,
		Key:   PublishKey(payload.JobKey),
		Payload: model.PublishPayload{
			PostID:       post.ID,
			JobKey:       payload.JobKey,
			CandidateID:  candidate.ID,
			Text:         result.Text,
			TrackingLink: link,
			MediaRef:     mediaRef,
		},
		MaxAttempts: queue.DefaultMaxAttempts(queue.PublishQueue),
	})
	if err != nil {
		return out, fmt.Errorf("enqueue publish job: %w", err)
	}

	out.Status = OutcomeEnqueued
	return out, nil
}

// prepareMedia returns nil when no clip could be produced; the post then goes out text-only.
func (w *SelectionWorker) prepareMedia(ctx context.Context, log logging.Logger, c *model.Candidate, jobKey string) *string {
	if w.Media == nil {
		return nil
	}
	source := c.SourceURL
	if source == "" {
		source = w.FallbackMediaPath
	}
	if source == "" {
		return nil
	}

	path, err := w.Media.Prepare(ctx, source, ClipName(jobKey))
	if err != nil {
		w.Metrics.Fallback("media")
		log.WithError(err).WithField("source", source).Warn("Media preparation failed, posting without media")
		return nil
	}
	return &path
}

func (w *SelectionWorker) trackingLink(log logging.Logger, c *model.Candidate) string {
	term := c.Category
	if term == "" {
		term = "none"
	}
	link, err := selector.TrackingLink(c.SourceURL, w.Campaign, c.ID, term)
	if err != nil {
		log.WithError(err).Warn("Could not build tracking link")
		return ""
	}
	return link
}

func (w *SelectionWorker) announce(ctx context.Context, event notify.PostEvent) {
	if w.Notifier == nil {
		return
	}
	event.OccurredAt = time.Now().UTC()
	if err := w.Notifier.PublishPostEvent(ctx, event); err != nil {
		w.logger().WithError(err).WithField("post_id", event.PostID).Warn("Failed to publish post event")
	}
}

// PublishKey is the dedup key of the publish job spawned by a selection job.
func PublishKey(jobKey string) string {
	return "publish|" + jobKey
}

var clipNameReplacer = strings.NewReplacer("|", "-", "/", "-", ":", "-")

// ClipName is the output file name for the teaser cut for a job key.
func ClipName(jobKey string) string {
	return "teaser-" + clipNameReplacer.Replace(jobKey) + ".mp4"
}
