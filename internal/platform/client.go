// Package platform talks to the social network the posts are published on.
package platform

import (
	"context"

	"github.com/google/uuid"

	"github.com/unclebandit/autoposter/internal/logging"
)

// Client uploads media and submits posts. Throttling surfaces as *appErrors.RateLimitError,
// everything else as *appErrors.PublishError.
type Client interface {
	UploadMedia(ctx context.Context, path string) (string, error)
	SubmitPost(ctx context.Context, text string, mediaIDs []string) (string, error)
}

// DryRunClient logs instead of publishing and returns synthetic ids.
type DryRunClient struct {
	logger logging.Logger
}

func NewDryRunClient(logger logging.Logger) *DryRunClient {
	if logger == nil {
		logger = logging.Discard()
	}
	return &DryRunClient{logger: logger.WithFields(logging.Fields{"component": "platform", "dry_run": true})}
}

func (c *DryRunClient) UploadMedia(_ context.Context, path string) (string, error) {
	id := "dry-media-" + uuid.NewString()
	c.logger.WithFields(logging.Fields{"path": path, "media_id": id}).Info("Skipping media upload")
	return id, nil
}

func (c *DryRunClient) SubmitPost(_ context.Context, text string, mediaIDs []string) (string, error) {
	id := "dry-post-" + uuid.NewString()
	c.logger.WithFields(logging.Fields{"text": text, "media_ids": mediaIDs, "post_id": id}).Info("Skipping post submission")
	return id, nil
}

var _ Client = (*DryRunClient)(nil)
