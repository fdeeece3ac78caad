// internal/service/post_service.go
package service

import (
	"context"
	"strings"

	appErrors "github.com/unclebandit/autoposter/internal/errors"
	"github.com/unclebandit/autoposter/internal/model"
	"github.com/unclebandit/autoposter/internal/repository"
)

const (
	LatestPostsLimit = 50
	RecentPostsLimit = 10
)

// PostService backs the admin and ingestion API.
type PostService struct {
	Posts      repository.PostRepositoryInterface
	Candidates repository.CandidateRepositoryInterface
	Events     repository.EventRepositoryInterface
}

type PostMetrics struct {
	Total      int `json:"total"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Blocked    int `json:"blocked"`
	Pending    int `json:"pending"`
}

// ListPosts fetches posts with pagination
func (s *PostService) ListPosts(ctx context.Context, page, pageSize int, status string) ([]model.Post, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	status = strings.ToUpper(strings.TrimSpace(status))
	if status != "" && !model.PostStatus(status).Valid() {
		return nil, nil, appErrors.NewValidationError("status", "must be one of PENDING, POSTED, FAILED, BLOCKED")
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.Posts.ListPage(ctx, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}
	posts := make([]model.Post, len(ptrs))
	for i, p := range ptrs {
		posts[i] = *p
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return posts, pagination, nil
}

func (s *PostService) LatestPosts(ctx context.Context) ([]model.Post, error) {
	posts, _, err := s.ListPosts(ctx, 1, LatestPostsLimit, "")
	return posts, err
}

func (s *PostService) RecentPosts(ctx context.Context) ([]model.PostSummary, error) {
	return s.Posts.ListRecent(ctx, RecentPostsLimit)
}

func (s *PostService) Metrics(ctx context.Context) (*PostMetrics, error) {
	counts, err := s.Posts.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}
	m := &PostMetrics{
		Successful: counts[model.PostStatusPosted],
		Failed:     counts[model.PostStatusFailed],
		Blocked:    counts[model.PostStatusBlocked],
		Pending:    counts[model.PostStatusPending],
	}
	for _, n := range counts {
		m.Total += n
	}
	return m, nil
}

// UpsertCandidate validates and stores a catalog entry.
func (s *PostService) UpsertCandidate(ctx context.Context, c *model.Candidate) error {
	c.ID = strings.TrimSpace(c.ID)
	c.Title = strings.TrimSpace(c.Title)
	switch {
	case c.ID == "":
		return appErrors.NewValidationError("id", "is required")
	case c.Title == "":
		return appErrors.NewValidationError("title", "is required")
	case strings.TrimSpace(c.SourceURL) == "":
		return appErrors.NewValidationError("url", "is required")
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return s.Candidates.Upsert(ctx, c)
}

// RecordEvent stores an engagement event from the tracking frontend.
func (s *PostService) RecordEvent(ctx context.Context, e *model.Event) error {
	if strings.TrimSpace(e.SessionID) == "" {
		return appErrors.NewValidationError("sessionId", "is required")
	}
	if strings.TrimSpace(e.EventType) == "" {
		return appErrors.NewValidationError("eventType", "is required")
	}
	if e.CandidateID != "" {
		if _, err := s.Candidates.GetByID(ctx, e.CandidateID); err != nil {
			return err
		}
	}
	return s.Events.Create(ctx, e)
}
