package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/autoposter/internal/creative"
	appErrors "github.com/unclebandit/autoposter/internal/errors"
	"github.com/unclebandit/autoposter/internal/model"
	"github.com/unclebandit/autoposter/internal/notify"
)

// MockPostRepo keeps posts and their captions in memory.
type MockPostRepo struct {
	mu    sync.Mutex
	posts map[string]*model.Post
	byKey map[string]string
	texts map[string]string

	CreateErr error
}

func NewMockPostRepo() *MockPostRepo {
	return &MockPostRepo{
		posts: make(map[string]*model.Post),
		byKey: make(map[string]string),
		texts: make(map[string]string),
	}
}

func (m *MockPostRepo) CreatePending(_ context.Context, jobKey, candidateID string) (*model.Post, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return nil, false, m.CreateErr
	}
	if id, ok := m.byKey[jobKey]; ok {
		p := *m.posts[id]
		return &p, false, nil
	}
	now := time.Now().UTC()
	p := &model.Post{
		ID:          uuid.NewString(),
		JobKey:      jobKey,
		CandidateID: candidateID,
		Status:      model.PostStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.posts[p.ID] = p
	m.byKey[jobKey] = p.ID
	out := *p
	return &out, true, nil
}

func (m *MockPostRepo) GetByID(_ context.Context, id string) (*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, appErrors.NewPostNotFound(id)
	}
	out := *p
	return &out, nil
}

func (m *MockPostRepo) GetByJobKey(ctx context.Context, jobKey string) (*model.Post, error) {
	m.mu.Lock()
	id, ok := m.byKey[jobKey]
	m.mu.Unlock()
	if !ok {
		return nil, appErrors.NewPostNotFound(jobKey)
	}
	return m.GetByID(ctx, id)
}

func (m *MockPostRepo) update(postID string, fn func(p *model.Post)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return appErrors.NewPostNotFound(postID)
	}
	if p.Status.Final() {
		return appErrors.ErrPostFinalized
	}
	fn(p)
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MockPostRepo) AttachVariant(_ context.Context, postID, candidateID, variantID, assetRef string) error {
	return m.update(postID, func(p *model.Post) {
		p.CandidateID = candidateID
		p.VariantID = &variantID
		p.AssetRef = assetRef
	})
}

func (m *MockPostRepo) MarkPosted(_ context.Context, postID, platformPostID string, mediaRef *string, postedAt time.Time) error {
	return m.update(postID, func(p *model.Post) {
		p.Status = model.PostStatusPosted
		p.PlatformPostID = &platformPostID
		p.MediaRef = mediaRef
		p.PostedAt = &postedAt
		p.ErrorCode, p.ErrorMessage = nil, nil
	})
}

func (m *MockPostRepo) MarkFailed(_ context.Context, postID, code, message string) error {
	return m.update(postID, func(p *model.Post) {
		p.Status = model.PostStatusFailed
		p.ErrorCode = &code
		p.ErrorMessage = &message
	})
}

func (m *MockPostRepo) MarkBlocked(_ context.Context, postID, reason string) error {
	return m.update(postID, func(p *model.Post) {
		code := "DUPLICATE"
		p.Status = model.PostStatusBlocked
		p.ErrorCode = &code
		p.ErrorMessage = &reason
	})
}

func (m *MockPostRepo) ListRecent(_ context.Context, limit int) ([]model.PostSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PostSummary
	for _, p := range m.sortedLocked() {
		if len(out) == limit {
			break
		}
		s := model.PostSummary{Post: *p}
		if p.VariantID != nil {
			s.VariantText = m.texts[*p.VariantID]
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *MockPostRepo) ListPage(_ context.Context, offset, limit int, status string) ([]*model.Post, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*model.Post
	for _, p := range m.sortedLocked() {
		if status == "" || string(p.Status) == status {
			out := *p
			all = append(all, &out)
		}
	}
	if offset >= len(all) {
		return []*model.Post{}, len(all), nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], len(all), nil
}

func (m *MockPostRepo) StatusCounts(context.Context) (map[model.PostStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.PostStatus]int)
	for _, p := range m.posts {
		counts[p.Status]++
	}
	return counts, nil
}

func (m *MockPostRepo) ListRecentPostedVariants(_ context.Context, since time.Time) ([]model.PostedVariant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PostedVariant
	for _, p := range m.posts {
		if p.Status != model.PostStatusPosted || p.CreatedAt.Before(since) || p.VariantID == nil {
			continue
		}
		out = append(out, model.PostedVariant{
			PostID:    p.ID,
			Text:      m.texts[*p.VariantID],
			MediaRef:  p.AssetRef,
			CreatedAt: p.CreatedAt,
		})
	}
	return out, nil
}

// Seed stores a post as-is along with its caption.
func (m *MockPostRepo) Seed(p model.Post, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.VariantID == nil {
		vid := uuid.NewString()
		p.VariantID = &vid
	}
	m.texts[*p.VariantID] = text
	m.posts[p.ID] = &p
	m.byKey[p.JobKey] = p.ID
}

func (m *MockPostRepo) sortedLocked() []*model.Post {
	out := make([]*model.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// MockVariantRepo records created variants and shares captions with the post repo.
type MockVariantRepo struct {
	mu       sync.Mutex
	posts    *MockPostRepo
	Variants []model.Variant
}

func (m *MockVariantRepo) Create(_ context.Context, v *model.Variant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v.ID = uuid.NewString()
	v.UsedCount = 1
	m.Variants = append(m.Variants, *v)
	if m.posts != nil {
		m.posts.mu.Lock()
		m.posts.texts[v.ID] = v.Text
		m.posts.mu.Unlock()
	}
	return nil
}

type MockCandidateRepo struct {
	mu         sync.Mutex
	Candidates []model.Candidate
	Err        error
}

func (m *MockCandidateRepo) ListEligibleCandidates(context.Context) ([]model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	var out []model.Candidate
	for _, c := range m.Candidates {
		if c.Eligible() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *MockCandidateRepo) Upsert(_ context.Context, c *model.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Candidates {
		if m.Candidates[i].ID == c.ID {
			m.Candidates[i] = *c
			return nil
		}
	}
	m.Candidates = append(m.Candidates, *c)
	return nil
}

func (m *MockCandidateRepo) GetByID(_ context.Context, id string) (*model.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Candidates {
		if c.ID == id {
			out := c
			return &out, nil
		}
	}
	return nil, appErrors.NewCandidateNotFound(id)
}

type MockEventRepo struct {
	Events []model.Event
}

func (m *MockEventRepo) Create(_ context.Context, e *model.Event) error {
	e.ID = uuid.NewString()
	m.Events = append(m.Events, *e)
	return nil
}

// fakePlatform records uploads and submissions.
type fakePlatform struct {
	mu         sync.Mutex
	Uploads    []string
	Texts      []string
	MediaIDs   [][]string
	SubmitErrs []error
}

func (f *fakePlatform) UploadMedia(_ context.Context, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Uploads = append(f.Uploads, path)
	return "media-1", nil
}

func (f *fakePlatform) SubmitPost(_ context.Context, text string, mediaIDs []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Texts = append(f.Texts, text)
	f.MediaIDs = append(f.MediaIDs, mediaIDs)
	if len(f.SubmitErrs) > 0 {
		err := f.SubmitErrs[0]
		f.SubmitErrs = f.SubmitErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "tweet-1", nil
}

type fakePreparer struct {
	Path    string
	Err     error
	Sources []string
	Names   []string
}

func (f *fakePreparer) Prepare(_ context.Context, source, outputName string) (string, error) {
	f.Sources = append(f.Sources, source)
	f.Names = append(f.Names, outputName)
	if f.Err != nil {
		return "", f.Err
	}
	return f.Path, nil
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, creative.Brief) (string, error) {
	return "", errors.New("llm offline")
}

type recordingNotifier struct {
	mu     sync.Mutex
	Events []notify.PostEvent
}

func (r *recordingNotifier) PublishPostEvent(_ context.Context, e notify.PostEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
	return nil
}

func (r *recordingNotifier) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Status
	}
	return out
}

type seqRandom struct {
	floats []float64
}

func (s *seqRandom) Float64() float64 {
	if len(s.floats) == 0 {
		return 0.99
	}
	f := s.floats[0]
	s.floats = s.floats[1:]
	return f
}

func (s *seqRandom) Intn(int) int { return 0 }

type fixedGenerator struct {
	text string
}

func (g fixedGenerator) Generate(context.Context, creative.Brief) (string, error) {
	return g.text, nil
}

// cancellingPlatform cancels the handler context once the platform has answered,
// the way a shutdown signal can land mid-publish.
type cancellingPlatform struct {
	*fakePlatform
	cancel context.CancelFunc
}

func (c *cancellingPlatform) SubmitPost(ctx context.Context, text string, mediaIDs []string) (string, error) {
	defer c.cancel()
	return c.fakePlatform.SubmitPost(ctx, text, mediaIDs)
}

// ctxPostStore rejects writes on a done context like database/sql does.
type ctxPostStore struct {
	*MockPostRepo
}

func (s ctxPostStore) MarkPosted(ctx context.Context, postID, platformPostID string, mediaRef *string, postedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MockPostRepo.MarkPosted(ctx, postID, platformPostID, mediaRef, postedAt)
}

func (s ctxPostStore) MarkFailed(ctx context.Context, postID, code, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.MockPostRepo.MarkFailed(ctx, postID, code, message)
}
