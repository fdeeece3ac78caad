package repository

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

type PostRepositoryInterface interface {
	CreatePending(ctx context.Context, jobKey, candidateID string) (*model.Post, bool, error)
	GetByID(ctx context.Context, id string) (*model.Post, error)
	GetByJobKey(ctx context.Context, jobKey string) (*model.Post, error)
	AttachVariant(ctx context.Context, postID, candidateID, variantID, assetRef string) error
	MarkPosted(ctx context.Context, postID, platformPostID string, mediaRef *string, postedAt time.Time) error
	MarkFailed(ctx context.Context, postID, code, message string) error
	MarkBlocked(ctx context.Context, postID, reason string) error
	ListRecent(ctx context.Context, limit int) ([]model.PostSummary, error)
	ListPage(ctx context.Context, offset, limit int, status string) ([]*model.Post, int, error)
	StatusCounts(ctx context.Context) (map[model.PostStatus]int, error)
	ListRecentPostedVariants(ctx context.Context, since time.Time) ([]model.PostedVariant, error)
}

// PostRepository persists post lifecycle rows. Rows in POSTED or BLOCKED are never written again.
type PostRepository struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewPostRepository(db *sql.DB) *PostRepository {
	return &PostRepository{DB: db, Now: time.Now}
}

const postColumns = `id, job_key, video_id, variant_id, status, asset_ref, media_ref, platform_post_id,
	error_code, error_message, created_at, posted_at, updated_at`

const notFinal = `status NOT IN ('POSTED', 'BLOCKED')`

func (r *PostRepository) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// CreatePending inserts a PENDING post for jobKey. When the key already exists the stored
// post is returned with created=false.
func (r *PostRepository) CreatePending(ctx context.Context, jobKey, candidateID string) (*model.Post, bool, error) {
	query := `
		INSERT INTO posts (id, job_key, video_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (job_key) DO NOTHING
		RETURNING ` + postColumns
	post, err := scanPost(r.DB.QueryRowContext(ctx, query,
		uuid.NewString(), jobKey, candidateID, model.PostStatusPending, r.now(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := r.GetByJobKey(ctx, jobKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("create post %s: %w", jobKey, err)
	}
	return post, true, nil
}

func (r *PostRepository) GetByID(ctx context.Context, id string) (*model.Post, error) {
	post, err := scanPost(r.DB.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewPostNotFound(id)
	}
	return post, err
}

func (r *PostRepository) GetByJobKey(ctx context.Context, jobKey string) (*model.Post, error) {
	post, err := scanPost(r.DB.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE job_key = $1`, jobKey))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewPostNotFound(jobKey)
	}
	return post, err
}

// AttachVariant links the chosen candidate, its caption and the media reference checked for duplicates.
func (r *PostRepository) AttachVariant(ctx context.Context, postID, candidateID, variantID, assetRef string) error {
	query := `
		UPDATE posts SET video_id = $2, variant_id = $3, asset_ref = $4, updated_at = $5
		WHERE id = $1 AND ` + notFinal
	return r.guardedUpdate(ctx, postID, query, candidateID, variantID, assetRef, r.now())
}

func (r *PostRepository) MarkPosted(ctx context.Context, postID, platformPostID string, mediaRef *string, postedAt time.Time) error {
	query := `
		UPDATE posts SET status = $2, platform_post_id = $3, media_ref = $4, posted_at = $5,
			error_code = NULL, error_message = NULL, updated_at = $6
		WHERE id = $1 AND ` + notFinal
	return r.guardedUpdate(ctx, postID, query, model.PostStatusPosted, platformPostID, mediaRef, postedAt.UTC(), r.now())
}

// MarkFailed records a failed attempt. A later attempt may still move the post to POSTED.
func (r *PostRepository) MarkFailed(ctx context.Context, postID, code, message string) error {
	query := `
		UPDATE posts SET status = $2, error_code = $3, error_message = $4, updated_at = $5
		WHERE id = $1 AND ` + notFinal
	return r.guardedUpdate(ctx, postID, query, model.PostStatusFailed, code, message, r.now())
}

func (r *PostRepository) MarkBlocked(ctx context.Context, postID, reason string) error {
	query := `
		UPDATE posts SET status = $2, error_code = $3, error_message = $4, updated_at = $5
		WHERE id = $1 AND ` + notFinal
	return r.guardedUpdate(ctx, postID, query, model.PostStatusBlocked, "DUPLICATE", reason, r.now())
}

// guardedUpdate runs a status write and tells a finalized row apart from a missing one.
func (r *PostRepository) guardedUpdate(ctx context.Context, postID, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, append([]any{postID}, args...)...)
	if err != nil {
		return fmt.Errorf("update post %s: %w", postID, err)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}

	var exists bool
	if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM posts WHERE id = $1)`, postID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return appErrors.ErrPostFinalized
	}
	return appErrors.NewPostNotFound(postID)
}

// ListRecent returns the newest posts with their candidate title and caption.
func (r *PostRepository) ListRecent(ctx context.Context, limit int) ([]model.PostSummary, error) {
	query := `
		SELECT p.id, p.job_key, p.video_id, p.variant_id, p.status, p.asset_ref, p.media_ref, p.platform_post_id,
			p.error_code, p.error_message, p.created_at, p.posted_at, p.updated_at,
			v.title, COALESCE(va.text, '')
		FROM posts p
		JOIN videos v ON v.id = p.video_id
		LEFT JOIN variants va ON va.id = p.variant_id
		ORDER BY p.created_at DESC
		LIMIT $1
	`
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent posts: %w", err)
	}
	defer rows.Close()

	summaries := []model.PostSummary{}
	for rows.Next() {
		var s model.PostSummary
		post, err := scanPost(rows, &s.CandidateTitle, &s.VariantText)
		if err != nil {
			return nil, err
		}
		s.Post = *post
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// ListPage returns one page of posts, newest first, and the total matching the filter.
func (r *PostRepository) ListPage(ctx context.Context, offset, limit int, status string) ([]*model.Post, int, error) {
	where := ""
	args := []any{}
	if status != "" {
		where = " WHERE status = $1"
		args = append(args, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + postColumns + ` FROM posts` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	rows, err := r.DB.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	posts := []*model.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, post)
	}
	return posts, total, rows.Err()
}

func (r *PostRepository) StatusCounts(ctx context.Context) (map[model.PostStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM posts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[model.PostStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[model.PostStatus(status)] = n
	}
	return counts, rows.Err()
}

// ListRecentPostedVariants returns the captions and media of POSTED posts created at or after since.
func (r *PostRepository) ListRecentPostedVariants(ctx context.Context, since time.Time) ([]model.PostedVariant, error) {
	query := `
		SELECT p.id, va.text, va.text_hash, p.asset_ref, p.created_at
		FROM posts p
		JOIN variants va ON va.id = p.variant_id
		WHERE p.status = $1 AND p.created_at >= $2
		ORDER BY p.created_at DESC
	`
	rows, err := r.DB.QueryContext(ctx, query, model.PostStatusPosted, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("list posted variants: %w", err)
	}
	defer rows.Close()

	var out []model.PostedVariant
	for rows.Next() {
		var pv model.PostedVariant
		if err := rows.Scan(&pv.PostID, &pv.Text, &pv.Fingerprint, &pv.MediaRef, &pv.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, pv)
	}
	return out, rows.Err()
}

func scanPost(row rowScanner, extra ...any) (*model.Post, error) {
	var p model.Post
	var status string
	var variantID, mediaRef, platformID, errCode, errMsg sql.NullString
	var postedAt sql.NullTime
	dest := []any{
		&p.ID, &p.JobKey, &p.CandidateID, &variantID, &status, &p.AssetRef, &mediaRef, &platformID,
		&errCode, &errMsg, &p.CreatedAt, &postedAt, &p.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	p.Status = model.PostStatus(status)
	p.VariantID = nullString(variantID)
	p.MediaRef = nullString(mediaRef)
	p.PlatformPostID = nullString(platformID)
	p.ErrorCode = nullString(errCode)
	p.ErrorMessage = nullString(errMsg)
	if postedAt.Valid {
		t := postedAt.Time
		p.PostedAt = &t
	}
	return &p, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

var _ PostRepositoryInterface = (*PostRepository)(nil)
