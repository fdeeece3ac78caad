package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/autoposter/internal/errors"
	"github.com/unclebandit/autoposter/internal/model"
)

type CandidateRepositoryInterface interface {
	ListEligibleCandidates(ctx context.Context) ([]model.Candidate, error)
	Upsert(ctx context.Context, c *model.Candidate) error
	GetByID(ctx context.Context, id string) (*model.Candidate, error)
}

// CandidateRepository reads the video catalog.
type CandidateRepository struct {
	DB *sql.DB
}

const candidateColumns = `v.id, v.url, v.title, v.category, v.tags, v.published_at, v.adult_18plus,
	v.consent_verified, v.suspected_illegal, v.thumbnail_url, v.stats, v.created_at, v.updated_at`

// ListEligibleCandidates returns compliant videos with the creation time of their latest post of any status.
func (r *CandidateRepository) ListEligibleCandidates(ctx context.Context) ([]model.Candidate, error) {
	query := `
		SELECT ` + candidateColumns + `, lp.created_at
		FROM videos v
		LEFT JOIN LATERAL (
			SELECT p.created_at FROM posts p
			WHERE p.video_id = v.id
			ORDER BY p.created_at DESC
			LIMIT 1
		) lp ON TRUE
		WHERE v.adult_18plus AND v.consent_verified AND NOT v.suspected_illegal
		ORDER BY v.created_at, v.id
	`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list eligible candidates: %w", err)
	}
	defer rows.Close()

	candidates := []model.Candidate{}
	for rows.Next() {
		var lastPosted sql.NullTime
		c, err := scanCandidate(rows, &lastPosted)
		if err != nil {
			return nil, err
		}
		if lastPosted.Valid {
			t := lastPosted.Time
			c.LastPostedAt = &t
		}
		candidates = append(candidates, *c)
	}
	return candidates, rows.Err()
}

func (r *CandidateRepository) GetByID(ctx context.Context, id string) (*model.Candidate, error) {
	query := `SELECT ` + candidateColumns + ` FROM videos v WHERE v.id = $1`
	c, err := scanCandidate(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.NewCandidateNotFound(id)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Upsert inserts or fully replaces a catalog entry by id.
func (r *CandidateRepository) Upsert(ctx context.Context, c *model.Candidate) error {
	now := time.Now().UTC()
	if c.PublishedAt.IsZero() {
		c.PublishedAt = now
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	stats, err := encodeStats(c.Stats)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO videos (id, url, title, category, tags, published_at, adult_18plus, consent_verified,
			suspected_illegal, thumbnail_url, stats, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			published_at = EXCLUDED.published_at,
			adult_18plus = EXCLUDED.adult_18plus,
			consent_verified = EXCLUDED.consent_verified,
			suspected_illegal = EXCLUDED.suspected_illegal,
			thumbnail_url = EXCLUDED.thumbnail_url,
			stats = EXCLUDED.stats,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at
	`
	return r.DB.QueryRowContext(ctx, query,
		c.ID, c.SourceURL, c.Title, c.Category, pq.Array(c.Tags), c.PublishedAt, c.Adult, c.ConsentVerified,
		c.SuspectedIllegal, c.ThumbnailURL, stats, now,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

func encodeStats(stats *model.CandidateStats) (any, error) {
	if stats == nil {
		return nil, nil
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, fmt.Errorf("encode stats: %w", err)
	}
	return string(data), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCandidate(row rowScanner, extra ...any) (*model.Candidate, error) {
	var c model.Candidate
	var stats []byte
	dest := []any{
		&c.ID, &c.SourceURL, &c.Title, &c.Category, pq.Array(&c.Tags), &c.PublishedAt, &c.Adult,
		&c.ConsentVerified, &c.SuspectedIllegal, &c.ThumbnailURL, &stats, &c.CreatedAt, &c.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if len(stats) > 0 {
		c.Stats = &model.CandidateStats{}
		if err := json.Unmarshal(stats, c.Stats); err != nil {
			return nil, fmt.Errorf("decode stats for %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

var _ CandidateRepositoryInterface = (*CandidateRepository)(nil)
