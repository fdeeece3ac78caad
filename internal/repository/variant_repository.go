package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/autoposter/internal/model"
)

type VariantRepositoryInterface interface {
	Create(ctx context.Context, v *model.Variant) error
}

type VariantRepository struct {
	DB *sql.DB
}

// Create stores a caption as used once, now.
func (r *VariantRepository) Create(ctx context.Context, v *model.Variant) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	v.CreatedAt = now
	v.UsedCount = 1
	v.LastUsedAt = &now

	query := `
		INSERT INTO variants (id, video_id, text, text_hash, style, used_count, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`
	_, err := r.DB.ExecContext(ctx, query, v.ID, v.CandidateID, v.Text, v.Fingerprint, v.Style, v.UsedCount, now)
	return err
}

var _ VariantRepositoryInterface = (*VariantRepository)(nil)
