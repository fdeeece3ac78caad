package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/autoposter/internal/model"
)

type EventRepositoryInterface interface {
	Create(ctx context.Context, e *model.Event) error
}

type EventRepository struct {
	DB *sql.DB
}

func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	var metadata any
	if len(e.Metadata) > 0 {
		metadata = string(e.Metadata)
	}

	query := `
		INSERT INTO events (id, session_id, event_type, utm_id, video_id, metadata, ts)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7)
	`
	_, err := r.DB.ExecContext(ctx, query, e.ID, e.SessionID, e.EventType, e.TrackingID, e.CandidateID, metadata, e.Timestamp)
	return err
}

var _ EventRepositoryInterface = (*EventRepository)(nil)
