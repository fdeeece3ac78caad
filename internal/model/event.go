// internal/model/event.go
package model

import (
	"encoding/json"
	"time"
)

// Event is an engagement signal posted by the tracking frontend.
type Event struct {
	ID          string          `db:"id" json:"id"`
	SessionID   string          `db:"session_id" json:"sessionId"`
	EventType   string          `db:"event_type" json:"eventType"`
	TrackingID  string          `db:"utm_id" json:"utmId,omitempty"`
	CandidateID string          `db:"video_id" json:"videoId,omitempty"`
	Metadata    json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	Timestamp   time.Time       `db:"ts" json:"ts"`
}
