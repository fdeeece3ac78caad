// internal/model/variant.go
package model

import "time"

type Variant struct {
	ID          string     `db:"id" json:"id"`
	CandidateID string     `db:"video_id" json:"candidate_id"`
	Text        string     `db:"text" json:"text"`
	Fingerprint string     `db:"text_hash" json:"text_hash"`
	Style       string     `db:"style" json:"style"`
	UsedCount   int        `db:"used_count" json:"used_count"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// PostedVariant is the row shape returned by the post-history query.
type PostedVariant struct {
	PostID      string
	Text        string
	Fingerprint string
	MediaRef    string
	CreatedAt   time.Time
}
