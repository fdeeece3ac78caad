// internal/model/post.go
package model

import "time"

type PostStatus string

const (
	PostStatusPending PostStatus = "PENDING"
	PostStatusPosted  PostStatus = "POSTED"
	PostStatusFailed  PostStatus = "FAILED"
	PostStatusBlocked PostStatus = "BLOCKED"
)

func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusPending, PostStatusPosted, PostStatusFailed, PostStatusBlocked:
		return true
	}
	return false
}

// Final reports whether no further transition is accepted from this status.
func (s PostStatus) Final() bool {
	return s == PostStatusPosted || s == PostStatusBlocked
}

type Post struct {
	ID             string     `db:"id" json:"id"`
	JobKey         string     `db:"job_key" json:"job_key"`
	CandidateID    string     `db:"video_id" json:"candidate_id"`
	VariantID      *string    `db:"variant_id" json:"variant_id,omitempty"`
	Status         PostStatus `db:"status" json:"status"`
	// AssetRef is the candidate media the duplicate guard compares; MediaRef is the prepared clip.
	AssetRef       string     `db:"asset_ref" json:"asset_ref,omitempty"`
	MediaRef       *string    `db:"media_ref" json:"media_ref,omitempty"`
	PlatformPostID *string    `db:"platform_post_id" json:"platform_post_id,omitempty"`
	ErrorCode      *string    `db:"error_code" json:"error_code,omitempty"`
	ErrorMessage   *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	PostedAt       *time.Time `db:"posted_at" json:"posted_at,omitempty"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// PostSummary is a post joined with its candidate title and variant text.
type PostSummary struct {
	Post
	CandidateTitle string `json:"candidate_title"`
	VariantText    string `json:"variant_text,omitempty"`
}
