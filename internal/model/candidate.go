// internal/model/candidate.go
package model

import "time"

// CandidateStats carries performance figures fed by the ingestion path.
type CandidateStats struct {
	CTR        float64 `json:"ctr"`
	Conversion float64 `json:"conv"`
}

type Candidate struct {
	ID               string          `db:"id" json:"id"`
	SourceURL        string          `db:"url" json:"url"`
	Title            string          `db:"title" json:"title"`
	Category         string          `db:"category" json:"category"`
	Tags             []string        `db:"tags" json:"tags"`
	PublishedAt      time.Time       `db:"published_at" json:"published_at"`
	Adult            bool            `db:"adult_18plus" json:"adult_18plus"`
	ConsentVerified  bool            `db:"consent_verified" json:"consent_verified"`
	SuspectedIllegal bool            `db:"suspected_illegal" json:"suspected_illegal"`
	ThumbnailURL     string          `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	Stats            *CandidateStats `db:"stats" json:"stats,omitempty"`
	LastPostedAt     *time.Time      `db:"last_posted_at" json:"last_posted_at,omitempty"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// Eligible reports whether the candidate passes all three compliance gates.
func (c *Candidate) Eligible() bool {
	return c.Adult && c.ConsentVerified && !c.SuspectedIllegal
}
