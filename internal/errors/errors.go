// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
	"time"
)

// ErrCandidateNotFound is returned when a catalog lookup misses
type ErrCandidateNotFound struct {
	CandidateID string
}

func (e *ErrCandidateNotFound) Error() string {
	return fmt.Sprintf("candidate with ID %s not found", e.CandidateID)
}

func NewCandidateNotFound(id string) error {
	return &ErrCandidateNotFound{CandidateID: id}
}

// ErrPostNotFound is returned when a post lookup misses
type ErrPostNotFound struct {
	Ref string
}

func (e *ErrPostNotFound) Error() string {
	return fmt.Sprintf("post %s not found", e.Ref)
}

func NewPostNotFound(ref string) error {
	return &ErrPostNotFound{Ref: ref}
}

// ErrJobNotFound is returned when a queue job lookup misses or the job is not in the expected state
type ErrJobNotFound struct {
	JobID string
}

func (e *ErrJobNotFound) Error() string {
	return fmt.Sprintf("job %s not found", e.JobID)
}

func NewJobNotFound(id string) error {
	return &ErrJobNotFound{JobID: id}
}

// ErrPostFinalized is returned when a status write targets a POSTED or BLOCKED post.
var ErrPostFinalized = errors.New("post already in a final state")

// ValidationError rejects a malformed request at the API boundary.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// ConfigurationError is fatal and raised at startup only.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s=%q: %s", e.Field, e.Value, e.Reason)
}

func NewConfigurationError(field, value, reason string) error {
	return &ConfigurationError{Field: field, Value: value, Reason: reason}
}

// PublishError wraps a failed media upload or post submission.
type PublishError struct {
	Op   string // "upload_media" or "submit_post"
	Code string
	Err  error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s failed (%s): %v", e.Op, e.Code, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

func NewPublishError(op, code string, err error) error {
	return &PublishError{Op: op, Code: code, Err: err}
}

// RateLimitError is the platform throttling case of a publish failure.
type RateLimitError struct {
	Op         string
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited on %s (retry after %s): %v", e.Op, e.RetryAfter, e.Err)
	}
	return fmt.Sprintf("rate limited on %s: %v", e.Op, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func NewRateLimitError(op string, retryAfter time.Duration, err error) error {
	return &RateLimitError{Op: op, RetryAfter: retryAfter, Err: err}
}

// IsRateLimit reports whether err carries a RateLimitError anywhere in its chain.
func IsRateLimit(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// Code returns a short machine code for persisting on a failed post.
func Code(err error) string {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return "RATE_LIMITED"
	}
	var pe *PublishError
	if errors.As(err, &pe) && pe.Code != "" {
		return pe.Code
	}
	return "UNKNOWN_ERROR"
}
