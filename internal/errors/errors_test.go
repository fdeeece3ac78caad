package appErrors

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitDistinguishedFromPublishError(t *testing.T) {
	rl := NewRateLimitError("submit_post", 15*time.Minute, errors.New("429 Too Many Requests"))
	wrapped := fmt.Errorf("publish job: %w", rl)

	assert.True(t, IsRateLimit(wrapped))
	assert.Equal(t, "RATE_LIMITED", Code(wrapped))

	var pe *PublishError
	assert.False(t, errors.As(wrapped, &pe))
}

func TestCodeFallsBackToUnknown(t *testing.T) {
	assert.Equal(t, "HTTP_500", Code(NewPublishError("submit_post", "HTTP_500", errors.New("boom"))))
	assert.Equal(t, "UNKNOWN_ERROR", Code(errors.New("plain")))
	assert.False(t, IsRateLimit(errors.New("plain")))
}

func TestConfigurationErrorMessage(t *testing.T) {
	err := NewConfigurationError("POST_WINDOWS", "25:00", "hour out of range")
	var ce *ConfigurationError
	assert.True(t, errors.As(err, &ce))
	assert.Contains(t, err.Error(), "POST_WINDOWS")
	assert.Contains(t, err.Error(), "hour out of range")
}

func TestValidationErrorMessage(t *testing.T) {
	err := fmt.Errorf("upsert: %w", NewValidationError("title", "is required"))
	var ve *ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "title", ve.Field)
	assert.Equal(t, "upsert: title: is required", err.Error())
}
