package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/autoposter/internal/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *XClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewXClient(context.Background(), XConfig{
		APIURL:      server.URL + "/2/",
		UploadURL:   server.URL + "/2/media/upload",
		AccessToken: "user-token",
	}, nil)
}

func TestSubmitPostSendsTextAndFirstMedia(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets", r.URL.Path)
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))

		var req postRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hello\nhttps://example.com", req.Text)
		require.NotNil(t, req.Media)
		assert.Equal(t, []string{"m1"}, req.Media.MediaIDs)

		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"data":{"id":"1790000000000000000","text":"hello"}}`)
	})

	id, err := client.SubmitPost(context.Background(), "hello\nhttps://example.com", []string{"m1", "m2"})
	require.NoError(t, err)
	assert.Equal(t, "1790000000000000000", id)
}

func TestSubmitPostWithoutMediaOmitsField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		assert.NotContains(t, string(raw), "media")
		fmt.Fprint(w, `{"data":{"id":"42"}}`)
	})

	id, err := client.SubmitPost(context.Background(), "text only", nil)
	require.NoError(t, err)
	assert.Equal(t, "42", id)
}

func TestSubmitPostRateLimited(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "900")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"title":"Too Many Requests"}`)
	})

	_, err := client.SubmitPost(context.Background(), "x", nil)
	var rl *appErrors.RateLimitError
	require.True(t, errors.As(err, &rl))
	assert.Equal(t, 15*time.Minute, rl.RetryAfter)
	assert.Equal(t, "RATE_LIMITED", appErrors.Code(err))

	var pe *appErrors.PublishError
	assert.False(t, errors.As(err, &pe))
}

func TestSubmitPostServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	})

	_, err := client.SubmitPost(context.Background(), "x", nil)
	var pe *appErrors.PublishError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "HTTP_503", pe.Code)
	assert.Equal(t, opSubmit, pe.Op)
	assert.False(t, appErrors.IsRateLimit(err))
}

func TestUploadMedia(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/media/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("media")
		require.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "teaser.mp4", header.Filename)
		assert.Equal(t, "clip-bytes", string(content))
		assert.Equal(t, "tweet_video", r.FormValue("media_category"))
		fmt.Fprint(w, `{"data":{"id":"media-7"}}`)
	})

	path := filepath.Join(t.TempDir(), "teaser.mp4")
	require.NoError(t, os.WriteFile(path, []byte("clip-bytes"), 0o644))

	id, err := client.UploadMedia(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "media-7", id)
}

func TestUploadMediaMissingFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := client.UploadMedia(context.Background(), "/nope/teaser.mp4")
	assert.Equal(t, "MEDIA_UNREADABLE", appErrors.Code(err))
}

func TestRetryAfterFromResetHeader(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := http.Header{}
	h.Set("x-rate-limit-reset", "1700000060")
	assert.Equal(t, time.Minute, retryAfter(h, now))
	assert.Equal(t, time.Duration(0), retryAfter(http.Header{}, now))
}

func TestDryRunClient(t *testing.T) {
	c := NewDryRunClient(nil)
	mediaID, err := c.UploadMedia(context.Background(), "/tmp/x.mp4")
	require.NoError(t, err)
	postID, err := c.SubmitPost(context.Background(), "hello", []string{mediaID})
	require.NoError(t, err)
	assert.Contains(t, postID, "dry-post-")
}
