package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	appErrors "github.com/unclebandit/autoposter/internal/errors"
	"github.com/unclebandit/autoposter/internal/logging"
)

const (
	opUpload = "upload_media"
	opSubmit = "submit_post"
)

// XConfig points the client at the X API.
type XConfig struct {
	APIURL      string
	UploadURL   string
	AccessToken string
	Timeout     time.Duration
}

// XClient publishes through the X v2 API with a user-context bearer token.
type XClient struct {
	http      *http.Client
	apiURL    string
	uploadURL string
	logger    logging.Logger
}

func NewXClient(ctx context.Context, cfg XConfig, logger logging.Logger) *XClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = logging.Discard()
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = cfg.Timeout

	return &XClient{
		http:      httpClient,
		apiURL:    strings.TrimRight(cfg.APIURL, "/"),
		uploadURL: cfg.UploadURL,
		logger:    logger.WithField("component", "platform"),
	}
}

type mediaUploadResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
	MediaIDString string `json:"media_id_string"`
}

// UploadMedia sends the file as multipart form field "media" and returns the media id.
func (c *XClient) UploadMedia(ctx context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", appErrors.NewPublishError(opUpload, "MEDIA_UNREADABLE", err)
	}
	defer f.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", appErrors.NewPublishError(opUpload, "MEDIA_UNREADABLE", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", appErrors.NewPublishError(opUpload, "MEDIA_UNREADABLE", err)
	}
	if err := form.WriteField("media_category", "tweet_video"); err != nil {
		return "", appErrors.NewPublishError(opUpload, "MEDIA_UNREADABLE", err)
	}
	if err := form.Close(); err != nil {
		return "", appErrors.NewPublishError(opUpload, "MEDIA_UNREADABLE", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.uploadURL, &body)
	if err != nil {
		return "", appErrors.NewPublishError(opUpload, "REQUEST_INVALID", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var out mediaUploadResponse
	if err := c.do(req, opUpload, &out); err != nil {
		return "", err
	}
	id := out.Data.ID
	if id == "" {
		id = out.MediaIDString
	}
	if id == "" {
		return "", appErrors.NewPublishError(opUpload, "MALFORMED_RESPONSE", errors.New("no media id in response"))
	}
	c.logger.WithFields(logging.Fields{"path": path, "media_id": id}).Info("Uploaded media")
	return id, nil
}

type postRequest struct {
	Text  string     `json:"text"`
	Media *postMedia `json:"media,omitempty"`
}

type postMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type postResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// SubmitPost creates a post and returns its platform id. Only the first media id is attached.
func (c *XClient) SubmitPost(ctx context.Context, text string, mediaIDs []string) (string, error) {
	payload := postRequest{Text: text}
	if len(mediaIDs) > 0 {
		payload.Media = &postMedia{MediaIDs: mediaIDs[:1]}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", appErrors.NewPublishError(opSubmit, "REQUEST_INVALID", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/tweets", bytes.NewReader(data))
	if err != nil {
		return "", appErrors.NewPublishError(opSubmit, "REQUEST_INVALID", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var out postResponse
	if err := c.do(req, opSubmit, &out); err != nil {
		return "", err
	}
	if out.Data.ID == "" {
		return "", appErrors.NewPublishError(opSubmit, "MALFORMED_RESPONSE", errors.New("no post id in response"))
	}
	return out.Data.ID, nil
}

func (c *XClient) do(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return appErrors.NewPublishError(op, "NETWORK_ERROR", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode == http.StatusTooManyRequests {
		return appErrors.NewRateLimitError(op, retryAfter(resp.Header, time.Now()),
			fmt.Errorf("rate limit exceeded on X API: %s", strings.TrimSpace(string(body))))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return appErrors.NewPublishError(op, "HTTP_"+strconv.Itoa(resp.StatusCode),
			fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return appErrors.NewPublishError(op, "MALFORMED_RESPONSE", err)
	}
	return nil
}

// retryAfter reads Retry-After seconds or the x-rate-limit-reset epoch.
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := h.Get("x-rate-limit-reset"); v != "" {
		if epoch, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(epoch, 0).Sub(now); d > 0 {
				return d
			}
		}
	}
	return 0
}

var _ Client = (*XClient)(nil)
