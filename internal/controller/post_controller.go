// internal/controller/post_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/unclebandit/autoposter/internal/model"
	"github.com/unclebandit/autoposter/internal/service"
)

type PostController struct {
	PostService *service.PostService
}

func (c *PostController) ListPosts(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	status := r.URL.Query().Get("status")

	posts, pagination, err := c.PostService.ListPosts(r.Context(), page, pageSize, status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":       posts,
		"pagination": pagination,
	})
}

// LatestPosts serves the most recent posts of any status.
func (c *PostController) LatestPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := c.PostService.LatestPosts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if posts == nil {
		posts = []model.Post{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"posts": posts})
}

func (c *PostController) RecentPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := c.PostService.RecentPosts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if posts == nil {
		posts = []model.PostSummary{}
	}
	writeJSON(w, http.StatusOK, posts)
}

func (c *PostController) PostMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := c.PostService.Metrics(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (c *PostController) UpsertVideo(w http.ResponseWriter, r *http.Request) {
	var body model.Candidate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	if err := c.PostService.UpsertCandidate(r.Context(), &body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "upserted",
		"videoId": body.ID,
	})
}

func (c *PostController) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var body model.Event
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}

	if err := c.PostService.RecordEvent(r.Context(), &body); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ingested",
		"eventId": body.ID,
	})
}
