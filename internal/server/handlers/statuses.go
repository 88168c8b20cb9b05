package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/greater-social/greater/internal/core"
	"github.com/greater-social/greater/internal/core/client"
	"github.com/greater-social/greater/internal/core/offline"
	apperrors "github.com/greater-social/greater/internal/errors"
	"github.com/greater-social/greater/internal/observability"
)

// maxComposeBody bounds the compose request body.
const maxComposeBody = 1 << 20

// Publisher posts a status with a caller-chosen idempotency key.
type Publisher interface {
	CreateStatusWithKey(ctx context.Context, params core.CreateStatusParams, idempotencyKey string) (*core.Status, error)
}

// Composer publishes statuses through the API client and falls back to the
// offline queue when the instance cannot be reached.
type Composer struct {
	Publisher Publisher
	Queue     *offline.Queue
}

// QueuedResponse is returned with 202 when a status was queued.
type QueuedResponse struct {
	Queued bool   `json:"queued"`
	ID     string `json:"id"`
}

// QueueResponse lists the offline queue.
type QueueResponse struct {
	Online  bool               `json:"online"`
	Pending []core.OfflinePost `json:"pending"`
	Failed  []core.OfflinePost `json:"failed"`
}

// SyncResponse summarizes a sync pass.
type SyncResponse struct {
	Synced  int  `json:"synced"`
	Failed  int  `json:"failed"`
	Dropped int  `json:"dropped"`
	Skipped bool `json:"skipped"`
}

// CreateStatus handles POST /api/v1/statuses.
func (c *Composer) CreateStatus(w http.ResponseWriter, r *http.Request) {
	var params core.CreateStatusParams
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxComposeBody))
	if err := dec.Decode(&params); err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid status body"))
		return
	}
	if strings.TrimSpace(params.Status) == "" && len(params.MediaIDs) == 0 {
		respondWithError(w, r, apperrors.NewInvalidInputError("status text or media is required"))
		return
	}

	key := r.Header.Get("Idempotency-Key")
	status, err := c.Publisher.CreateStatusWithKey(r.Context(), params, key)
	if err == nil {
		writeJSON(w, http.StatusOK, status)
		return
	}

	if c.Queue == nil || !client.IsNetworkError(err) || r.Context().Err() != nil {
		respondWithError(w, r, apperrors.FromClientError(r.Context(), err))
		return
	}

	id, qerr := c.Queue.AddPostWithKey(r.Context(), params, key)
	if id == "" {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), qerr, "failed to queue status"))
		return
	}
	if qerr != nil {
		if logger := observability.ServerLogger; logger != nil {
			logger.Warn("queue mirror write failed", zap.String("id", id), zap.Error(qerr))
		}
	}
	c.Queue.SetOnline(r.Context(), false) //nolint:errcheck // going offline never syncs

	writeJSON(w, http.StatusAccepted, QueuedResponse{Queued: true, ID: id})
}

// ListQueue handles GET /queue.
func (c *Composer) ListQueue(w http.ResponseWriter, r *http.Request) {
	if c.Queue == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("offline queue disabled"))
		return
	}
	writeJSON(w, http.StatusOK, QueueResponse{
		Online:  c.Queue.Online(),
		Pending: nonNil(c.Queue.Posts()),
		Failed:  nonNil(c.Queue.FailedPosts()),
	})
}

// SyncQueue handles POST /queue/sync. It marks the queue online first so an
// operator can force a replay after connectivity returns.
func (c *Composer) SyncQueue(w http.ResponseWriter, r *http.Request) {
	if c.Queue == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("offline queue disabled"))
		return
	}

	result, err := c.Queue.SetOnline(r.Context(), true)
	if err == nil && result.Skipped {
		result, err = c.Queue.SyncPosts(r.Context())
	}
	if err != nil {
		respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "queue sync failed"))
		return
	}

	writeJSON(w, http.StatusOK, SyncResponse{
		Synced:  result.Synced,
		Failed:  result.Failed,
		Dropped: result.Dropped,
		Skipped: result.Skipped,
	})
}

// DeleteQueued handles DELETE /queue/{id}: a pending post is removed, a
// failed draft is dismissed.
func (c *Composer) DeleteQueued(w http.ResponseWriter, r *http.Request) {
	if c.Queue == nil {
		respondWithError(w, r, apperrors.NewServiceUnavailableError("offline queue disabled"))
		return
	}

	id := chi.URLParam(r, "id")
	for _, post := range c.Queue.Posts() {
		if post.ID == id {
			if err := c.Queue.RemovePost(r.Context(), id); err != nil {
				respondWithError(w, r, apperrors.WrapDatabaseError(r.Context(), err, "failed to remove queued status"))
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	if err := c.Queue.Dismiss(r.Context(), id); err != nil {
		respondWithError(w, r, apperrors.WrapNotFound(r.Context(), err, "queued status not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(posts []core.OfflinePost) []core.OfflinePost {
	if posts == nil {
		return []core.OfflinePost{}
	}
	return posts
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
