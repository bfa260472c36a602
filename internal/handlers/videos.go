package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/clipcast/backend/internal/logging"
	"github.com/clipcast/backend/internal/youtube"
)

// VideoHandler exposes publish and management endpoints for remote videos.
type VideoHandler struct {
	Publisher VideoPublisher
	Limiter   RateLimiter
}

// Publish handles POST /api/v1/videos: it uploads a server-local media file
// and optionally attaches a custom thumbnail.
func (h VideoHandler) Publish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Publisher == nil {
		logger.Error("video publisher unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "publishing unavailable"})
		return
	}
	if !allowRequest(h.Limiter, r, "publish") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	var req publishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid publish payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.FilePath = strings.TrimSpace(req.FilePath)
	if req.FilePath == "" {
		logger.Warn("publish missing file path")
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "file_path is required"})
		return
	}
	if req.PrivacyStatus == "" {
		req.PrivacyStatus = "private"
	}

	up, err := h.Publisher.Upload(ctx, req.FilePath, req.Metadata, req.PrivacyStatus)
	if err != nil {
		respondError(ctx, w, "publish failed", err)
		return
	}

	if thumb := strings.TrimSpace(req.ThumbnailPath); thumb != "" {
		withThumb, err := h.Publisher.SetThumbnail(ctx, up, thumb)
		if err != nil {
			// The video is live at this point; report the partial result from
			// the pre-thumbnail upload.
			logger.Error("thumbnail upload failed", "videoId", up.VideoID(), "error", err)
			respondJSON(ctx, w, http.StatusCreated, publishResponse{
				VideoID: up.VideoID(),
				Warning: "video published but thumbnail upload failed",
			})
			return
		}
		up = withThumb
	}

	respondJSON(ctx, w, http.StatusCreated, publishResponse{
		VideoID:      up.VideoID(),
		ThumbnailURL: up.ThumbnailURL(),
	})
}

// Resource handles /api/v1/videos/{id}: GET reports existence, PUT replaces
// metadata, DELETE removes the remote video.
func (h VideoHandler) Resource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Publisher == nil {
		logger.Error("video publisher unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "publishing unavailable"})
		return
	}

	videoID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/videos/"), "/")
	if videoID == "" || strings.Contains(videoID, "/") {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "video id is required"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		exists, err := h.Publisher.Exists(ctx, videoID)
		if err != nil {
			respondError(ctx, w, "existence check failed", err)
			return
		}
		respondJSON(ctx, w, http.StatusOK, map[string]any{"id": videoID, "exists": exists})

	case http.MethodPut:
		var req updateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Warn("invalid update payload", "error", err)
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.PrivacyStatus == "" {
			req.PrivacyStatus = "private"
		}

		updated, err := h.Publisher.Update(ctx, videoID, req.Metadata, req.PrivacyStatus)
		if err != nil {
			respondError(ctx, w, "update failed", err)
			return
		}
		respondJSON(ctx, w, http.StatusOK, map[string]any{"id": updated.Id})

	case http.MethodDelete:
		if err := h.Publisher.Delete(ctx, videoID); err != nil {
			respondError(ctx, w, "delete failed", err)
			return
		}
		respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "deleted"})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// respondError maps domain errors onto HTTP statuses.
func respondError(ctx context.Context, w http.ResponseWriter, message string, err error) {
	logger := logging.FromContext(ctx)

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, youtube.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, youtube.ErrAuthenticationRequired),
		errors.Is(err, youtube.ErrRefreshTokenUnavailable):
		status = http.StatusUnauthorized
	case errors.Is(err, youtube.ErrVideoNotFound):
		status = http.StatusNotFound
	case errors.Is(err, youtube.ErrTokenRefreshFailed),
		errors.Is(err, youtube.ErrSessionInitiation),
		errors.Is(err, youtube.ErrUploadRejected):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError || status == http.StatusBadGateway {
		logger.Error(message, "status", status, "error", err)
	} else {
		logger.Warn(message, "status", status, "error", err)
	}
	respondJSON(ctx, w, status, map[string]string{"error": message})
}

type publishRequest struct {
	FilePath      string         `json:"file_path"`
	ThumbnailPath string         `json:"thumbnail_path"`
	PrivacyStatus string         `json:"privacy_status"`
	Metadata      map[string]any `json:"metadata"`
}

type publishResponse struct {
	VideoID      string `json:"videoId"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Warning      string `json:"warning,omitempty"`
}

type updateRequest struct {
	PrivacyStatus string         `json:"privacy_status"`
	Metadata      map[string]any `json:"metadata"`
}
