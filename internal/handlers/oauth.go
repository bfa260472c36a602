package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/clipcast/backend/internal/logging"
	"github.com/clipcast/backend/internal/youtube"
)

// OAuthHandler drives the Google consent flow over HTTP.
type OAuthHandler struct {
	Flow    AuthorizationFlow
	Limiter RateLimiter

	// RedirectBackURL is where the browser lands after a completed callback.
	RedirectBackURL string
}

// Authorize handles GET /youtube/auth by redirecting the browser to Google's
// consent page.
func (h OAuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Flow == nil {
		logger.Error("authorization flow unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "authorization unavailable"})
		return
	}
	if !allowRequest(h.Limiter, r, "oauth") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	http.Redirect(w, r, h.Flow.ConsentURL(), http.StatusFound)
}

// Callback handles GET /youtube/callback: it exchanges the authorization code
// Google appended to the redirect and stores the resulting credential.
func (h OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Flow == nil {
		logger.Error("authorization flow unavailable")
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "authorization unavailable"})
		return
	}
	if !allowRequest(h.Limiter, r, "oauth") {
		respondJSON(ctx, w, http.StatusTooManyRequests, map[string]string{"error": "too many requests"})
		return
	}

	if denied := r.URL.Query().Get("error"); denied != "" {
		logger.Warn("consent denied", "reason", denied)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "consent was not granted"})
		return
	}

	code := strings.TrimSpace(r.URL.Query().Get("code"))
	if code == "" {
		logger.Warn("callback missing authorization code")
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "authorization code is required"})
		return
	}

	if _, err := h.Flow.ExchangeAndSave(ctx, code); err != nil {
		switch {
		case errors.Is(err, youtube.ErrInvalidInput):
			logger.Warn("invalid authorization code", "error", err)
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid authorization code"})
		case errors.Is(err, youtube.ErrPersistence):
			logger.Error("failed to store credential", "error", err)
			respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to store credential"})
		default:
			logger.Error("authorization code exchange failed", "error", err)
			respondJSON(ctx, w, http.StatusBadGateway, map[string]string{"error": "authorization failed"})
		}
		return
	}

	logger.Info("youtube account authorized")
	if h.RedirectBackURL != "" {
		http.Redirect(w, r, h.RedirectBackURL, http.StatusFound)
		return
	}
	respondJSON(ctx, w, http.StatusOK, map[string]string{"status": "authorized"})
}
