package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/clipcast/backend/internal/config"
	"github.com/clipcast/backend/internal/db"
	"github.com/clipcast/backend/internal/handlers"
	"github.com/clipcast/backend/internal/logging"
	"github.com/clipcast/backend/internal/middleware"
	"github.com/clipcast/backend/internal/repositories"
	"github.com/clipcast/backend/internal/youtube"
)

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config) (handlers.Dependencies, error) {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		return handlers.Dependencies{}, errors.New("google oauth client id and secret are required")
	}

	conf := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	}

	store := repositories.NewPostgresCredentialStore(pool)
	tokens := youtube.NewTokenManager(conf, store)
	if err := tokens.Initialize(ctx); err != nil {
		return handlers.Dependencies{}, err
	}
	if !tokens.HasCredential() {
		logging.FromContext(ctx).Warn("no stored credential, consent flow required before publishing")
	}

	uploader := youtube.NewResumableUploader(&http.Client{}, youtube.UploaderOptions{
		BaseURL:    cfg.UploadBaseURL,
		ChunkSize:  cfg.UploadChunkSize,
		MaxRetries: cfg.ChunkMaxRetries,
		Timeout:    cfg.UploadTimeout,
	})
	videos := youtube.NewVideoClient(tokens)
	flow := youtube.NewAuthFlow(conf)
	client := youtube.NewClient(tokens, uploader, videos, flow)

	return handlers.Dependencies{
		Publisher:       client,
		Flow:            client,
		Limiter:         middleware.NewIPRateLimiter(30, time.Minute, 10, 5*time.Minute),
		RedirectBackURL: cfg.RedirectBackURL,
	}, nil
}
