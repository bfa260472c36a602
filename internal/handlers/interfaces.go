package handlers

import (
	"context"

	"golang.org/x/oauth2"
	youtubeapi "google.golang.org/api/youtube/v3"

	"github.com/clipcast/backend/internal/youtube"
)

// VideoPublisher abstracts publishing and managing videos on the remote
// platform.
type VideoPublisher interface {
	Upload(ctx context.Context, path string, data map[string]any, privacyStatus string) (*youtube.Upload, error)
	SetThumbnail(ctx context.Context, up *youtube.Upload, imagePath string) (*youtube.Upload, error)
	Exists(ctx context.Context, videoID string) (bool, error)
	Delete(ctx context.Context, videoID string) error
	Update(ctx context.Context, videoID string, data map[string]any, privacyStatus string) (*youtubeapi.Video, error)
}

// AuthorizationFlow abstracts the OAuth consent flow.
type AuthorizationFlow interface {
	ConsentURL() string
	ExchangeAndSave(ctx context.Context, code string) (*oauth2.Token, error)
}

var (
	_ VideoPublisher    = (*youtube.Client)(nil)
	_ AuthorizationFlow = (*youtube.Client)(nil)
)
