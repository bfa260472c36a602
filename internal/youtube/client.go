package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	youtubeapi "google.golang.org/api/youtube/v3"

	"github.com/clipcast/backend/internal/logging"
)

// Upload is the immutable result of one published video. Accessors read the
// captured resource; none of them issue network calls.
type Upload struct {
	videoID      string
	snippet      *youtubeapi.VideoSnippet
	thumbnailURL string
}

// NewUpload rehydrates an upload result from its parts, for callers outside
// the publish path.
func NewUpload(videoID string, snippet *youtubeapi.VideoSnippet, thumbnailURL string) *Upload {
	return &Upload{videoID: videoID, snippet: snippet, thumbnailURL: thumbnailURL}
}

// VideoID returns the server-assigned video identifier.
func (u *Upload) VideoID() string { return u.videoID }

// Snippet returns the snippet the server stored for the video.
func (u *Upload) Snippet() *youtubeapi.VideoSnippet { return u.snippet }

// ThumbnailURL returns the custom thumbnail URL, or empty when none was set.
func (u *Upload) ThumbnailURL() string { return u.thumbnailURL }

// Client is the single entry point for YouTube operations: publishing media,
// managing existing videos and driving the OAuth consent flow.
type Client struct {
	tokens   *TokenManager
	uploader *ResumableUploader
	videos   *VideoClient
	flow     *AuthFlow
}

// NewClient wires the collaborating components together.
func NewClient(tokens *TokenManager, uploader *ResumableUploader, videos *VideoClient, flow *AuthFlow) *Client {
	if tokens == nil || uploader == nil || videos == nil || flow == nil {
		panic("youtube: client requires all collaborators")
	}
	return &Client{tokens: tokens, uploader: uploader, videos: videos, flow: flow}
}

// Upload publishes a local media file with the given metadata and privacy
// status. The file must exist and be non-empty before any network traffic.
func (c *Client) Upload(ctx context.Context, path string, data map[string]any, privacyStatus string) (*Upload, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, path, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidInput, path)
	}

	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, path, err)
	}
	defer func() { _ = file.Close() }()

	body, err := c.uploader.Upload(ctx, token, UploadRequest{
		Path:        "/youtube/v3/videos",
		Query:       url.Values{"part": {"snippet,status"}},
		Metadata:    BuildVideoPayload(data, privacyStatus, ""),
		Content:     file,
		Size:        info.Size(),
		ContentType: mediaContentType(path),
	})
	if err != nil {
		return nil, err
	}

	var video youtubeapi.Video
	if err := json.Unmarshal(body, &video); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if video.Id == "" {
		return nil, fmt.Errorf("%w: upload response carried no video id", ErrUploadRejected)
	}

	logging.FromContext(ctx).Info("video published", "videoID", video.Id)
	return &Upload{videoID: video.Id, snippet: video.Snippet}, nil
}

// SetThumbnail uploads a custom thumbnail for an already published video and
// returns a copy of the upload result with the thumbnail URL filled in.
func (c *Client) SetThumbnail(ctx context.Context, up *Upload, imagePath string) (*Upload, error) {
	if up == nil || up.videoID == "" {
		return nil, fmt.Errorf("%w: no published video to attach a thumbnail to", ErrInvalidInput)
	}

	info, err := os.Stat(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, imagePath, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrInvalidInput, imagePath)
	}

	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidInput, imagePath, err)
	}
	defer func() { _ = file.Close() }()

	body, err := c.uploader.Upload(ctx, token, UploadRequest{
		Path:        "/youtube/v3/thumbnails/set",
		Query:       url.Values{"videoId": {up.videoID}},
		Content:     file,
		Size:        info.Size(),
		ContentType: imageContentType(imagePath),
	})
	if err != nil {
		return nil, err
	}

	var set youtubeapi.ThumbnailSetResponse
	if err := json.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("decode thumbnail response: %w", err)
	}

	result := *up
	if len(set.Items) > 0 && set.Items[0].Default != nil {
		result.thumbnailURL = set.Items[0].Default.Url
	}
	return &result, nil
}

// Exists reports whether the remote video exists.
func (c *Client) Exists(ctx context.Context, videoID string) (bool, error) {
	return c.videos.Exists(ctx, videoID)
}

// Delete removes the remote video.
func (c *Client) Delete(ctx context.Context, videoID string) error {
	return c.videos.Delete(ctx, videoID)
}

// Update replaces the remote video's metadata.
func (c *Client) Update(ctx context.Context, videoID string, data map[string]any, privacyStatus string) (*youtubeapi.Video, error) {
	return c.videos.Update(ctx, videoID, data, privacyStatus)
}

// ConsentURL returns the Google consent page URL for the configured scopes.
func (c *Client) ConsentURL() string {
	return c.flow.ConsentURL()
}

// ExchangeAndSave completes the consent flow: it exchanges the authorization
// code and installs the resulting credential.
func (c *Client) ExchangeAndSave(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := c.flow.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := c.tokens.Adopt(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// HasCredential reports whether a credential is installed.
func (c *Client) HasCredential() bool {
	return c.tokens.HasCredential()
}

func mediaContentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "video/*"
}

func imageContentType(path string) string {
	if ct := mime.TypeByExtension(filepath.Ext(path)); ct != "" {
		return ct
	}
	return "image/png"
}
