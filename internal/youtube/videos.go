package youtube

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	youtubeapi "google.golang.org/api/youtube/v3"
)

// videoParts are the resource parts read and written by video operations.
var videoParts = []string{"snippet", "status"}

// VideoClient performs metadata operations against existing remote videos
// through the typed Data API.
type VideoClient struct {
	tokens *TokenManager

	// endpoint overrides the API base URL; empty in production, set by tests.
	endpoint string
}

// NewVideoClient constructs a VideoClient bound to a token manager.
func NewVideoClient(tokens *TokenManager) *VideoClient {
	if tokens == nil {
		panic("youtube: token manager must not be nil")
	}
	return &VideoClient{tokens: tokens}
}

// service builds a per-call Data API client carrying a freshly validated
// token. Building per call keeps the token check at every operation boundary.
func (c *VideoClient) service(ctx context.Context) (*youtubeapi.Service, error) {
	token, err := c.tokens.EnsureValid(ctx)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithTokenSource(oauth2.StaticTokenSource(token))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	svc, err := youtubeapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("build youtube service: %w", err)
	}
	return svc, nil
}

// Exists reports whether a video with the given identifier is visible to the
// authorized channel.
func (c *VideoClient) Exists(ctx context.Context, videoID string) (bool, error) {
	if videoID == "" {
		return false, fmt.Errorf("%w: empty video id", ErrInvalidInput)
	}

	svc, err := c.service(ctx)
	if err != nil {
		return false, err
	}

	list, err := svc.Videos.List([]string{"status"}).Id(videoID).Context(ctx).Do()
	if err != nil {
		return false, fmt.Errorf("list video %s: %w", videoID, err)
	}
	return len(list.Items) > 0, nil
}

// Delete removes a remote video. Deleting a video that does not exist fails
// with ErrVideoNotFound rather than passing an opaque API error through.
func (c *VideoClient) Delete(ctx context.Context, videoID string) error {
	exists, err := c.Exists(ctx, videoID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}

	svc, err := c.service(ctx)
	if err != nil {
		return err
	}
	if err := svc.Videos.Delete(videoID).Context(ctx).Do(); err != nil {
		// The video can disappear between the existence check and the delete.
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == 404 {
			return fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
		}
		return fmt.Errorf("delete video %s: %w", videoID, err)
	}
	return nil
}

// Update replaces the snippet and status of a remote video with metadata built
// from the given fields.
func (c *VideoClient) Update(ctx context.Context, videoID string, data map[string]any, privacyStatus string) (*youtubeapi.Video, error) {
	exists, err := c.Exists(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrVideoNotFound, videoID)
	}

	svc, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	payload := BuildVideoPayload(data, privacyStatus, videoID)
	updated, err := svc.Videos.Update(videoParts, payload).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("update video %s: %w", videoID, err)
	}
	return updated, nil
}

// BuildVideoPayload maps loosely typed metadata fields onto a Data API video
// resource. Recognized keys are title, description, tags, category_id and
// selfDeclaredMadeForKids; unknown keys are ignored. The id is set only when
// targeting an existing video.
func BuildVideoPayload(data map[string]any, privacyStatus, videoID string) *youtubeapi.Video {
	snippet := &youtubeapi.VideoSnippet{}
	status := &youtubeapi.VideoStatus{PrivacyStatus: privacyStatus}

	if title, ok := data["title"].(string); ok {
		snippet.Title = title
	}
	if description, ok := data["description"].(string); ok {
		snippet.Description = description
	}
	if categoryID, ok := data["category_id"].(string); ok {
		snippet.CategoryId = categoryID
	}
	snippet.Tags = stringSlice(data["tags"])
	if madeForKids, ok := data["selfDeclaredMadeForKids"].(bool); ok {
		status.SelfDeclaredMadeForKids = madeForKids
		status.ForceSendFields = append(status.ForceSendFields, "SelfDeclaredMadeForKids")
	}

	video := &youtubeapi.Video{Snippet: snippet, Status: status}
	if videoID != "" {
		video.Id = videoID
	}
	return video
}

// stringSlice accepts either []string or the []any produced by decoding JSON.
func stringSlice(value any) []string {
	switch typed := value.(type) {
	case []string:
		return typed
	case []any:
		tags := make([]string, 0, len(typed))
		for _, item := range typed {
			if tag, ok := item.(string); ok {
				tags = append(tags, tag)
			}
		}
		return tags
	default:
		return nil
	}
}
