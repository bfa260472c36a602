package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/clipcast/backend/internal/logging"
)

// DefaultChunkSize is the upload chunk granularity when none is configured.
const DefaultChunkSize int64 = 1 << 20

const (
	defaultMaxRetries    = 5
	defaultRetryBase     = 500 * time.Millisecond
	maxRetryBackoff      = 10 * time.Second
	defaultUploadTimeout = 30 * time.Second
)

// Session status values. Transitions only move forward.
const (
	sessionInitiated  = "initiated"
	sessionInProgress = "in_progress"
	sessionCompleted  = "completed"
	sessionFailed     = "failed"
)

// UploaderOptions tunes the resumable upload protocol client.
type UploaderOptions struct {
	// BaseURL is the upload endpoint root, e.g. https://www.googleapis.com/upload.
	BaseURL string
	// ChunkSize is the fixed transfer granularity in bytes.
	ChunkSize int64
	// MaxRetries bounds consecutive transient failures before the upload is
	// abandoned. Unbounded retries are not permitted.
	MaxRetries int
	// RetryBase is the first backoff delay; subsequent delays double.
	RetryBase time.Duration
	// Timeout bounds each individual network call.
	Timeout time.Duration
}

// ResumableUploader drives YouTube's resumable upload protocol: it opens an
// upload session, streams the content in fixed-size chunks and resumes from
// the server-acknowledged offset after transient failures.
type ResumableUploader struct {
	client     *http.Client
	baseURL    string
	chunkSize  int64
	maxRetries int
	retryBase  time.Duration
	timeout    time.Duration
}

// NewResumableUploader constructs an uploader. A nil client falls back to
// http.DefaultClient; zero options take protocol defaults.
func NewResumableUploader(client *http.Client, opts UploaderOptions) *ResumableUploader {
	if client == nil {
		client = http.DefaultClient
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://www.googleapis.com/upload"
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.RetryBase <= 0 {
		opts.RetryBase = defaultRetryBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultUploadTimeout
	}

	return &ResumableUploader{
		client:     client,
		baseURL:    strings.TrimSuffix(opts.BaseURL, "/"),
		chunkSize:  opts.ChunkSize,
		maxRetries: opts.MaxRetries,
		retryBase:  opts.RetryBase,
		timeout:    opts.Timeout,
	}
}

// UploadRequest describes one media transfer.
type UploadRequest struct {
	// Path is the endpoint path below the upload base URL,
	// e.g. /youtube/v3/videos or /youtube/v3/thumbnails/set.
	Path string
	// Query carries endpoint parameters such as part or videoId.
	Query url.Values
	// Metadata, when non-nil, is JSON-encoded into the initiation request.
	Metadata any
	// Content supplies the media bytes. Random access is required so the
	// transfer can resume from a server-reported offset.
	Content io.ReaderAt
	// Size is the total media length in bytes. Must be positive.
	Size int64
	// ContentType describes the media, e.g. video/mp4 or image/png.
	ContentType string
}

// uploadSession tracks one in-flight transfer. Sessions live only for the
// duration of the call; a session orphaned by a crash is abandoned and expires
// server-side.
type uploadSession struct {
	url    string
	total  int64
	sent   int64
	status string
}

// advance moves the acknowledged offset forward. The server is authoritative,
// but the offset never decreases.
func (s *uploadSession) advance(offset int64) {
	if offset > s.sent {
		s.sent = offset
	}
	if s.status == sessionInitiated {
		s.status = sessionInProgress
	}
}

// Upload runs one complete resumable upload and returns the finalized resource
// body exactly as the server sent it.
func (u *ResumableUploader) Upload(ctx context.Context, token *oauth2.Token, req UploadRequest) ([]byte, error) {
	if req.Size <= 0 {
		return nil, fmt.Errorf("%w: upload size must be positive", ErrInvalidInput)
	}
	if req.Content == nil {
		return nil, fmt.Errorf("%w: no content source", ErrInvalidInput)
	}
	if token == nil {
		return nil, ErrAuthenticationRequired
	}

	ctx, span := logging.StartSpan(ctx, "upload.resumable")
	defer span.End()

	sessionURL, err := u.initiate(ctx, token, req)
	if err != nil {
		return nil, err
	}

	sess := &uploadSession{url: sessionURL, total: req.Size, status: sessionInitiated}
	body, err := u.transfer(ctx, token, sess, req)
	if err != nil {
		sess.status = sessionFailed
		return nil, err
	}
	return body, nil
}

// initiate opens the upload session and returns the server-assigned session URL.
func (u *ResumableUploader) initiate(ctx context.Context, token *oauth2.Token, req UploadRequest) (string, error) {
	endpoint, err := u.endpointURL(req.Path, req.Query)
	if err != nil {
		return "", err
	}

	var body io.Reader
	if req.Metadata != nil {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return "", fmt.Errorf("encode upload metadata: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	rctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(rctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build initiation request: %w", err)
	}
	if req.Metadata != nil {
		httpReq.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}
	httpReq.Header.Set("X-Upload-Content-Type", req.ContentType)
	httpReq.Header.Set("X-Upload-Content-Length", strconv.FormatInt(req.Size, 10))
	token.SetAuthHeader(httpReq)

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionInitiation, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return "", fmt.Errorf("%w: status %d: %s", ErrSessionInitiation, resp.StatusCode, strings.TrimSpace(string(diag)))
	}

	location := strings.TrimSpace(resp.Header.Get("Location"))
	if location == "" {
		return "", fmt.Errorf("%w: server returned no session URL", ErrSessionInitiation)
	}
	return location, nil
}

// transfer streams chunks until the server acknowledges completion. Chunk N+1
// is never sent before the outcome of chunk N, including any offset
// correction, is known.
func (u *ResumableUploader) transfer(ctx context.Context, token *oauth2.Token, sess *uploadSession, req UploadRequest) ([]byte, error) {
	logger := logging.FromContext(ctx)
	retries := 0

	retry := func(cause error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		retries++
		if retries > u.maxRetries {
			return fmt.Errorf("%w: transient retry budget exhausted: %v", ErrUploadRejected, cause)
		}
		logger.Warn("transient upload failure, retrying",
			"attempt", retries, "offset", sess.sent, "error", cause)
		return u.backoff(ctx, retries)
	}

	for {
		size := min(u.chunkSize, sess.total-sess.sent)
		chunk := make([]byte, size)
		if _, err := req.Content.ReadAt(chunk, sess.sent); err != nil && err != io.EOF {
			return nil, fmt.Errorf("%w: read content at offset %d: %v", ErrInvalidInput, sess.sent, err)
		}

		outcome, err := u.putChunk(ctx, token, sess, req.ContentType, chunk)
		if err != nil || outcome.transient {
			cause := err
			if cause == nil {
				cause = fmt.Errorf("status %d: %s", outcome.status, outcome.diagnostic)
			}
			if rerr := retry(cause); rerr != nil {
				return nil, rerr
			}
			// The server decides how many bytes of the failed chunk it kept;
			// no chunk is resent until a status query confirms the offset.
			for {
				body, done, rerr := u.resync(ctx, token, sess)
				if rerr == nil {
					if done {
						sess.status = sessionCompleted
						return body, nil
					}
					break
				}
				if errors.Is(rerr, ErrUploadRejected) {
					return nil, rerr
				}
				if rerr = retry(rerr); rerr != nil {
					return nil, rerr
				}
			}
			continue
		}

		switch {
		case outcome.complete:
			sess.advance(sess.total)
			sess.status = sessionCompleted
			return outcome.body, nil
		case outcome.rejected:
			return nil, fmt.Errorf("%w: status %d: %s", ErrUploadRejected, outcome.status, outcome.diagnostic)
		default:
			// Incomplete but accepted. Advance only as far as the server
			// confirmed; a stalled offset is treated like a transient failure
			// so a misbehaving server cannot loop us forever.
			if outcome.offset <= sess.sent {
				if rerr := retry(fmt.Errorf("server confirmed no progress at offset %d", sess.sent)); rerr != nil {
					return nil, rerr
				}
				continue
			}
			sess.advance(outcome.offset)
			retries = 0
		}
	}
}

// chunkOutcome classifies one chunk PUT response.
type chunkOutcome struct {
	complete   bool
	transient  bool
	rejected   bool
	status     int
	offset     int64
	body       []byte
	diagnostic string
}

func (u *ResumableUploader) putChunk(ctx context.Context, token *oauth2.Token, sess *uploadSession, contentType string, chunk []byte) (chunkOutcome, error) {
	start := sess.sent
	end := start + int64(len(chunk)) - 1

	rctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(rctx, http.MethodPut, sess.url, bytes.NewReader(chunk))
	if err != nil {
		return chunkOutcome{}, fmt.Errorf("build chunk request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, sess.total))
	token.SetAuthHeader(httpReq)

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return chunkOutcome{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	return u.classify(resp)
}

// resync asks the server how many bytes it holds by probing the session with
// an empty Content-Range request. Reports done=true when the session has in
// fact already completed.
func (u *ResumableUploader) resync(ctx context.Context, token *oauth2.Token, sess *uploadSession) ([]byte, bool, error) {
	rctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(rctx, http.MethodPut, sess.url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build status request: %w", err)
	}
	httpReq.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", sess.total))
	token.SetAuthHeader(httpReq)

	resp, err := u.client.Do(httpReq)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = resp.Body.Close() }()

	outcome, err := u.classify(resp)
	if err != nil {
		return nil, false, err
	}
	switch {
	case outcome.complete:
		return outcome.body, true, nil
	case outcome.rejected:
		return nil, false, fmt.Errorf("%w: status %d: %s", ErrUploadRejected, outcome.status, outcome.diagnostic)
	case outcome.transient:
		return nil, false, fmt.Errorf("status query failed: status %d", outcome.status)
	default:
		sess.advance(outcome.offset)
		return nil, false, nil
	}
}

// classify maps an upload endpoint response onto the protocol's outcomes.
func (u *ResumableUploader) classify(resp *http.Response) (chunkOutcome, error) {
	switch {
	case resp.StatusCode == http.StatusPermanentRedirect:
		// 308 Resume Incomplete: the Range header reports the bytes the
		// server actually stored, counted from zero.
		return chunkOutcome{status: resp.StatusCode, offset: confirmedOffset(resp.Header.Get("Range"))}, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return chunkOutcome{}, fmt.Errorf("read upload response: %w", err)
		}
		return chunkOutcome{complete: true, status: resp.StatusCode, body: body}, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return chunkOutcome{transient: true, status: resp.StatusCode, diagnostic: strings.TrimSpace(string(diag))}, nil
	default:
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return chunkOutcome{rejected: true, status: resp.StatusCode, diagnostic: strings.TrimSpace(string(diag))}, nil
	}
}

func (u *ResumableUploader) backoff(ctx context.Context, attempt int) error {
	delay := u.retryBase << (attempt - 1)
	if delay > maxRetryBackoff {
		delay = maxRetryBackoff
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (u *ResumableUploader) endpointURL(path string, query url.Values) (string, error) {
	endpoint, err := url.Parse(u.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("parse upload endpoint: %w", err)
	}

	q := endpoint.Query()
	for key, values := range query {
		for _, value := range values {
			q.Add(key, value)
		}
	}
	q.Set("uploadType", "resumable")
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

// confirmedOffset parses a Range header of the form "bytes=0-N" and returns
// N+1, the next byte the server expects. A missing header means no bytes have
// been stored.
func confirmedOffset(header string) int64 {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	_, after, found := strings.Cut(header, "-")
	if !found {
		return 0
	}
	last, err := strconv.ParseInt(strings.TrimSpace(after), 10, 64)
	if err != nil || last < 0 {
		return 0
	}
	return last + 1
}
