package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

// chunkFailure scripts a failing chunk PUT: the server returns the given
// status after silently keeping the first `keep` bytes of the chunk.
type chunkFailure struct {
	status int
	keep   int
}

// fakeUploadServer speaks the resumable upload protocol: initiation returns a
// session URL, chunk PUTs accumulate bytes and answer 308 with a Range header,
// the final chunk answers 200 with the finished resource body.
type fakeUploadServer struct {
	t         *testing.T
	total     int64
	finalBody string

	// failAt scripts failures by 1-based chunk PUT ordinal.
	failAt      map[int]chunkFailure
	failAllPuts bool
	// failStatusQueries makes the next N offset queries answer 503.
	failStatusQueries int

	mu            sync.Mutex
	received      []byte
	inits         int
	chunkPuts     int
	statusQueries int
}

func (s *fakeUploadServer) start() *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(s.handle))
	s.t.Cleanup(server.Close)
	return server
}

func (s *fakeUploadServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Header.Get("Authorization") == "" {
		s.t.Error("missing Authorization header")
	}

	if r.Method == http.MethodPost {
		s.inits++
		if got := r.URL.Query().Get("uploadType"); got != "resumable" {
			s.t.Errorf("expected uploadType=resumable, got %q", got)
		}
		if got := r.Header.Get("X-Upload-Content-Length"); got != strconv.FormatInt(s.total, 10) {
			s.t.Errorf("unexpected X-Upload-Content-Length %q", got)
		}
		w.Header().Set("Location", "http://"+r.Host+"/session")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPut {
		s.t.Errorf("unexpected method %s", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	contentRange := r.Header.Get("Content-Range")
	if strings.HasPrefix(contentRange, "bytes */") {
		s.statusQueries++
		if s.failStatusQueries > 0 {
			s.failStatusQueries--
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		s.respondProgress(w)
		return
	}

	s.chunkPuts++

	var start, end, total int64
	if _, err := fmt.Sscanf(contentRange, "bytes %d-%d/%d", &start, &end, &total); err != nil {
		s.t.Errorf("malformed Content-Range %q: %v", contentRange, err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if total != s.total {
		s.t.Errorf("Content-Range total %d, want %d", total, s.total)
	}

	chunk := make([]byte, end-start+1)
	if _, err := io.ReadFull(r.Body, chunk); err != nil {
		s.t.Errorf("read chunk body: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if fail, ok := s.failAt[s.chunkPuts]; ok {
		if start == int64(len(s.received)) && fail.keep > 0 {
			s.received = append(s.received, chunk[:fail.keep]...)
		}
		w.WriteHeader(fail.status)
		return
	}
	if s.failAllPuts {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	if start != int64(len(s.received)) {
		s.t.Errorf("chunk starts at %d but server holds %d bytes", start, len(s.received))
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.received = append(s.received, chunk...)
	s.respondProgress(w)
}

// respondProgress answers with the protocol's view of the session: 200 plus
// the resource body once all bytes arrived, otherwise 308 with a Range header
// covering the stored prefix.
func (s *fakeUploadServer) respondProgress(w http.ResponseWriter) {
	if int64(len(s.received)) >= s.total {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, s.finalBody)
		return
	}
	if len(s.received) > 0 {
		w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", len(s.received)-1))
	}
	w.WriteHeader(http.StatusPermanentRedirect)
}

func testUploader(t *testing.T, baseURL string, chunkSize int64, maxRetries int) *ResumableUploader {
	t.Helper()
	return NewResumableUploader(&http.Client{}, UploaderOptions{
		BaseURL:    baseURL,
		ChunkSize:  chunkSize,
		MaxRetries: maxRetries,
		RetryBase:  time.Millisecond,
	})
}

func testContent(n int) []byte {
	content := make([]byte, n)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	return content
}

func uploadToken() *oauth2.Token {
	return &oauth2.Token{AccessToken: "upload-access", TokenType: "Bearer", Expiry: time.Now().Add(time.Hour)}
}

func TestResumableUploaderHappyPath(t *testing.T) {
	content := testContent(2560)
	fake := &fakeUploadServer{t: t, total: int64(len(content)), finalBody: `{"id":"vid-123"}`}
	server := fake.start()

	uploader := testUploader(t, server.URL, 1024, 3)

	body, err := uploader.Upload(context.Background(), uploadToken(), UploadRequest{
		Path:        "/youtube/v3/videos",
		Query:       url.Values{"part": {"snippet,status"}},
		Metadata:    map[string]string{"kind": "youtube#video"},
		Content:     bytes.NewReader(content),
		Size:        int64(len(content)),
		ContentType: "video/mp4",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if string(body) != `{"id":"vid-123"}` {
		t.Fatalf("unexpected response body %q", body)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.inits != 1 {
		t.Fatalf("expected 1 initiation, got %d", fake.inits)
	}
	if fake.chunkPuts != 3 {
		t.Fatalf("expected 3 chunk PUTs for 2560 bytes at 1024, got %d", fake.chunkPuts)
	}
	if !bytes.Equal(fake.received, content) {
		t.Fatal("server did not receive the exact content")
	}
}

func TestResumableUploaderResumesAfterTransientFailure(t *testing.T) {
	content := testContent(3000)
	fake := &fakeUploadServer{
		t:         t,
		total:     int64(len(content)),
		finalBody: `{"id":"vid-resume"}`,
		// The second chunk fails with 503 after the server quietly kept 100
		// of its bytes. The client must discover the true offset and resend
		// only the remainder.
		failAt: map[int]chunkFailure{2: {status: http.StatusServiceUnavailable, keep: 100}},
	}
	server := fake.start()

	uploader := testUploader(t, server.URL, 1000, 3)

	body, err := uploader.Upload(context.Background(), uploadToken(), UploadRequest{
		Path:        "/youtube/v3/videos",
		Content:     bytes.NewReader(content),
		Size:        int64(len(content)),
		ContentType: "video/mp4",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if string(body) != `{"id":"vid-resume"}` {
		t.Fatalf("unexpected response body %q", body)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if !bytes.Equal(fake.received, content) {
		t.Fatalf("resumed upload corrupted content: got %d bytes, want %d", len(fake.received), len(content))
	}
	if fake.statusQueries == 0 {
		t.Fatal("expected an offset query after the transient failure")
	}
}

func TestResumableUploaderRetriesOffsetQueryBeforeResend(t *testing.T) {
	content := testContent(1000)
	fake := &fakeUploadServer{
		t:         t,
		total:     int64(len(content)),
		finalBody: `{"id":"vid-requery"}`,
		// The only chunk fails with 503 after the server quietly kept 100 of
		// its bytes, and the first offset query fails too. The client must
		// keep querying until the server confirms the offset; resending from
		// the stale offset would collide with the stored prefix.
		failAt:            map[int]chunkFailure{1: {status: http.StatusServiceUnavailable, keep: 100}},
		failStatusQueries: 1,
	}
	server := fake.start()

	uploader := testUploader(t, server.URL, 1024, 3)

	body, err := uploader.Upload(context.Background(), uploadToken(), UploadRequest{
		Path:        "/youtube/v3/videos",
		Content:     bytes.NewReader(content),
		Size:        int64(len(content)),
		ContentType: "video/mp4",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if string(body) != `{"id":"vid-requery"}` {
		t.Fatalf("unexpected response body %q", body)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if !bytes.Equal(fake.received, content) {
		t.Fatalf("resumed upload corrupted content: got %d bytes, want %d", len(fake.received), len(content))
	}
	if fake.statusQueries < 2 {
		t.Fatalf("expected the offset query to be retried, got %d queries", fake.statusQueries)
	}
	if fake.chunkPuts != 2 {
		t.Fatalf("expected exactly one resend after the confirmed offset, got %d chunk PUTs", fake.chunkPuts)
	}
}

func TestResumableUploaderPermanentRejection(t *testing.T) {
	content := testContent(500)
	fake := &fakeUploadServer{
		t:      t,
		total:  int64(len(content)),
		failAt: map[int]chunkFailure{1: {status: http.StatusBadRequest}},
	}
	server := fake.start()

	uploader := testUploader(t, server.URL, 1024, 3)

	_, err := uploader.Upload(context.Background(), uploadToken(), UploadRequest{
		Path:        "/youtube/v3/videos",
		Content:     bytes.NewReader(content),
		Size:        int64(len(content)),
		ContentType: "video/mp4",
	})
	if !errors.Is(err, ErrUploadRejected) {
		t.Fatalf("expected ErrUploadRejected, got %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.chunkPuts != 1 {
		t.Fatalf("permanent rejection must not be retried, got %d chunk PUTs", fake.chunkPuts)
	}
}

func TestResumableUploaderRetryBudgetExhausted(t *testing.T) {
	content := testContent(500)
	fake := &fakeUploadServer{t: t, total: int64(len(content)), failAllPuts: true}
	server := fake.start()

	uploader := testUploader(t, server.URL, 1024, 2)

	_, err := uploader.Upload(context.Background(), uploadToken(), UploadRequest{
		Path:        "/youtube/v3/videos",
		Content:     bytes.NewReader(content),
		Size:        int64(len(content)),
		ContentType: "video/mp4",
	})
	if !errors.Is(err, ErrUploadRejected) {
		t.Fatalf("expected ErrUploadRejected after exhausting retries, got %v", err)
	}
}

func TestResumableUploaderCompletionDiscoveredOnResync(t *testing.T) {
	content := testContent(800)
	fake := &fakeUploadServer{
		t:         t,
		total:     int64(len(content)),
		finalBody: `{"id":"vid-done"}`,
		// The only chunk "fails" even though the server stored every byte;
		// the follow-up offset query reveals the finished resource.
		failAt: map[int]chunkFailure{1: {status: http.StatusInternalServerError, keep: len(content)}},
	}
	server := fake.start()

	uploader := testUploader(t, server.URL, 1024, 3)

	body, err := uploader.Upload(context.Background(), uploadToken(), UploadRequest{
		Path:        "/youtube/v3/videos",
		Content:     bytes.NewReader(content),
		Size:        int64(len(content)),
		ContentType: "video/mp4",
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if string(body) != `{"id":"vid-done"}` {
		t.Fatalf("unexpected response body %q", body)
	}
}

func TestResumableUploaderInitiationRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	uploader := testUploader(t, server.URL, 1024, 3)
	content := testContent(100)

	_, err := uploader.Upload(context.Background(), uploadToken(), UploadRequest{
		Path:        "/youtube/v3/videos",
		Content:     bytes.NewReader(content),
		Size:        int64(len(content)),
		ContentType: "video/mp4",
	})
	if !errors.Is(err, ErrSessionInitiation) {
		t.Fatalf("expected ErrSessionInitiation, got %v", err)
	}
}

func TestResumableUploaderValidatesInput(t *testing.T) {
	fake := &fakeUploadServer{t: t, total: 10}
	server := fake.start()

	uploader := testUploader(t, server.URL, 1024, 3)

	_, err := uploader.Upload(context.Background(), uploadToken(), UploadRequest{
		Path:    "/youtube/v3/videos",
		Content: bytes.NewReader(nil),
		Size:    0,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero size, got %v", err)
	}

	_, err = uploader.Upload(context.Background(), uploadToken(), UploadRequest{
		Path: "/youtube/v3/videos",
		Size: 10,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for nil content, got %v", err)
	}

	_, err = uploader.Upload(context.Background(), nil, UploadRequest{
		Path:    "/youtube/v3/videos",
		Content: bytes.NewReader(testContent(10)),
		Size:    10,
	})
	if !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired for nil token, got %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.inits != 0 {
		t.Fatalf("validation failures must not reach the network, got %d initiations", fake.inits)
	}
}

func TestConfirmedOffset(t *testing.T) {
	cases := []struct {
		header string
		want   int64
	}{
		{"", 0},
		{"bytes=0-0", 1},
		{"bytes=0-999", 1000},
		{"garbage", 0},
	}

	for _, tc := range cases {
		if got := confirmedOffset(tc.header); got != tc.want {
			t.Errorf("confirmedOffset(%q) = %d, want %d", tc.header, got, tc.want)
		}
	}
}
