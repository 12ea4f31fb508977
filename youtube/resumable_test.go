package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"google.golang.org/api/googleapi"

	"vidsync/internal/retry"
	"vidsync/inventory"
	"vidsync/reconcile"
	"vidsync/upload"
)

// uploadServer implements the server side of the resumable protocol.
type uploadServer struct {
	mu sync.Mutex

	total      int64
	received   []byte
	meta       map[string]any
	puts       int
	ranges     []string
	failPut    map[int]int
	finalBody  string
	noLocation bool
}

func newUploadServer() *uploadServer {
	return &uploadServer{failPut: map[int]int{}, finalBody: `{"id":"vid123","kind":"youtube#video"}`}
}

func (s *uploadServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/upload/youtube/v3/videos":
		q := r.URL.Query()
		if q.Get("uploadType") != "resumable" || q.Get("part") != "snippet,status" {
			writeAPIError(w, http.StatusBadRequest)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&s.meta); err != nil {
			writeAPIError(w, http.StatusBadRequest)
			return
		}
		s.total, _ = strconv.ParseInt(r.Header.Get("X-Upload-Content-Length"), 10, 64)
		if !s.noLocation {
			w.Header().Set("Location", "http://"+r.Host+"/session/1")
		}
		w.WriteHeader(http.StatusOK)

	case r.Method == http.MethodPut && r.URL.Path == "/session/1":
		s.puts++
		cr := r.Header.Get("Content-Range")
		s.ranges = append(s.ranges, cr)
		body, _ := io.ReadAll(r.Body)

		if code, ok := s.failPut[s.puts]; ok {
			writeAPIError(w, code)
			return
		}
		if !strings.HasPrefix(cr, "bytes */") {
			var start, end, total int64
			if _, err := fmt.Sscanf(cr, "bytes %d-%d/%d", &start, &end, &total); err != nil || start != int64(len(s.received)) {
				writeAPIError(w, http.StatusBadRequest)
				return
			}
			s.received = append(s.received, body...)
		}
		s.writeProgress(w)

	default:
		writeAPIError(w, http.StatusNotFound)
	}
}

func (s *uploadServer) writeProgress(w http.ResponseWriter) {
	if int64(len(s.received)) == s.total {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, s.finalBody)
		return
	}
	if len(s.received) > 0 {
		w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", len(s.received)-1))
	}
	w.WriteHeader(statusResumeIncomplete)
}

type memMedia struct {
	*bytes.Reader
	closed bool
}

func (m *memMedia) Close() error {
	m.closed = true
	return nil
}

func inventoryVideo(sessionID string) inventory.LocalVideo {
	return inventory.LocalVideo{Path: sessionID + ".mp4", SessionID: sessionID}
}

func inventoryVideoAt(path string) inventory.LocalVideo {
	return inventory.LocalVideo{Path: path, SessionID: inventory.SessionID(path)}
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func startUpload(t *testing.T, srv *uploadServer, data []byte, chunk int64) (*ResumableUpload, *memMedia) {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	media := &memMedia{Reader: bytes.NewReader(data)}
	task := reconcile.DefaultTemplate().NewTask(inventoryVideo("keynote"))
	return NewResumableUpload(ts.Client(), ts.URL, VideoResource(task), media, int64(len(data)), chunk), media
}

func drive(t *testing.T, u *ResumableUpload, maxCalls int) (*upload.Response, []error) {
	t.Helper()
	var errs []error
	for i := 0; i < maxCalls; i++ {
		_, resp, err := u.NextChunk(context.Background())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if resp != nil {
			return resp, errs
		}
	}
	t.Fatalf("upload did not finish in %d calls", maxCalls)
	return nil, errs
}

func TestResumableUpload_SingleRequest(t *testing.T) {
	srv := newUploadServer()
	data := payload(1000)
	u, media := startUpload(t, srv, data, 0)

	progress, resp, err := u.NextChunk(context.Background())
	if err != nil {
		t.Fatalf("NextChunk() error = %v", err)
	}
	if resp == nil || resp.ID != "vid123" {
		t.Fatalf("NextChunk() response = %+v, want vid123", resp)
	}
	if progress.Sent != 1000 || progress.Total != 1000 {
		t.Errorf("progress = %+v, want 1000/1000", progress)
	}
	if !bytes.Equal(srv.received, data) {
		t.Error("server received different bytes")
	}
	if srv.ranges[0] != "bytes 0-999/1000" {
		t.Errorf("Content-Range = %q", srv.ranges[0])
	}

	snippet, _ := srv.meta["snippet"].(map[string]any)
	if snippet["title"] != "keynote" || snippet["categoryId"] != "28" {
		t.Errorf("snippet = %v", snippet)
	}
	status, _ := srv.meta["status"].(map[string]any)
	if status["privacyStatus"] != "private" {
		t.Errorf("status = %v", status)
	}

	if err := u.Close(); err != nil || !media.closed {
		t.Errorf("Close() = %v, closed %v", err, media.closed)
	}
}

func TestResumableUpload_Chunked(t *testing.T) {
	srv := newUploadServer()
	data := payload(ChunkAlign*2 + 100)
	u, _ := startUpload(t, srv, data, 1)

	var sent []int64
	for {
		progress, resp, err := u.NextChunk(context.Background())
		if err != nil {
			t.Fatalf("NextChunk() error = %v", err)
		}
		sent = append(sent, progress.Sent)
		if resp != nil {
			break
		}
	}

	want := []int64{ChunkAlign, ChunkAlign * 2, int64(len(data))}
	if fmt.Sprint(sent) != fmt.Sprint(want) {
		t.Errorf("progress = %v, want %v", sent, want)
	}
	if !bytes.Equal(srv.received, data) {
		t.Error("server received different bytes")
	}
}

func TestResumableUpload_ResyncAfterFailure(t *testing.T) {
	srv := newUploadServer()
	srv.failPut[2] = http.StatusServiceUnavailable
	data := payload(ChunkAlign*2 + 10)
	u, _ := startUpload(t, srv, data, ChunkAlign)

	resp, errs := drive(t, u, 10)
	if resp.ID != "vid123" {
		t.Errorf("response id = %q", resp.ID)
	}
	if len(errs) != 1 {
		t.Fatalf("got %d errors, want 1: %v", len(errs), errs)
	}
	var apiErr *googleapi.Error
	if !errors.As(errs[0], &apiErr) || apiErr.Code != 503 {
		t.Errorf("error = %v, want googleapi 503", errs[0])
	}
	if srv.ranges[2] != fmt.Sprintf("bytes */%d", len(data)) {
		t.Errorf("third request Content-Range = %q, want status query", srv.ranges[2])
	}
	if !bytes.Equal(srv.received, data) {
		t.Error("server received different bytes")
	}
}

func TestResumableUpload_FinalWithoutID(t *testing.T) {
	srv := newUploadServer()
	srv.finalBody = `{"kind":"youtube#video"}`
	u, _ := startUpload(t, srv, payload(10), 0)

	_, resp, err := u.NextChunk(context.Background())
	if err != nil {
		t.Fatalf("NextChunk() error = %v", err)
	}
	if resp == nil || resp.ID != "" {
		t.Errorf("response = %+v, want final response without id", resp)
	}
}

func TestResumableUpload_MalformedFinal(t *testing.T) {
	srv := newUploadServer()
	srv.finalBody = `{"id":`
	u, _ := startUpload(t, srv, payload(10), 0)

	_, _, err := u.NextChunk(context.Background())
	if !retry.IsTransport(err) {
		t.Errorf("NextChunk() error = %v, want transport error", err)
	}
}

func TestResumableUpload_MissingLocation(t *testing.T) {
	srv := newUploadServer()
	srv.noLocation = true
	u, _ := startUpload(t, srv, payload(10), 0)

	_, _, err := u.NextChunk(context.Background())
	if !retry.IsTransport(err) {
		t.Errorf("NextChunk() error = %v, want transport error", err)
	}
	if u.SessionURI() != "" {
		t.Errorf("SessionURI() = %q, want empty", u.SessionURI())
	}
}

func TestUploader_ExecutorEndToEnd(t *testing.T) {
	srv := newUploadServer()
	srv.failPut[1] = http.StatusBadGateway
	srv.failPut[2] = http.StatusServiceUnavailable
	ts := httptest.NewServer(srv)
	defer ts.Close()

	dir := t.TempDir()
	data := payload(4096)
	path := filepath.Join(dir, "yvr18-100k.mp4")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	ex := upload.NewExecutor(upload.DefaultConfig(), NewUploader(ts.Client(), ts.URL+"/", 0))
	ex.Sleep = func(context.Context, time.Duration) error { return nil }

	task := reconcile.DefaultTemplate().NewTask(inventoryVideoAt(path))
	res, err := ex.Upload(context.Background(), task)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if res.VideoID != "vid123" || res.Retries != 2 {
		t.Errorf("Upload() = %+v, want vid123 after 2 retries", res)
	}
	if !bytes.Equal(srv.received, data) {
		t.Error("server received different bytes")
	}
}

func TestUploader_MissingFile(t *testing.T) {
	u := NewUploader(http.DefaultClient, "", 0)
	_, err := u.Open(context.Background(), reconcile.UploadTask{FilePath: filepath.Join(t.TempDir(), "nope.mp4")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open() error = %v, want not exist", err)
	}
}

func TestAlignChunk(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{-1, 0},
		{0, 0},
		{1, ChunkAlign},
		{ChunkAlign, ChunkAlign},
		{ChunkAlign + 1, 2 * ChunkAlign},
	}
	for _, tt := range tests {
		if got := AlignChunk(tt.in); got != tt.want {
			t.Errorf("AlignChunk(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestCommittedOffset(t *testing.T) {
	tests := []struct {
		header  string
		want    int64
		wantErr bool
	}{
		{"", 0, false},
		{"bytes=0-0", 1, false},
		{"bytes=0-262143", 262144, false},
		{"bytes=0", 0, true},
		{"bytes=0-x", 0, true},
	}
	for _, tt := range tests {
		got, err := committedOffset(tt.header)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("committedOffset(%q) = %d, %v; want %d, err %v", tt.header, got, err, tt.want, tt.wantErr)
		}
	}
}
