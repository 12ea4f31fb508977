package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"

	"vidsync/internal/retry"
	"vidsync/upload"
)

// ChunkAlign is the granularity the upload server requires for all but the
// last chunk.
const ChunkAlign = 256 * 1024

const statusResumeIncomplete = 308

// Media is the file content being uploaded.
type Media interface {
	io.ReaderAt
	io.Closer
}

// ResumableUpload is one video upload using the resumable protocol. It
// implements upload.Transfer and is not safe for concurrent use.
type ResumableUpload struct {
	client      *http.Client
	initURL     string
	video       *youtube.Video
	media       Media
	size        int64
	contentType string
	chunkSize   int64

	sessionURI string
	offset     int64
	resync     bool
}

// NewResumableUpload prepares an upload of size bytes from media. The
// session is initiated on the first NextChunk call. chunkSize 0 sends the
// whole remainder in one request; other values are rounded up to a
// multiple of ChunkAlign.
func NewResumableUpload(client *http.Client, uploadBase string, video *youtube.Video, media Media, size, chunkSize int64) *ResumableUpload {
	if uploadBase == "" {
		uploadBase = DefaultUploadBase
	}
	return &ResumableUpload{
		client:      client,
		initURL:     strings.TrimSuffix(uploadBase, "/") + "/upload/youtube/v3/videos?uploadType=resumable&part=snippet,status",
		video:       video,
		media:       media,
		size:        size,
		contentType: "video/mp4",
		chunkSize:   AlignChunk(chunkSize),
	}
}

// AlignChunk rounds n up to a multiple of ChunkAlign. Zero or less means
// unchunked and returns 0.
func AlignChunk(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return (n + ChunkAlign - 1) / ChunkAlign * ChunkAlign
}

// SessionURI returns the upload session URI, empty before initiation.
func (u *ResumableUpload) SessionURI() string { return u.sessionURI }

// NextChunk sends the next piece of the file. It initiates the session on
// first use and, after a failed request, asks the server how much it has
// committed before sending more.
func (u *ResumableUpload) NextChunk(ctx context.Context) (upload.Progress, *upload.Response, error) {
	if u.sessionURI == "" {
		if err := u.initiate(ctx); err != nil {
			return u.progress(), nil, err
		}
	}

	if u.resync {
		resp, err := u.query(ctx)
		if err != nil || resp != nil {
			return u.progress(), resp, err
		}
		u.resync = false
	}

	end := u.size
	if u.chunkSize > 0 && u.offset+u.chunkSize < u.size {
		end = u.offset + u.chunkSize
	}

	var body io.Reader = http.NoBody
	contentRange := fmt.Sprintf("bytes */%d", u.size)
	if end > u.offset {
		body = io.NewSectionReader(u.media, u.offset, end-u.offset)
		contentRange = fmt.Sprintf("bytes %d-%d/%d", u.offset, end-1, u.size)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.sessionURI, body)
	if err != nil {
		return u.progress(), nil, err
	}
	req.ContentLength = end - u.offset
	req.Header.Set("Content-Type", u.contentType)
	req.Header.Set("Content-Range", contentRange)

	logrus.WithFields(logrus.Fields{
		"range": contentRange,
	}).Debug("sending chunk")

	resp, err := u.send(req, "upload chunk")
	if err != nil {
		return u.progress(), nil, err
	}
	return u.handle(resp)
}

// Close releases the media.
func (u *ResumableUpload) Close() error {
	return u.media.Close()
}

func (u *ResumableUpload) initiate(ctx context.Context) error {
	meta, err := json.Marshal(u.video)
	if err != nil {
		return fmt.Errorf("encode video resource: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.initURL, bytes.NewReader(meta))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Upload-Content-Type", u.contentType)
	req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(u.size, 10))

	resp, err := u.send(req, "initiate upload")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := googleapi.CheckResponse(resp); err != nil {
		return err
	}
	loc := resp.Header.Get("Location")
	if loc == "" {
		return &retry.TransportError{Op: "initiate upload", Err: errors.New("response has no Location header")}
	}

	u.sessionURI = loc
	u.offset = 0
	u.resync = false
	logrus.WithField("session_uri", loc).Debug("upload session initiated")
	return nil
}

// query asks the server for the committed offset. A non-nil response means
// the upload had already completed.
func (u *ResumableUpload) query(ctx context.Context) (*upload.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.sessionURI, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.ContentLength = 0
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", u.size))

	resp, err := u.send(req, "query upload status")
	if err != nil {
		return nil, err
	}
	_, final, err := u.handle(resp)
	return final, err
}

// send performs req. Connection-level failures become retry.TransportError
// and mark the session for resync.
func (u *ResumableUpload) send(req *http.Request, op string) (*http.Response, error) {
	resp, err := u.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		u.resync = u.sessionURI != ""
		return nil, &retry.TransportError{Op: op, Err: err}
	}
	return resp, nil
}

// handle interprets a chunk or status response and closes its body.
func (u *ResumableUpload) handle(resp *http.Response) (upload.Progress, *upload.Response, error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == statusResumeIncomplete:
		off, err := committedOffset(resp.Header.Get("Range"))
		if err != nil {
			u.resync = true
			return u.progress(), nil, &retry.TransportError{Op: "parse Range header", Err: err}
		}
		u.offset = off
		return u.progress(), nil, nil

	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			u.resync = true
			return u.progress(), nil, &retry.TransportError{Op: "read upload response", Err: err}
		}
		var v youtube.Video
		if err := json.Unmarshal(body, &v); err != nil {
			u.resync = true
			return u.progress(), nil, &retry.TransportError{Op: "decode upload response", Err: err}
		}
		u.offset = u.size
		return u.progress(), &upload.Response{ID: v.Id, Body: body}, nil

	default:
		u.resync = true
		if err := googleapi.CheckResponse(resp); err != nil {
			return u.progress(), nil, err
		}
		return u.progress(), nil, &retry.TransportError{Op: "upload chunk", Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}
}

func (u *ResumableUpload) progress() upload.Progress {
	return upload.Progress{Sent: u.offset, Total: u.size}
}

// committedOffset parses a "bytes=0-N" Range header into N+1. A missing
// header means nothing has been committed.
func committedOffset(header string) (int64, error) {
	if header == "" {
		return 0, nil
	}
	_, last, ok := strings.Cut(strings.TrimPrefix(header, "bytes="), "-")
	if !ok {
		return 0, fmt.Errorf("malformed Range %q", header)
	}
	n, err := strconv.ParseInt(last, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("malformed Range %q", header)
	}
	return n + 1, nil
}
