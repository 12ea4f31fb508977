package youtube

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"google.golang.org/api/youtube/v3"

	"vidsync/reconcile"
	"vidsync/upload"
)

// Uploader opens resumable uploads for tasks. It implements
// upload.TransferOpener.
type Uploader struct {
	client     *http.Client
	uploadBase string
	chunkSize  int64
}

// NewUploader creates an uploader sending through an authorized client.
// uploadBase is empty in production.
func NewUploader(client *http.Client, uploadBase string, chunkSize int64) *Uploader {
	return &Uploader{
		client:     client,
		uploadBase: uploadBase,
		chunkSize:  chunkSize,
	}
}

// Open opens the task file and prepares its upload. The session itself is
// started by the first chunk.
func (u *Uploader) Open(ctx context.Context, task reconcile.UploadTask) (upload.Transfer, error) {
	f, err := os.Open(task.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat video: %w", err)
	}

	return NewResumableUpload(u.client, u.uploadBase, VideoResource(task), f, info.Size(), u.chunkSize), nil
}

// VideoResource builds the metadata sent when a task's upload starts.
func VideoResource(task reconcile.UploadTask) *youtube.Video {
	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       task.Title,
			Description: task.Description,
			Tags:        task.Keywords,
			CategoryId:  task.Category,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: task.PrivacyStatus,
		},
	}
}
