package vidsync

import (
	"errors"

	"vidsync/archive"
	"vidsync/auth"
	"vidsync/internal/retry"
	"vidsync/internal/storage"
	"vidsync/upload"
	"vidsync/youtube"
)

// Error handling types exported for library users.
//
// Using errors.Is() for sentinel errors:
//
//	if errors.Is(err, vidsync.ErrAmbiguous) {
//		fmt.Println("more than one video matches that session")
//	}
//
// Using errors.As() for wrapped errors:
//
//	var exitErr *vidsync.ExitError
//	if errors.As(err, &exitErr) {
//		fmt.Printf("aws exited with %d: %s\n", exitErr.Code, exitErr.Stderr)
//	}

// Type aliases for convenient error handling.
type (
	// TaskError reports a failed upload with its retry count.
	TaskError = upload.TaskError
	// CatalogError wraps a failed YouTube API call.
	CatalogError = youtube.CatalogError
	// ExitError reports a failed aws cli archive run.
	ExitError = archive.ExitError
	// StorageError wraps errors during token cache operations.
	StorageError = storage.StorageError
	// RetryableError wraps errors that occurred after retries were exhausted.
	RetryableError = retry.RetryableError
	// TransportError marks a request that failed before a usable response.
	TransportError = retry.TransportError
)

// Sentinel errors exported from sub-packages.
var (
	// ErrRetriesExhausted means an upload used its whole retry budget.
	ErrRetriesExhausted = upload.ErrRetriesExhausted
	// ErrUnexpectedResponse means an upload finished without a video id.
	ErrUnexpectedResponse = upload.ErrUnexpectedResponse

	// ErrNotFound means no uploaded video matches a session.
	ErrNotFound = youtube.ErrNotFound
	// ErrAmbiguous means several uploaded videos match a session.
	ErrAmbiguous = youtube.ErrAmbiguous
	// ErrInvalidPrivacy means a privacy status other than public, private
	// or unlisted.
	ErrInvalidPrivacy = youtube.ErrInvalidPrivacy

	// ErrAWSNotInstalled means the aws executable could not be started.
	ErrAWSNotInstalled = archive.ErrAWSNotInstalled
	// ErrUnknownBackend means an unsupported archive backend name.
	ErrUnknownBackend = archive.ErrUnknownBackend

	// ErrNoSecrets means the OAuth client secrets file is missing.
	ErrNoSecrets = auth.ErrNoSecrets
	// ErrAuthRequired means no token is cached and none can be requested.
	ErrAuthRequired = auth.ErrAuthRequired

	// Token cache errors
	// ErrTokenNotFound means no token has been cached yet.
	ErrTokenNotFound = storage.ErrNotFound
	// ErrStorageCorrupt indicates an unreadable token cache.
	ErrStorageCorrupt = storage.ErrStorageCorrupt
	// ErrLockTimeout indicates a timeout acquiring a file lock.
	ErrLockTimeout = storage.ErrLockTimeout
)

// IsRetryable reports whether an upload or API error is transient under the
// default policy: a transport failure or an HTTP 500, 502, 503 or 504.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return false
	}
	return retry.StatusClassifier(retry.DefaultStatusCodes)(err)
}
