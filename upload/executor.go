// Package upload drives resumable uploads to completion, retrying transient
// failures with bounded exponential backoff and full jitter.
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"vidsync/internal/retry"
	"vidsync/reconcile"
)

// Sentinel errors for upload failures.
var (
	// ErrUnexpectedResponse means the remote end finished the transfer but
	// returned no video id.
	ErrUnexpectedResponse = errors.New("upload: response has no video id")
	// ErrRetriesExhausted means more than MaxRetries transient failures
	// occurred for one task.
	ErrRetriesExhausted = errors.New("upload: retry budget exhausted")
)

// Progress reports how much of a transfer the remote end has acknowledged.
type Progress struct {
	Sent  int64
	Total int64
}

// Response is the final answer of a completed transfer.
type Response struct {
	// ID is the remote identifier of the uploaded video.
	ID string
	// Body is the raw response, kept for diagnostics.
	Body []byte
}

// Transfer is a chunked, resumable upload of one file. Each NextChunk call
// pushes the next piece and advances a cursor kept by the transfer. It
// returns a nil Response while the upload is incomplete.
type Transfer interface {
	NextChunk(ctx context.Context) (Progress, *Response, error)
	Close() error
}

// TransferOpener prepares a transfer for a task.
type TransferOpener interface {
	Open(ctx context.Context, task reconcile.UploadTask) (Transfer, error)
}

// Config is the immutable retry behaviour of an Executor.
type Config struct {
	// Retry bounds the number of retries and shapes the backoff window.
	Retry retry.Config
	// RetriableStatusCodes are the HTTP statuses treated as transient.
	RetriableStatusCodes []int
}

// DefaultConfig allows ten retries on 500, 502, 503 and 504, sleeping up to
// 2^n seconds before retry n.
func DefaultConfig() Config {
	return Config{
		Retry:                retry.DefaultConfig(),
		RetriableStatusCodes: append([]int(nil), retry.DefaultStatusCodes...),
	}
}

// Attempt describes a retry the executor is about to make.
type Attempt struct {
	// Retry is the 1-based retry number.
	Retry int
	// Window is the upper bound the sleep was drawn from.
	Window time.Duration
	// Sleep is the chosen delay.
	Sleep time.Duration
	// Err is the transient error that triggered the retry.
	Err error
}

// Result is a completed upload.
type Result struct {
	VideoID string
	Retries int
}

// TaskError is returned when a task fails. Other tasks are unaffected.
type TaskError struct {
	SessionID string
	Path      string
	Retries   int
	Err       error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("upload %s (%s) failed after %d retries: %v", e.SessionID, e.Path, e.Retries, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *TaskError) Unwrap() error { return e.Err }

// Executor uploads single tasks. It holds no per-task state, so one executor
// may serve concurrent uploads.
type Executor struct {
	cfg      Config
	opener   TransferOpener
	classify retry.ErrorClassifier

	// Rand returns values in [0, 1) for jitter. Defaults to math/rand.
	Rand func() float64
	// Sleep waits between retries. Defaults to retry.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry, when set, observes every retry before the sleep.
	OnRetry func(task reconcile.UploadTask, a Attempt)
}

// NewExecutor creates an executor with the given configuration.
func NewExecutor(cfg Config, opener TransferOpener) *Executor {
	return &Executor{
		cfg:      cfg,
		opener:   opener,
		classify: retry.StatusClassifier(cfg.RetriableStatusCodes),
		Sleep:    retry.Sleep,
	}
}

// Config returns the executor configuration.
func (e *Executor) Config() Config { return e.cfg }

// Upload runs the transfer for task until it completes or fails.
//
// A final response with an id completes the task. A final response without
// one fails it at once, as does any error outside the retriable set.
// Transient errors are retried until more than MaxRetries have occurred.
func (e *Executor) Upload(ctx context.Context, task reconcile.UploadTask) (*Result, error) {
	log := logrus.WithFields(logrus.Fields{
		"session": task.SessionID,
		"file":    task.FilePath,
	})

	tr, err := e.opener.Open(ctx, task)
	if err != nil {
		return nil, e.fail(task, 0, err)
	}
	defer tr.Close()

	sleep := e.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}

	retries := 0
	for {
		log.Debug("uploading chunk")
		progress, resp, err := tr.NextChunk(ctx)
		if err == nil {
			if resp == nil {
				log.WithFields(logrus.Fields{
					"sent":  progress.Sent,
					"total": progress.Total,
				}).Debug("chunk accepted")
				continue
			}
			if resp.ID == "" {
				return nil, e.fail(task, retries, fmt.Errorf("%w: %s", ErrUnexpectedResponse, truncate(resp.Body, 200)))
			}
			log.WithFields(logrus.Fields{
				"video_id": resp.ID,
				"retries":  retries,
			}).Info("video uploaded")
			return &Result{VideoID: resp.ID, Retries: retries}, nil
		}

		if !e.classify(err) {
			return nil, e.fail(task, retries, err)
		}

		retries++
		if retries > e.cfg.Retry.MaxRetries {
			log.WithError(err).Error("no longer attempting to retry")
			return nil, e.fail(task, retries-1, fmt.Errorf("%w: %w", ErrRetriesExhausted, err))
		}

		window := e.cfg.Retry.Window(retries)
		a := Attempt{
			Retry:  retries,
			Window: window,
			Sleep:  retry.FullJitter(window, e.Rand),
			Err:    err,
		}
		log.WithFields(logrus.Fields{
			"retry": a.Retry,
			"sleep": a.Sleep,
		}).WithError(err).Warn("retriable error, sleeping before retry")
		if e.OnRetry != nil {
			e.OnRetry(task, a)
		}

		if err := sleep(ctx, a.Sleep); err != nil {
			return nil, e.fail(task, retries, err)
		}
	}
}

func (e *Executor) fail(task reconcile.UploadTask, retries int, err error) error {
	return &TaskError{
		SessionID: task.SessionID,
		Path:      task.FilePath,
		Retries:   retries,
		Err:       err,
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
