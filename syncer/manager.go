// Package syncer runs a complete event sync: archive the recordings, list
// what is already on the channel and upload the rest.
package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vidsync/archive"
	"vidsync/inventory"
	"vidsync/reconcile"
	"vidsync/upload"
)

// CatalogSource lists previous uploads whose title contains marker.
// *youtube.CatalogFetcher implements it.
type CatalogSource interface {
	Fetch(ctx context.Context, marker string) (reconcile.Catalog, error)
}

// Options tune a Manager.
type Options struct {
	Template    reconcile.Template
	Concurrency int
	FailFast    bool
}

// Manager orchestrates one sync run per Run call.
type Manager struct {
	catalog  CatalogSource
	uploader upload.Uploader
	archiver archive.Syncer
	opts     Options

	// OnOutcome, when set, observes each finished upload.
	OnOutcome func(upload.Outcome)
}

// NewManager creates a manager. A nil archiver skips archiving.
func NewManager(catalog CatalogSource, uploader upload.Uploader, archiver archive.Syncer, opts Options) *Manager {
	if opts.Template == (reconcile.Template{}) {
		opts.Template = reconcile.DefaultTemplate()
	}
	return &Manager{
		catalog:  catalog,
		uploader: uploader,
		archiver: archiver,
		opts:     opts,
	}
}

// Report contains the outcome of a sync run.
type Report struct {
	RunID     string
	Dir       string
	EventCode string

	// Videos are the recordings found locally.
	Videos []inventory.LocalVideo
	// Catalog is the remote catalog the plan was made against.
	Catalog reconcile.Catalog
	// Outcomes holds one entry per planned upload, in plan order.
	Outcomes []upload.Outcome

	// Archive is nil when archiving was skipped or failed to start.
	Archive    *archive.Result
	ArchiveErr error

	Started  time.Time
	Finished time.Time
}

// Uploaded returns the outcomes that completed.
func (r *Report) Uploaded() []upload.Outcome {
	var done []upload.Outcome
	for _, o := range r.Outcomes {
		if o.Err == nil {
			done = append(done, o)
		}
	}
	return done
}

// Failed returns the outcomes that did not complete.
func (r *Report) Failed() []upload.Outcome {
	return upload.Failed(r.Outcomes)
}

// Skipped is the number of local videos already present remotely.
func (r *Report) Skipped() int {
	return len(r.Videos) - len(r.Outcomes)
}

// OK reports whether every upload and the archive succeeded.
func (r *Report) OK() bool {
	return len(r.Failed()) == 0 && r.ArchiveErr == nil
}

// Run syncs dir for eventCode. Archiving runs alongside the upload
// pipeline. The catalog is fetched once, fully, before any upload starts.
//
// The error is non-nil only when the pipeline itself could not run (scan or
// catalog failure). Failed uploads and a failed archive are recorded in the
// report, which is always returned. eventCode is lower-cased before it is
// used as a catalog marker or archive key.
func (m *Manager) Run(ctx context.Context, dir, eventCode string) (*Report, error) {
	eventCode = strings.ToLower(eventCode)
	report := &Report{
		RunID:     uuid.NewString(),
		Dir:       dir,
		EventCode: eventCode,
		Started:   time.Now(),
	}
	log := logrus.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"event":  eventCode,
	})

	archived := m.startArchive(ctx, log, dir, eventCode, report)
	finish := func() {
		<-archived
		report.Finished = time.Now()
	}

	videos, err := inventory.Scan(dir)
	if err != nil {
		finish()
		return report, fmt.Errorf("scan %s: %w", dir, err)
	}
	report.Videos = videos
	log.WithField("videos", len(videos)).Info("scanned local recordings")

	catalog, err := m.catalog.Fetch(ctx, eventCode)
	if err != nil {
		finish()
		return report, fmt.Errorf("fetch catalog: %w", err)
	}
	report.Catalog = catalog

	tasks := reconcile.Plan(videos, catalog, m.opts.Template)
	for _, v := range videos {
		if e, ok := reconcile.Existing(catalog, v.SessionID, m.opts.Template.Match); ok {
			log.WithFields(logrus.Fields{
				"session":  v.SessionID,
				"video_id": e.RemoteID,
			}).Info("already uploaded, skipping")
		}
	}
	log.WithFields(logrus.Fields{
		"tasks":   len(tasks),
		"catalog": catalog.Len(),
		"found":   catalog.Found(),
	}).Info("planned uploads")

	pool := upload.NewPool(m.uploader, m.opts.Concurrency, m.opts.FailFast)
	pool.OnOutcome = m.OnOutcome
	report.Outcomes = pool.Run(ctx, tasks)

	finish()
	log.WithFields(logrus.Fields{
		"uploaded": len(report.Uploaded()),
		"failed":   len(report.Failed()),
		"elapsed":  report.Finished.Sub(report.Started).Round(time.Millisecond),
	}).Info("sync finished")
	return report, nil
}

// startArchive runs the archiver in the background. The returned channel
// is closed once the archive result is stored in report.
func (m *Manager) startArchive(ctx context.Context, log *logrus.Entry, dir, eventCode string, report *Report) <-chan struct{} {
	done := make(chan struct{})
	if m.archiver == nil {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		res, err := m.archiver.Sync(ctx, dir, eventCode)
		report.Archive = res
		report.ArchiveErr = err
		if err != nil {
			log.WithError(err).Error("archive failed")
		}
	}()
	return done
}
