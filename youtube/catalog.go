package youtube

import (
	"context"
	"iter"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"google.golang.org/api/youtube/v3"

	"vidsync/internal/retry"
	"vidsync/reconcile"
)

// CatalogConfig tunes catalog queries.
type CatalogConfig struct {
	// PageSize is the playlistItems.list page size (1-50).
	PageSize int64
	// RequestsPerSecond paces API calls. Zero or less disables pacing.
	RequestsPerSecond float64
	// Retry bounds retries of a single API call.
	Retry retry.Config
	// RetriableStatusCodes are the HTTP statuses retried.
	RetriableStatusCodes []int
}

// DefaultCatalogConfig lists 50 items per page at up to two calls a second.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		PageSize:             50,
		RequestsPerSecond:    2,
		Retry:                retry.DefaultConfig(),
		RetriableStatusCodes: append([]int(nil), retry.DefaultStatusCodes...),
	}
}

// CatalogFetcher reads the authenticated channel's uploads.
type CatalogFetcher struct {
	service  *youtube.Service
	cfg      CatalogConfig
	limiter  *rate.Limiter
	classify retry.ErrorClassifier
}

// NewCatalogFetcher creates a fetcher over an authorized service.
func NewCatalogFetcher(service *youtube.Service, cfg CatalogConfig) *CatalogFetcher {
	if cfg.PageSize <= 0 || cfg.PageSize > 50 {
		cfg.PageSize = 50
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &CatalogFetcher{
		service:  service,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		classify: retry.StatusClassifier(cfg.RetriableStatusCodes),
	}
}

// Entries lists the uploads whose title contains marker, ignoring case. The
// sequence is lazy and restarts from the first page on every range loop.
// An account without a channel yields nothing. A failed page ends the
// sequence with a *CatalogError.
func (f *CatalogFetcher) Entries(ctx context.Context, marker string) iter.Seq2[reconcile.RemoteVideoEntry, error] {
	needle := strings.ToLower(marker)
	return func(yield func(reconcile.RemoteVideoEntry, error) bool) {
		playlistID, err := f.uploadsPlaylist(ctx)
		if err != nil {
			yield(reconcile.RemoteVideoEntry{}, &CatalogError{Op: "channels.list", Marker: marker, Err: err})
			return
		}
		if playlistID == "" {
			logrus.Warn("authenticated account has no channel")
			return
		}

		pageToken := ""
		for {
			resp, err := f.playlistPage(ctx, playlistID, pageToken)
			if err != nil {
				yield(reconcile.RemoteVideoEntry{}, &CatalogError{Op: "playlistItems.list", Marker: marker, Err: err})
				return
			}

			for _, item := range resp.Items {
				if item.Snippet == nil {
					continue
				}
				if !strings.Contains(strings.ToLower(item.Snippet.Title), needle) {
					continue
				}
				entry := reconcile.RemoteVideoEntry{
					Title:    item.Snippet.Title,
					RemoteID: playlistVideoID(item),
				}
				logrus.WithFields(logrus.Fields{
					"title":    entry.Title,
					"video_id": entry.RemoteID,
				}).Debug("found uploaded video")
				if !yield(entry, nil) {
					return
				}
			}

			pageToken = resp.NextPageToken
			if pageToken == "" {
				return
			}
		}
	}
}

// Fetch drains Entries. No match at all yields reconcile.NoCatalog().
func (f *CatalogFetcher) Fetch(ctx context.Context, marker string) (reconcile.Catalog, error) {
	var entries []reconcile.RemoteVideoEntry
	for entry, err := range f.Entries(ctx, marker) {
		if err != nil {
			return reconcile.NoCatalog(), err
		}
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		logrus.WithField("marker", marker).Info("no uploaded videos match, treating catalog as absent")
		return reconcile.NoCatalog(), nil
	}
	logrus.WithFields(logrus.Fields{
		"marker":  marker,
		"entries": len(entries),
	}).Info("fetched remote catalog")
	return reconcile.NewCatalog(entries).WithMarker(marker), nil
}

// VideoIDForSession returns the id of the only upload whose title contains
// sessionID. It returns ErrNotFound when none does and ErrAmbiguous when
// several do.
func (f *CatalogFetcher) VideoIDForSession(ctx context.Context, sessionID string) (string, error) {
	var ids []string
	for entry, err := range f.Entries(ctx, sessionID) {
		if err != nil {
			return "", err
		}
		ids = append(ids, entry.RemoteID)
	}

	switch len(ids) {
	case 0:
		return "", &CatalogError{Op: "lookup", Marker: sessionID, Err: ErrNotFound}
	case 1:
		return ids[0], nil
	default:
		return "", &CatalogError{Op: "lookup", Marker: sessionID, Err: ErrAmbiguous}
	}
}

// SetPrivacy changes the privacy status of an uploaded video.
func (f *CatalogFetcher) SetPrivacy(ctx context.Context, videoID, status string) error {
	if !slices.Contains(PrivacyStatuses, status) {
		return &CatalogError{Op: "videos.update", Err: ErrInvalidPrivacy}
	}

	var current *youtube.Video
	err := f.call(ctx, func(ctx context.Context) error {
		resp, err := f.service.Videos.List([]string{"status"}).
			Id(videoID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) > 0 {
			current = resp.Items[0]
		}
		return nil
	})
	if err != nil {
		return &CatalogError{Op: "videos.list", Marker: videoID, Err: err}
	}
	if current == nil {
		return &CatalogError{Op: "videos.list", Marker: videoID, Err: ErrNotFound}
	}

	st := current.Status
	if st == nil {
		st = &youtube.VideoStatus{}
	}
	st.PrivacyStatus = status

	err = f.call(ctx, func(ctx context.Context) error {
		_, err := f.service.Videos.Update([]string{"status"}, &youtube.Video{Id: videoID, Status: st}).
			Context(ctx).
			Do()
		return err
	})
	if err != nil {
		return &CatalogError{Op: "videos.update", Marker: videoID, Err: err}
	}

	logrus.WithFields(logrus.Fields{
		"video_id": videoID,
		"privacy":  status,
	}).Info("updated video privacy")
	return nil
}

// uploadsPlaylist returns the uploads playlist of the first channel owned by
// the caller, or "" when there is none.
func (f *CatalogFetcher) uploadsPlaylist(ctx context.Context) (string, error) {
	var playlistID string
	err := f.call(ctx, func(ctx context.Context) error {
		resp, err := f.service.Channels.List([]string{"contentDetails"}).
			Mine(true).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 {
			return nil
		}
		ch := resp.Items[0]
		if ch.ContentDetails != nil && ch.ContentDetails.RelatedPlaylists != nil {
			playlistID = ch.ContentDetails.RelatedPlaylists.Uploads
		}
		return nil
	})
	return playlistID, err
}

func (f *CatalogFetcher) playlistPage(ctx context.Context, playlistID, pageToken string) (*youtube.PlaylistItemListResponse, error) {
	var page *youtube.PlaylistItemListResponse
	err := f.call(ctx, func(ctx context.Context) error {
		call := f.service.PlaylistItems.List([]string{"snippet"}).
			PlaylistId(playlistID).
			MaxResults(f.cfg.PageSize).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return err
		}
		page = resp
		return nil
	})
	return page, err
}

// call paces and retries a single API request.
func (f *CatalogFetcher) call(ctx context.Context, fn func(context.Context) error) error {
	return retry.Do(ctx, f.cfg.Retry, f.classify, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
		return fn(ctx)
	})
}

func playlistVideoID(item *youtube.PlaylistItem) string {
	if item.Snippet != nil && item.Snippet.ResourceId != nil && item.Snippet.ResourceId.VideoId != "" {
		return item.Snippet.ResourceId.VideoId
	}
	if item.ContentDetails != nil {
		return item.ContentDetails.VideoId
	}
	return ""
}
