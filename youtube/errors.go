// Package youtube talks to the YouTube Data API v3 on behalf of the
// authenticated channel: it lists previous uploads, pushes new videos through
// the resumable upload protocol and updates video privacy.
package youtube

import "errors"

// Sentinel errors for channel operations.
var (
	ErrNotFound       = errors.New("youtube: video not found")
	ErrAmbiguous      = errors.New("youtube: more than one video matches")
	ErrInvalidPrivacy = errors.New("youtube: invalid privacy status")
)

// PrivacyStatuses are the values accepted by SetPrivacy.
var PrivacyStatuses = []string{"public", "private", "unlisted"}

// CatalogError wraps catalog and video API errors with the operation that
// failed. Use errors.As() to extract it:
//
//	var catErr *youtube.CatalogError
//	if errors.As(err, &catErr) {
//		fmt.Printf("%s failed: %v\n", catErr.Op, catErr.Err)
//	}
type CatalogError struct {
	// Op is the API call that failed, e.g. "playlistItems.list".
	Op string
	// Marker is the title marker being searched, if any.
	Marker string
	// Err is the underlying error.
	Err error
}

func (e *CatalogError) Error() string {
	if e.Marker == "" {
		return "youtube: " + e.Op + ": " + e.Err.Error()
	}
	return "youtube: " + e.Op + " (" + e.Marker + "): " + e.Err.Error()
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *CatalogError) Unwrap() error { return e.Err }
