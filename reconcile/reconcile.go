// Package reconcile decides which local recordings still need uploading.
//
// Plan is pure: it only looks at its arguments, so the same inventory and
// catalog always produce the same tasks in the same order.
package reconcile

import (
	"fmt"
	"strings"

	"vidsync/inventory"
)

// RemoteVideoEntry is one previously uploaded video.
type RemoteVideoEntry struct {
	Title    string `json:"title"`
	RemoteID string `json:"remote_id"`
}

// Catalog is the result of a remote catalog query. The zero value is the
// "no catalog" result: nothing matching was found remotely, so every local
// video is uploaded without comparison. A found catalog may still be empty.
type Catalog struct {
	entries []RemoteVideoEntry
	found   bool
	marker  string
}

// NoCatalog returns the sentinel catalog meaning no remote entries exist.
func NoCatalog() Catalog { return Catalog{} }

// NewCatalog returns a found catalog holding entries.
func NewCatalog(entries []RemoteVideoEntry) Catalog {
	return Catalog{entries: append([]RemoteVideoEntry(nil), entries...), found: true}
}

// WithMarker returns a copy of c that knows the event marker its titles were
// filtered by. Exact matching then also accepts "<marker>-<id>" and
// "<marker> <id>" titles.
func (c Catalog) WithMarker(marker string) Catalog {
	c.marker = strings.ToLower(marker)
	return c
}

// Marker returns the event marker, or "" when none was set.
func (c Catalog) Marker() string { return c.marker }

// Found reports whether this is a real catalog rather than NoCatalog.
func (c Catalog) Found() bool { return c.found }

// Entries returns a copy of the catalog entries.
func (c Catalog) Entries() []RemoteVideoEntry {
	return append([]RemoteVideoEntry(nil), c.entries...)
}

// Len returns the number of entries.
func (c Catalog) Len() int { return len(c.entries) }

// MatchMode selects how a session id is compared with remote titles.
type MatchMode string

const (
	// MatchExact matches when the lower-cased title equals the lower-cased
	// session id, optionally after removing a leading "<marker>-" or
	// "<marker> ". "YVR18-keynote" matches session "keynote" in a yvr18
	// catalog, but "yvr18-100k" never matches session "yvr18-10".
	MatchExact MatchMode = "exact"
	// MatchContains matches when the lower-cased title contains the
	// lower-cased session id. Session ids that prefix each other collide.
	MatchContains MatchMode = "contains"
)

// ParseMatchMode validates a configured match mode. Empty means exact.
func ParseMatchMode(s string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(s)) {
	case "", MatchExact:
		return MatchExact, nil
	case MatchContains:
		return MatchContains, nil
	default:
		return "", fmt.Errorf("reconcile: unknown match mode %q (use exact or contains)", s)
	}
}

// Matches reports whether title refers to sessionID under the mode, with no
// event marker.
func (m MatchMode) Matches(title, sessionID string) bool {
	return m.matches(title, sessionID, "")
}

func (m MatchMode) matches(title, sessionID, marker string) bool {
	t := strings.ToLower(title)
	id := strings.ToLower(sessionID)
	if m == MatchContains {
		return strings.Contains(t, id)
	}
	if t == id {
		return true
	}
	if marker == "" || !strings.HasPrefix(t, marker) {
		return false
	}
	rest := t[len(marker):]
	for _, sep := range []string{"-", " "} {
		if strings.HasPrefix(rest, sep) && rest[len(sep):] == id {
			return true
		}
	}
	return false
}

// UploadTask describes one video to upload.
type UploadTask struct {
	FilePath      string
	SessionID     string
	Title         string
	Description   string
	Keywords      []string
	Category      string
	PrivacyStatus string
}

// Template holds the fixed metadata applied to every task.
type Template struct {
	Category      string
	PrivacyStatus string
	Match         MatchMode
}

// DefaultTemplate uploads privately under category 28 (Science & Technology).
func DefaultTemplate() Template {
	return Template{
		Category:      "28",
		PrivacyStatus: "private",
		Match:         MatchExact,
	}
}

// NewTask builds the upload task for a single local video.
func (t Template) NewTask(v inventory.LocalVideo) UploadTask {
	return UploadTask{
		FilePath:      v.Path,
		SessionID:     v.SessionID,
		Title:         v.SessionID,
		Description:   v.SessionID,
		Keywords:      []string{v.SessionID},
		Category:      t.Category,
		PrivacyStatus: t.PrivacyStatus,
	}
}

// Plan returns one task per local video that has no matching catalog
// entry, in input order. With NoCatalog every video gets a task.
func Plan(videos []inventory.LocalVideo, catalog Catalog, tmpl Template) []UploadTask {
	tasks := make([]UploadTask, 0, len(videos))
	for _, v := range videos {
		if _, ok := Existing(catalog, v.SessionID, tmpl.Match); ok {
			continue
		}
		tasks = append(tasks, tmpl.NewTask(v))
	}
	return tasks
}

// Existing returns the catalog entry matching sessionID, if any.
func Existing(catalog Catalog, sessionID string, mode MatchMode) (RemoteVideoEntry, bool) {
	if !catalog.Found() {
		return RemoteVideoEntry{}, false
	}
	for _, e := range catalog.entries {
		if mode.matches(e.Title, sessionID, catalog.marker) {
			return e, true
		}
	}
	return RemoteVideoEntry{}, false
}
