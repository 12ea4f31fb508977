// Package inventory finds session recordings on the local filesystem.
package inventory

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// VideoExt is the extension of files treated as session recordings.
const VideoExt = ".mp4"

// LocalVideo is a recording found on disk.
type LocalVideo struct {
	// Path is the file path as found under the scanned root.
	Path string
	// SessionID is the file name without directory or extension.
	SessionID string
}

// Scan walks root recursively and returns every .mp4 file below it, sorted
// by path. A root that does not exist yields an empty result and no error.
func Scan(root string) ([]LocalVideo, error) {
	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logrus.WithField("dir", root).Debug("video directory does not exist")
			return []LocalVideo{}, nil
		}
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "scan", Path: root, Err: errors.New("not a directory")}
	}

	videos := []LocalVideo{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"path":  path,
				"error": err,
			}).Warn("skipping unreadable path")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !isVideo(path) {
			return nil
		}
		videos = append(videos, LocalVideo{Path: path, SessionID: SessionID(path)})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(videos, func(i, j int) bool {
		return videos[i].Path < videos[j].Path
	})
	return videos, nil
}

// SessionID derives the session identifier from a recording path:
// "a/b/yvr18-100k.mp4" and "yvr18-100k.mp4" both give "yvr18-100k".
// Applying it to its own output returns the same value.
func SessionID(path string) string {
	base := filepath.Base(path)
	if isVideo(base) {
		return base[:len(base)-len(VideoExt)]
	}
	return base
}

func isVideo(path string) bool {
	return strings.EqualFold(filepath.Ext(path), VideoExt)
}
