// Package storage persists the OAuth token used to talk to the YouTube API.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

const (
	schemaVersion = "1"
	lockTimeout   = 5 * time.Second
)

// Sentinel errors for token storage.
var (
	ErrNotFound       = errors.New("storage: token not found")
	ErrStorageCorrupt = errors.New("storage: token file corrupt")
	ErrLockTimeout    = errors.New("storage: lock timeout")
	ErrInvalidInput   = errors.New("storage: invalid input")
)

// StorageError wraps a failed storage operation with the file involved.
type StorageError struct {
	// Op is the operation that failed ("read", "write", "lock").
	Op string
	// Path is the file the operation touched.
	Path string
	// Err is the underlying error.
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *StorageError) Unwrap() error { return e.Err }

// tokenFile is the on-disk layout.
type tokenFile struct {
	Version   string        `json:"version"`
	UpdatedAt time.Time     `json:"updated_at"`
	Token     *oauth2.Token `json:"token"`
}

// TokenStore keeps a single OAuth token in a JSON file. Writes are atomic
// and serialized across processes with an advisory lock.
type TokenStore struct {
	path string
	mu   sync.Mutex
}

// NewTokenStore returns a store backed by the file at path. The file does
// not need to exist yet.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the backing file path.
func (s *TokenStore) Path() string { return s.path }

// Load reads the stored token. It returns ErrNotFound when no token has been
// saved yet.
func (s *TokenStore) Load() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, &StorageError{Op: "read", Path: s.path, Err: err}
	}

	var f tokenFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &StorageError{Op: "read", Path: s.path, Err: ErrStorageCorrupt}
	}
	if f.Token == nil || (f.Token.AccessToken == "" && f.Token.RefreshToken == "") {
		return nil, &StorageError{Op: "read", Path: s.path, Err: ErrStorageCorrupt}
	}
	return f.Token, nil
}

// Save replaces the stored token.
func (s *TokenStore) Save(tok *oauth2.Token) error {
	if tok == nil {
		return &StorageError{Op: "write", Path: s.path, Err: ErrInvalidInput}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The lock file lives next to the token.
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}

	lock := newFileLock(s.path)
	if err := lock.lock(lockTimeout); err != nil {
		return err
	}
	defer lock.unlock()

	w, err := newAtomicWriter(s.path, 0600)
	if err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(tokenFile{Version: schemaVersion, UpdatedAt: time.Now().UTC(), Token: tok}); err != nil {
		w.abort()
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}

	if err := w.commit(); err != nil {
		return &StorageError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}
