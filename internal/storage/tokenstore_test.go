package storage

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func TestTokenStore_LoadMissing(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"))

	_, err := store.Load()
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestTokenStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "token.json")
	store := NewTokenStore(path)

	expiry := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	tok := &oauth2.Token{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       expiry,
	}

	if err := store.Save(tok); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AccessToken != "access-1" || got.RefreshToken != "refresh-1" {
		t.Errorf("Load() = %+v, want access-1/refresh-1", got)
	}
	if !got.Expiry.Equal(expiry) {
		t.Errorf("Load().Expiry = %v, want %v", got.Expiry, expiry)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("token file mode = %o, want 0600", perm)
	}

	if _, err := os.Stat(path + ".lock"); !os.IsNotExist(err) {
		t.Errorf("lock file left behind: %v", err)
	}
}

func TestTokenStore_Overwrite(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"))

	if err := store.Save(&oauth2.Token{AccessToken: "old", RefreshToken: "r"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(&oauth2.Token{AccessToken: "new", RefreshToken: "r"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.AccessToken != "new" {
		t.Errorf("AccessToken = %q, want %q", got.AccessToken, "new")
	}
}

func TestTokenStore_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"not json", "{not json"},
		{"no token", `{"version":"1"}`},
		{"empty token", `{"version":"1","token":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "token.json")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}

			_, err := NewTokenStore(path).Load()
			if !errors.Is(err, ErrStorageCorrupt) {
				t.Errorf("Load() error = %v, want ErrStorageCorrupt", err)
			}
			var storageErr *StorageError
			if !errors.As(err, &storageErr) || storageErr.Path != path {
				t.Errorf("Load() error = %v, want *StorageError for %s", err, path)
			}
		})
	}
}

func TestTokenStore_SaveCreatesParents(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "config", "vidsync", "token.json")
	store := NewTokenStore(path)

	if err := store.Save(&oauth2.Token{AccessToken: "a", TokenType: "Bearer"}); err != nil {
		t.Fatalf("Save() into missing directories error = %v", err)
	}
	info, err := os.Stat(filepath.Dir(path))
	if err != nil || !info.IsDir() {
		t.Fatalf("parent directory not created: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("parent directory mode = %o, want 0700", perm)
	}
	if got, err := store.Load(); err != nil || got.AccessToken != "a" {
		t.Errorf("Load() = %+v, %v", got, err)
	}
}

func TestTokenStore_SaveNil(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"))
	if err := store.Save(nil); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Save(nil) error = %v, want ErrInvalidInput", err)
	}
}

func TestTokenStore_ConcurrentSave(t *testing.T) {
	store := NewTokenStore(filepath.Join(t.TempDir(), "token.json"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := store.Save(&oauth2.Token{AccessToken: "a", RefreshToken: "r"}); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := store.Load(); err != nil {
		t.Errorf("Load() after concurrent saves error = %v", err)
	}
}

func TestFileLock_Timeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")

	held := newFileLock(path)
	if err := held.lock(time.Second); err != nil {
		t.Fatalf("lock() error = %v", err)
	}
	defer held.unlock()

	other := newFileLock(path)
	err := other.lock(50 * time.Millisecond)
	if !errors.Is(err, ErrLockTimeout) {
		t.Errorf("second lock() error = %v, want ErrLockTimeout", err)
	}
}
