// Package auth obtains an authorized HTTP client for the YouTube Data API.
//
// Client secrets come from a Google OAuth client JSON file. The resulting
// token is cached on disk, so the browser step only happens once per
// machine; refreshed tokens are written back when the session closes.
package auth

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/youtube/v3"

	"vidsync/internal/storage"
)

// Sentinel errors for credential acquisition.
var (
	ErrNoSecrets    = errors.New("auth: client secrets file not found")
	ErrAuthRequired = errors.New("auth: no cached token and no way to prompt for one")
)

// Config locates credentials on disk.
type Config struct {
	// ClientSecretsFile is the OAuth client JSON downloaded from the Google
	// Cloud console.
	ClientSecretsFile string
	// TokenFile caches the authorized token.
	TokenFile string
	// Scopes defaults to the full YouTube scope.
	Scopes []string
}

// Prompt shows the authorization URL to the user and returns the code they
// obtained from it.
type Prompt func(ctx context.Context, authURL string) (string, error)

// TerminalPrompt prints the URL to out and reads the code as one line from in.
func TerminalPrompt(in io.Reader, out io.Writer) Prompt {
	return func(ctx context.Context, authURL string) (string, error) {
		fmt.Fprintf(out, "Go to the following link in your browser:\n\n    %s\n\nEnter verification code: ", authURL)
		sc := bufio.NewScanner(in)
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return "", fmt.Errorf("read verification code: %w", err)
			}
			return "", fmt.Errorf("read verification code: %w", io.ErrUnexpectedEOF)
		}
		return strings.TrimSpace(sc.Text()), nil
	}
}

// Session holds an authorized client. Close it to persist a refreshed token.
type Session struct {
	store  *storage.TokenStore
	source *recordingSource
	saved  *oauth2.Token
	client *http.Client
}

// Acquire loads the client secrets and the cached token, running the
// authorization code flow through prompt when no usable token is cached.
// A nil prompt makes a missing token an error.
func Acquire(ctx context.Context, cfg Config, prompt Prompt) (*Session, error) {
	oc, err := loadSecrets(cfg)
	if err != nil {
		return nil, err
	}

	store := storage.NewTokenStore(cfg.TokenFile)
	tok, err := store.Load()
	switch {
	case err == nil:
		logrus.WithField("token_file", store.Path()).Debug("using cached token")
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrStorageCorrupt):
		if errors.Is(err, storage.ErrStorageCorrupt) {
			logrus.WithError(err).Warn("ignoring unreadable token cache")
		}
		tok, err = authorize(ctx, oc, prompt)
		if err != nil {
			return nil, err
		}
		if err := store.Save(tok); err != nil {
			return nil, err
		}
		logrus.WithField("token_file", store.Path()).Info("stored new token")
	default:
		return nil, err
	}

	src := &recordingSource{src: oc.TokenSource(ctx, tok), last: tok}
	return &Session{
		store:  store,
		source: src,
		saved:  tok,
		client: oauth2.NewClient(ctx, src),
	}, nil
}

// Client returns the authorized HTTP client.
func (s *Session) Client() *http.Client { return s.client }

// Close writes the current token back when it was refreshed during the
// session.
func (s *Session) Close() error {
	cur := s.source.latest()
	if cur == nil || cur.AccessToken == s.saved.AccessToken {
		return nil
	}
	if err := s.store.Save(cur); err != nil {
		return err
	}
	s.saved = cur
	logrus.Debug("persisted refreshed token")
	return nil
}

func loadSecrets(cfg Config) (*oauth2.Config, error) {
	data, err := os.ReadFile(cfg.ClientSecretsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoSecrets, cfg.ClientSecretsFile)
		}
		return nil, fmt.Errorf("auth: read client secrets: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{youtube.YoutubeScope}
	}
	oc, err := google.ConfigFromJSON(data, scopes...)
	if err != nil {
		return nil, fmt.Errorf("auth: parse client secrets %s: %w", cfg.ClientSecretsFile, err)
	}
	return oc, nil
}

func authorize(ctx context.Context, oc *oauth2.Config, prompt Prompt) (*oauth2.Token, error) {
	if prompt == nil {
		return nil, ErrAuthRequired
	}

	state := uuid.NewString()
	code, err := prompt(ctx, oc.AuthCodeURL(state, oauth2.AccessTypeOffline))
	if err != nil {
		return nil, fmt.Errorf("auth: %w", err)
	}
	if code == "" {
		return nil, fmt.Errorf("auth: empty verification code")
	}

	tok, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchange code: %w", err)
	}
	return tok, nil
}

// recordingSource remembers the last token it handed out.
type recordingSource struct {
	src oauth2.TokenSource

	mu   sync.Mutex
	last *oauth2.Token
}

func (r *recordingSource) Token() (*oauth2.Token, error) {
	tok, err := r.src.Token()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.last = tok
	r.mu.Unlock()
	return tok, nil
}

func (r *recordingSource) latest() *oauth2.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
