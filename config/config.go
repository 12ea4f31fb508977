// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"vidsync/archive"
	"vidsync/auth"
	"vidsync/internal/retry"
	"vidsync/reconcile"
	"vidsync/upload"
	"vidsync/youtube"
)

// Config holds all application configuration for a sync run.
type Config struct {
	// ClientSecretsFile is the Google OAuth client JSON (default: "client_secret.json")
	ClientSecretsFile string `json:"client_secrets_file" toml:"client_secrets_file"`
	// TokenFile caches the OAuth token (default: "vidsync-oauth2.json")
	TokenFile string `json:"token_file" toml:"token_file"`

	// Category is the YouTube category id for uploads (default: "28")
	Category string `json:"category" toml:"category"`
	// PrivacyStatus of new uploads: public, private or unlisted
	PrivacyStatus string `json:"privacy_status" toml:"privacy_status"`
	// MatchMode compares session ids with remote titles: exact or contains
	MatchMode string `json:"match_mode" toml:"match_mode"`

	// MaxRetries is the per-upload retry budget
	MaxRetries int `json:"max_retries" toml:"max_retries"`
	// InitialBackoff is the base unit of the backoff window
	InitialBackoff time.Duration `json:"initial_backoff" toml:"initial_backoff"`
	// MaxBackoff caps the backoff window
	MaxBackoff time.Duration `json:"max_backoff" toml:"max_backoff"`
	// BackoffMultiplier is the multiplier for exponential backoff (must be > 1)
	BackoffMultiplier float64 `json:"backoff_multiplier" toml:"backoff_multiplier"`
	// RetriableStatusCodes are the HTTP statuses treated as transient
	RetriableStatusCodes []int `json:"retriable_status_codes" toml:"retriable_status_codes"`

	// PageSize is the catalog page size (1-50)
	PageSize int64 `json:"page_size" toml:"page_size"`
	// ListRPS paces catalog API calls; 0 disables pacing
	ListRPS float64 `json:"list_rps" toml:"list_rps"`

	// Concurrency is the number of simultaneous uploads (default: 1)
	Concurrency int `json:"concurrency" toml:"concurrency"`
	// FailFast stops starting uploads after the first failure
	FailFast bool `json:"fail_fast" toml:"fail_fast"`
	// ChunkSize of upload requests in bytes; 0 sends each file in one request
	ChunkSize int64 `json:"chunk_size" toml:"chunk_size"`

	// APIEndpoint and UploadEndpoint override the Google endpoints
	APIEndpoint    string `json:"api_endpoint" toml:"api_endpoint"`
	UploadEndpoint string `json:"upload_endpoint" toml:"upload_endpoint"`

	// Archive configures the object storage copy of the recordings
	Archive archive.Config `json:"archive" toml:"archive"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	r := retry.DefaultConfig()
	return &Config{
		ClientSecretsFile:    "client_secret.json",
		TokenFile:            "vidsync-oauth2.json",
		Category:             "28",
		PrivacyStatus:        "private",
		MatchMode:            string(reconcile.MatchExact),
		MaxRetries:           r.MaxRetries,
		InitialBackoff:       r.InitialBackoff,
		MaxBackoff:           r.MaxBackoff,
		BackoffMultiplier:    r.Multiplier,
		RetriableStatusCodes: append([]int(nil), retry.DefaultStatusCodes...),
		PageSize:             50,
		ListRPS:              2,
		Concurrency:          1,
		Archive:              archive.DefaultConfig(),
	}
}

// Load loads configuration from environment variables, config file, and applies defaults.
// Priority: env vars > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Config file is optional
	if err := cfg.loadFromFile(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load config file: %w", err)
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile is Load with an explicit config file, which must exist.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.decodeFile(path); err != nil {
		return nil, fmt.Errorf("load config file: %w", err)
	}
	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SearchPaths lists the config files Load tries, in order.
func SearchPaths() []string {
	dir := filepath.Join(os.Getenv("HOME"), ".config", "vidsync")
	return []string{
		"vidsync.json",
		"vidsync.toml",
		filepath.Join(dir, "vidsync.json"),
		filepath.Join(dir, "vidsync.toml"),
	}
}

// loadFromFile loads the first config file found on SearchPaths.
func (c *Config) loadFromFile() error {
	for _, path := range SearchPaths() {
		err := c.decodeFile(path)
		if os.IsNotExist(err) {
			continue
		}
		return err
	}
	return os.ErrNotExist
}

func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// loadFromEnv overrides config with VIDSYNC_* environment variables.
func (c *Config) loadFromEnv() error {
	str := map[string]*string{
		"VIDSYNC_CLIENT_SECRETS":  &c.ClientSecretsFile,
		"VIDSYNC_TOKEN_FILE":      &c.TokenFile,
		"VIDSYNC_CATEGORY":        &c.Category,
		"VIDSYNC_PRIVACY":         &c.PrivacyStatus,
		"VIDSYNC_MATCH":           &c.MatchMode,
		"VIDSYNC_API_ENDPOINT":    &c.APIEndpoint,
		"VIDSYNC_UPLOAD_ENDPOINT": &c.UploadEndpoint,
		"VIDSYNC_ARCHIVE_BACKEND": &c.Archive.Backend,
		"VIDSYNC_AWS_PATH":        &c.Archive.AWSPath,
		"VIDSYNC_AWS_PROFILE":     &c.Archive.Profile,
		"VIDSYNC_AWS_REGION":      &c.Archive.Region,
		"VIDSYNC_S3_BUCKET":       &c.Archive.Bucket,
		"VIDSYNC_S3_PREFIX":       &c.Archive.Prefix,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v := os.Getenv("VIDSYNC_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VIDSYNC_MAX_RETRIES: %w", err)
		}
		c.MaxRetries = n
	}
	if v := os.Getenv("VIDSYNC_INITIAL_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("VIDSYNC_INITIAL_BACKOFF: %w", err)
		}
		c.InitialBackoff = d
	}
	if v := os.Getenv("VIDSYNC_MAX_BACKOFF"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("VIDSYNC_MAX_BACKOFF: %w", err)
		}
		c.MaxBackoff = d
	}
	if v := os.Getenv("VIDSYNC_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VIDSYNC_CONCURRENCY: %w", err)
		}
		c.Concurrency = n
	}
	if v := os.Getenv("VIDSYNC_CHUNK_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("VIDSYNC_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = n
	}
	if v := os.Getenv("VIDSYNC_LIST_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("VIDSYNC_LIST_RPS: %w", err)
		}
		c.ListRPS = f
	}
	if v := os.Getenv("VIDSYNC_FAIL_FAST"); v != "" {
		c.FailFast = v == "true" || v == "1"
	}
	if v := os.Getenv("VIDSYNC_DRY_RUN"); v != "" {
		c.Archive.DryRun = v == "true" || v == "1"
	}
	return nil
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.ClientSecretsFile == "" {
		return fmt.Errorf("client_secrets_file must be set")
	}
	if c.TokenFile == "" {
		return fmt.Errorf("token_file must be set")
	}
	if c.Category == "" {
		return fmt.Errorf("category must be set")
	}
	if !slices.Contains(youtube.PrivacyStatuses, c.PrivacyStatus) {
		return fmt.Errorf("privacy_status must be one of %s", strings.Join(youtube.PrivacyStatuses, ", "))
	}
	if _, err := reconcile.ParseMatchMode(c.MatchMode); err != nil {
		return err
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("initial_backoff must be positive")
	}
	if c.MaxBackoff <= 0 {
		return fmt.Errorf("max_backoff must be positive")
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max_backoff must be >= initial_backoff")
	}
	if c.BackoffMultiplier <= 1 {
		return fmt.Errorf("backoff_multiplier must be > 1")
	}
	for _, code := range c.RetriableStatusCodes {
		if code < 100 || code > 599 {
			return fmt.Errorf("retriable_status_codes: %d is not an HTTP status", code)
		}
	}
	if c.PageSize < 1 || c.PageSize > 50 {
		return fmt.Errorf("page_size must be between 1 and 50")
	}
	if c.ListRPS < 0 {
		return fmt.Errorf("list_rps must be non-negative")
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.ChunkSize < 0 {
		return fmt.Errorf("chunk_size must be non-negative")
	}
	return c.Archive.Validate()
}

// Retry returns the upload retry policy.
func (c *Config) Retry() retry.Config {
	return retry.Config{
		MaxRetries:     c.MaxRetries,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
		Multiplier:     c.BackoffMultiplier,
	}
}

// Upload returns the executor configuration.
func (c *Config) Upload() upload.Config {
	return upload.Config{
		Retry:                c.Retry(),
		RetriableStatusCodes: append([]int(nil), c.RetriableStatusCodes...),
	}
}

// Catalog returns the catalog fetcher configuration.
func (c *Config) Catalog() youtube.CatalogConfig {
	return youtube.CatalogConfig{
		PageSize:             c.PageSize,
		RequestsPerSecond:    c.ListRPS,
		Retry:                c.Retry(),
		RetriableStatusCodes: append([]int(nil), c.RetriableStatusCodes...),
	}
}

// Template returns the metadata template for new uploads. The match mode
// has already been checked by Validate.
func (c *Config) Template() reconcile.Template {
	mode, _ := reconcile.ParseMatchMode(c.MatchMode)
	return reconcile.Template{
		Category:      c.Category,
		PrivacyStatus: c.PrivacyStatus,
		Match:         mode,
	}
}

// Auth returns the credential locations.
func (c *Config) Auth() auth.Config {
	return auth.Config{
		ClientSecretsFile: c.ClientSecretsFile,
		TokenFile:         c.TokenFile,
	}
}
