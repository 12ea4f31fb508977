package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"vidsync/archive"
	"vidsync/reconcile"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}

	if cfg.Category != "28" || cfg.PrivacyStatus != "private" {
		t.Errorf("category/privacy = %q/%q", cfg.Category, cfg.PrivacyStatus)
	}
	if cfg.Template().Match != reconcile.MatchExact {
		t.Errorf("default match mode = %q, want exact", cfg.Template().Match)
	}
	if cfg.MaxRetries != 10 || cfg.InitialBackoff != time.Second || cfg.BackoffMultiplier != 2 {
		t.Errorf("retry defaults = %d %v %v", cfg.MaxRetries, cfg.InitialBackoff, cfg.BackoffMultiplier)
	}
	if cfg.Concurrency != 1 || cfg.ChunkSize != 0 {
		t.Errorf("upload defaults = %d %d", cfg.Concurrency, cfg.ChunkSize)
	}
	if cfg.Archive.Backend != archive.BackendAWSCLI || cfg.Archive.Profile != "ConnectAutomation" {
		t.Errorf("archive defaults = %+v", cfg.Archive)
	}
	if got := cfg.Archive.Destination("yvr18"); got != "s3://connect.linaro.org/private/yvr18/" {
		t.Errorf("archive destination = %q", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"unlisted uploads", func(c *Config) { c.PrivacyStatus = "unlisted" }, false},
		{"bad privacy", func(c *Config) { c.PrivacyStatus = "hidden" }, true},
		{"bad match mode", func(c *Config) { c.MatchMode = "fuzzy" }, true},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, true},
		{"zero retries allowed", func(c *Config) { c.MaxRetries = 0 }, false},
		{"zero backoff", func(c *Config) { c.InitialBackoff = 0 }, true},
		{"max below initial", func(c *Config) { c.MaxBackoff = time.Millisecond }, true},
		{"multiplier 1", func(c *Config) { c.BackoffMultiplier = 1 }, true},
		{"bad status code", func(c *Config) { c.RetriableStatusCodes = []int{503, 42} }, true},
		{"page size too big", func(c *Config) { c.PageSize = 51 }, true},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, true},
		{"negative chunk", func(c *Config) { c.ChunkSize = -1 }, true},
		{"no secrets", func(c *Config) { c.ClientSecretsFile = "" }, true},
		{"unknown archive", func(c *Config) { c.Archive.Backend = "tape" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vidsync.json")
	data := `{
		"privacy_status": "unlisted",
		"match_mode": "contains",
		"concurrency": 3,
		"archive": {"backend": "s3", "bucket": "archive.example", "prefix": "events"}
	}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.PrivacyStatus != "unlisted" || cfg.Concurrency != 3 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Template().Match != reconcile.MatchContains {
		t.Errorf("Template().Match = %q, want contains", cfg.Template().Match)
	}
	if cfg.Archive.Backend != archive.BackendS3 || cfg.Archive.Destination("bkk19") != "s3://archive.example/events/bkk19/" {
		t.Errorf("archive = %+v", cfg.Archive)
	}
	if cfg.Category != "28" {
		t.Errorf("unset fields should keep defaults, category = %q", cfg.Category)
	}
}

func TestLoadFile_TOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vidsync.toml")
	data := `
client_secrets_file = "/etc/vidsync/secret.json"
max_retries = 4
initial_backoff = "500ms"
max_backoff = "1m"
retriable_status_codes = [500, 503]
chunk_size = 1048576

[archive]
backend = "none"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.ClientSecretsFile != "/etc/vidsync/secret.json" || cfg.ChunkSize != 1<<20 {
		t.Errorf("cfg = %+v", cfg)
	}
	r := cfg.Retry()
	if r.MaxRetries != 4 || r.InitialBackoff != 500*time.Millisecond || r.MaxBackoff != time.Minute {
		t.Errorf("Retry() = %+v", r)
	}
	if u := cfg.Upload(); len(u.RetriableStatusCodes) != 2 {
		t.Errorf("Upload().RetriableStatusCodes = %v", u.RetriableStatusCodes)
	}
	if cfg.Archive.Backend != archive.BackendNone {
		t.Errorf("archive backend = %q", cfg.Archive.Backend)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadFile(filepath.Join(dir, "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadFile(missing) error = %v, want not exist", err)
	}

	bad := filepath.Join(dir, "bad.toml")
	os.WriteFile(bad, []byte("max_retries = [oops"), 0o644)
	if _, err := LoadFile(bad); err == nil {
		t.Error("LoadFile(bad toml) should fail")
	}

	invalid := filepath.Join(dir, "invalid.json")
	os.WriteFile(invalid, []byte(`{"concurrency": 0}`), 0o644)
	if _, err := LoadFile(invalid); err == nil {
		t.Error("LoadFile(invalid values) should fail validation")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	if err := os.WriteFile("vidsync.json", []byte(`{"concurrency": 2, "privacy_status": "public"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VIDSYNC_CONCURRENCY", "4")
	t.Setenv("VIDSYNC_INITIAL_BACKOFF", "2s")
	t.Setenv("VIDSYNC_S3_PREFIX", "public")
	t.Setenv("VIDSYNC_DRY_RUN", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want env value 4", cfg.Concurrency)
	}
	if cfg.PrivacyStatus != "public" {
		t.Errorf("PrivacyStatus = %q, want file value public", cfg.PrivacyStatus)
	}
	if cfg.InitialBackoff != 2*time.Second {
		t.Errorf("InitialBackoff = %v", cfg.InitialBackoff)
	}
	if cfg.Archive.Prefix != "public" || !cfg.Archive.DryRun {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
}

func TestLoad_NoFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TokenFile != "vidsync-oauth2.json" {
		t.Errorf("TokenFile = %q", cfg.TokenFile)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("VIDSYNC_MAX_RETRIES", "many")

	if _, err := Load(); err == nil {
		t.Error("Load() should reject a non-numeric VIDSYNC_MAX_RETRIES")
	}
}
