// Package archive copies an event's recordings to long-term object storage.
//
// Archiving has no data dependency on the YouTube pipeline and runs
// alongside it. Three backends exist: the aws command line tool, a native
// S3 client and a no-op.
package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names.
const (
	BackendAWSCLI = "aws-cli"
	BackendS3     = "s3"
	BackendNone   = "none"
)

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("archive: unknown backend")

// Config selects and configures the archive backend.
type Config struct {
	// Backend is one of aws-cli, s3 or none.
	Backend string `json:"backend" toml:"backend"`
	// AWSPath is the aws executable used by the aws-cli backend.
	AWSPath string `json:"aws_path" toml:"aws_path"`
	// Profile is the AWS credentials profile.
	Profile string `json:"profile" toml:"profile"`
	// Region is used by the s3 backend. Empty uses the profile default.
	Region string `json:"region" toml:"region"`
	// Bucket and Prefix locate the destination: s3://Bucket/Prefix/<event>/.
	Bucket string `json:"bucket" toml:"bucket"`
	Prefix string `json:"prefix" toml:"prefix"`
	// Timeout bounds one archive run. Zero means no limit.
	Timeout time.Duration `json:"timeout" toml:"timeout"`
	// DryRun reports what would be copied without copying.
	DryRun bool `json:"dry_run" toml:"dry_run"`
}

// DefaultConfig syncs with the aws tool into the private area of the
// connect.linaro.org bucket.
func DefaultConfig() Config {
	return Config{
		Backend: BackendAWSCLI,
		AWSPath: "aws",
		Profile: "ConnectAutomation",
		Bucket:  "connect.linaro.org",
		Prefix:  "private",
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendAWSCLI, BackendS3:
		if c.Bucket == "" {
			return fmt.Errorf("archive: bucket required for %s backend", c.Backend)
		}
	case BackendNone:
	default:
		return fmt.Errorf("%w %q", ErrUnknownBackend, c.Backend)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("archive: timeout must be non-negative")
	}
	return nil
}

// KeyPrefix returns the object key prefix for an event, with a trailing slash.
func (c Config) KeyPrefix(eventCode string) string {
	parts := make([]string, 0, 2)
	if p := strings.Trim(c.Prefix, "/"); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, strings.Trim(eventCode, "/"))
	return strings.Join(parts, "/") + "/"
}

// Destination returns the s3:// URL an event is archived to.
func (c Config) Destination(eventCode string) string {
	return "s3://" + c.Bucket + "/" + c.KeyPrefix(eventCode)
}

// Result describes a finished archive run.
type Result struct {
	Backend     string
	Destination string
	// Uploaded and Skipped count files for the s3 backend.
	Uploaded int
	Skipped  int
	// Command is the command line run by the aws-cli backend.
	Command []string
	// Output is the combined output of the aws-cli backend.
	Output  string
	DryRun  bool
	Elapsed time.Duration
}

// Syncer copies a local directory to the archive for one event.
type Syncer interface {
	Sync(ctx context.Context, dir, eventCode string) (*Result, error)
}

// New builds the syncer named by cfg.Backend.
func New(ctx context.Context, cfg Config) (Syncer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case BackendAWSCLI:
		return NewCommandSyncer(cfg), nil
	case BackendS3:
		return NewS3SyncerFromConfig(ctx, cfg)
	default:
		return Nop{}, nil
	}
}

// Nop skips archiving.
type Nop struct{}

// Sync does nothing.
func (Nop) Sync(ctx context.Context, dir, eventCode string) (*Result, error) {
	return &Result{Backend: BackendNone}, nil
}
