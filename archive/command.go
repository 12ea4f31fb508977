package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultAWSPath = "aws"

// ErrAWSNotInstalled means the aws executable could not be started.
var ErrAWSNotInstalled = errors.New("archive: aws cli not installed")

// ExitError reports a sync command that ran and failed.
type ExitError struct {
	Command []string
	Code    int
	Stderr  string
	Err     error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("archive: %s exited with status %d", strings.Join(e.Command, " "), e.Code)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *ExitError) Unwrap() error { return e.Err }

// CommandSyncer runs "aws s3 sync" as a subprocess.
type CommandSyncer struct {
	cfg Config
}

// NewCommandSyncer creates a syncer for the aws-cli backend.
func NewCommandSyncer(cfg Config) *CommandSyncer {
	return &CommandSyncer{cfg: cfg}
}

// Args returns the command line used for an event, executable first.
func (s *CommandSyncer) Args(dir, eventCode string) []string {
	args := []string{s.path(), "s3"}
	if s.cfg.Profile != "" {
		args = append(args, "--profile", s.cfg.Profile)
	}
	args = append(args, "sync", dir, s.cfg.Destination(eventCode))
	if s.cfg.DryRun {
		args = append(args, "--dryrun")
	}
	return args
}

// Sync runs the aws tool and waits for it. A non-zero exit is an *ExitError.
func (s *CommandSyncer) Sync(ctx context.Context, dir, eventCode string) (*Result, error) {
	args := s.Args(dir, eventCode)
	res := &Result{
		Backend:     BackendAWSCLI,
		Destination: s.cfg.Destination(eventCode),
		Command:     args,
		DryRun:      s.cfg.DryRun,
	}

	log := logrus.WithField("command", strings.Join(args, " "))
	log.Info("archiving recordings")

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res.Elapsed = time.Since(start)
	res.Output = stdout.String()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("archive: %w", ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, &ExitError{Command: args, Code: exitErr.ExitCode(), Stderr: stderr.String(), Err: err}
		}
		return res, fmt.Errorf("%w: %w", ErrAWSNotInstalled, err)
	}

	log.WithField("elapsed", res.Elapsed).Info("archive complete")
	return res, nil
}

func (s *CommandSyncer) path() string {
	if s.cfg.AWSPath != "" {
		return s.cfg.AWSPath
	}
	return defaultAWSPath
}
