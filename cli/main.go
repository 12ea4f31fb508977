package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"vidsync/archive"
	"vidsync/auth"
	"vidsync/config"
	"vidsync/reconcile"
	"vidsync/syncer"
	"vidsync/upload"
	"vidsync/youtube"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// errUsage marks command line mistakes.
var errUsage = errors.New("usage error")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	command := "sync"
	if len(args) > 0 {
		switch args[0] {
		case "sync", "status":
			command, args = args[0], args[1:]
		case "help", "-h", "--help":
			printUsage(stdout)
			return exitOK
		}
	}

	var err error
	switch command {
	case "status":
		err = cmdStatus(ctx, args, stdin, stdout, stderr)
	default:
		err = cmdSync(ctx, args, stdin, stdout, stderr)
	}

	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case errors.Is(err, errUsage):
		fmt.Fprintf(stderr, "Error: %v\n", err)
		fmt.Fprintf(stderr, "Run 'vidsync help' for usage.\n")
		return exitUsage
	case errors.Is(err, errTasksFailed):
		return exitFailure
	default:
		printFailed(stderr, "%v", err)
		return exitFailure
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `vidsync - upload event session recordings to YouTube and archive them to S3

Usage:
  vidsync [sync] [flags] <video-dir> <event-code>              Upload missing recordings
  vidsync status [flags] <session-id> <public|private|unlisted> Change a video's privacy
  vidsync help                                                 Show this help message

Examples:
  vidsync ~/recordings/yvr18 yvr18                  # Upload and archive
  vidsync sync --no-archive --concurrency 2 . bkk19 # Upload only, two at a time
  vidsync status yvr18-100k public                  # Publish a session

Configuration is read from vidsync.json or vidsync.toml in the working
directory or ~/.config/vidsync/, then from VIDSYNC_* environment variables.

For help on a specific command: vidsync <command> -h
`)
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	verbose    bool
	configPath string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.BoolVarP(&c.verbose, "verbose", "V", false, "Enable debug logging")
	fs.StringVar(&c.configPath, "config", "", "Config file (default: search vidsync.json/vidsync.toml)")
}

// load applies logging flags and reads the configuration.
func (c *commonFlags) load() (*config.Config, error) {
	if c.verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if c.configPath != "" {
		return config.LoadFile(c.configPath)
	}
	return config.Load()
}

func newFlagSet(name, usage string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: vidsync %s\n\nFlags:\n", usage)
		fs.PrintDefaults()
	}
	return fs
}

func parse(fs *flag.FlagSet, args []string, want int) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() != want {
		fs.Usage()
		return nil, fmt.Errorf("%w: expected %d arguments, got %d", errUsage, want, fs.NArg())
	}
	return fs.Args(), nil
}

func cmdSync(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("sync", "[sync] [flags] <video-dir> <event-code>", stderr)
	var common commonFlags
	common.register(fs)
	concurrency := fs.Int("concurrency", 1, "Number of simultaneous uploads")
	failFast := fs.Bool("fail-fast", false, "Stop starting uploads after the first failure")
	dryRun := fs.Bool("dry-run", false, "Show what the archive sync would copy without copying")
	noArchive := fs.Bool("no-archive", false, "Skip the S3 archive sync")

	argv, err := parse(fs, args, 2)
	if err != nil {
		return err
	}
	dir, eventCode := argv[0], argv[1]

	cfg, err := common.load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if fs.Changed("concurrency") {
		cfg.Concurrency = *concurrency
	}
	if fs.Changed("fail-fast") {
		cfg.FailFast = *failFast
	}
	if *dryRun {
		cfg.Archive.DryRun = true
	}
	if *noArchive {
		cfg.Archive.Backend = archive.BackendNone
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	sess, err := auth.Acquire(ctx, cfg.Auth(), auth.TerminalPrompt(stdin, stderr))
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logrus.WithError(err).Warn("could not persist refreshed token")
		}
	}()

	svc, err := youtube.NewService(ctx, sess.Client(), cfg.APIEndpoint)
	if err != nil {
		return err
	}
	archiver, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		return err
	}

	executor := upload.NewExecutor(cfg.Upload(), youtube.NewUploader(sess.Client(), cfg.UploadEndpoint, cfg.ChunkSize))
	executor.OnRetry = func(task reconcile.UploadTask, a upload.Attempt) {
		printWarning(stderr, "%s: %v, sleeping %.1f seconds and then retrying (%d/%d)",
			task.SessionID, a.Err, a.Sleep.Seconds(), a.Retry, cfg.MaxRetries)
	}

	mgr := syncer.NewManager(youtube.NewCatalogFetcher(svc, cfg.Catalog()), executor, archiver, syncer.Options{
		Template:    cfg.Template(),
		Concurrency: cfg.Concurrency,
		FailFast:    cfg.FailFast,
	})
	mgr.OnOutcome = func(o upload.Outcome) { printOutcome(stdout, stderr, o) }

	fmt.Fprintf(stderr, "Syncing %s for %s...\n", dir, eventCode)
	report, err := mgr.Run(ctx, dir, eventCode)
	printReport(stdout, stderr, report, cfg.Archive.Backend)
	if err != nil {
		return err
	}
	if !report.OK() {
		return errTasksFailed
	}
	return nil
}

func cmdStatus(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := newFlagSet("status", "status [flags] <session-id> <public|private|unlisted>", stderr)
	var common commonFlags
	common.register(fs)

	argv, err := parse(fs, args, 2)
	if err != nil {
		return err
	}
	sessionID, privacy := argv[0], argv[1]
	if !slices.Contains(youtube.PrivacyStatuses, privacy) {
		return fmt.Errorf("%w: privacy must be one of %v, got %q", errUsage, youtube.PrivacyStatuses, privacy)
	}

	cfg, err := common.load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sess, err := auth.Acquire(ctx, cfg.Auth(), auth.TerminalPrompt(stdin, stderr))
	if err != nil {
		return err
	}
	defer sess.Close()

	svc, err := youtube.NewService(ctx, sess.Client(), cfg.APIEndpoint)
	if err != nil {
		return err
	}
	fetcher := youtube.NewCatalogFetcher(svc, cfg.Catalog())

	videoID, err := fetcher.VideoIDForSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := fetcher.SetPrivacy(ctx, videoID, privacy); err != nil {
		return err
	}
	printSuccess(stdout, "%s (video id %s) is now %s", sessionID, videoID, privacy)
	return nil
}
