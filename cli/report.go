package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"vidsync/archive"
	"vidsync/syncer"
	"vidsync/upload"
)

// errTasksFailed is returned after the report already described the failures.
var errTasksFailed = errors.New("one or more tasks failed")

var (
	successLabel = color.New(color.FgGreen, color.Bold).SprintFunc()
	warningLabel = color.New(color.FgYellow, color.Bold).SprintFunc()
	failedLabel  = color.New(color.FgRed, color.Bold).SprintFunc()
)

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", successLabel("SUCCESS"), fmt.Sprintf(format, args...))
}

func printWarning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", warningLabel("WARNING"), fmt.Sprintf(format, args...))
}

func printFailed(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", failedLabel("FAILED"), fmt.Sprintf(format, args...))
}

// printOutcome reports one finished upload as it happens.
func printOutcome(stdout, stderr io.Writer, o upload.Outcome) {
	switch {
	case o.Err == nil:
		printSuccess(stdout, "Video id '%s' was successfully uploaded (%s)", o.Result.VideoID, o.Task.SessionID)
	case errors.Is(o.Err, context.Canceled):
		printWarning(stderr, "%s was not uploaded: run stopped", o.Task.SessionID)
	default:
		printFailed(stderr, "%v", o.Err)
	}
}

// printReport prints the run summary. report may describe a run that
// stopped early.
func printReport(stdout, stderr io.Writer, report *syncer.Report, backend string) {
	if report == nil {
		return
	}

	if report.Videos != nil {
		fmt.Fprintf(stdout, "\nRecordings: %d, already on YouTube: %d, uploaded: %d, failed: %d\n",
			len(report.Videos), report.Skipped(), len(report.Uploaded()), len(report.Failed()))
	}

	switch {
	case report.ArchiveErr != nil:
		printFailed(stderr, "%v", report.ArchiveErr)
	case report.Archive != nil && backend != archive.BackendNone:
		printArchive(stdout, report.Archive)
	}

	if !report.Finished.IsZero() {
		fmt.Fprintf(stdout, "Run %s finished in %s\n", report.RunID, report.Finished.Sub(report.Started).Round(time.Second))
	}
}

func printArchive(w io.Writer, res *archive.Result) {
	verb := "archived to"
	if res.DryRun {
		verb = "dry run for"
	}
	switch res.Backend {
	case archive.BackendS3:
		printSuccess(w, "%s %s (%d uploaded, %d unchanged)", verb, res.Destination, res.Uploaded, res.Skipped)
	default:
		printSuccess(w, "%s %s", verb, res.Destination)
	}
}
