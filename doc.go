// Package vidsync uploads an event's session recordings to a YouTube channel
// and archives them to S3.
//
// Overview
//
// A sync run walks a directory of .mp4 recordings, lists the channel's
// previous uploads whose title contains the event code, and uploads every
// recording whose session id (the file name without extension) matches no
// existing title. Uploads use the YouTube resumable protocol with a
// per-video retry budget and randomized exponential backoff. Alongside the
// uploads the same directory is copied to s3://<bucket>/<prefix>/<event>/.
//
// Quick Start
//
//	vidsync ~/recordings/yvr18 yvr18
//	vidsync status yvr18-100k public
//
// The first run prints an authorization URL; the resulting OAuth token is
// cached in vidsync-oauth2.json.
//
// Configuration
//
// Settings are loaded from, in increasing priority:
//
//  1. Default values
//  2. Config file (vidsync.json or vidsync.toml in the working directory or
//     ~/.config/vidsync/)
//  3. Environment variables (VIDSYNC_*)
//
// Commonly used environment variables:
//
//   - VIDSYNC_CLIENT_SECRETS: OAuth client secrets JSON
//   - VIDSYNC_PRIVACY: privacy status of new uploads
//   - VIDSYNC_MAX_RETRIES: per-upload retry budget
//   - VIDSYNC_CONCURRENCY: simultaneous uploads
//   - VIDSYNC_ARCHIVE_BACKEND: aws-cli, s3 or none
//
// Error Handling
//
// Failed uploads are reported per video and never stop the run unless
// fail-fast is enabled:
//
//	var taskErr *vidsync.TaskError
//	if errors.As(err, &taskErr) && errors.Is(err, vidsync.ErrRetriesExhausted) {
//		fmt.Printf("%s gave up after %d retries\n", taskErr.SessionID, taskErr.Retries)
//	}
//
// Packages
//
//   - inventory: finds local recordings
//   - reconcile: decides which recordings need uploading
//   - upload: per-video retry state machine and upload pool
//   - youtube: catalog listing, resumable transfers, privacy updates
//   - archive: aws cli and native S3 archive backends
//   - auth: OAuth client secrets and token cache
//   - syncer: runs the whole pipeline
//   - config: configuration management
//
// Dependencies
//
// The default archive backend runs the aws command line tool, which must be
// installed and configured with the ConnectAutomation profile. Set
// archive.backend to "s3" to use the built-in client instead.
package vidsync
