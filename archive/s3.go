package archive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
)

// S3API is the part of *s3.Client used for syncing. Large recordings go
// through multipart uploads.
type S3API interface {
	s3.ListObjectsV2APIClient
	s3manager.UploadAPIClient
}

// S3Syncer uploads files that are missing from the destination prefix or
// differ in size. It never deletes remote objects.
type S3Syncer struct {
	client   S3API
	uploader *s3manager.Uploader
	cfg      Config
}

// NewS3Syncer creates a syncer over an S3 client.
func NewS3Syncer(client S3API, cfg Config) *S3Syncer {
	return &S3Syncer{
		client:   client,
		uploader: s3manager.NewUploader(client),
		cfg:      cfg,
	}
}

// NewS3SyncerFromConfig loads AWS credentials for cfg.Profile and cfg.Region
// and creates a syncer.
func NewS3SyncerFromConfig(ctx context.Context, cfg Config) (*S3Syncer, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	return NewS3Syncer(s3.NewFromConfig(awsCfg), cfg), nil
}

// Sync uploads dir to the event prefix.
func (s *S3Syncer) Sync(ctx context.Context, dir, eventCode string) (*Result, error) {
	prefix := s.cfg.KeyPrefix(eventCode)
	res := &Result{
		Backend:     BackendS3,
		Destination: s.cfg.Destination(eventCode),
		DryRun:      s.cfg.DryRun,
	}
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	remote, err := s.remoteSizes(ctx, prefix)
	if err != nil {
		return res, err
	}

	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		key := prefix + filepath.ToSlash(rel)

		if size, ok := remote[key]; ok && size == info.Size() {
			res.Skipped++
			return nil
		}

		log := logrus.WithFields(logrus.Fields{
			"bucket": s.cfg.Bucket,
			"key":    key,
			"size":   info.Size(),
		})
		if s.cfg.DryRun {
			log.Info("would upload")
			res.Uploaded++
			return nil
		}
		if err := s.put(ctx, path, key); err != nil {
			return err
		}
		log.Debug("uploaded")
		res.Uploaded++
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("archive: sync %s: %w", dir, err)
	}

	logrus.WithFields(logrus.Fields{
		"destination": res.Destination,
		"uploaded":    res.Uploaded,
		"skipped":     res.Skipped,
	}).Info("archive complete")
	return res, nil
}

func (s *S3Syncer) remoteSizes(ctx context.Context, prefix string) (map[string]int64, error) {
	sizes := make(map[string]int64)
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("archive: list s3://%s/%s: %w", s.cfg.Bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			sizes[aws.ToString(obj.Key)] = aws.ToInt64(obj.Size)
		}
	}
	return sizes, nil
}

// put uploads one file. Files above the part size are sent as a multipart
// upload, so recordings larger than a single PutObject allows still archive.
func (s *S3Syncer) put(ctx context.Context, path, key string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
