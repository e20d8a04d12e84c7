package uploader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/john/chatoverlay/internal/metrics"
)

// ObjectPutter is the part of the S3 client the uploader needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader mirrors database files to S3 so a remote overlay can poll them
type Uploader struct {
	client     ObjectPutter
	bucket     string
	prefix     string
	maxRetries int
	backoff    func(attempt int) time.Duration
}

// New creates a new uploader
func New(client ObjectPutter, bucket, prefix string, maxRetries int) *Uploader {
	metrics.Init()
	return &Uploader{
		client:     client,
		bucket:     bucket,
		prefix:     prefix,
		maxRetries: maxRetries,
		backoff: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second
		},
	}
}

// Start uploads every path received on fileChan until ctx is cancelled.
// Files are left in place, the database keeps appending to them.
func (u *Uploader) Start(ctx context.Context, fileChan <-chan string) error {
	for {
		select {
		case localPath := <-fileChan:
			go u.UploadWithRetry(ctx, localPath)

		case <-ctx.Done():
			log.Info().Msg("Uploader shutting down")
			return ctx.Err()
		}
	}
}

// UploadWithRetry uploads a file, retrying with exponential backoff
func (u *Uploader) UploadWithRetry(ctx context.Context, localPath string) error {
	key := u.Key(localPath)

	var err error
	for attempt := 0; attempt <= u.maxRetries; attempt++ {
		if err = u.uploadFile(ctx, localPath, key); err == nil {
			metrics.UploadsSucceeded.Inc()
			log.Debug().Str("file", localPath).Msgf("Uploaded to s3://%s/%s", u.bucket, key)
			return nil
		}

		if attempt < u.maxRetries {
			backoff := u.backoff(attempt)
			log.Warn().Err(err).Str("file", localPath).
				Msgf("Upload attempt %d/%d failed, retrying in %v", attempt+1, u.maxRetries+1, backoff)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	metrics.UploadsFailed.Inc()
	log.Error().Err(err).Str("file", localPath).Msgf("Failed to upload after %d attempts", u.maxRetries+1)
	return err
}

// Key returns the object key for a local file: prefix joined with the base name
func (u *Uploader) Key(localPath string) string {
	name := filepath.Base(localPath)
	prefix := strings.Trim(u.prefix, "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func (u *Uploader) uploadFile(ctx context.Context, localPath, key string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("application/x-ndjson"),
		CacheControl: aws.String("no-cache"),
	})
	if err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	return nil
}
