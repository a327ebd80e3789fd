// Package objectstore deletes screenshot objects from S3-compatible storage.
// Deletion is best effort: callers commit their database changes first, then
// fire object deletion and only log failures. An orphaned object costs pennies;
// a dangling database row costs correctness.
package objectstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// Config holds the connection settings for the screenshot bucket.
// Endpoint is optional and supports S3-compatible providers (R2, MinIO).
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// Store wraps the S3 client for screenshot cleanup.
type Store struct {
	client *s3.Client
	bucket string
	log    zerolog.Logger
}

// New creates an object store client.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Store{
		client: client,
		bucket: cfg.Bucket,
		log:    log.With().Str("component", "objectstore").Logger(),
	}, nil
}

// DeleteObjects removes the given keys from the bucket. Individual failures
// are logged and do not abort the batch; the first request-level error is
// returned so the caller can record it.
func (s *Store) DeleteObjects(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	// DeleteObjects accepts at most 1000 keys per request.
	const batchSize = 1000

	var firstErr error
	for start := 0; start < len(keys); start += batchSize {
		end := start + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			s.log.Error().Err(err).Int("keys", end-start).Msg("Object deletion request failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to delete objects: %w", err)
			}
			continue
		}

		for _, e := range out.Errors {
			s.log.Warn().
				Str("key", aws.ToString(e.Key)).
				Str("code", aws.ToString(e.Code)).
				Str("message", aws.ToString(e.Message)).
				Msg("Object deletion rejected")
		}
	}

	return firstErr
}
