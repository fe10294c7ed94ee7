package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/plumedb/plume/pkg/types"
)

// S3Config holds connection settings for an S3-hosted registry.
type S3Config struct {
	// Region is the AWS region of the bucket.
	Region string
	// Endpoint is an optional custom endpoint (MinIO, LocalStack).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
}

// S3Store persists the registry snapshot as a single S3 object, for teams
// sharing one registry across hosts without a registry service.
type S3Store struct {
	client *s3.Client
	bucket string
	key    string
}

// NewS3Store creates an S3-backed registry store.
func NewS3Store(ctx context.Context, bucket, key string, cfg S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("registry: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewS3StoreWithClient(s3.NewFromConfig(awsCfg, s3Opts...), bucket, key), nil
}

// NewS3StoreWithClient creates an S3 registry store with a pre-configured
// client.
func NewS3StoreWithClient(client *s3.Client, bucket, key string) *S3Store {
	return &S3Store{client: client, bucket: bucket, key: key}
}

// GetSnapshot downloads and decodes the registry object. A missing object is
// reported as types.ErrStoreNotFound.
func (s *S3Store) GetSnapshot(ctx context.Context) (*Snapshot, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noSuchKey *s3types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("registry: not found at s3://%s/%s: %w (have you run \"plume apply\"?)",
				s.bucket, s.key, types.ErrStoreNotFound)
		}
		return nil, fmt.Errorf("registry: get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("registry: read s3://%s/%s: %w", s.bucket, s.key, err)
	}

	var snap Snapshot
	if err := msgpack.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("registry: unmarshal s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return &snap, nil
}

// UpdateSnapshot stamps a fresh version and uploads the snapshot.
func (s *S3Store) UpdateSnapshot(ctx context.Context, snap *Snapshot) error {
	snap.VersionID = uuid.New().String()
	snap.LastUpdated = time.Now().UTC()

	raw, err := msgpack.Marshal(snap)
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Body:   bytes.NewReader(raw),
	})
	if err != nil {
		return fmt.Errorf("registry: put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

// Teardown deletes the registry object. S3 deletes are idempotent; deleting
// a missing object succeeds.
func (s *S3Store) Teardown(ctx context.Context) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		return fmt.Errorf("registry: delete s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}
