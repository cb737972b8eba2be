// Package minio stores artifacts as objects in an S3 compatible bucket.
package minio

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/itchan-dev/imagehost/internal/domain"
	"github.com/itchan-dev/imagehost/internal/errors"
	"github.com/itchan-dev/imagehost/internal/service"
)

const codeNoSuchKey = "NoSuchKey"

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Storage struct {
	client *minio.Client
	bucket string
}

var _ service.ArtifactStore = (*Storage)(nil)

// New connects to the endpoint and creates the bucket if it does not exist.
func New(ctx context.Context, opts Options) (*Storage, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	s := &Storage{client: client, bucket: opts.Bucket}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure bucket exists: %w", err)
	}
	return s, nil
}

func (s *Storage) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("error checking if bucket exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("error creating bucket: %w", err)
	}
	slog.Info("created bucket", "bucket", s.bucket)
	return nil
}

// Put uploads content as a single object. S3 only exposes an object once
// the upload completes.
func (s *Storage) Put(ctx context.Context, key domain.ArtifactKey, content io.Reader) error {
	_, err := s.client.PutObject(ctx, s.bucket, key.Path(), content, -1, minio.PutObjectOptions{
		ContentType: key.ContentType(),
	})
	if err != nil {
		return fmt.Errorf("%w: failed to upload object %s: %w", errors.ErrStorage, key.Path(), err)
	}
	return nil
}

// Open stats the object first, since GetObject defers errors to the first
// read.
func (s *Storage) Open(ctx context.Context, key domain.ArtifactKey) (io.ReadCloser, error) {
	object, err := s.client.GetObject(ctx, s.bucket, key.Path(), minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrap(key, err)
	}
	if _, err := object.Stat(); err != nil {
		object.Close()
		return nil, s.wrap(key, err)
	}
	return object, nil
}

func (s *Storage) Delete(ctx context.Context, key domain.ArtifactKey) error {
	err := s.client.RemoveObject(ctx, s.bucket, key.Path(), minio.RemoveObjectOptions{})
	if err != nil && minio.ToErrorResponse(err).Code != codeNoSuchKey {
		return fmt.Errorf("%w: failed to delete object %s: %w", errors.ErrStorage, key.Path(), err)
	}
	return nil
}

func (s *Storage) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrStorage, err)
	}
	if !exists {
		return fmt.Errorf("%w: bucket %s does not exist", errors.ErrStorage, s.bucket)
	}
	return nil
}

func (s *Storage) wrap(key domain.ArtifactKey, err error) error {
	if minio.ToErrorResponse(err).Code == codeNoSuchKey {
		return fmt.Errorf("%w: %s", errors.ErrNotFound, key.Path())
	}
	return fmt.Errorf("%w: failed to get object %s: %w", errors.ErrStorage, key.Path(), err)
}
