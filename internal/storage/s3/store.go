// Package s3 keeps archived exchanges in an S3-compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/detectql/detectql/internal/config"
	"github.com/detectql/detectql/internal/storage"
)

const parquetContentType = "application/vnd.apache.parquet"

var ErrInvalidKey = errors.New("invalid archive key")

type Config = config.ObjectStoreConfig

// bucketAPI is the slice of the S3 API the archive needs.
type bucketAPI interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket, region string) error
}

// Store implements storage.ObjectStore for exchange archives. Every key must
// be an exchange key as built by storage.BuildExchangePath.
type Store struct {
	api    bucketAPI
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	var missing []string
	if strings.TrimSpace(cfg.Endpoint) == "" {
		missing = append(missing, "endpoint")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		missing = append(missing, "bucket")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("archive object store: %s required", strings.Join(missing, " and "))
	}

	api, err := dialMinio(cfg)
	if err != nil {
		return nil, err
	}
	store := newStore(api, cfg.Bucket, cfg.Prefix)
	if cfg.AutoCreateBucket {
		if err := store.createBucketIfMissing(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(api bucketAPI, bucket, prefix string) *Store {
	return &Store{api: api, bucket: strings.TrimSpace(bucket), prefix: archivePrefix(prefix)}
}

func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = parquetContentType
	}
	info, err := s.api.PutObject(ctx, s.bucket, objectKey, body, size, contentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("upload archived exchange %q: %w", objectKey, err)
	}
	return info, nil
}

func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	objectKey, err := s.objectKey(key)
	if err != nil {
		return nil, err
	}
	body, err := s.api.GetObject(ctx, s.bucket, objectKey)
	switch {
	case errors.Is(err, storage.ErrObjectNotFound):
		return nil, storage.ErrObjectNotFound
	case err != nil:
		return nil, fmt.Errorf("fetch archived exchange %q: %w", objectKey, err)
	}
	return body, nil
}

// Ping reports whether the archive bucket is reachable and exists.
func (s *Store) Ping(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("archive bucket %q: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("archive bucket %q is missing", s.bucket)
	}
	return nil
}

func (s *Store) createBucketIfMissing(ctx context.Context, region string) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("archive bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, region); err != nil {
		return fmt.Errorf("create archive bucket %q: %w", s.bucket, err)
	}
	return nil
}

// objectKey validates key as an exchange key and places it under the
// configured prefix.
func (s *Store) objectKey(key string) (string, error) {
	key = strings.TrimPrefix(strings.TrimSpace(key), "/")
	if _, _, err := storage.ParseExchangePath(key); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if s.prefix == "" {
		return key, nil
	}
	return s.prefix + "/" + key, nil
}

func archivePrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return ""
	}
	prefix = path.Clean(prefix)
	if prefix == "." || prefix == ".." || strings.HasPrefix(prefix, "../") {
		return ""
	}
	return prefix
}
