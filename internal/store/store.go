// Package store provides key-addressable read access to the object stores that
// hold multivec Zarr groups.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("store: key not found")

// Store is a read-only, key-addressable byte store.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}

// Open opens the store addressed by rawURL.
//
// http:// and https:// URLs are served by a plain HTTP store. Anything else is
// handed to gocloud's blob.OpenBucket (file://, mem://, s3://, gs://). A bare
// filesystem path is treated as a file:// URL.
func Open(ctx context.Context, rawURL string) (Store, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("store: empty url")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("store: invalid url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "http", "https":
		return NewHTTPStore(rawURL, nil), nil
	case "":
		abs, err := filepath.Abs(rawURL)
		if err != nil {
			return nil, fmt.Errorf("store: resolve path %q: %w", rawURL, err)
		}
		rawURL = "file://" + filepath.ToSlash(abs)
	}

	bucket, err := blob.OpenBucket(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("store: open bucket %q: %w", rawURL, err)
	}

	// For object stores the URL path selects a prefix inside the bucket
	// (s3://bucket/path/to/data.zarr).
	if u.Scheme == "s3" || u.Scheme == "gs" {
		if prefix := strings.Trim(u.Path, "/"); prefix != "" {
			bucket = blob.PrefixedBucket(bucket, prefix+"/")
		}
	}

	return NewBucketStore(bucket), nil
}

// BucketStore reads keys from a gocloud blob bucket.
type BucketStore struct {
	bucket *blob.Bucket
}

// NewBucketStore wraps an opened bucket. The store owns the bucket and closes it.
func NewBucketStore(bucket *blob.Bucket) *BucketStore {
	return &BucketStore{bucket: bucket}
}

// Get reads the full object stored at key.
func (s *BucketStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("store: read %s: %w", key, err)
	}
	return data, nil
}

// Close releases the bucket.
func (s *BucketStore) Close() error {
	return s.bucket.Close()
}
