package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

// Storage stores source documents in a Google Cloud Storage bucket.
type Storage struct {
	client *storage.Client
	bucket string
}

func New(ctx context.Context, bucket string) (*Storage, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &Storage{client: client, bucket: bucket}, nil
}

func (s *Storage) Save(ctx context.Context, key string, data io.Reader) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write gcs object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize gcs object %s: %w", key, err)
	}
	return nil
}

// Fetch streams the object into one in-memory buffer. A missing object
// or credential failure surfaces as a storage-fetch error, which the
// pipeline treats as fatal.
func (s *Storage) Fetch(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, domain.WrapError(domain.ErrStorageFetch, "fetch object", err)
		}
		return nil, domain.WrapError(domain.ErrStorageFetch, "open object reader", err)
	}
	defer r.Close()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageFetch, "read object body", err)
	}
	return raw, nil
}

func (s *Storage) Close() error {
	return s.client.Close()
}
