package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/grantsignal/grantsignal/internal/core/domain"
)

// Storage keeps source files on local disk. Useful for development and
// single-node deployments; production uses the GCS adapter.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Save(_ context.Context, key string, data io.Reader) error {
	path := filepath.Join(s.basePath, key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, data); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Fetch buffers the whole object in memory, matching the pipeline's
// single-buffer contract.
func (s *Storage) Fetch(_ context.Context, key string) ([]byte, error) {
	path := filepath.Join(s.basePath, key)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.WrapError(domain.ErrStorageFetch, "fetch object", err)
		}
		return nil, fmt.Errorf("read file: %w", err)
	}
	return raw, nil
}
