package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStore 将对象保存在本地目录，适合单机部署与开发环境。
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocalStore creates root when missing. Links are baseURL + "/" + key; the default base is
// the authenticated file route of the API.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if root == "" {
		root = "uploads"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if baseURL == "" {
		baseURL = "/api/files"
	}
	return &LocalStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Path resolves key inside the storage root.
func (s *LocalStore) Path(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *LocalStore) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create dir for %q: %w", key, err)
	}

	f, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := io.Copy(f, readerWithContext(ctx, r)); err != nil {
		f.Close()
		return fmt.Errorf("write %q: %w", key, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %q: %w", key, err)
	}
	if err := os.Rename(f.Name(), p); err != nil {
		return fmt.Errorf("store %q: %w", key, err)
	}
	return nil
}

func (s *LocalStore) URL(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, err := s.Path(key); err != nil {
		return "", err
	}
	return s.baseURL + "/" + strings.TrimLeft(key, "/"), nil
}

func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.Path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	return nil
}

func (s *LocalStore) DeletePrefix(_ context.Context, prefix string) error {
	p, err := s.Path(strings.TrimSuffix(prefix, "/"))
	if err != nil {
		return err
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("remove %q: %w", prefix, err)
	}
	return nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
