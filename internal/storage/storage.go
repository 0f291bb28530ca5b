// Package storage keeps uploaded resumes in MinIO or on the local disk.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"talentCorner/internal/config"
)

// ObjectStore is the subset of object storage the API needs.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// URL returns a link the dashboard can open; ttl bounds presigned links.
	URL(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// ResumePrefix is where resumes live in every store.
const ResumePrefix = "resumes/"

// New 根据 storage.driver 选择存储实现。
func New(cfg config.Config) (ObjectStore, error) {
	switch strings.ToLower(cfg.Storage.Driver) {
	case "minio":
		return NewMinIOStore(cfg.MinIO)
	case "", "local":
		return NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// ResumeKey builds the object key for an uploaded resume, e.g. resumes/resume-1700000000000-3f2a9c1e.pdf.
// 随机后缀避免同一毫秒内的两次上传互相覆盖。
func ResumeKey(field, filename string, now time.Time) string {
	ext := strings.ToLower(path.Ext(filename))
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s%s-%d-%s%s", ResumePrefix, field, now.UnixMilli(), suffix, ext)
}
