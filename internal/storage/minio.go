package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"talentCorner/internal/config"
)

// MinIOStore 封装 MinIO 客户端：内部地址用于读写，公开地址用于签发下载链接。
type MinIOStore struct {
	internalClient *minio.Client
	publicClient   *minio.Client
	bucketName     string
}

// NewMinIOStore 根据配置初始化 MinIO 客户端，并确保目标 Bucket 存在。
func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	bucketLookup := minio.BucketLookupAuto
	switch strings.ToLower(strings.TrimSpace(cfg.BucketLookup)) {
	case "", "auto":
		bucketLookup = minio.BucketLookupAuto
	case "dns":
		bucketLookup = minio.BucketLookupDNS
	case "path":
		bucketLookup = minio.BucketLookupPath
	default:
		return nil, fmt.Errorf("invalid minio bucket lookup %q", cfg.BucketLookup)
	}

	creds := credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	internalClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        creds,
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: bucketLookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init internal minio client: %w", err)
	}

	publicClient := internalClient
	if cfg.PublicEndpoint != "" {
		parsed, err := url.Parse(cfg.PublicEndpoint)
		if err != nil {
			return nil, fmt.Errorf("parse minio public endpoint: %w", err)
		}
		if parsed.Host == "" {
			return nil, errors.New("invalid minio public endpoint, host missing")
		}
		publicClient, err = minio.New(parsed.Host, &minio.Options{
			Creds:        creds,
			Secure:       parsed.Scheme == "https",
			Region:       cfg.Region,
			BucketLookup: bucketLookup,
		})
		if err != nil {
			return nil, fmt.Errorf("init public minio client: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := internalClient.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if !cfg.AutoCreateBucket {
			return nil, fmt.Errorf("bucket %q does not exist (auto create disabled)", cfg.Bucket)
		}
		if err := internalClient.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("make bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &MinIOStore{
		internalClient: internalClient,
		publicClient:   publicClient,
		bucketName:     cfg.Bucket,
	}, nil
}

func (s *MinIOStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.internalClient.PutObject(ctx, s.bucketName, key, r, size, opts); err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}
	return nil
}

// URL 生成对象的限时下载链接。
func (s *MinIOStore) URL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.publicClient.PresignedGetObject(ctx, s.bucketName, key, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("generate presigned url for %q: %w", key, err)
	}
	return u.String(), nil
}

// Delete 删除指定对象；对象不存在视为成功。
func (s *MinIOStore) Delete(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	if err := s.internalClient.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil && !isMissingObject(err) {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every object under prefix in batches; objects already gone are ignored
// and the remaining failures are joined.
func (s *MinIOStore) DeletePrefix(ctx context.Context, prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return nil
	}

	listed := s.internalClient.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var listErr error
	keys := make(chan minio.ObjectInfo)
	go func() {
		defer close(keys)
		for obj := range listed {
			if obj.Err != nil {
				listErr = obj.Err
				return
			}
			select {
			case keys <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()

	var errs []error
	for res := range s.internalClient.RemoveObjects(ctx, s.bucketName, keys, minio.RemoveObjectsOptions{}) {
		if res.Err != nil && !isMissingObject(res.Err) {
			errs = append(errs, fmt.Errorf("remove object %q: %w", res.ObjectName, res.Err))
		}
	}
	if listErr != nil {
		errs = append(errs, fmt.Errorf("list objects under %q: %w", prefix, listErr))
	}
	if len(errs) > 0 {
		slog.Default().Error("delete objects under prefix failed",
			slog.String("prefix", prefix),
			slog.Int("failed_count", len(errs)),
		)
	}
	return errors.Join(errs...)
}
