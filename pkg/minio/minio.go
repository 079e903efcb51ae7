package minio

import (
	"bytes"
	"context"
	"fmt"

	"beautyhub-controlplane/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client", fx.Provide(registerClient, NewBucket))

// registerClient yields a nil client when no endpoint is configured; documents
// are then rendered but not stored.
func registerClient(lc fx.Lifecycle, c *config.Config) (*minio.Client, error) {
	if c.Minio.Endpoint == "" {
		zap.L().Warn("minio endpoint not configured, document storage disabled")
		return nil, nil
	}

	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			exists, err := client.BucketExists(ctx, c.Minio.BucketName)
			if err != nil {
				// documents are best-effort; a missing store must not block webhooks
				zap.L().Warn("failed to check if bucket exists", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
				return nil
			}
			if !exists {
				if err := client.MakeBucket(ctx, c.Minio.BucketName, minio.MakeBucketOptions{}); err != nil {
					zap.L().Warn("failed to create bucket", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
				}
			}
			zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.Bool("bucket_exists", exists))
			return nil
		},
	})

	return client, nil
}

// Bucket stores objects in the configured bucket.
type Bucket struct {
	client *minio.Client
	name   string
}

func NewBucket(client *minio.Client, c *config.Config) *Bucket {
	if client == nil {
		return nil
	}
	return &Bucket{client: client, name: c.Minio.BucketName}
}

// Put uploads body under key and returns the object location.
func (b *Bucket) Put(ctx context.Context, key, contentType string, body []byte) (string, error) {
	_, err := b.client.PutObject(ctx, b.name, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s", b.name, key), nil
}
