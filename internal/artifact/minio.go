package artifact

import (
	"context"
	"fmt"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"

	"bundle-deployer/internal/logger"
)

// MinioAPI is the subset of the MinIO client used to fetch artifacts.
type MinioAPI interface {
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error
}

type MinioConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

type MinioFetcher struct {
	client MinioAPI
	logger *logrus.Entry
}

func NewMinioFetcher(client MinioAPI) *MinioFetcher {
	return &MinioFetcher{client: client, logger: logger.WithModule("artifact")}
}

func NewMinioFetcherFromConfig(cfg MinioConfig) (*MinioFetcher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	return NewMinioFetcher(client), nil
}

func (f *MinioFetcher) Fetch(ctx context.Context, bucket, key, destPath string) (int64, error) {
	info, err := f.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("%w: %s/%s: %v", ErrFetch, bucket, key, err)
	}
	if info.Size <= 0 {
		return 0, fmt.Errorf("%w: %s/%s", ErrEmptyArtifact, bucket, key)
	}

	f.logger.WithFields(logrus.Fields{
		"bucket":         bucket,
		"key":            key,
		"content_length": info.Size,
		"destination":    destPath,
	}).Info("Downloading artifact")

	if err := f.client.FGetObject(ctx, bucket, key, destPath, minio.GetObjectOptions{}); err != nil {
		return 0, fmt.Errorf("%w: %s/%s: %v", ErrFetch, bucket, key, err)
	}

	stat, err := os.Stat(destPath)
	if err != nil {
		return 0, fmt.Errorf("failed to stat downloaded artifact %s: %w", destPath, err)
	}
	return stat.Size(), nil
}
