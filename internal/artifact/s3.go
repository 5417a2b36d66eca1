package artifact

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"bundle-deployer/internal/logger"
)

// S3API is the subset of the S3 client used to fetch artifacts.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type S3Fetcher struct {
	client S3API
	logger *logrus.Entry
}

func NewS3Fetcher(client S3API) *S3Fetcher {
	return &S3Fetcher{client: client, logger: logger.WithModule("artifact")}
}

// NewS3FetcherFromEnv builds a fetcher using the default AWS credential chain.
func NewS3FetcherFromEnv(ctx context.Context, region string) (*S3Fetcher, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3Fetcher(s3.NewFromConfig(cfg)), nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, bucket, key, destPath string) (int64, error) {
	head, err := f.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: s3://%s/%s: %v", ErrFetch, bucket, key, err)
	}
	size := aws.ToInt64(head.ContentLength)
	if size <= 0 {
		return 0, fmt.Errorf("%w: s3://%s/%s", ErrEmptyArtifact, bucket, key)
	}

	f.logger.WithFields(logrus.Fields{
		"bucket":         bucket,
		"key":            key,
		"content_length": size,
		"destination":    destPath,
	}).Info("Downloading artifact")

	obj, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: s3://%s/%s: %v", ErrFetch, bucket, key, err)
	}
	defer obj.Body.Close()

	return writeFile(destPath, obj.Body)
}
