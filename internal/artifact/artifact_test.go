package artifact

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	body     string
	length   *int64
	headErr  error
	getErr   error
	getCalls int
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	return &s3.HeadObjectOutput{ContentLength: f.length}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestS3FetcherDownloads(t *testing.T) {
	client := &fakeS3{body: "bundle-bytes", length: aws.Int64(12)}
	dest := filepath.Join(t.TempDir(), "deploy.zip")

	n, err := NewS3Fetcher(client).Fetch(context.Background(), "builds", "shop/1.zip", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "bundle-bytes", string(data))
}

func TestS3FetcherErrors(t *testing.T) {
	tests := []struct {
		name     string
		client   *fakeS3
		wantErr  error
		wantGets int
	}{
		{"zero length", &fakeS3{length: aws.Int64(0)}, ErrEmptyArtifact, 0},
		{"missing length", &fakeS3{}, ErrEmptyArtifact, 0},
		{"head fails", &fakeS3{headErr: errors.New("403 forbidden")}, ErrFetch, 0},
		{"get fails", &fakeS3{length: aws.Int64(5), getErr: errors.New("connection reset")}, ErrFetch, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "deploy.zip")
			_, err := NewS3Fetcher(tt.client).Fetch(context.Background(), "builds", "key", dest)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantGets, tt.client.getCalls)
		})
	}
}

func TestS3FetcherDiskError(t *testing.T) {
	client := &fakeS3{body: "x", length: aws.Int64(1)}
	dest := filepath.Join(t.TempDir(), "missing-dir", "deploy.zip")

	_, err := NewS3Fetcher(client).Fetch(context.Background(), "builds", "key", dest)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrFetch)
}

type fakeMinio struct {
	size    int64
	body    string
	statErr error
	getErr  error
}

func (f *fakeMinio) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return minio.ObjectInfo{Size: f.size}, f.statErr
}

func (f *fakeMinio) FGetObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.GetObjectOptions) error {
	if f.getErr != nil {
		return f.getErr
	}
	return os.WriteFile(filePath, []byte(f.body), 0o600)
}

func TestMinioFetcher(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "deploy.zip")

	n, err := NewMinioFetcher(&fakeMinio{size: 3, body: "zip"}).Fetch(context.Background(), "builds", "key", dest)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = NewMinioFetcher(&fakeMinio{size: 0}).Fetch(context.Background(), "builds", "key", dest)
	assert.ErrorIs(t, err, ErrEmptyArtifact)

	_, err = NewMinioFetcher(&fakeMinio{statErr: errors.New("no such key")}).Fetch(context.Background(), "builds", "key", dest)
	assert.ErrorIs(t, err, ErrFetch)

	_, err = NewMinioFetcher(&fakeMinio{size: 3, getErr: errors.New("timeout")}).Fetch(context.Background(), "builds", "key", dest)
	assert.ErrorIs(t, err, ErrFetch)
}
