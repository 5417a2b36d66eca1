// Package artifact fetches deployment bundles from an object store.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	// ErrEmptyArtifact is returned when the store reports a zero-length object.
	ErrEmptyArtifact = errors.New("artifact is empty")
	// ErrFetch wraps transport failures talking to the store.
	ErrFetch = errors.New("failed to fetch artifact")
)

// Fetcher downloads the object key from store into destPath and returns the
// number of bytes written. Implementations check the object size before
// transferring anything.
type Fetcher interface {
	Fetch(ctx context.Context, store, key, destPath string) (int64, error)
}

func writeFile(destPath string, body io.Reader) (int64, error) {
	f, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", destPath, err)
	}
	written, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return written, fmt.Errorf("failed to write artifact to %s: %w", destPath, err)
	}
	return written, nil
}
