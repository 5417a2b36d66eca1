// Package archive unpacks deployment bundles.
package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"bundle-deployer/internal/logger"
)

var ErrExtract = errors.New("failed to extract archive")

// chtimes is replaced in tests.
var chtimes = os.Chtimes

// Extractor unpacks archivePath into destDir and returns one line per
// extracted entry.
type Extractor interface {
	Extract(archivePath, destDir string) ([]string, error)
}

type ZipExtractor struct {
	logger *logrus.Entry
}

func NewZipExtractor() *ZipExtractor {
	return &ZipExtractor{logger: logger.WithModule("archive")}
}

func (z *ZipExtractor) Extract(archivePath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrExtract, archivePath, err)
	}
	defer r.Close()

	lines := make([]string, 0, len(r.File))
	var dirs []*zip.File
	for _, f := range r.File {
		if !filepath.IsLocal(f.Name) {
			return lines, fmt.Errorf("%w: entry %q escapes destination", ErrExtract, f.Name)
		}
		target := filepath.Join(destDir, f.Name)

		switch mode := f.Mode(); {
		case mode.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				return lines, fmt.Errorf("%w: %v", ErrExtract, err)
			}
			dirs = append(dirs, f)
			lines = append(lines, "   creating: "+target)
		case mode&os.ModeSymlink != 0:
			if err := extractSymlink(f, target); err != nil {
				return lines, err
			}
			lines = append(lines, "    linking: "+target)
		default:
			if err := z.extractFile(f, target); err != nil {
				return lines, err
			}
			lines = append(lines, "  inflating: "+target)
		}
	}

	// Directory permissions are applied last so read-only directories can
	// still receive their entries.
	for _, d := range dirs {
		perm := d.Mode().Perm()
		if perm == 0 {
			perm = 0o755
		}
		if err := os.Chmod(filepath.Join(destDir, d.Name), perm); err != nil {
			return lines, fmt.Errorf("%w: %v", ErrExtract, err)
		}
	}

	z.logger.WithFields(logrus.Fields{
		"archive":     archivePath,
		"destination": destDir,
		"entries":     len(lines),
	}).Debug("Archive extracted")

	return lines, nil
}

func (z *ZipExtractor) extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrExtract, err)
	}

	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrExtract, f.Name, err)
	}
	defer src.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExtract, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("%w: %s: %v", ErrExtract, f.Name, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrExtract, err)
	}
	// OpenFile honours the umask; the archive's mode is authoritative.
	if err := os.Chmod(target, perm); err != nil {
		return fmt.Errorf("%w: %v", ErrExtract, err)
	}

	if modified := f.Modified; !modified.IsZero() {
		if err := chtimes(target, time.Now(), modified); err != nil {
			z.logger.WithError(err).WithField("path", target).Debug("Failed to restore modification time")
		}
	}
	return nil
}

func extractSymlink(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrExtract, f.Name, err)
	}
	defer src.Close()

	link, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrExtract, f.Name, err)
	}
	resolved := filepath.Join(filepath.Dir(f.Name), string(link))
	if filepath.IsAbs(string(link)) || !filepath.IsLocal(resolved) {
		return fmt.Errorf("%w: link %q points outside the bundle", ErrExtract, f.Name)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrExtract, err)
	}
	if err := os.Symlink(string(link), target); err != nil {
		return fmt.Errorf("%w: %v", ErrExtract, err)
	}
	return nil
}
