// Package filesync places bundle files at their install destinations.
package filesync

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

var ErrCopy = errors.New("failed to copy files")

// Syncer copies src to dst. With recursive set, src is a directory whose
// contents (not the directory itself) are merged into dst.
type Syncer interface {
	Sync(src, dst string, recursive bool) error
}

// LocalSyncer copies within the local filesystem, keeping permission bits
// and modification times.
type LocalSyncer struct{}

func (LocalSyncer) Sync(src, dst string, recursive bool) error {
	// The top-level source is followed when it is a link, as rsync does for
	// "src/"; links below it are copied as links.
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}

	if recursive {
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrCopy, src)
		}
		root, err := filepath.EvalSymlinks(src)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCopy, err)
		}
		return syncTree(root, dst)
	}

	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrCopy, src)
	}
	if info, err = os.Lstat(src); err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	// Like rsync, an existing directory destination receives the file by name.
	if dstInfo, err := os.Stat(dst); err == nil && dstInfo.IsDir() {
		dst = filepath.Join(dst, filepath.Base(src))
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	return copyEntry(src, dst, info)
}

func syncTree(src, dst string) error {
	type dirAttrs struct {
		path string
		info fs.FileInfo
	}
	var dirs []dirAttrs

	err := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			dirs = append(dirs, dirAttrs{path: target, info: info})
			return nil
		}
		return copyEntry(path, target, info)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}

	// Deepest directories first so parent mtimes are not disturbed afterwards.
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := applyAttrs(dirs[i].path, dirs[i].info); err != nil {
			return fmt.Errorf("%w: %v", ErrCopy, err)
		}
	}
	return nil
}

func copyEntry(src, dst string, info fs.FileInfo) error {
	switch {
	case info.Mode()&os.ModeSymlink != 0:
		return copySymlink(src, dst)
	case info.Mode().IsRegular():
		return copyFile(src, dst, info)
	default:
		return fmt.Errorf("%w: unsupported file type %s for %s", ErrCopy, info.Mode().Type(), src)
	}
}

// copyFile writes through a temp file and renames it into place so running
// binaries can be replaced.
func copyFile(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %s: %v", ErrCopy, src, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	if err := applyAttrs(tmpName, info); err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	return nil
}

func copySymlink(src, dst string) error {
	link, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	if err := os.Symlink(link, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrCopy, err)
	}
	return nil
}

func applyAttrs(path string, info fs.FileInfo) error {
	if err := os.Chmod(path, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(path, info.ModTime(), info.ModTime())
}
