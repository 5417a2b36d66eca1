// Package bundletest builds zip bundles for tests.
package bundletest

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"
)

// Entry is one file in a test bundle. A trailing "/" in the name makes a directory.
type Entry struct {
	Body string
	Mode os.FileMode
}

// Script returns an executable shell script entry.
func Script(body string) Entry {
	return Entry{Body: "#!/bin/sh\n" + body + "\n", Mode: 0o755}
}

// File returns a regular, non-executable entry.
func File(body string) Entry {
	return Entry{Body: body, Mode: 0o644}
}

// Write creates a zip archive at path holding entries, in name order.
func Write(t testing.TB, path string, entries map[string]Entry) {
	t.Helper()

	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("create bundle: %v", err)
	}
	defer out.Close()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	modified := time.Date(2024, 1, 2, 3, 4, 6, 0, time.UTC)
	zw := zip.NewWriter(out)
	for _, name := range names {
		entry := entries[name]
		header := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified}
		mode := entry.Mode
		if name[len(name)-1] == '/' {
			mode |= os.ModeDir
		}
		header.SetMode(mode)

		w, err := zw.CreateHeader(header)
		if err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
		if mode.IsDir() {
			continue
		}
		if _, err := w.Write([]byte(entry.Body)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close bundle: %v", err)
	}
}

// WriteTemp writes a bundle into a fresh temp dir and returns its path.
func WriteTemp(t testing.TB, entries map[string]Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bundle.zip")
	Write(t, path, entries)
	return path
}
