// SPDX-License-Identifier: MIT

// Package archive reads and writes .gns3project files: zip archives
// bundling a project's .gns3 document together with its on-disk assets.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/netlabio/netlabd/internal/fsutil"
	xlog "github.com/netlabio/netlabd/internal/log"
)

// skipDirs are project subdirectories never included in an export.
var skipDirs = map[string]struct{}{
	"snapshots": {},
	"tmp":       {},
}

// skipSuffixes are working files never included in an export.
var skipSuffixes = []string{".backup", ".tmp", ".pyc"}

// Export writes the project directory as a .gns3project archive to w.
// Snapshots and working files are excluded.
func Export(ctx context.Context, projectDir string, w io.Writer) error {
	zw := zip.NewWriter(w)

	err := filepath.WalkDir(projectDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, err := filepath.Rel(projectDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if _, skip := skipDirs[rel]; skip {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			// Sockets, fifos and symlinks have no place in an archive.
			logger := xlog.WithComponent("archive")
			logger.Debug().Str("path", rel).Msg("skipping irregular file")
			return nil
		}
		for _, suffix := range skipSuffixes {
			if strings.HasSuffix(rel, suffix) {
				return nil
			}
		}

		f, err := os.Open(path) // #nosec G304 -- walked under projectDir
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		// Forward slashes regardless of platform, per the zip spec.
		entry, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("export project: %w", err)
	}
	return zw.Close()
}

// ExportToFile writes the archive to path, creating parent directories.
func ExportToFile(ctx context.Context, projectDir, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	f, err := os.Create(path) // #nosec G304 -- controller-chosen destination
	if err != nil {
		return err
	}
	if err := Export(ctx, projectDir, f); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}
	return f.Close()
}

// Import extracts a .gns3project archive into destDir and returns the
// name of the contained .gns3 document. Member paths are confined to
// destDir; absolute paths and traversal attempts fail the import.
func Import(ctx context.Context, r io.ReaderAt, size int64, destDir string) (string, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return "", fmt.Errorf("open project archive: %w", err)
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", err
	}

	topologyName := ""
	for _, member := range zr.File {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		name := member.Name
		if strings.HasSuffix(name, "/") {
			continue
		}
		target, err := fsutil.ConfineRelPath(destDir, name)
		if err != nil {
			return "", fmt.Errorf("refusing archive member %q: %w", name, err)
		}
		if strings.HasSuffix(name, ".gns3") && !strings.Contains(name, "/") {
			topologyName = name
		}
		if err := extractMember(member, target); err != nil {
			return "", err
		}
	}
	if topologyName == "" {
		return "", fmt.Errorf("archive contains no topology document")
	}
	return topologyName, nil
}

// ImportFile extracts the archive at archivePath into destDir.
func ImportFile(ctx context.Context, archivePath, destDir string) (string, error) {
	f, err := os.Open(archivePath) // #nosec G304 -- controller-chosen source
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	return Import(ctx, f, info.Size(), destDir)
}

func extractMember(member *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	src, err := member.Open()
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640) // #nosec G304 -- confined above
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil { // #nosec G110 -- trusted operator archives
		_ = dst.Close()
		return err
	}
	return dst.Close()
}
