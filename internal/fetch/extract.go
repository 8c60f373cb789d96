package fetch

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
)

var (
	zipMagic  = []byte("PK\x03\x04")
	gzipMagic = []byte{0x1f, 0x8b}
)

// Unpack extracts archivePath into destDir, choosing the format from the
// leading magic bytes. Zip and gzip-compressed tar are supported. Links and
// special files are not extracted; each one is logged at warn level.
func Unpack(archivePath, destDir string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	head, err := readHead(archivePath, 4)
	if err != nil {
		return err
	}
	switch {
	case bytes.HasPrefix(head, zipMagic):
		return unpackZip(archivePath, destDir, logger)
	case bytes.HasPrefix(head, gzipMagic):
		return unpackTarGz(archivePath, destDir, logger)
	default:
		return fmt.Errorf("unsupported archive format: %s", archivePath)
	}
}

func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	m, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return buf[:m], nil
}

func unpackTarGz(archivePath, destDir string, logger *zap.Logger) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()
	gzr, err := pgzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		h, err := tr.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("cannot read %s: %w", archivePath, err)
		}
		name, err := memberPath(h.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		target := filepath.Join(destDir, name)
		switch h.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFileFromReader(target, tr, fileMode(h.FileInfo().Mode())); err != nil {
				return err
			}
		default:
			logSkipped(logger, archivePath, h.Name, tarTypeName(h.Typeflag), h.Linkname)
		}
	}
}

func unpackZip(archivePath, destDir string, logger *zap.Logger) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		name, err := memberPath(f.Name)
		if err != nil {
			return err
		}
		if name == "" {
			continue
		}
		target := filepath.Join(destDir, name)
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if !f.Mode().IsRegular() {
			logSkipped(logger, archivePath, f.Name, f.Mode().Type().String(), "")
			continue
		}
		if err := extractZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func logSkipped(logger *zap.Logger, archivePath, member, kind, linkname string) {
	fields := []zap.Field{
		zap.String("archive", filepath.Base(archivePath)),
		zap.String("member", member),
		zap.String("type", kind),
	}
	if linkname != "" {
		fields = append(fields, zap.String("link", linkname))
	}
	logger.Warn("skipping archive member that is not a regular file", fields...)
}

func tarTypeName(flag byte) string {
	switch flag {
	case tar.TypeSymlink:
		return "symlink"
	case tar.TypeLink:
		return "hardlink"
	case tar.TypeChar:
		return "char device"
	case tar.TypeBlock:
		return "block device"
	case tar.TypeFifo:
		return "fifo"
	default:
		return fmt.Sprintf("typeflag %q", flag)
	}
}

func extractZipFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return writeFileFromReader(target, rc, fileMode(f.Mode()))
}

// memberPath cleans an archive member name, failing on absolute paths and
// traversal sequences. An empty result means the entry is the root itself.
func memberPath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	if name == "" {
		return "", nil
	}
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: absolute member path %q", ErrStructuralIntegrity, name)
	}
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: member path escapes archive root %q", ErrStructuralIntegrity, name)
		}
	}
	clean := filepath.Clean(name)
	if clean == "." {
		return "", nil
	}
	return clean, nil
}

func fileMode(m os.FileMode) os.FileMode {
	if m.Perm() == 0 {
		return 0o644
	}
	return m.Perm()
}

// writeFileFromReader writes a file by copying from r and setting mode.
func writeFileFromReader(path string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
