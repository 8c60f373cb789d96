// Package fetch downloads a remote dataset archive, unpacks it and moves its
// single top-level directory into place.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/zap"
)

var (
	// ErrTransferIntegrity indicates the downloaded byte count differs from
	// the advertised Content-Length.
	ErrTransferIntegrity = errors.New("transfer integrity error")

	// ErrStructuralIntegrity indicates the archive did not unpack into exactly
	// one top-level directory, or contained unsafe member paths.
	ErrStructuralIntegrity = errors.New("structural integrity error")
)

// Client fetches and unpacks remote archives.
type Client struct {
	HTTP     *http.Client
	Progress io.Writer // nil disables progress output
	Logger   *zap.Logger
}

// New returns a Client writing progress to stderr.
func New(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		HTTP:     &http.Client{},
		Progress: os.Stderr,
		Logger:   logger,
	}
}

// FetchAndUnpack downloads rawURL into a private temp dir next to destDir,
// unpacks it and moves the single directory it contains to destDir.
//
// The temp dir is removed on every exit path. When destDir already exists it
// is replaced, and restored if the replacement fails.
func (c *Client) FetchAndUnpack(ctx context.Context, rawURL, destDir string) error {
	parent := filepath.Dir(destDir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", parent, err)
	}
	tmpDir, err := os.MkdirTemp(parent, ".psdist-fetch-*")
	if err != nil {
		return fmt.Errorf("cannot create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	filename := archiveName(rawURL)
	archivePath := filepath.Join(tmpDir, filename)
	c.Logger.Debug("writing temporary file", zap.String("path", archivePath))

	if err := c.download(ctx, rawURL, archivePath); err != nil {
		return err
	}
	if err := Unpack(archivePath, tmpDir, c.Logger); err != nil {
		return err
	}

	top, err := singleTopDir(tmpDir, filename)
	if err != nil {
		return err
	}

	c.Logger.Debug("moving unpacked directory", zap.String("from", top), zap.String("to", destDir))
	return swapDir(top, destDir)
}

// archiveName returns the basename of the URL path.
func archiveName(rawURL string) string {
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = path.Base(u.Path)
	}
	if name == "" || name == "." || name == "/" {
		return "download"
	}
	return name
}

// singleTopDir returns the only entry of dir other than skip, failing unless
// it exists and is a directory.
func singleTopDir(dir, skip string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var found []string
	for _, e := range entries {
		if e.Name() == skip {
			continue
		}
		found = append(found, e.Name())
	}
	if len(found) != 1 {
		return "", fmt.Errorf("%w: expecting single directory, got %v", ErrStructuralIntegrity, found)
	}
	p := filepath.Join(dir, found[0])
	st, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !st.IsDir() {
		return "", fmt.Errorf("%w: expecting single directory, got file %s", ErrStructuralIntegrity, found[0])
	}
	return p, nil
}

// swapDir replaces destDir with srcDir by renaming.
func swapDir(srcDir, destDir string) error {
	backup := destDir + ".bak"
	_ = os.RemoveAll(backup)
	hadDest := false
	if _, err := os.Stat(destDir); err == nil {
		if err := os.Rename(destDir, backup); err != nil {
			return fmt.Errorf("cannot move aside %s: %w", destDir, err)
		}
		hadDest = true
	}
	if err := os.Rename(srcDir, destDir); err != nil {
		// rollback best-effort
		if hadDest {
			_ = os.Rename(backup, destDir)
		}
		return fmt.Errorf("cannot move %s to %s: %w", srcDir, destDir, err)
	}
	_ = os.RemoveAll(backup)
	return nil
}
