package repo

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/pgzip"
)

// WriteBundle writes a gzip-compressed tar at dest holding every file in
// srcs under its basename. The archive is written to a temp file and renamed
// into place, so dest never holds a partial bundle.
func WriteBundle(dest string, srcs []string) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("cannot create bundle %s: %w", dest, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	gz := pgzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)
	for _, src := range srcs {
		if err = addFile(tw, src); err != nil {
			return fmt.Errorf("cannot add %s to %s: %w", src, dest, err)
		}
	}
	if err = tw.Close(); err != nil {
		return err
	}
	if err = gz.Close(); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("cannot move bundle into place: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, src string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return err
	}
	h, err := tar.FileInfoHeader(st, "")
	if err != nil {
		return err
	}
	h.Name = filepath.Base(src)
	if err := tw.WriteHeader(h); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
