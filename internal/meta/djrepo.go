package meta

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DjrepoOptions controls sidecar processing.
type DjrepoOptions struct {
	// ValidateMD5 compares the pseudopotential md5 with the one recorded in
	// the sidecar, when the sidecar has one.
	ValidateMD5 bool
}

type djrepo struct {
	Basename string                 `json:"basename"`
	MD5      string                 `json:"md5"`
	Hints    map[string]*djrepoHint `json:"hints"`
}

type djrepoHint struct {
	Ecut *float64 `json:"ecut"`
}

// FromDjrepo reads a norm-conserving .djrepo sidecar and the pseudopotential
// it references. Every failure is an ErrDataFormat.
func FromDjrepo(path string, opts DjrepoOptions) (Meta, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, fmt.Errorf("%w: cannot read %s: %v", ErrDataFormat, path, err)
	}
	var d djrepo
	if err := json.Unmarshal(b, &d); err != nil {
		return Meta{}, fmt.Errorf("%w: invalid JSON in %s: %v", ErrDataFormat, path, err)
	}

	var ecut [3]float64
	for i, level := range []string{"low", "normal", "high"} {
		h, ok := d.Hints[level]
		if !ok || h == nil || h.Ecut == nil {
			return Meta{}, fmt.Errorf("%w: %s: missing hints.%s.ecut", ErrDataFormat, path, level)
		}
		ecut[i] = *h.Ecut
	}

	if strings.TrimSpace(d.Basename) == "" {
		return Meta{}, fmt.Errorf("%w: %s: missing basename", ErrDataFormat, path)
	}
	pseudoPath := filepath.Join(filepath.Dir(path), d.Basename)

	if opts.ValidateMD5 && d.MD5 != "" {
		sum, err := fileMD5(pseudoPath)
		if err != nil {
			return Meta{}, fmt.Errorf("%w: md5 %s: %v", ErrDataFormat, pseudoPath, err)
		}
		if !strings.EqualFold(sum, d.MD5) {
			return Meta{}, fmt.Errorf("%w: md5 mismatch for %s\nexpected: %s\nactual:   %s", ErrDataFormat, pseudoPath, d.MD5, sum)
		}
	}

	nv, err := Valence(pseudoPath)
	if err != nil {
		return Meta{}, err
	}

	return Meta{NV: nv, HL: ecut[0], HN: ecut[1], HH: ecut[2]}, nil
}

// fileMD5 returns the hex-encoded MD5 digest of the file at path.
func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
