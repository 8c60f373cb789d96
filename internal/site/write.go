package site

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	FilesName = "files.json"
	TargzName = "targz.json"
)

// WriteIndex writes files.json and targz.json to dir. Both documents are
// staged as temp files first and renamed into place only once both are on
// disk.
func WriteIndex(dir string, ix *Index) error {
	fb, err := json.MarshalIndent(ix.Files, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", FilesName, err)
	}
	tb, err := json.MarshalIndent(ix.Targz, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot encode %s: %w", TargzName, err)
	}

	docs := []struct {
		dest string
		body []byte
	}{
		{filepath.Join(dir, FilesName), fb},
		{filepath.Join(dir, TargzName), tb},
	}
	staged := make([]string, 0, len(docs))
	defer func() {
		for _, tmp := range staged {
			_ = os.Remove(tmp)
		}
	}()
	for _, d := range docs {
		tmp, err := stage(d.dest, d.body)
		if err != nil {
			return err
		}
		staged = append(staged, tmp)
	}
	for i, d := range docs {
		if err := rename(staged[i], d.dest); err != nil {
			return fmt.Errorf("cannot move %s into place: %w", d.dest, err)
		}
	}
	return nil
}

// rename is replaced in tests.
var rename = os.Rename

// stage writes b to a temp file next to dest and returns its name.
func stage(dest string, b []byte) (name string, err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return "", fmt.Errorf("cannot write %s: %w", dest, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(append(b, '\n')); err != nil {
		return "", fmt.Errorf("cannot write %s: %w", dest, err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return "", err
	}
	if err = tmp.Close(); err != nil {
		return "", err
	}
	return tmp.Name(), nil
}

// LoadIndex reads files.json and targz.json from dir.
func LoadIndex(dir string) (*Index, error) {
	ix := NewIndex()
	if err := readJSON(filepath.Join(dir, FilesName), &ix.Files); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, TargzName), &ix.Targz); err != nil {
		return nil, err
	}
	return ix, nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("invalid JSON %s: %w", path, err)
	}
	return nil
}

// Paths returns every file path referenced by the index, bundles included,
// sorted and without duplicates.
func (ix *Index) Paths() []string {
	set := map[string]struct{}{}
	for _, byXC := range ix.Files {
		for _, byTable := range byXC {
			for _, byElem := range byTable {
				for _, e := range byElem {
					for _, p := range e.Files {
						set[p] = struct{}{}
					}
				}
			}
		}
	}
	for _, byXC := range ix.Targz {
		for _, byTable := range byXC {
			for _, byFormat := range byTable {
				for _, p := range byFormat {
					set[p] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
