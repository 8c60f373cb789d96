package repo

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// ManifestSuffix marks the per-table manifest files in a repository root.
const ManifestSuffix = ".txt"

// ReadTables reads every manifest directly under root and returns, per table
// name, the entry paths in manifest order with their extension stripped.
func ReadTables(root string) (map[string][]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("cannot list %s: %w", root, err)
	}

	var manifests []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ManifestSuffix) {
			continue
		}
		manifests = append(manifests, e.Name())
	}
	if len(manifests) == 0 {
		return nil, fmt.Errorf("%w: no %s manifest found in %s", ErrConfig, ManifestSuffix, root)
	}
	sort.Strings(manifests)

	tables := make(map[string][]string, len(manifests))
	for _, name := range manifests {
		relpaths, err := readManifest(filepath.Join(root, name))
		if err != nil {
			return nil, err
		}
		tables[strings.TrimSuffix(name, ManifestSuffix)] = relpaths
	}
	return tables, nil
}

func readManifest(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("cannot open manifest %s: %w", p, err)
	}
	defer f.Close()

	out := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		line = toSlash(line)
		out = append(out, strings.TrimSuffix(line, path.Ext(line)))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("cannot read manifest %s: %w", p, err)
	}
	return out, nil
}
