package repo

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// Setup makes the repository ready for indexing:
//
//  1. download and unpack the dataset unless its directory already exists
//     (always when fromScratch);
//  2. read the table manifests;
//  3. keep, per table and format, the files actually present on disk;
//  4. build one bundle per non-empty (table, format), reusing existing ones
//     unless fromScratch.
//
// Missing files are logged and tolerated. Any other failure is returned.
func (r *Repository) Setup(ctx context.Context, fetcher Fetcher, fromScratch bool) error {
	dir := r.Dir()
	if fromScratch || !isDir(dir) {
		r.logger.Info("downloading", zap.String("url", r.desc.URL), zap.String("dest", r.Name()))
		if err := fetcher.FetchAndUnpack(ctx, r.desc.URL, dir); err != nil {
			return fmt.Errorf("cannot fetch %s: %w", r.Name(), err)
		}
	} else {
		r.logger.Info("skipping download step, directory already exists", zap.String("dir", r.Name()))
	}

	manifests, err := ReadTables(dir)
	if err != nil {
		return err
	}

	tables := make(map[string]map[string][]string, len(manifests))
	for _, table := range sortedKeys(manifests) {
		tables[table] = make(map[string][]string, len(r.fam.formats))
		for _, ext := range r.fam.formats {
			files := make([]string, 0, len(manifests[table]))
			for _, entry := range manifests[table] {
				rel := path.Join(r.Name(), entry+"."+ext)
				if isFile(filepath.Join(r.workDir, filepath.FromSlash(rel))) {
					files = append(files, rel)
				}
			}
			if len(files) != len(manifests[table]) {
				r.logger.Warn("cannot find all files for format",
					zap.String("table", table),
					zap.String("ext", ext),
					zap.Int("expected", len(manifests[table])),
					zap.Int("found", len(files)))
			}
			tables[table][ext] = files
		}
	}

	bundles := make(map[string]map[string]string, len(tables))
	for _, table := range sortedKeys(tables) {
		bundles[table] = map[string]string{}
		for _, ext := range r.fam.formats {
			files := tables[table][ext]
			if len(files) == 0 {
				continue
			}
			rel := path.Join(r.Name(), r.BundleName(table, ext))
			abs := filepath.Join(r.workDir, filepath.FromSlash(rel))
			if fromScratch || !isFile(abs) {
				r.logger.Info("creating tarball", zap.String("path", rel))
				srcs := make([]string, len(files))
				for i, f := range files {
					srcs[i] = filepath.Join(r.workDir, filepath.FromSlash(f))
				}
				if err := WriteBundle(abs, srcs); err != nil {
					return err
				}
			} else {
				r.logger.Debug("skipping tarball creation", zap.String("path", rel))
			}
			bundles[table][ext] = rel
		}
	}

	r.tables = tables
	r.bundles = bundles
	return nil
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}

func isFile(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
