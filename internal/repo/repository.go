package repo

import (
	"context"
	"path/filepath"

	"github.com/pseudodojo/psdist/internal/meta"
	"go.uber.org/zap"
)

// Fetcher downloads url and unpacks it into destDir.
type Fetcher interface {
	FetchAndUnpack(ctx context.Context, url, destDir string) error
}

// Repository is one dataset source rooted in a working directory.
//
// Paths held by a Repository are relative to WorkDir.
type Repository struct {
	desc    Descriptor
	fam     family
	typ     string
	workDir string
	logger  *zap.Logger

	// tables[table][format] lists the files present on disk.
	tables map[string]map[string][]string
	// bundles[table][format] is the archive with every file of the pair.
	bundles map[string]map[string]string
}

// New validates d and returns a repository rooted in workDir.
func New(d Descriptor, workDir string, logger *zap.Logger) (*Repository, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d = d.withDefaults()
	f := families[d.Generator]
	typ, err := typeOf(f.typePrefix, d.Relativity, d.Version)
	if err != nil {
		return nil, err
	}
	return &Repository{
		desc:    d,
		fam:     f,
		typ:     typ,
		workDir: workDir,
		logger:  logger.With(zap.String("repo", f.name(d))),
	}, nil
}

// Descriptor returns the descriptor with defaults applied.
func (r *Repository) Descriptor() Descriptor { return r.desc }

// Name is the unique identity of the repository and its directory name.
func (r *Repository) Name() string { return r.fam.name(r.desc) }

// Type is the coarse classification key used as the first index level.
func (r *Repository) Type() string { return r.typ }

// XC returns the exchange-correlation functional.
func (r *Repository) XC() string { return r.desc.XC }

// PSType is "NC" or "PAW".
func (r *Repository) PSType() string { return r.fam.psType }

// Formats lists the file extensions the repository provides.
func (r *Repository) Formats() []string {
	out := make([]string, len(r.fam.formats))
	copy(out, r.fam.formats)
	return out
}

// MetaFormat is the format whose files carry the entry metadata.
func (r *Repository) MetaFormat() string { return r.fam.metaFormat }

// Dir is the absolute directory holding the unpacked dataset.
func (r *Repository) Dir() string { return filepath.Join(r.workDir, r.Name()) }

// Element derives the element symbol of a workdir-relative entry path.
func (r *Repository) Element(relpath string) string { return r.fam.element(relpath) }

// ExtractMeta reads the metadata of a workdir-relative path in MetaFormat.
func (r *Repository) ExtractMeta(relpath string, opts MetaOptions) (meta.Meta, error) {
	if opts.Logger == nil {
		opts.Logger = r.logger
	}
	return r.fam.meta(filepath.Join(r.workDir, relpath), opts)
}

// Tables returns table -> format -> paths as built by Setup.
func (r *Repository) Tables() map[string]map[string][]string { return r.tables }

// Bundles returns table -> format -> bundle path as built by Setup.
func (r *Repository) Bundles() map[string]map[string]string { return r.bundles }

// BundleName is the archive basename for one (table, format) pair.
func (r *Repository) BundleName(table, format string) string {
	return r.typ + "_" + r.desc.XC + "_" + table + "_" + format + ".tgz"
}
