// Package site builds the distribution indices files.json and targz.json from
// a list of repositories.
package site

import (
	"context"
	"errors"
	"fmt"

	"github.com/pseudodojo/psdist/internal/elements"
	"github.com/pseudodojo/psdist/internal/repo"
	"go.uber.org/zap"
)

// ErrInvalidElement is returned when a path maps to a symbol outside the
// periodic table.
var ErrInvalidElement = errors.New("invalid element")

// Options configures a Builder.
type Options struct {
	Fetcher     repo.Fetcher
	Logger      *zap.Logger
	ValidateMD5 bool
}

// Builder runs the pipeline over every repository of a working directory.
type Builder struct {
	workDir string
	repos   []*repo.Repository
	opts    Options
	logger  *zap.Logger
}

// New returns a Builder. repos are processed in order.
func New(workDir string, repos []*repo.Repository, opts Options) *Builder {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{workDir: workDir, repos: repos, opts: opts, logger: logger}
}

// CheckUnique returns ErrConfig when two repositories share a name, which is
// also their directory, or share (type, xc).
func CheckUnique(repos []*repo.Repository) error {
	names := make(map[string]int, len(repos))
	keys := make(map[[2]string]string, len(repos))
	for i, r := range repos {
		if prev, ok := names[r.Name()]; ok {
			return fmt.Errorf("%w: repos[%d] and repos[%d] both resolve to %s", repo.ErrConfig, prev, i, r.Name())
		}
		names[r.Name()] = i

		k := [2]string{r.Type(), r.XC()}
		if prev, ok := keys[k]; ok {
			return fmt.Errorf("%w: %s and %s share type %s and xc %s", repo.ErrConfig, prev, r.Name(), k[0], k[1])
		}
		keys[k] = r.Name()
	}
	return nil
}

// Build sets up every repository, assembles the index and writes it to the
// working directory. Nothing is written if any repository fails.
func (b *Builder) Build(ctx context.Context, fromScratch bool) (*Index, error) {
	if err := CheckUnique(b.repos); err != nil {
		return nil, err
	}
	if b.opts.Fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", repo.ErrConfig)
	}

	ix := NewIndex()
	for _, r := range b.repos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.Setup(ctx, b.opts.Fetcher, fromScratch); err != nil {
			return nil, err
		}
		if err := b.addRepo(ix, r); err != nil {
			return nil, err
		}
	}

	if err := WriteIndex(b.workDir, ix); err != nil {
		return nil, err
	}
	b.logger.Info("index written", zap.Int("repos", len(b.repos)))
	return ix, nil
}

func (b *Builder) addRepo(ix *Index, r *repo.Repository) error {
	typ, xc := r.Type(), r.XC()
	if err := ix.addRepo(typ, xc); err != nil {
		return err
	}
	mopts := repo.MetaOptions{ValidateMD5: b.opts.ValidateMD5}

	tables := r.Tables()
	for _, table := range sortedKeys(tables) {
		ix.addTable(typ, xc, table)
		for _, format := range r.Formats() {
			for _, p := range tables[table][format] {
				elem := r.Element(p)
				if !elements.IsValidSymbol(elem) {
					return fmt.Errorf("%w: %q derived from %s", ErrInvalidElement, elem, p)
				}
				e := ix.entry(typ, xc, table, elem)
				e.Files[format] = p
				if format != r.MetaFormat() {
					continue
				}
				m, err := r.ExtractMeta(p, mopts)
				if err != nil {
					return fmt.Errorf("cannot read metadata of %s: %w", p, err)
				}
				e.Meta = &m
			}
		}
	}

	bundles := r.Bundles()
	for _, table := range sortedKeys(bundles) {
		for format, p := range bundles[table] {
			ix.setBundle(typ, xc, table, format, p)
		}
	}
	return nil
}
