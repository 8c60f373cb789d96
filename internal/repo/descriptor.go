// Package repo models one upstream pseudopotential dataset: where it comes
// from, how it is laid out on disk and how its tables are bundled.
package repo

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/pseudodojo/psdist/internal/meta"
	"go.uber.org/zap"
)

// ErrConfig indicates an invalid repository configuration.
var ErrConfig = errors.New("configuration error")

// Family identifies the upstream generator ecosystem.
type Family string

const (
	ONCVPSP Family = "ONCVPSP"
	ATOMPAW Family = "ATOMPAW"
)

// Relativity is the relativistic treatment of a dataset.
type Relativity string

const (
	ScalarRelativistic Relativity = "SR"
	FullyRelativistic  Relativity = "FR"
)

// Descriptor identifies one dataset source.
type Descriptor struct {
	Generator  Family     `yaml:"generator"`
	XC         string     `yaml:"xc"`
	Relativity Relativity `yaml:"relativity"`
	Project    string     `yaml:"project,omitempty"`
	Version    string     `yaml:"version"`
	URL        string     `yaml:"url,omitempty"`
}

// family is the per-generator dispatch entry.
type family struct {
	psType     string
	project    string
	typePrefix string
	formats    []string
	metaFormat string
	name       func(d Descriptor) string
	url        func(d Descriptor) string
	element    func(relpath string) string
	meta       func(path string, opts MetaOptions) (meta.Meta, error)
}

// MetaOptions is forwarded to the family metadata extractor.
type MetaOptions struct {
	ValidateMD5 bool
	Logger      *zap.Logger
}

var families = map[Family]family{
	ONCVPSP: {
		psType:     "NC",
		project:    "PD",
		typePrefix: "nc",
		formats:    []string{"psp8", "upf", "psml", "html", "djrepo"},
		metaFormat: "djrepo",
		name: func(d Descriptor) string {
			// ONCVPSP-PBE-FR-PDv0.4
			return fmt.Sprintf("%s-%s-%s-%sv%s", d.Generator, d.XC, d.Relativity, d.Project, d.Version)
		},
		url: func(d Descriptor) string {
			sub := fmt.Sprintf("%s-%s-%sv%s", d.Generator, d.XC, d.Project, d.Version)
			if d.Relativity == FullyRelativistic {
				sub = fmt.Sprintf("%s-%s-FR-%sv%s", d.Generator, d.XC, d.Project, d.Version)
			}
			return "https://github.com/PseudoDojo/" + sub + "/archive/refs/heads/master.zip"
		},
		element: func(relpath string) string {
			// ONCVPSP-PBE-SR-PDv0.4/Ag/Ag-sp.psp8
			parts := strings.Split(path.Clean(toSlash(relpath)), "/")
			if len(parts) < 2 {
				return ""
			}
			return parts[len(parts)-2]
		},
		meta: func(p string, opts MetaOptions) (meta.Meta, error) {
			return meta.FromDjrepo(p, meta.DjrepoOptions{ValidateMD5: opts.ValidateMD5})
		},
	},
	ATOMPAW: {
		psType:     "PAW",
		project:    "JTH",
		typePrefix: "jth",
		formats:    []string{"xml", "upf"},
		metaFormat: "xml",
		name: func(d Descriptor) string {
			// ATOMPAW-LDA-JTHv1.1
			return fmt.Sprintf("%s-%s-%sv%s", d.Generator, d.XC, d.Project, d.Version)
		},
		url: func(d Descriptor) string {
			return fmt.Sprintf("https://www.abinit.org/ATOMICDATA/JTH-%s-atomicdata.tar.gz", d.XC)
		},
		element: func(relpath string) string {
			// ATOMICDATA/Ag.LDA_PW-JTH.xml
			return strings.Split(path.Base(toSlash(relpath)), ".")[0]
		},
		meta: func(p string, opts MetaOptions) (meta.Meta, error) {
			return meta.FromPAWXML(p, opts.Logger)
		},
	},
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// Validate checks the descriptor without touching the network or disk.
func (d Descriptor) Validate() error {
	if _, ok := families[d.Generator]; !ok {
		return fmt.Errorf("%w: unknown generator %q", ErrConfig, d.Generator)
	}
	if d.Relativity != ScalarRelativistic && d.Relativity != FullyRelativistic {
		return fmt.Errorf("%w: invalid relativity_type: %q", ErrConfig, d.Relativity)
	}
	if strings.TrimSpace(d.XC) == "" {
		return fmt.Errorf("%w: xc functional is required", ErrConfig)
	}
	if strings.TrimSpace(d.Version) == "" {
		return fmt.Errorf("%w: version is required", ErrConfig)
	}
	return nil
}

// withDefaults fills the project name and URL from the family.
func (d Descriptor) withDefaults() Descriptor {
	f := families[d.Generator]
	if d.Project == "" {
		d.Project = f.project
	}
	if d.URL == "" {
		d.URL = f.url(d)
	}
	return d
}

// typeOf derives the coarse index key, e.g. "nc-sr-v0.4".
func typeOf(prefix string, rel Relativity, version string) (string, error) {
	switch rel {
	case FullyRelativistic:
		return fmt.Sprintf("%s-fr-v%s", prefix, version), nil
	case ScalarRelativistic:
		return fmt.Sprintf("%s-sr-v%s", prefix, version), nil
	default:
		return "", fmt.Errorf("%w: invalid relativity_type %q", ErrConfig, rel)
	}
}
