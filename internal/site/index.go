package site

import (
	"encoding/json"
	"fmt"

	"github.com/pseudodojo/psdist/internal/meta"
	"github.com/pseudodojo/psdist/internal/repo"
)

const metaKey = "meta"

// Entry is files[type][xc][table][element]: one path per format plus the
// optional metadata record.
type Entry struct {
	Files map[string]string
	Meta  *meta.Meta
}

// MarshalJSON flattens the entry into {"<format>": path, ..., "meta": {...}}.
func (e *Entry) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(e.Files)+1)
	for k, v := range e.Files {
		m[k] = v
	}
	if e.Meta != nil {
		m[metaKey] = e.Meta
	}
	return json.Marshal(m)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	e.Files = make(map[string]string, len(raw))
	e.Meta = nil
	for k, v := range raw {
		if k == metaKey {
			var m meta.Meta
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("invalid meta: %w", err)
			}
			e.Meta = &m
			continue
		}
		var p string
		if err := json.Unmarshal(v, &p); err != nil {
			return fmt.Errorf("invalid path for %q: %w", k, err)
		}
		e.Files[k] = p
	}
	return nil
}

// Files is files[type][xc][table][element].
type Files map[string]map[string]map[string]map[string]*Entry

// Targz is targz[type][xc][table][format] = bundle path.
type Targz map[string]map[string]map[string]map[string]string

// Index holds both published documents.
type Index struct {
	Files Files
	Targz Targz
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{Files: Files{}, Targz: Targz{}}
}

// addRepo creates the (type, xc) level of both documents. A pair that is
// already present is a configuration error.
func (ix *Index) addRepo(typ, xc string) error {
	if _, ok := ix.Files[typ][xc]; ok {
		return fmt.Errorf("%w: repo.type: %s, repo.xc_name: %s is already in the index", repo.ErrConfig, typ, xc)
	}
	if ix.Files[typ] == nil {
		ix.Files[typ] = map[string]map[string]map[string]*Entry{}
	}
	if ix.Targz[typ] == nil {
		ix.Targz[typ] = map[string]map[string]map[string]string{}
	}
	ix.Files[typ][xc] = map[string]map[string]*Entry{}
	ix.Targz[typ][xc] = map[string]map[string]string{}
	return nil
}

// addTable creates the table level under an existing (type, xc).
func (ix *Index) addTable(typ, xc, table string) {
	if ix.Files[typ][xc][table] == nil {
		ix.Files[typ][xc][table] = map[string]*Entry{}
	}
	if ix.Targz[typ][xc][table] == nil {
		ix.Targz[typ][xc][table] = map[string]string{}
	}
}

// entry returns the element entry, creating it when missing.
func (ix *Index) entry(typ, xc, table, elem string) *Entry {
	ix.addTable(typ, xc, table)
	e := ix.Files[typ][xc][table][elem]
	if e == nil {
		e = &Entry{Files: map[string]string{}}
		ix.Files[typ][xc][table][elem] = e
	}
	return e
}

func (ix *Index) setBundle(typ, xc, table, format, path string) {
	ix.addTable(typ, xc, table)
	ix.Targz[typ][xc][table][format] = path
}
