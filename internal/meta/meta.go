// Package meta extracts per-entry metadata (valence electrons and the three
// cutoff hints) from the descriptor files shipped by each dataset family.
package meta

import "errors"

// ErrDataFormat indicates a descriptor or pseudopotential file could not be
// parsed.
var ErrDataFormat = errors.New("data format error")

// Missing is the hint value recorded when a descriptor carries no hints.
const Missing = -1

// Meta is the metadata record stored under "meta" in files.json.
//
// Fields are declared in key order so the encoded object is key-sorted.
type Meta struct {
	HH float64 `json:"hh"`
	HL float64 `json:"hl"`
	HN float64 `json:"hn"`
	NV float64 `json:"nv"`
}

// HasHints reports whether the record carries real hint values.
func (m Meta) HasHints() bool {
	return m.HL != Missing || m.HN != Missing || m.HH != Missing
}
