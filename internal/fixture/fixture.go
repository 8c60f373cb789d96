// Package fixture writes small synthetic datasets laid out like the upstream
// ONCVPSP and JTH archives, for use in tests.
package fixture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Entry is one pseudopotential in a synthetic dataset.
type Entry struct {
	Element string
	Name    string  // entry basename without extension, e.g. "Ag-sp"
	Valence float64 // valence electrons
	Hints   [3]float64
	NoHints bool // PAW only: omit pw_ecut
}

// Dataset is a synthetic upstream dataset.
type Dataset struct {
	// Tables maps a table name to its entries.
	Tables map[string][]Entry
	// Skip lists "<entry>.<ext>" files not written, to simulate incomplete
	// upstream data.
	Skip []string
}

// WriteNC writes an ONCVPSP-style tree under root: <elem>/<name>.<ext> for
// psp8, upf, psml, html and djrepo, plus one <table>.txt manifest per table.
func WriteNC(root string, ds Dataset) error {
	for table, entries := range ds.Tables {
		var manifest strings.Builder
		for _, e := range entries {
			rel := e.Element + "/" + e.Name
			manifest.WriteString(rel + ".psp8\n")
			files := map[string]string{
				"psp8": fmt.Sprintf("%s    ONCVPSP-3.3.0\n    0.0000     %.4f      171101    zatom,zion,pspd\n", e.Element, e.Valence),
				"upf":  fmt.Sprintf("<UPF version=\"2.0.1\"><PP_HEADER z_valence=\"%g\"/></UPF>\n", e.Valence),
				"psml": fmt.Sprintf("<psml><valence-configuration total-valence-charge=\"%g\"/></psml>\n", e.Valence),
				"html": "<html><body>" + e.Name + "</body></html>\n",
				"djrepo": fmt.Sprintf(`{"basename": %q, "hints": {"low": {"ecut": %g}, "normal": {"ecut": %g}, "high": {"ecut": %g}}}`,
					e.Name+".psp8", e.Hints[0], e.Hints[1], e.Hints[2]),
			}
			for ext, body := range files {
				if err := write(root, rel+"."+ext, body, ds.Skip); err != nil {
					return err
				}
			}
		}
		if err := write(root, table+".txt", manifest.String(), nil); err != nil {
			return err
		}
	}
	return nil
}

// WritePAW writes a JTH-style tree under root: ATOMICDATA/<elem>.<name>.xml
// and .upf, plus one <table>.txt manifest per table.
func WritePAW(root string, ds Dataset) error {
	for table, entries := range ds.Tables {
		var manifest strings.Builder
		for _, e := range entries {
			rel := "ATOMICDATA/" + e.Element + "." + e.Name
			manifest.WriteString(rel + ".xml\n")
			ecut := fmt.Sprintf(`  <pw_ecut low="%g" medium="%g" high="%g"/>`+"\n", e.Hints[0], e.Hints[1], e.Hints[2])
			if e.NoHints {
				ecut = ""
			}
			xml := fmt.Sprintf("<?xml version=\"1.0\"?>\n<paw_setup version=\"0.6\">\n  <atom symbol=%q valence=\"%g\"/>\n%s</paw_setup>\n",
				e.Element, e.Valence, ecut)
			if err := write(root, rel+".xml", xml, ds.Skip); err != nil {
				return err
			}
			upf := fmt.Sprintf("<UPF version=\"2.0.1\"><PP_HEADER z_valence=\"%g\"/></UPF>\n", e.Valence)
			if err := write(root, rel+".upf", upf, ds.Skip); err != nil {
				return err
			}
		}
		if err := write(root, table+".txt", manifest.String(), nil); err != nil {
			return err
		}
	}
	return nil
}

func write(root, rel, body string, skip []string) error {
	for _, s := range skip {
		if s == rel {
			return nil
		}
	}
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(body), 0o644)
}

// Fetcher is a fake fetcher that materializes datasets by URL and counts
// calls.
type Fetcher struct {
	mu       sync.Mutex
	Writers  map[string]func(root string) error
	Calls    map[string]int
	FailWith error
}

// NewFetcher returns an empty Fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{Writers: map[string]func(string) error{}, Calls: map[string]int{}}
}

// Add registers the writer used for url.
func (f *Fetcher) Add(url string, w func(root string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writers[url] = w
}

// Total returns the number of FetchAndUnpack calls made.
func (f *Fetcher) Total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		n += c
	}
	return n
}

// FetchAndUnpack implements repo.Fetcher.
func (f *Fetcher) FetchAndUnpack(_ context.Context, url, destDir string) error {
	f.mu.Lock()
	f.Calls[url]++
	w, ok := f.Writers[url]
	fail := f.FailWith
	f.mu.Unlock()

	if fail != nil {
		return fail
	}
	if !ok {
		return fmt.Errorf("no fixture for %s", url)
	}
	if err := os.RemoveAll(destDir); err != nil {
		return err
	}
	return w(destDir)
}
