package meta

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

type pawSetup struct {
	XMLName xml.Name   `xml:"paw_setup"`
	Atom    *pawAtom   `xml:"atom"`
	PWEcut  *pawPWEcut `xml:"pw_ecut"`
}

type pawAtom struct {
	Symbol  string `xml:"symbol,attr"`
	Valence string `xml:"valence,attr"`
}

type pawPWEcut struct {
	Low    string `xml:"low,attr"`
	Medium string `xml:"medium,attr"`
	High   string `xml:"high,attr"`
}

// FromPAWXML reads a PAW XML setup. A missing pw_ecut element is tolerated:
// the hints are set to Missing and a warning is logged.
func FromPAWXML(path string, logger *zap.Logger) (Meta, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return Meta{}, fmt.Errorf("%w: cannot open %s: %v", ErrDataFormat, path, err)
	}
	defer f.Close()

	var setup pawSetup
	if err := xml.NewDecoder(f).Decode(&setup); err != nil {
		return Meta{}, fmt.Errorf("%w: invalid PAW XML %s: %v", ErrDataFormat, path, err)
	}
	if setup.Atom == nil || strings.TrimSpace(setup.Atom.Valence) == "" {
		return Meta{}, fmt.Errorf("%w: %s: missing atom valence", ErrDataFormat, path)
	}
	nv, err := parseAttr(path, "valence", setup.Atom.Valence)
	if err != nil {
		return Meta{}, err
	}

	m := Meta{NV: nv, HL: Missing, HN: Missing, HH: Missing}
	if setup.PWEcut == nil {
		logger.Warn("cannot find hints (pw_ecut) element", zap.String("path", path))
		return m, nil
	}
	if m.HL, err = parseAttr(path, "low", setup.PWEcut.Low); err != nil {
		return Meta{}, err
	}
	if m.HN, err = parseAttr(path, "medium", setup.PWEcut.Medium); err != nil {
		return Meta{}, err
	}
	if m.HH, err = parseAttr(path, "high", setup.PWEcut.High); err != nil {
		return Meta{}, err
	}
	return m, nil
}

func parseAttr(path, name, value string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: invalid %s %q", ErrDataFormat, path, name, value)
	}
	return v, nil
}
