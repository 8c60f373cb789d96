package meta

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var (
	upfZValenceAttr = regexp.MustCompile(`(?i)z_valence\s*=\s*"\s*([^"\s]+)\s*"`)
	upfZValenceLine = regexp.MustCompile(`(?im)^\s*([-+0-9.eEdD]+)\s+Z\s+valence`)
	psmlValence     = regexp.MustCompile(`total-valence-charge\s*=\s*"\s*([^"\s]+)\s*"`)
)

// Valence returns the number of valence electrons declared by the
// pseudopotential file at path. The format is chosen by extension.
func Valence(path string) (float64, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	switch ext {
	case "psp8", "psp":
		return abinitValence(path)
	case "upf":
		return matchValence(path, upfZValenceAttr, upfZValenceLine)
	case "psml":
		return matchValence(path, psmlValence)
	default:
		return 0, fmt.Errorf("%w: don't know how to read valence from %s", ErrDataFormat, path)
	}
}

// abinitValence reads zion from the second header line
// ("zatom, zion, pspd") of an abinit pseudopotential.
func abinitValence(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot open %s: %v", ErrDataFormat, path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for i := 0; i < 2; i++ {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return 0, fmt.Errorf("%w: cannot read %s: %v", ErrDataFormat, path, err)
			}
			return 0, fmt.Errorf("%w: %s: truncated header", ErrDataFormat, path)
		}
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 2 {
		return 0, fmt.Errorf("%w: %s: cannot find zion in header line %q", ErrDataFormat, path, scanner.Text())
	}
	return parseFortranFloat(path, fields[1])
}

func matchValence(path string, patterns ...*regexp.Regexp) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: cannot read %s: %v", ErrDataFormat, path, err)
	}
	for _, re := range patterns {
		if m := re.FindSubmatch(b); m != nil {
			return parseFortranFloat(path, string(m[1]))
		}
	}
	return 0, fmt.Errorf("%w: %s: valence not found", ErrDataFormat, path)
}

// parseFortranFloat accepts D exponents as written by Fortran codes.
func parseFortranFloat(path, s string) (float64, error) {
	s = strings.NewReplacer("D", "E", "d", "e").Replace(strings.TrimSpace(s))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: invalid number %q", ErrDataFormat, path, s)
	}
	return v, nil
}
