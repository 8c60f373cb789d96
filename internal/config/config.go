package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pseudodojo/psdist/internal/repo"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// FileName is the repository configuration file looked up in the working
// directory.
const FileName = "psdist.yaml"

// Config is the in-memory representation of psdist.yaml.
type Config struct {
	Repos []repo.Descriptor `yaml:"repos"`
}

// Path returns the default configuration path for workDir.
func Path(workDir string) string {
	return filepath.Join(workDir, FileName)
}

// DefaultConfig returns the reference distribution: three ONCVPSP PseudoDojo
// v0.4 tables and two JTH v1.1 PAW tables.
func DefaultConfig() *Config {
	nc := func(xc string, rel repo.Relativity) repo.Descriptor {
		return repo.Descriptor{Generator: repo.ONCVPSP, XC: xc, Relativity: rel, Version: "0.4"}
	}
	paw := func(xc string) repo.Descriptor {
		return repo.Descriptor{Generator: repo.ATOMPAW, XC: xc, Relativity: repo.ScalarRelativistic, Version: "1.1"}
	}
	return &Config{
		Repos: []repo.Descriptor{
			nc("PBEsol", repo.ScalarRelativistic),
			nc("PBEsol", repo.FullyRelativistic),
			nc("PBE", repo.ScalarRelativistic),
			paw("LDA"),
			paw("PBE"),
		},
	}
}

// Load reads and parses the configuration at path. The file must exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}
	if len(cfg.Repos) == 0 {
		return nil, fmt.Errorf("%w: no repos in %s", repo.ErrConfig, path)
	}
	return &cfg, nil
}

// LoadWorkDir reads <workDir>/psdist.yaml. When the file does not exist it
// returns DefaultConfig and found is false.
func LoadWorkDir(workDir string) (cfg *Config, found bool, err error) {
	path := Path(workDir)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), false, nil
	}
	cfg, err = Load(path)
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

// Repositories validates every descriptor and returns the repositories rooted
// in workDir, in configuration order.
func (c *Config) Repositories(workDir string, logger *zap.Logger) ([]*repo.Repository, error) {
	out := make([]*repo.Repository, 0, len(c.Repos))
	for i, d := range c.Repos {
		r, err := repo.New(d, workDir, logger)
		if err != nil {
			return nil, fmt.Errorf("repos[%d]: %w", i, err)
		}
		out = append(out, r)
	}
	return out, nil
}
