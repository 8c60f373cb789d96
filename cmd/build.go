package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pseudodojo/psdist/internal/config"
	"github.com/pseudodojo/psdist/internal/fetch"
	"github.com/pseudodojo/psdist/internal/repo"
	"github.com/pseudodojo/psdist/internal/site"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// lockTimeout bounds how long a build waits for another one on the same
// working directory.
const lockTimeout = 5 * time.Second

// newFetcher is replaced in tests.
var newFetcher = func(l *zap.Logger) repo.Fetcher { return fetch.New(l) }

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Download every dataset and rebuild bundles and indices from scratch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBuild(cmd.Context(), true)
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Rebuild the indices, reusing downloaded datasets and existing bundles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBuild(cmd.Context(), false)
	},
}

func init() {
	rootCmd.AddCommand(newCmd, updateCmd)
}

func runBuild(ctx context.Context, fromScratch bool) error {
	dir, err := resolveWorkDir()
	if err != nil {
		return err
	}
	unlock, err := site.Lock(dir, lockTimeout)
	if err != nil {
		return err
	}
	defer unlock()

	cfg, found, err := loadConfig(dir)
	if err != nil {
		return err
	}
	env, err := config.LoadEnv(dir)
	if err != nil {
		return err
	}
	repos, err := cfg.Repositories(dir, logger)
	if err != nil {
		return err
	}

	printSection("Build")
	if !found {
		printMiss("", fmt.Sprintf("%s not found, using the built-in repository list", config.Path(dir)))
	}
	if fromScratch {
		printInfo("", fmt.Sprintf("rebuilding %d repositories from scratch in %s", len(repos), dir))
	} else {
		printInfo("", fmt.Sprintf("updating %d repositories in %s", len(repos), dir))
	}
	if env.ValidateMD5 {
		printInfo("", "md5 validation of djrepo sidecars enabled")
	}

	b := site.New(dir, repos, site.Options{
		Fetcher:     newFetcher(logger),
		Logger:      logger,
		ValidateMD5: env.ValidateMD5,
	})
	ix, err := b.Build(ctx, fromScratch)
	if err != nil {
		printErr("", "build aborted, indices left untouched")
		return err
	}

	for _, r := range repos {
		printRepoSummary(r, ix)
	}
	printOK("", fmt.Sprintf("wrote %s and %s", site.FilesName, site.TargzName))
	return nil
}

// printRepoSummary reports the tables and bundles indexed for r, and warns
// about elements whose metadata lacks cutoff hints.
func printRepoSummary(r *repo.Repository, ix *site.Index) {
	tables := ix.Files[r.Type()][r.XC()]
	bundles := 0
	for _, byFormat := range ix.Targz[r.Type()][r.XC()] {
		bundles += len(byFormat)
	}
	printOK(r.Name(), fmt.Sprintf("%s, %d tables, %d bundles", r.PSType(), len(tables), bundles))

	noHints := 0
	for _, byElem := range tables {
		for _, e := range byElem {
			if e.Meta != nil && !e.Meta.HasHints() {
				noHints++
			}
		}
	}
	if noHints > 0 {
		printWarn(r.Name(), fmt.Sprintf("%d entries without cutoff hints", noHints))
	}
}
