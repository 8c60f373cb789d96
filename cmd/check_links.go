package cmd

import (
	"fmt"

	"github.com/pseudodojo/psdist/internal/linkcheck"
	"github.com/spf13/cobra"
)

var checkLinksCmd = &cobra.Command{
	Use:   "check-links [dir]",
	Short: "Serve the site locally and report broken links in every HTML page",
	Long: `Serves dir (default: the working directory) on a loopback port, fetches
every .html/.htm page below it and sends a HEAD request to each http(s) anchor.
Exits non-zero when at least one link is broken.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheckLinks,
}

func init() {
	rootCmd.AddCommand(checkLinksCmd)
}

func runCheckLinks(cmd *cobra.Command, args []string) error {
	dir := workDir
	if len(args) == 1 {
		dir = args[0]
	}

	printSection("Check links")
	broken, err := linkcheck.New(logger).CheckSite(cmd.Context(), dir)
	if broken == 0 && err == nil {
		printOK("", "no broken links")
		return nil
	}
	if broken > 0 {
		printErr("", fmt.Sprintf("%d broken links", broken))
	} else {
		printWarn("", "some pages could not be checked")
	}
	return err
}
