package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X". Left empty, they are filled from the build info
// stamped by go install.
var (
	version   = ""
	commit    = ""
	buildDate = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show psdist version and build information",
	Args:  cobra.NoArgs,
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

type buildInfo struct {
	version, commit, date string
}

// currentBuild merges the linker-set values with debug.BuildInfo.
func currentBuild() buildInfo {
	b := buildInfo{version: version, commit: commit, date: buildDate}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	if b.version == "" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.commit == "" {
				b.commit = s.Value
			}
		case "vcs.time":
			if b.date == "" {
				b.date = s.Value
			}
		}
	}
	return b
}

func runVersion(cmd *cobra.Command, _ []string) error {
	b := currentBuild()
	if b.version == "" {
		b.version = "dev"
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "psdist %s\n", b.version)
	fmt.Fprintf(out, "  commit:  %s\n", orNA(b.commit))
	fmt.Fprintf(out, "  built:   %s\n", orNA(b.date))
	fmt.Fprintf(out, "  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	return nil
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
