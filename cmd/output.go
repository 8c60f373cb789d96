package cmd

import (
	"fmt"
	"io"
	"os"
)

// Human-facing progress goes to stdout, one icon per line, while zap logs go
// to stderr. The icons mean:
//
//	✓  repository indexed, index written or objects uploaded
//	✗  build, publish or link check failed (stderr)
//	⚠  repository indexed with gaps, such as entries without cutoff hints
//	-  psdist.yaml absent, built-in repository list used
//	~  what the command is about to do
//
// Lines about one repository carry its name in brackets.
var (
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

func printLine(w io.Writer, icon, name, msg string) {
	if name == "" {
		fmt.Fprintf(w, "  %s  %s\n", icon, msg)
		return
	}
	fmt.Fprintf(w, "  %s  [%s] %s\n", icon, name, msg)
}

// printSection prints a header such as "=== Build ===".
func printSection(title string) {
	fmt.Fprintf(stdout, "\n=== %s ===\n", title)
}

func printOK(name, msg string)   { printLine(stdout, "✓", name, msg) }
func printErr(name, msg string)  { printLine(stderr, "✗", name, msg) }
func printWarn(name, msg string) { printLine(stdout, "⚠", name, msg) }
func printMiss(name, msg string) { printLine(stdout, "-", name, msg) }
func printInfo(name, msg string) { printLine(stdout, "~", name, msg) }
