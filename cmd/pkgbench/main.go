package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pkgbench/pkgbench/internal/cli"
)

// Build-time variables (set via ldflags)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := cli.New()
	app.SetVersion(version, commit, date)

	if err := app.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			// Target failures already showed up in the summary; the
			// aggregated status just becomes the process exit code.
			os.Exit(exitErr.Status)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
