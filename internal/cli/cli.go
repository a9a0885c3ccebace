package cli

import (
	"github.com/spf13/cobra"
)

// App represents the CLI application with all wired dependencies
type App struct {
	rootCmd *cobra.Command

	// Version information (set via ldflags at build time)
	version string
	commit  string
	date    string
}

// New creates a new CLI application
func New() *App {
	app := &App{}
	app.setupRootCmd()
	return app
}

// Execute runs the CLI application
func (a *App) Execute() error {
	return a.rootCmd.Execute()
}

// SetVersion sets the version string for the version command
func (a *App) SetVersion(version, commit, date string) {
	a.version = version
	a.commit = commit
	a.date = date
}

// setupRootCmd configures the root Cobra command
func (a *App) setupRootCmd() {
	a.rootCmd = &cobra.Command{
		Use:   "pkgbench",
		Short: "Container-based performance test driver for the build accelerator",
		Long: `pkgbench builds the accelerator into installable packages, then measures
package builds under it inside disposable containers, one target at a time,
collecting timing rows into a persistent CSV ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a.rootCmd.AddCommand(NewRunCmd(a))
	a.rootCmd.AddCommand(NewVersionCmd(a))
}
