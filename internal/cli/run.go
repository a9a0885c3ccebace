package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pkgbench/pkgbench/internal/artifacts"
	"github.com/pkgbench/pkgbench/internal/buildstage"
	"github.com/pkgbench/pkgbench/internal/config"
	"github.com/pkgbench/pkgbench/internal/container"
	"github.com/pkgbench/pkgbench/internal/events"
	"github.com/pkgbench/pkgbench/internal/git"
	"github.com/pkgbench/pkgbench/internal/results"
	"github.com/pkgbench/pkgbench/internal/scheduler"
)

// runIndexName is the SQLite run index filename inside the results dir.
const runIndexName = "runs.db"

// RunOptions holds flags for the run command
type RunOptions struct {
	Debug         bool
	Source        string // accelerator source tree (git checkout)
	Parallelism   string // comma-separated list, e.g. "1,4,max"
	KeepLogs      bool
	StopOnFailure bool
	Diffoscope    bool
	Compiler      string
	Sanitize      bool
	Reports       bool
	CacheTool     string
	CacheOnly     bool // skip the build stage, measure the cache tool alone
	AccelOpts     [3]string
	VersionSuffix string
	MeasureCache  bool
	TimeFormat    string
	RunTests      bool
	DebPrep       bool
	TargetsFile   string
	ResultsDir    string
}

// Validate checks RunOptions for validity
func (opts RunOptions) Validate() error {
	if strings.TrimSpace(opts.Parallelism) == "" {
		return fmt.Errorf("parallelism list must not be empty")
	}
	for _, level := range opts.ParallelismLevels() {
		if level == "" {
			return fmt.Errorf("empty entry in parallelism list %q", opts.Parallelism)
		}
	}
	if !opts.CacheOnly && opts.Source == "" {
		return fmt.Errorf("a source tree is required unless --cache-only is set")
	}
	switch config.CacheTool(opts.CacheTool) {
	case config.CacheNone, config.CacheCcache, config.CacheSccache:
	default:
		return fmt.Errorf("unknown cache tool %q (want ccache or sccache)", opts.CacheTool)
	}
	if opts.CacheOnly && opts.CacheTool == "" {
		return fmt.Errorf("--cache-only requires --cache-tool")
	}
	return nil
}

// ParallelismLevels splits the requested parallelism list into its levels.
func (opts RunOptions) ParallelismLevels() []string {
	parts := strings.Split(opts.Parallelism, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// NewRunCmd creates the run command
func NewRunCmd(app *App) *cobra.Command {
	opts := RunOptions{
		Parallelism: "max",
	}

	cmd := &cobra.Command{
		Use:   "run [target[:type[:timeout]]...]",
		Short: "Build the accelerator and measure the target matrix",
		Long: `Run builds the accelerator from --source into installable packages, then
measures each target's package build inside a fresh container, one target
at a time. Without target arguments the whole targets file is measured.

The process exit status is the worst per-target status of the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				os.Exit(2)
			}
			return app.RunBenchmark(context.Background(), opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Run targets without measuring; leave the setup for inspection")
	cmd.Flags().StringVarP(&opts.Source, "source", "s", "", "Accelerator source tree (git checkout)")
	cmd.Flags().StringVarP(&opts.Parallelism, "parallelism", "j", "max", "Comma-separated parallelism levels (e.g. 1,4,max)")
	cmd.Flags().BoolVar(&opts.KeepLogs, "keep-logs", false, "Keep transcripts of successful targets")
	cmd.Flags().BoolVar(&opts.StopOnFailure, "stop-on-failure", false, "Halt after the first failed target whose accelerator started")
	cmd.Flags().BoolVar(&opts.Diffoscope, "diffoscope", false, "Compare rebuilt packages with diffoscope inside the instance")
	cmd.Flags().StringVar(&opts.Compiler, "compiler", "", "Build the accelerator with an alternate compiler (e.g. clang-17)")
	cmd.Flags().BoolVar(&opts.Sanitize, "sanitize", false, "Instrument the accelerator with address/undefined sanitizers")
	cmd.Flags().BoolVar(&opts.Reports, "reports", false, "Pull per-target HTML reports into the results dir")
	cmd.Flags().StringVar(&opts.CacheTool, "cache-tool", "", "Install a compiler cache in every instance (ccache or sccache)")
	cmd.Flags().BoolVar(&opts.CacheOnly, "cache-only", false, "Skip the accelerator build; measure the cache tool alone")
	cmd.Flags().StringVar(&opts.AccelOpts[0], "accel-opts", "", "First extra option forwarded to the accelerator")
	cmd.Flags().StringVar(&opts.AccelOpts[1], "accel-opts2", "", "Second extra option forwarded to the accelerator")
	cmd.Flags().StringVar(&opts.AccelOpts[2], "accel-opts3", "", "Third extra option forwarded to the accelerator")
	cmd.Flags().StringVar(&opts.VersionSuffix, "version-suffix", "", "Suffix appended to the derived package version")
	cmd.Flags().BoolVar(&opts.MeasureCache, "measure-cache", false, "Record cache statistics alongside timings")
	cmd.Flags().StringVar(&opts.TimeFormat, "time-format", "", "strftime spec for ledger timestamps")
	cmd.Flags().BoolVar(&opts.RunTests, "run-tests", false, "Run each target's test suite during the build")
	cmd.Flags().BoolVar(&opts.DebPrep, "deb-prep", false, "Run the package preparation step before measuring")
	cmd.Flags().StringVar(&opts.TargetsFile, "targets-file", "", "Test-definition file (overrides config)")
	cmd.Flags().StringVar(&opts.ResultsDir, "results-dir", "", "Host result store (overrides config)")

	return cmd
}

// RunBenchmark executes the full driver sequence: build stage, then one
// scheduler pass per parallelism level.
func (a *App) RunBenchmark(ctx context.Context, opts RunOptions, args []string) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	handler := NewSignalHandler(cancel)
	handler.OnShutdown(func() {
		fmt.Fprintln(os.Stderr, "\nInterrupted; shutting down...")
	})
	handler.Start()
	defer handler.Stop()

	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}
	cfg, err := config.LoadConfig(wd)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.ResultsDir != "" {
		cfg.ResultsDir = opts.ResultsDir
	}
	if opts.TargetsFile != "" {
		cfg.TargetsFile = opts.TargetsFile
	}
	if opts.TimeFormat != "" {
		cfg.TimeFormat = opts.TimeFormat
	}
	if cfg.TargetsFile != "" {
		if _, statErr := os.Stat(cfg.TargetsFile); statErr != nil {
			if opts.TargetsFile != "" {
				return fmt.Errorf("targets file: %w", statErr)
			}
			// The default targets file is optional; explicit target
			// arguments can still name bare targets.
			cfg.TargetsFile = ""
		}
	}

	bus := events.NewBus()
	defer bus.Close()
	bus.Subscribe(events.LogHandler(events.LogConfig{
		Writer:         os.Stderr,
		IncludePayload: opts.Debug,
	}))

	tool, err := container.Detect()
	if err != nil {
		return err
	}
	backend := container.NewCLIBackend(tool)

	// Fail fast before any container work: the build stage derives the
	// package version from the source tree's git metadata.
	sourceVersion := ""
	if !opts.CacheOnly {
		if !git.IsRepo(ctx, opts.Source) {
			return fmt.Errorf("source tree %s is not a git checkout", opts.Source)
		}
		sourceVersion, err = git.Describe(ctx, opts.Source)
		if err != nil {
			return fmt.Errorf("describe source tree: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.ResultsDir, 0o755); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	index, err := results.Open(filepath.Join(cfg.ResultsDir, runIndexName))
	if err != nil {
		return err
	}
	defer index.Close()

	targets, policies, err := loadTargetMatrix(cfg, args)
	if err != nil {
		return err
	}

	bus.Emit(events.NewEvent(events.RunStarted, "").WithPayload(opts.Parallelism))
	runID, err := index.BeginRun(&results.Run{
		Namespace:     cfg.Namespace,
		Image:         cfg.Image,
		SourceVersion: sourceVersion,
		Parallelism:   opts.Parallelism,
	})
	if err != nil {
		return err
	}

	var artifact *buildstage.ArtifactSet
	if opts.CacheOnly {
		bus.Emit(events.NewEvent(events.BuildSkipped, ""))
	} else {
		builder := buildstage.New(backend, bus)
		artifact, err = builder.Build(ctx, buildstage.Options{
			SourceDir:     opts.Source,
			Image:         cfg.Image,
			Namespace:     cfg.Namespace,
			Compiler:      opts.Compiler,
			Sanitize:      opts.Sanitize,
			VersionSuffix: opts.VersionSuffix,
		})
		if err != nil {
			bus.Emit(events.NewEvent(events.RunFailed, "").WithError(err))
			return fmt.Errorf("build stage: %w", err)
		}
		defer artifact.Remove()
	}

	levels := opts.ParallelismLevels()
	collector := artifacts.NewCollector(backend, bus, cfg.ResultsDir, cfg.LedgerPath())
	invoker := container.NewScriptRunner(tool)

	worst := 0
	halted := false
	var passes []passSummary
	for _, level := range levels {
		sched := scheduler.New(scheduler.Options{
			Namespace:       cfg.Namespace,
			Image:           cfg.Image,
			Workspace:       cfg.Workspace,
			TargetsFilePath: cfg.TargetsFile,
			ResultsDir:      cfg.ResultsDir,
			Debug:           opts.Debug,
			Parallelism:     level,
			SingleLevel:     len(levels) == 1,
			KeepLogs:        opts.KeepLogs,
			StopOnFailure:   opts.StopOnFailure,
			Diffoscope:      opts.Diffoscope,
			Reports:         opts.Reports,
			CacheTool:       config.CacheTool(opts.CacheTool),
			ExtraOpts:       opts.AccelOpts,
			VersionSuffix:   opts.VersionSuffix,
			MeasureCache:    opts.MeasureCache,
			TimeFormat:      cfg.TimeFormat,
			RunTests:        opts.RunTests,
			DebPrep:         opts.DebPrep,
		}, scheduler.Deps{
			Backend:   backend,
			Bus:       bus,
			Collector: collector,
			Policies:  policies,
			Artifact:  artifact,
			Invoker:   invoker,
		})

		res := sched.Run(ctx, targets)
		if err := index.RecordPass(runID, level, res.Targets); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: record pass: %v\n", err)
		}
		passes = append(passes, passSummary{Level: level, Result: res})
		if res.WorstStatus > worst {
			worst = res.WorstStatus
		}
		if res.Halted {
			halted = true
			break
		}
	}

	if err := index.FinishRun(runID, worst, halted); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: finish run: %v\n", err)
	}
	if worst == 0 {
		bus.Emit(events.NewEvent(events.RunCompleted, ""))
	} else {
		bus.Emit(events.NewEvent(events.RunFailed, "").WithStatus(worst))
	}

	fmt.Fprint(os.Stdout, renderSummary(passes, worst, halted))

	if worst != 0 {
		// Returned instead of exiting here so the deferred cleanup
		// (artifact removal, index close) still runs; main translates
		// this into the process exit status.
		return &ExitError{Status: worst}
	}
	return nil
}

// ExitError carries the run's aggregated worst status out of the command
// so main can exit with it after deferred cleanup has run.
type ExitError struct {
	Status int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Status)
}

// loadTargetMatrix resolves the targets to run this pass: explicit
// arguments when given, otherwise the whole targets file.
func loadTargetMatrix(cfg *config.Config, args []string) ([]config.Target, config.Policies, error) {
	if cfg.TargetsFile == "" {
		if len(args) == 0 {
			return nil, config.Policies{}, fmt.Errorf("no targets: give target arguments or configure a targets file")
		}
		set := &config.TargetSet{Policies: config.DefaultPolicies()}
		targets, err := set.Resolve(args)
		return targets, set.Policies, err
	}

	set, err := config.LoadTargets(cfg.TargetsFile)
	if err != nil {
		return nil, config.Policies{}, err
	}
	if len(args) == 0 {
		return set.All(), set.Policies, nil
	}
	targets, err := set.Resolve(args)
	return targets, set.Policies, err
}
