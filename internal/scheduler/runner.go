package scheduler

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/pkgbench/pkgbench/internal/config"
)

// Invoker runs the in-container runner under a terminal recorder so its
// output is preserved byte-for-byte in a host transcript.
type Invoker interface {
	RunRecorded(ctx context.Context, instance string, command []string, transcript string) (int, error)
}

// runnerPath is where the runner script lives inside the instance, after
// the workspace push.
func (s *Scheduler) runnerPath() string {
	if s.opts.Workspace != "" {
		return "/root/" + filepath.Base(s.opts.Workspace) + "/run"
	}
	return "/root/bench/run"
}

// runnerArgs builds the runner's argument line, forwarding the full set
// of run options verbatim plus the target (with any embedded overrides).
func (s *Scheduler) runnerArgs(t config.Target) []string {
	args := []string{s.runnerPath()}
	if s.opts.Debug {
		args = append(args, "--debug")
	}
	args = append(args, "-j", s.opts.Parallelism)
	if s.opts.Diffoscope {
		args = append(args, "--diffoscope")
	}
	switch s.opts.CacheTool {
	case config.CacheCcache:
		args = append(args, "--ccache")
	case config.CacheSccache:
		args = append(args, "--sccache")
	}
	for i, opt := range s.opts.ExtraOpts {
		if opt != "" {
			args = append(args, fmt.Sprintf("--accel-opt%d", i+1), opt)
		}
	}
	if s.opts.VersionSuffix != "" {
		args = append(args, "--version-suffix", s.opts.VersionSuffix)
	}
	if s.opts.MeasureCache {
		args = append(args, "--measure-cache")
	}
	if s.opts.TimeFormat != "" {
		args = append(args, "--time-format", s.opts.TimeFormat)
	}
	if s.opts.RunTests {
		args = append(args, "--run-tests")
	}
	if s.opts.DebPrep {
		args = append(args, "--deb-prep")
	}
	if s.opts.TargetsFilePath != "" {
		args = append(args, "--targets-file", remoteTargetsPath)
	}
	args = append(args, t.Options...)
	args = append(args, t.Arg())
	return args
}
