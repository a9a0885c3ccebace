package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/pkgbench/pkgbench/internal/config"
	"github.com/pkgbench/pkgbench/internal/container"
)

// remoteTargetsPath is where the test-definition file lands inside the
// instance, for the runner to read.
const remoteTargetsPath = "/root/targets.yaml"

// provision brings an instance from nothing to ready-to-run: stale
// cleanup, launch, dependency and artifact installation, workspace copy,
// optional cache tool, optional CPU pinning.
func (s *Scheduler) provision(ctx context.Context, t config.Target, instance string) error {
	exists, err := s.deps.Backend.Exists(ctx, instance)
	if err != nil {
		return fmt.Errorf("probe stale instance: %w", err)
	}
	if exists {
		// Stop may fail if the stale instance is already stopped; a
		// failed delete would collide with the launch and is fatal.
		_ = s.deps.Backend.Stop(ctx, instance)
		if err := s.deps.Backend.Delete(ctx, instance); err != nil {
			return fmt.Errorf("delete stale instance: %w", err)
		}
	}

	if err := s.deps.Backend.Launch(ctx, s.opts.Image, instance); err != nil {
		return fmt.Errorf("launch: %w", err)
	}

	if len(t.Depends) > 0 {
		if err := s.execChecked(ctx, instance, []string{"apt-get", "-q", "update"}); err != nil {
			return err
		}
		install := append([]string{"apt-get", "-qy", "install"}, t.Depends...)
		if err := s.execChecked(ctx, instance, install); err != nil {
			return err
		}
	}

	if s.deps.Artifact != nil {
		if err := s.deps.Backend.PushTree(ctx, instance, s.deps.Artifact.Dir, "/root"); err != nil {
			return fmt.Errorf("push artifact set: %w", err)
		}
		remoteDebs := "/root/" + filepath.Base(s.deps.Artifact.Dir)
		installDebs := fmt.Sprintf("dpkg -i %s/*.deb || apt-get -qyf install", remoteDebs)
		if err := s.execChecked(ctx, instance, []string{"sh", "-c", installDebs}); err != nil {
			return err
		}
	}

	if s.opts.Workspace != "" {
		if err := s.deps.Backend.PushTree(ctx, instance, s.opts.Workspace, "/root"); err != nil {
			return fmt.Errorf("push workspace: %w", err)
		}
	}
	if s.opts.TargetsFilePath != "" {
		if err := s.deps.Backend.PushFile(ctx, instance, s.opts.TargetsFilePath, remoteTargetsPath); err != nil {
			return fmt.Errorf("push targets file: %w", err)
		}
	}

	switch s.opts.CacheTool {
	case config.CacheCcache:
		if err := s.execChecked(ctx, instance, []string{"apt-get", "-qy", "install", "ccache"}); err != nil {
			return err
		}
	case config.CacheSccache:
		build := "apt-get -qy install cargo && cargo install --locked sccache"
		if err := s.execChecked(ctx, instance, []string{"sh", "-c", build}); err != nil {
			return err
		}
	}

	if coreRange, ok := s.cpuPin(); ok {
		if err := s.deps.Backend.SetCPULimit(ctx, instance, coreRange); err != nil {
			return fmt.Errorf("pin cpu: %w", err)
		}
	}

	return nil
}

// cpuPin decides whether the instance gets pinned to a fixed core range.
// Pinning removes host-load variance from the measurement, but only makes
// sense when the run requests exactly one concrete parallelism level;
// "max" runs unpinned, and multi-value parallelism lists stay unpinned.
func (s *Scheduler) cpuPin() (string, bool) {
	if !s.opts.SingleLevel {
		return "", false
	}
	n, err := strconv.Atoi(s.opts.Parallelism)
	if err != nil || n < 1 {
		return "", false
	}
	if n == 1 {
		return "0", true
	}
	return fmt.Sprintf("0-%d", n-1), true
}

func (s *Scheduler) execChecked(ctx context.Context, instance string, command []string) error {
	status, err := s.deps.Backend.Exec(ctx, instance, command, container.ExecOpts{})
	if err != nil {
		return fmt.Errorf("exec %s: %w", command[0], err)
	}
	if status != 0 {
		return fmt.Errorf("%s exited %d", command[0], status)
	}
	return nil
}
