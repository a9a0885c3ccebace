package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
)

// CLIBackend implements Backend using the incus/lxc CLI. Both tools expose
// the same verb set, so the tool name is the only point of variation.
type CLIBackend struct {
	tool string // "incus" or "lxc"
}

// NewCLIBackend creates a Backend using the specified tool.
// Use Detect() to find an available tool first.
func NewCLIBackend(tool string) *CLIBackend {
	return &CLIBackend{tool: tool}
}

// run executes a backend command and returns combined output on failure.
func (b *CLIBackend) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, b.tool, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s failed: %s", b.tool, args[0], strings.TrimSpace(string(output)))
	}
	return nil
}

// Launch creates and starts an instance from a template image.
func (b *CLIBackend) Launch(ctx context.Context, image, name string) error {
	return b.run(ctx, "launch", image, name)
}

// Exec runs a command inside the instance and returns its exit status.
// The backend propagates the in-container command's exit status, so a
// non-zero return with nil error is the command's own outcome. A non-nil
// error means the backend tool could not be started at all.
func (b *CLIBackend) Exec(ctx context.Context, name string, command []string, opts ExecOpts) (int, error) {
	args := []string{"exec", name}
	if opts.Dir != "" {
		args = append(args, "--cwd", opts.Dir)
	}
	for k, v := range opts.Env {
		args = append(args, "--env", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, "--")
	if opts.User != "" {
		args = append(args, "su", "-", opts.User, "-c", strings.Join(command, " "))
	} else {
		args = append(args, command...)
	}

	cmd := exec.CommandContext(ctx, b.tool, args...)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return translateWait(exitErr), nil
		}
		return -1, fmt.Errorf("failed to exec in %s: %w", name, err)
	}
	return 0, nil
}

// translateWait reduces a process termination to a shell-style integer:
// exit n stays n, death by signal s becomes 128+s, anything else 127.
func translateWait(exitErr *exec.ExitError) int {
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		switch {
		case ws.Exited():
			return ws.ExitStatus()
		case ws.Signaled():
			return 128 + int(ws.Signal())
		}
	}
	if code := exitErr.ExitCode(); code >= 0 {
		return code
	}
	return 127
}

// ExecCapture runs a command inside the instance and returns its stdout.
func (b *CLIBackend) ExecCapture(ctx context.Context, name string, command []string) (string, error) {
	args := append([]string{"exec", name, "--"}, command...)
	cmd := exec.CommandContext(ctx, b.tool, args...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("exec in %s failed: %s", name, exitErr.Stderr)
		}
		return "", fmt.Errorf("failed to exec in %s: %w", name, err)
	}
	return string(output), nil
}

// PushTree copies a host directory tree into the instance.
func (b *CLIBackend) PushTree(ctx context.Context, name, localPath, remotePath string) error {
	return b.run(ctx, "file", "push", "--recursive", "--create-dirs",
		localPath, name+remotePath)
}

// PushFile copies a single host file into the instance.
func (b *CLIBackend) PushFile(ctx context.Context, name, localPath, remotePath string) error {
	return b.run(ctx, "file", "push", "--create-dirs", localPath, name+remotePath)
}

// PullTree copies a directory tree out of the instance.
func (b *CLIBackend) PullTree(ctx context.Context, name, remotePath, localPath string) error {
	return b.run(ctx, "file", "pull", "--recursive", name+remotePath, localPath)
}

// PullFile copies a single file out of the instance.
func (b *CLIBackend) PullFile(ctx context.Context, name, remotePath, localPath string) error {
	return b.run(ctx, "file", "pull", name+remotePath, localPath)
}

// Stop force-stops a running instance.
func (b *CLIBackend) Stop(ctx context.Context, name string) error {
	return b.run(ctx, "stop", name, "--force")
}

// Delete removes a stopped instance.
func (b *CLIBackend) Delete(ctx context.Context, name string) error {
	return b.run(ctx, "delete", name)
}

// Rename renames an instance.
func (b *CLIBackend) Rename(ctx context.Context, name, newName string) error {
	return b.run(ctx, "rename", name, newName)
}

// Exists reports whether an instance with this name is present.
func (b *CLIBackend) Exists(ctx context.Context, name string) (bool, error) {
	cmd := exec.CommandContext(ctx, b.tool, "info", name)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, fmt.Errorf("failed to probe %s: %w", name, err)
	}
	return true, nil
}

// SetCPULimit pins the instance to a core range (e.g. "0-3").
func (b *CLIBackend) SetCPULimit(ctx context.Context, name, coreRange string) error {
	return b.run(ctx, "config", "set", name, "limits.cpu", coreRange)
}

// Verify CLIBackend implements Backend interface
var _ Backend = (*CLIBackend)(nil)
