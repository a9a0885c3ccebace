package container

import "context"

// ExecOpts configures command execution inside an instance.
type ExecOpts struct {
	// Dir is the working directory inside the instance
	Dir string

	// User runs the command as this user instead of root
	User string

	// Env contains extra environment variables for the command
	Env map[string]string
}

// Backend provides lifecycle management for named container instances.
// Exactly one backend tool is selected at process start (see Detect); the
// choice is fixed for the run's lifetime.
type Backend interface {
	// Launch creates and starts an instance from a template image.
	Launch(ctx context.Context, image, name string) error

	// Exec runs a command inside the instance and returns its exit status.
	// A non-nil error means the backend tool itself could not be run; a
	// non-zero status with nil error is the command's own outcome.
	Exec(ctx context.Context, name string, command []string, opts ExecOpts) (int, error)

	// ExecCapture runs a command inside the instance and returns its stdout.
	ExecCapture(ctx context.Context, name string, command []string) (string, error)

	// PushTree copies a host directory tree into the instance.
	PushTree(ctx context.Context, name, localPath, remotePath string) error

	// PushFile copies a single host file into the instance.
	PushFile(ctx context.Context, name, localPath, remotePath string) error

	// PullTree copies a directory tree out of the instance.
	PullTree(ctx context.Context, name, remotePath, localPath string) error

	// PullFile copies a single file out of the instance.
	PullFile(ctx context.Context, name, remotePath, localPath string) error

	// Stop force-stops a running instance.
	Stop(ctx context.Context, name string) error

	// Delete removes a stopped instance.
	Delete(ctx context.Context, name string) error

	// Rename renames an instance. The instance must be stopped.
	Rename(ctx context.Context, name, newName string) error

	// Exists reports whether an instance with this name is present.
	Exists(ctx context.Context, name string) (bool, error)

	// SetCPULimit pins the instance to a core range (e.g. "0-3").
	SetCPULimit(ctx context.Context, name, coreRange string) error
}
