package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/pkgbench/pkgbench/internal/container"
)

// FakeBackend is an in-memory container.Backend that records every call
// and lets tests script exec outcomes and operation failures.
type FakeBackend struct {
	mu    sync.Mutex
	calls []string

	// Instances tracks which instance names currently exist
	Instances map[string]bool

	// ExecFunc, when set, decides the outcome of Exec calls
	ExecFunc func(name string, command []string, opts container.ExecOpts) (int, error)

	// CaptureFunc, when set, decides the outcome of ExecCapture calls
	CaptureFunc func(name string, command []string) (string, error)

	// OpErr maps an operation verb ("launch", "delete", ...) to a forced error
	OpErr map[string]error
}

// NewFakeBackend creates an empty fake backend.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{
		Instances: make(map[string]bool),
		OpErr:     make(map[string]error),
	}
}

func (f *FakeBackend) record(parts ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, strings.Join(parts, " "))
}

// Calls returns every recorded call in order.
func (f *FakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsReferencing returns recorded calls whose text mentions name.
func (f *FakeBackend) CallsReferencing(name string) []string {
	var out []string
	for _, c := range f.Calls() {
		if strings.Contains(c, name) {
			out = append(out, c)
		}
	}
	return out
}

func (f *FakeBackend) Launch(ctx context.Context, image, name string) error {
	f.record("launch", image, name)
	if err := f.OpErr["launch"]; err != nil {
		return err
	}
	f.mu.Lock()
	f.Instances[name] = true
	f.mu.Unlock()
	return nil
}

func (f *FakeBackend) Exec(ctx context.Context, name string, command []string, opts container.ExecOpts) (int, error) {
	f.record(append([]string{"exec", name}, command...)...)
	if err := f.OpErr["exec"]; err != nil {
		return -1, err
	}
	if f.ExecFunc != nil {
		return f.ExecFunc(name, command, opts)
	}
	return 0, nil
}

func (f *FakeBackend) ExecCapture(ctx context.Context, name string, command []string) (string, error) {
	f.record(append([]string{"exec-capture", name}, command...)...)
	if err := f.OpErr["exec-capture"]; err != nil {
		return "", err
	}
	if f.CaptureFunc != nil {
		return f.CaptureFunc(name, command)
	}
	return "", nil
}

func (f *FakeBackend) PushTree(ctx context.Context, name, localPath, remotePath string) error {
	f.record("push", name, localPath, remotePath)
	return f.OpErr["push"]
}

func (f *FakeBackend) PushFile(ctx context.Context, name, localPath, remotePath string) error {
	f.record("push-file", name, localPath, remotePath)
	return f.OpErr["push-file"]
}

func (f *FakeBackend) PullTree(ctx context.Context, name, remotePath, localPath string) error {
	f.record("pull-tree", name, remotePath, localPath)
	return f.OpErr["pull-tree"]
}

func (f *FakeBackend) PullFile(ctx context.Context, name, remotePath, localPath string) error {
	f.record("pull-file", name, remotePath, localPath)
	return f.OpErr["pull-file"]
}

func (f *FakeBackend) Stop(ctx context.Context, name string) error {
	f.record("stop", name)
	return f.OpErr["stop"]
}

func (f *FakeBackend) Delete(ctx context.Context, name string) error {
	f.record("delete", name)
	if err := f.OpErr["delete"]; err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.Instances, name)
	f.mu.Unlock()
	return nil
}

func (f *FakeBackend) Rename(ctx context.Context, name, newName string) error {
	f.record("rename", name, newName)
	if err := f.OpErr["rename"]; err != nil {
		return err
	}
	f.mu.Lock()
	if f.Instances[name] {
		delete(f.Instances, name)
		f.Instances[newName] = true
	}
	f.mu.Unlock()
	return nil
}

func (f *FakeBackend) Exists(ctx context.Context, name string) (bool, error) {
	f.record("exists", name)
	if err := f.OpErr["exists"]; err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Instances[name], nil
}

func (f *FakeBackend) SetCPULimit(ctx context.Context, name, coreRange string) error {
	f.record("cpu-limit", name, coreRange)
	return f.OpErr["cpu-limit"]
}

// Verify FakeBackend implements Backend interface
var _ container.Backend = (*FakeBackend)(nil)
