package buildstage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkgbench/pkgbench/internal/container"
	"github.com/pkgbench/pkgbench/internal/events"
	"github.com/pkgbench/pkgbench/internal/git"
)

const (
	// remoteHome is where the source tree is pushed inside the build instance
	remoteHome = "/root"

	// remoteDebDir is where produced packages are staged before the pull
	remoteDebDir = "/root/debs"

	changelogDateLayout = "Mon, 02 Jan 2006 15:04:05 -0700"
)

// sanitizerHook is appended to the packaging rules when instrumentation is
// requested. The bundled allocator is incompatible with ASan's interceptors
// and has to go.
const sanitizerHook = `
export DEB_BUILD_MAINT_OPTIONS += sanitize=+address,+undefined
override_dh_auto_configure:
	dh_auto_configure -- --without-bundled-allocator
`

// Options configures the one-time accelerator build.
type Options struct {
	// SourceDir is the host path of the accelerator's source tree
	SourceDir string

	// Image is the template image for the build instance
	Image string

	// Namespace prefixes the build instance name
	Namespace string

	// Compiler substitutes an alternate toolchain when non-empty (e.g. "clang-17")
	Compiler string

	// Sanitize patches the build recipe for address/undefined instrumentation
	Sanitize bool

	// VersionSuffix is appended to the derived package version
	VersionSuffix string
}

// Builder produces the Build Artifact Set once per run.
type Builder struct {
	backend container.Backend
	bus     *events.Bus
}

// New creates a Builder.
func New(backend container.Backend, bus *events.Bus) *Builder {
	return &Builder{backend: backend, bus: bus}
}

// Build compiles the accelerator from source inside a dedicated instance
// and pulls the produced packages into a fresh host temp directory.
// On failure it returns no artifact set; the caller must treat that as
// fatal unless running in cache-only mode.
func (b *Builder) Build(ctx context.Context, opts Options) (*ArtifactSet, error) {
	b.bus.Emit(events.NewEvent(events.BuildStarted, ""))

	artifact, err := b.build(ctx, opts)
	if err != nil {
		b.bus.Emit(events.NewEvent(events.BuildFailed, "").WithError(err))
		return nil, err
	}
	b.bus.Emit(events.NewEvent(events.BuildCompleted, "").WithPayload(artifact.Version))
	return artifact, nil
}

func (b *Builder) build(ctx context.Context, opts Options) (*ArtifactSet, error) {
	name := container.InstanceName(opts.Namespace, "build")

	if err := b.replaceStale(ctx, name); err != nil {
		return nil, err
	}
	if err := b.backend.Launch(ctx, opts.Image, name); err != nil {
		return nil, fmt.Errorf("launch build instance: %w", err)
	}
	defer func() {
		// Best effort: the build instance is never preserved.
		_ = b.backend.Stop(ctx, name)
		_ = b.backend.Delete(ctx, name)
	}()

	if err := b.backend.PushTree(ctx, name, opts.SourceDir, remoteHome); err != nil {
		return nil, fmt.Errorf("push source tree: %w", err)
	}
	srcPath := remoteHome + "/" + filepath.Base(opts.SourceDir)

	if err := b.execChecked(ctx, name, []string{"apt-get", "-q", "update"}, container.ExecOpts{}); err != nil {
		return nil, err
	}
	if opts.Compiler != "" {
		if err := b.execChecked(ctx, name, []string{"apt-get", "-qy", "install", opts.Compiler}, container.ExecOpts{}); err != nil {
			return nil, err
		}
	}
	if err := b.execChecked(ctx, name, []string{"apt-get", "-qy", "build-dep", "."}, container.ExecOpts{Dir: srcPath}); err != nil {
		return nil, err
	}

	version, err := b.deriveVersion(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := b.stampChangelog(ctx, name, srcPath, version, opts); err != nil {
		return nil, err
	}
	b.bus.Emit(events.NewEvent(events.BuildPackaged, "").WithPayload(version))

	if opts.Sanitize {
		appendHook := "cat >> debian/rules << 'EOF'" + sanitizerHook + "EOF\n"
		if err := b.execChecked(ctx, name, []string{"sh", "-c", appendHook}, container.ExecOpts{Dir: srcPath}); err != nil {
			return nil, fmt.Errorf("apply sanitizer hook: %w", err)
		}
	}

	buildEnv := map[string]string{}
	if opts.Compiler != "" {
		buildEnv["CC"] = opts.Compiler
		buildEnv["CXX"] = strings.Replace(opts.Compiler, "clang", "clang++", 1)
	}
	if err := b.execChecked(ctx, name,
		[]string{"dpkg-buildpackage", "-us", "-uc", "-b"},
		container.ExecOpts{Dir: srcPath, Env: buildEnv}); err != nil {
		return nil, err
	}

	stage := fmt.Sprintf("mkdir -p %s && mv %s/*.deb %s/", remoteDebDir, remoteHome, remoteDebDir)
	if err := b.execChecked(ctx, name, []string{"sh", "-c", stage}, container.ExecOpts{}); err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp("", "pkgbench-artifacts-")
	if err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	if err := b.backend.PullTree(ctx, name, remoteDebDir, tmp); err != nil {
		os.RemoveAll(tmp)
		return nil, fmt.Errorf("pull packages: %w", err)
	}

	return &ArtifactSet{
		Dir:     filepath.Join(tmp, filepath.Base(remoteDebDir)),
		Version: version,
		root:    tmp,
	}, nil
}

// replaceStale removes a leftover same-named instance from a previous run.
func (b *Builder) replaceStale(ctx context.Context, name string) error {
	exists, err := b.backend.Exists(ctx, name)
	if err != nil {
		return fmt.Errorf("probe stale build instance: %w", err)
	}
	if !exists {
		return nil
	}
	// Stop may fail if the instance is already stopped.
	_ = b.backend.Stop(ctx, name)
	if err := b.backend.Delete(ctx, name); err != nil {
		return fmt.Errorf("delete stale build instance: %w", err)
	}
	return nil
}

// deriveVersion combines the abbreviated describe output of the source
// tree with the caller-supplied suffix.
func (b *Builder) deriveVersion(ctx context.Context, opts Options) (string, error) {
	describe, err := git.Describe(ctx, opts.SourceDir)
	if err != nil {
		return "", fmt.Errorf("derive version: %w", err)
	}
	version := strings.TrimPrefix(describe, "v")
	if opts.VersionSuffix != "" {
		version += "+" + opts.VersionSuffix
	}
	return version, nil
}

// stampChangelog rewrites the package changelog so the produced artifacts
// carry the derived version and the source commit's authorship timestamp.
func (b *Builder) stampChangelog(ctx context.Context, name, srcPath, version string, opts Options) error {
	ts, err := git.CommitTimestamp(ctx, opts.SourceDir)
	if err != nil {
		return fmt.Errorf("commit timestamp: %w", err)
	}

	env := container.ExecOpts{
		Dir: srcPath,
		Env: map[string]string{
			"DEBEMAIL":    "pkgbench@localhost",
			"DEBFULLNAME": "pkgbench",
		},
	}
	if err := b.execChecked(ctx, name, []string{
		"debchange", "--newversion", version, "--distribution", "UNRELEASED",
		"--force-bad-version", "benchmark build",
	}, env); err != nil {
		return err
	}

	fixDate := fmt.Sprintf(`sed -i "s/^ -- \(.*>\).*/ -- \1  %s/" debian/changelog`,
		ts.Format(changelogDateLayout))
	return b.execChecked(ctx, name, []string{"sh", "-c", fixDate}, container.ExecOpts{Dir: srcPath})
}

// execChecked runs a command in the instance and fails on non-zero status.
func (b *Builder) execChecked(ctx context.Context, name string, command []string, opts container.ExecOpts) error {
	status, err := b.backend.Exec(ctx, name, command, opts)
	if err != nil {
		return fmt.Errorf("exec %s: %w", command[0], err)
	}
	if status != 0 {
		return fmt.Errorf("%s exited %d", command[0], status)
	}
	return nil
}
