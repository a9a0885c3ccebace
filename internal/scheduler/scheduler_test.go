package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgbench/pkgbench/internal/artifacts"
	"github.com/pkgbench/pkgbench/internal/buildstage"
	"github.com/pkgbench/pkgbench/internal/config"
	"github.com/pkgbench/pkgbench/internal/container"
	"github.com/pkgbench/pkgbench/internal/events"
	"github.com/pkgbench/pkgbench/internal/testutil"
)

// fakeInvoker scripts per-target runner outcomes and records invocations.
type fakeInvoker struct {
	statuses     map[string]int // target arg suffix -> status
	noTranscript bool           // skip writing the transcript file
	calls        []fakeInvocation
}

type fakeInvocation struct {
	instance   string
	args       []string
	transcript string
}

func (f *fakeInvoker) RunRecorded(ctx context.Context, instance string, command []string, transcript string) (int, error) {
	f.calls = append(f.calls, fakeInvocation{instance: instance, args: command, transcript: transcript})
	// The recorder normally leaves a transcript behind.
	if !f.noTranscript {
		if err := os.WriteFile(transcript, []byte("run output\n"), 0o644); err != nil {
			return -1, err
		}
	}
	target := command[len(command)-1]
	if f.statuses != nil {
		if status, ok := f.statuses[target]; ok {
			return status, nil
		}
	}
	return 0, nil
}

type fixture struct {
	backend *testutil.FakeBackend
	invoker *fakeInvoker
	bus     *events.Bus
	opts    Options
	deps    Deps
	results string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	results := t.TempDir()
	backend := testutil.NewFakeBackend()
	bus := events.NewBus()
	invoker := &fakeInvoker{}

	// Sentinel absent by default; provisioning commands succeed.
	backend.ExecFunc = func(name string, command []string, opts container.ExecOpts) (int, error) {
		if command[0] == "test" {
			return 1, nil
		}
		return 0, nil
	}

	opts := Options{
		Namespace:   "bench",
		Image:       "pkgbench-base",
		ResultsDir:  results,
		Parallelism: "4",
		SingleLevel: true,
	}
	deps := Deps{
		Backend:   backend,
		Bus:       bus,
		Collector: artifacts.NewCollector(backend, bus, results, filepath.Join(results, "times.csv")),
		Policies:  config.DefaultPolicies(),
		Invoker:   invoker,
	}
	return &fixture{backend: backend, invoker: invoker, bus: bus, opts: opts, deps: deps, results: results}
}

func (f *fixture) run(t *testing.T, targets ...config.Target) *Result {
	t.Helper()
	return New(f.opts, f.deps).Run(context.Background(), targets)
}

func (f *fixture) sentinelPresent() {
	f.backend.ExecFunc = func(name string, command []string, opts container.ExecOpts) (int, error) {
		if command[0] == "test" {
			return 0, nil
		}
		return 0, nil
	}
}

// Scenario A: a clean single-target run provisions, runs with -j 4,
// appends one ledger row, and deletes the container.
func TestRun_SingleTargetSuccess(t *testing.T) {
	f := newFixture(t)
	f.backend.CaptureFunc = func(name string, command []string) (string, error) {
		return "json4s,4,sbt,2024-01-01-120000,421.7\n", nil
	}
	f.deps.Artifact = &buildstage.ArtifactSet{Dir: "/tmp/debs", Version: "0.9.1"}

	res := f.run(t, config.Target{Name: "json4s"})

	require.Len(t, res.Targets, 1)
	tr := res.Targets[0]
	assert.Equal(t, 0, tr.Status)
	assert.Equal(t, StatusDeleted, tr.Final)
	assert.Equal(t, 0, res.WorstStatus)

	calls := strings.Join(f.backend.Calls(), "\n")
	assert.Contains(t, calls, "launch pkgbench-base bench-json4s")
	assert.Contains(t, calls, "delete bench-json4s")
	assert.NotContains(t, calls, "rename")

	require.Len(t, f.invoker.calls, 1)
	args := strings.Join(f.invoker.calls[0].args, " ")
	assert.Contains(t, args, "-j 4")
	assert.True(t, strings.HasSuffix(args, " json4s"))

	ledger, err := os.ReadFile(filepath.Join(f.results, "times.csv"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(ledger), "\n"), "exactly one appended row")
}

// Scenario B: a no-parallel target at parallelism 4 is skipped before any
// backend call references its instance.
func TestRun_NoParallelSkip(t *testing.T) {
	f := newFixture(t)

	res := f.run(t, config.Target{Name: "gcc-10"})

	require.Len(t, res.Targets, 1)
	assert.Equal(t, StatusSkipped, res.Targets[0].Final)
	assert.NotEmpty(t, res.Targets[0].SkipReason)
	assert.Equal(t, 0, res.WorstStatus)
	assert.Empty(t, f.backend.CallsReferencing("bench-gcc-10"))
	assert.Empty(t, f.invoker.calls)
}

func TestRun_NoParallelRunsAtLevelOne(t *testing.T) {
	f := newFixture(t)
	f.opts.Parallelism = "1"

	res := f.run(t, config.Target{Name: "gcc-10"})

	assert.Equal(t, StatusDeleted, res.Targets[0].Final)
	assert.NotEmpty(t, f.backend.CallsReferencing("bench-gcc-10"))
}

func TestRun_FailingTestsSkip(t *testing.T) {
	f := newFixture(t)
	f.opts.RunTests = true

	res := f.run(t, config.Target{Name: "ruby3.1"})

	assert.Equal(t, StatusSkipped, res.Targets[0].Final)
	assert.Empty(t, f.backend.CallsReferencing("bench-ruby3-1"))

	// Without test execution the same target runs.
	f2 := newFixture(t)
	res2 := f2.run(t, config.Target{Name: "ruby3.1"})
	assert.Equal(t, StatusDeleted, res2.Targets[0].Final)
}

// Scenario C: a failed target with the accelerator-started sentinel under
// stop-on-first-failure halts the pass; its container is renamed, never
// deleted, and the queued targets stay pending.
func TestRun_StopOnFirstFailureHalts(t *testing.T) {
	f := newFixture(t)
	f.sentinelPresent()
	f.opts.StopOnFailure = true
	f.invoker.statuses = map[string]int{"cpptest": 1}

	res := f.run(t,
		config.Target{Name: "cpptest"},
		config.Target{Name: "json4s"},
		config.Target{Name: "zlib"},
	)

	require.True(t, res.Halted)
	require.Len(t, res.Targets, 3)

	first := res.Targets[0]
	assert.Equal(t, 1, first.Status)
	assert.Equal(t, StatusPreserved, first.Final)
	assert.True(t, first.AccelStarted)
	assert.Contains(t, first.Instance, "bench-cpptest-FAILED-")

	calls := strings.Join(f.backend.Calls(), "\n")
	assert.Contains(t, calls, "rename bench-cpptest")
	assert.NotContains(t, calls, "delete bench-cpptest")

	for _, rest := range res.Targets[1:] {
		assert.Equal(t, StatusPending, rest.Final)
		assert.Empty(t, f.backend.CallsReferencing("bench-"+rest.Target))
	}
	assert.Equal(t, 1, res.WorstStatus)
}

func TestRun_FailureWithoutSentinelDoesNotHalt(t *testing.T) {
	f := newFixture(t)
	f.opts.StopOnFailure = true
	f.invoker.statuses = map[string]int{"cpptest": 1}

	res := f.run(t,
		config.Target{Name: "cpptest"},
		config.Target{Name: "json4s"},
	)

	assert.False(t, res.Halted)
	require.Len(t, res.Targets, 2)
	// Failed but the accelerator never started: container deleted.
	assert.Equal(t, StatusDeleted, res.Targets[0].Final)
	assert.Equal(t, StatusDeleted, res.Targets[1].Final)
	assert.Equal(t, 1, res.WorstStatus)
}

func TestRun_WorstStatusAggregation(t *testing.T) {
	f := newFixture(t)
	f.invoker.statuses = map[string]int{"c": 2, "e": 5}

	res := f.run(t,
		config.Target{Name: "a"},
		config.Target{Name: "b"},
		config.Target{Name: "c"},
		config.Target{Name: "d"},
		config.Target{Name: "e"},
	)

	assert.False(t, res.Halted)
	assert.Equal(t, 5, res.WorstStatus)
	require.Len(t, res.Targets, 5)
	for _, tr := range res.Targets {
		assert.True(t, tr.Final.IsTerminal())
	}
}

// Disposal invariant: exactly one of {deleted, renamed} per completed
// target, never both, never neither.
func TestRun_DisposalInvariant(t *testing.T) {
	f := newFixture(t)
	f.sentinelPresent()
	f.invoker.statuses = map[string]int{"bad": 1}

	res := f.run(t,
		config.Target{Name: "good"},
		config.Target{Name: "bad"},
	)

	for _, tr := range res.Targets {
		deleted := 0
		renamed := 0
		for _, c := range f.backend.CallsReferencing("bench-" + tr.Target) {
			if strings.HasPrefix(c, "delete ") {
				deleted++
			}
			if strings.HasPrefix(c, "rename ") {
				renamed++
			}
		}
		assert.Equal(t, 1, deleted+renamed, "target %s: exactly one disposal action", tr.Target)
	}
}

func TestRun_ProvisioningFailureAbortsTargetOnly(t *testing.T) {
	f := newFixture(t)
	f.backend.ExecFunc = func(name string, command []string, opts container.ExecOpts) (int, error) {
		if command[0] == "apt-get" && name == "bench-flaky" {
			return 100, nil
		}
		if command[0] == "test" {
			return 1, nil
		}
		return 0, nil
	}

	res := f.run(t,
		config.Target{Name: "flaky", Depends: []string{"libfoo-dev"}},
		config.Target{Name: "json4s"},
	)

	require.Len(t, res.Targets, 2)
	assert.Equal(t, 1, res.Targets[0].Status)
	assert.Equal(t, StatusDeleted, res.Targets[0].Final)
	assert.False(t, res.Targets[0].AccelStarted)

	// The run continues: the second target completes normally.
	assert.Equal(t, 0, res.Targets[1].Status)
	assert.Equal(t, 1, res.WorstStatus)
	// No runner invocation for the aborted target
	require.Len(t, f.invoker.calls, 1)
	assert.Equal(t, "bench-json4s", f.invoker.calls[0].instance)
}

func TestRun_StaleInstanceReplaced(t *testing.T) {
	f := newFixture(t)
	f.backend.Instances["bench-json4s"] = true

	f.run(t, config.Target{Name: "json4s"})

	calls := f.backend.Calls()
	stale := -1
	launch := -1
	for i, c := range calls {
		if c == "delete bench-json4s" && stale == -1 {
			stale = i
		}
		if strings.HasPrefix(c, "launch") && launch == -1 {
			launch = i
		}
	}
	require.NotEqual(t, -1, stale)
	require.NotEqual(t, -1, launch)
	assert.Less(t, stale, launch, "stale delete must precede launch")
}

func TestRun_DebugSkipsMeasurement(t *testing.T) {
	f := newFixture(t)
	f.opts.Debug = true
	captured := false
	f.backend.CaptureFunc = func(name string, command []string) (string, error) {
		captured = true
		return "row\n", nil
	}

	f.run(t, config.Target{Name: "json4s"})

	assert.False(t, captured, "debug runs must not read the ledger")
	_, err := os.Stat(filepath.Join(f.results, "times.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_CPUPinning(t *testing.T) {
	f := newFixture(t)
	f.opts.Parallelism = "4"
	f.opts.SingleLevel = true
	f.run(t, config.Target{Name: "json4s"})
	assert.Contains(t, f.backend.Calls(), "cpu-limit bench-json4s 0-3")
}

func TestRun_NoPinningForHostCoreCount(t *testing.T) {
	f := newFixture(t)
	f.opts.Parallelism = "max"
	f.run(t, config.Target{Name: "json4s"})
	for _, c := range f.backend.Calls() {
		assert.NotContains(t, c, "cpu-limit")
	}
}

func TestRun_NoPinningForMultiLevelRuns(t *testing.T) {
	f := newFixture(t)
	f.opts.Parallelism = "4"
	f.opts.SingleLevel = false
	f.run(t, config.Target{Name: "json4s"})
	for _, c := range f.backend.Calls() {
		assert.NotContains(t, c, "cpu-limit")
	}
}

func TestRun_PreservedTranscriptKept(t *testing.T) {
	f := newFixture(t)
	f.sentinelPresent()
	f.invoker.statuses = map[string]int{"bad": 1}

	res := f.run(t, config.Target{Name: "bad"})

	tr := res.Targets[0]
	require.Equal(t, StatusPreserved, tr.Final)
	require.NotEmpty(t, tr.Transcript)
	assert.Contains(t, tr.Transcript, "-FAILED-")
	_, err := os.Stat(tr.Transcript)
	assert.NoError(t, err, "preserved transcript must exist on disk")
}

func TestRun_SuccessTranscriptDeletedUnlessKept(t *testing.T) {
	f := newFixture(t)
	res := f.run(t, config.Target{Name: "good"})
	assert.Empty(t, res.Targets[0].Transcript)

	f2 := newFixture(t)
	f2.opts.KeepLogs = true
	res2 := f2.run(t, config.Target{Name: "good"})
	require.NotEmpty(t, res2.Targets[0].Transcript)
	_, err := os.Stat(res2.Targets[0].Transcript)
	assert.NoError(t, err)
}

func TestRun_ReportsPulledWhenRequested(t *testing.T) {
	f := newFixture(t)
	f.opts.Reports = true

	f.run(t, config.Target{Name: "json4s"})

	pulls := 0
	for _, c := range f.backend.Calls() {
		if strings.HasPrefix(c, "pull-file bench-json4s /root/bench/report-") {
			pulls++
		}
	}
	assert.Equal(t, 2, pulls, "up to two reports are attempted")
}

func TestRun_OptionsForwardedVerbatim(t *testing.T) {
	f := newFixture(t)
	f.opts.Debug = true
	f.opts.Diffoscope = true
	f.opts.CacheTool = config.CacheCcache
	f.opts.ExtraOpts = [3]string{"--cache-dir=/var/accel", "", "--log-level=2"}
	f.opts.VersionSuffix = "asan"
	f.opts.MeasureCache = true
	f.opts.TimeFormat = "%F-%H%M%S"
	f.opts.RunTests = true
	f.opts.DebPrep = true
	f.opts.TargetsFilePath = "/host/targets.yaml"

	f.run(t, config.Target{Name: "json4s", Type: "sbt", TimeoutMinutes: 90, Options: []string{"--no-doc"}})

	require.Len(t, f.invoker.calls, 1)
	args := strings.Join(f.invoker.calls[0].args, " ")
	assert.Contains(t, args, "--debug")
	assert.Contains(t, args, "--diffoscope")
	assert.Contains(t, args, "--ccache")
	assert.Contains(t, args, "--accel-opt1 --cache-dir=/var/accel")
	assert.Contains(t, args, "--accel-opt3 --log-level=2")
	assert.NotContains(t, args, "--accel-opt2")
	assert.Contains(t, args, "--version-suffix asan")
	assert.Contains(t, args, "--measure-cache")
	assert.Contains(t, args, "--time-format %F-%H%M%S")
	assert.Contains(t, args, "--run-tests")
	assert.Contains(t, args, "--deb-prep")
	assert.Contains(t, args, "--targets-file /root/targets.yaml")
	assert.Contains(t, args, "--no-doc")
	assert.True(t, strings.HasSuffix(args, "json4s:sbt:90"))
}

func TestRun_InstanceNamesDeterministic(t *testing.T) {
	f := newFixture(t)
	f.run(t, config.Target{Name: "json4s"})
	first := f.backend.CallsReferencing("bench-json4s")

	f2 := newFixture(t)
	f2.run(t, config.Target{Name: "json4s"})
	second := f2.backend.CallsReferencing("bench-json4s")

	assert.Equal(t, first, second, "same target must reuse the same derived name")
}

// A transcript-cleanup error on a succeeded target must not be reported
// as a failure; it rides along on the terminal disposal event.
func TestRun_DisposalErrorDoesNotEmitFailure(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f.deps.Clock = func() time.Time { return base }
	f.invoker.noTranscript = true

	// Block transcript removal: a non-empty directory at the transcript
	// path makes the cleanup fail without failing the run itself.
	tpath := artifacts.TranscriptPath(f.results, "good", base.Format("20060102T150405"))
	require.NoError(t, os.MkdirAll(filepath.Join(tpath, "blocker"), 0o755))

	var seen []events.Event
	f.bus.Subscribe(func(e events.Event) { seen = append(seen, e) })

	res := f.run(t, config.Target{Name: "good"})

	require.Len(t, res.Targets, 1)
	assert.Equal(t, 0, res.Targets[0].Status)
	assert.Equal(t, StatusDeleted, res.Targets[0].Final)

	var deleted *events.Event
	for i := range seen {
		if seen[i].Type == events.TargetFailed {
			t.Errorf("unexpected target.failed event: %+v", seen[i])
		}
		if seen[i].Type == events.TargetDeleted {
			deleted = &seen[i]
		}
	}
	require.NotNil(t, deleted)
	assert.NotEmpty(t, deleted.Error, "cleanup error must surface on the terminal event")
}

func TestTransition_TracksTimestamps(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t)
	f.deps.Clock = func() time.Time { return base }

	res := f.run(t, config.Target{Name: "json4s"})
	assert.Equal(t, time.Duration(0), res.Targets[0].Duration)
}
