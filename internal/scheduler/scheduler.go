package scheduler

import (
	"context"
	"time"

	"github.com/pkgbench/pkgbench/internal/artifacts"
	"github.com/pkgbench/pkgbench/internal/buildstage"
	"github.com/pkgbench/pkgbench/internal/config"
	"github.com/pkgbench/pkgbench/internal/container"
	"github.com/pkgbench/pkgbench/internal/events"
)

// stampLayout names transcripts, reports and preserved instances.
const stampLayout = "20060102T150405"

// Options holds the per-pass run options. Most are forwarded verbatim to
// the in-container runner.
type Options struct {
	Namespace       string
	Image           string
	Workspace       string // host workspace tree pushed into every instance
	TargetsFilePath string // host targets file pushed beside the runner
	ResultsDir      string

	Debug         bool
	Parallelism   string // single value for this pass ("4", "max", ...)
	SingleLevel   bool   // the run's parallelism list had exactly one entry
	KeepLogs      bool
	StopOnFailure bool
	Diffoscope    bool
	Reports       bool
	CacheTool     config.CacheTool
	ExtraOpts     [3]string
	VersionSuffix string
	MeasureCache  bool
	TimeFormat    string
	RunTests      bool
	DebPrep       bool
}

// Deps are the scheduler's collaborators, injected so tests can fake the
// backend and recorder.
type Deps struct {
	Backend   container.Backend
	Bus       *events.Bus
	Collector *artifacts.Collector
	Policies  config.Policies
	Artifact  *buildstage.ArtifactSet // nil in cache-only mode
	Invoker   Invoker
	Clock     func() time.Time
}

// TargetResult records one target's outcome.
type TargetResult struct {
	Target       string
	Status       int
	Final        TargetStatus
	SkipReason   string
	AccelStarted bool
	Transcript   string // final transcript path, "" if deleted
	Instance     string // final instance name (renamed when preserved)
	Duration     time.Duration
}

// Result is one full scheduler pass over the target matrix.
type Result struct {
	Targets     []TargetResult
	WorstStatus int
	Halted      bool
}

// Scheduler sequences the target matrix strictly one target at a time:
// provision, run, measure, dispose, then the next target.
type Scheduler struct {
	opts Options
	deps Deps
}

// New creates a Scheduler.
func New(opts Options, deps Deps) *Scheduler {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Scheduler{opts: opts, deps: deps}
}

// Run executes one pass over the targets. The returned WorstStatus is the
// maximum per-target status, so a single failure stays visible even when
// later targets succeed. Under stop-on-first-failure, a failed target
// whose accelerator had started halts the pass; remaining targets stay
// pending and never touch the backend.
func (s *Scheduler) Run(ctx context.Context, targets []config.Target) *Result {
	res := &Result{}
	for i, t := range targets {
		tr := s.runTarget(ctx, t)
		res.Targets = append(res.Targets, tr)
		if tr.Status > res.WorstStatus {
			res.WorstStatus = tr.Status
		}

		if s.opts.StopOnFailure && tr.Status != 0 && tr.AccelStarted {
			res.Halted = true
			for _, rest := range targets[i+1:] {
				res.Targets = append(res.Targets, TargetResult{
					Target: rest.Name,
					Final:  StatusPending,
				})
			}
			break
		}
	}
	return res
}

func (s *Scheduler) runTarget(ctx context.Context, t config.Target) TargetResult {
	start := s.deps.Clock()
	st := NewTargetState(t.Name)
	tr := TargetResult{Target: t.Name}

	if reason, skip := s.deps.Policies.SkipNoParallel(t.Name, s.opts.Parallelism); skip {
		return s.skip(st, tr, reason)
	}
	if reason, skip := s.deps.Policies.SkipFailingTests(t.Name, s.opts.RunTests); skip {
		return s.skip(st, tr, reason)
	}

	instance := container.InstanceName(s.opts.Namespace, t.Name)
	tr.Instance = instance
	s.transition(st, StatusProvisioning)
	s.deps.Bus.Emit(events.NewEvent(events.TargetProvisioning, t.Name).WithInstance(instance))

	if err := s.provision(ctx, t, instance); err != nil {
		// Provisioning failure aborts this target only: clean up and
		// move on with a non-zero status.
		s.deps.Bus.Emit(events.NewEvent(events.TargetFailed, t.Name).WithInstance(instance).WithError(err))
		_ = s.deps.Backend.Stop(ctx, instance)
		_ = s.deps.Backend.Delete(ctx, instance)
		st.Error = err
		s.transition(st, StatusDisposing)
		s.transition(st, StatusDeleted)
		tr.Status = 1
		tr.Final = StatusDeleted
		tr.Duration = s.deps.Clock().Sub(start)
		return tr
	}

	s.transition(st, StatusRunning)
	stamp := s.deps.Clock().Format(stampLayout)
	transcript := artifacts.TranscriptPath(s.opts.ResultsDir, t.Name, stamp)
	s.deps.Bus.Emit(events.NewEvent(events.TargetRunning, t.Name).WithInstance(instance))

	raw, err := s.deps.Invoker.RunRecorded(ctx, instance, s.runnerArgs(t), transcript)
	if err != nil {
		raw = -1
	}
	status := TranslateExitStatus(raw)
	failed := status != 0
	tr.Status = status
	st.ExitStatus = status
	if failed {
		s.transition(st, StatusFailed)
		s.deps.Bus.Emit(events.NewEvent(events.TargetFailed, t.Name).WithInstance(instance).WithStatus(status))
	} else {
		s.transition(st, StatusSucceeded)
		s.deps.Bus.Emit(events.NewEvent(events.TargetSucceeded, t.Name).WithInstance(instance).WithStatus(status))
	}

	// Debug runs are for poking at the setup, not for measuring.
	if !s.opts.Debug {
		_ = s.deps.Collector.AppendLedger(ctx, instance, t.Name)
		if s.opts.Reports {
			s.deps.Collector.PullReports(ctx, instance, t.Name, stamp, failed)
		}
	}

	s.transition(st, StatusDisposing)
	// The sentinel must be read before the instance is stopped.
	started := s.deps.Collector.AcceleratorStarted(ctx, instance)
	tr.AccelStarted = started

	preserve := failed && started
	tr.Final, tr.Transcript, tr.Instance = s.dispose(ctx, t.Name, instance, transcript, stamp, preserve)
	s.transition(st, tr.Final)
	tr.Duration = s.deps.Clock().Sub(start)
	return tr
}

func (s *Scheduler) skip(st *TargetState, tr TargetResult, reason string) TargetResult {
	s.transition(st, StatusSkipped)
	st.SkipReason = reason
	tr.Final = StatusSkipped
	tr.SkipReason = reason
	s.deps.Bus.Emit(events.NewEvent(events.TargetSkipped, tr.Target).WithPayload(reason))
	return tr
}

// dispose enforces the disposal invariant: after any completed target,
// exactly one of {instance deleted, instance renamed with the failure
// suffix} holds. Disposal mishaps (transcript cleanup, rename, delete)
// ride along on the terminal event instead of emitting target.failed —
// the target's outcome was already decided by its run.
func (s *Scheduler) dispose(ctx context.Context, target, instance, transcript, stamp string, preserve bool) (TargetStatus, string, string) {
	_ = s.deps.Backend.Stop(ctx, instance) // may already be stopped

	tpath, disposeErr := artifacts.FinishTranscript(transcript, stamp, preserve, s.opts.KeepLogs)

	if preserve {
		renamed := instance + artifacts.FailedSuffix(stamp)
		final := instance
		if err := s.deps.Backend.Rename(ctx, instance, renamed); err != nil {
			if disposeErr == nil {
				disposeErr = err
			}
		} else {
			final = renamed
		}
		s.deps.Bus.Emit(events.NewEvent(events.TargetPreserved, target).WithInstance(final).WithError(disposeErr))
		return StatusPreserved, tpath, final
	}

	if err := s.deps.Backend.Delete(ctx, instance); err != nil && disposeErr == nil {
		disposeErr = err
	}
	s.deps.Bus.Emit(events.NewEvent(events.TargetDeleted, target).WithInstance(instance).WithError(disposeErr))
	return StatusDeleted, tpath, instance
}

// transition advances the state machine, ignoring invalid transitions so
// a bug here can never take down a run mid-measurement.
func (s *Scheduler) transition(st *TargetState, to TargetStatus) {
	if !CanTransition(st.Status, to) {
		return
	}
	st.Status = to
	now := s.deps.Clock()
	switch to {
	case StatusRunning:
		st.StartedAt = &now
	case StatusSkipped, StatusDeleted, StatusPreserved:
		st.CompletedAt = &now
	}
}
