package config

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pkgbench/pkgbench/internal/container"
)

// reservedBuildTarget is the normalized target name whose derived
// instance would collide with the build-stage container.
const reservedBuildTarget = "build"

func checkReservedName(name string) error {
	if container.NormalizeTarget(name) == reservedBuildTarget {
		return fmt.Errorf("target name %q is reserved for the build-stage instance", name)
	}
	return nil
}

// Target is one named build job from the test-definition file.
// Read-only for the duration of a scheduler pass.
type Target struct {
	// Name is unique within a run
	Name string `yaml:"-"`

	// Type is an optional classification tag forwarded to the runner
	Type string `yaml:"type,omitempty"`

	// TimeoutMinutes overrides the runner's default per-target timeout
	TimeoutMinutes int `yaml:"timeout,omitempty"`

	// Depends lists packages installed into the instance before the run
	Depends []string `yaml:"depends,omitempty"`

	// Options are extra per-target options forwarded to the runner
	Options []string `yaml:"options,omitempty"`
}

// Arg renders the target argument passed to the in-container runner,
// embedding type and timeout overrides when present.
func (t Target) Arg() string {
	if t.TimeoutMinutes > 0 {
		return fmt.Sprintf("%s:%s:%d", t.Name, t.Type, t.TimeoutMinutes)
	}
	if t.Type != "" {
		return t.Name + ":" + t.Type
	}
	return t.Name
}

// targetsFile is the on-disk schema of the test-definition file.
type targetsFile struct {
	Targets  map[string]Target `yaml:"targets"`
	Policies *policyOverrides  `yaml:"policies,omitempty"`
}

type policyOverrides struct {
	NoParallel   map[string]string `yaml:"no_parallel,omitempty"`
	FailingTests map[string]string `yaml:"failing_tests,omitempty"`
}

// TargetSet is the parsed test-definition file: the target matrix plus the
// effective skip policies.
type TargetSet struct {
	byName   map[string]Target
	Policies Policies
}

// LoadTargets parses the test-definition file. Parsing is strict: unknown
// keys are rejected rather than silently ignored.
func LoadTargets(path string) (*TargetSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file targetsFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse targets file %s: %w", path, err)
	}

	set := &TargetSet{
		byName:   make(map[string]Target, len(file.Targets)),
		Policies: DefaultPolicies(),
	}
	for name, t := range file.Targets {
		if err := checkReservedName(name); err != nil {
			return nil, err
		}
		t.Name = name
		set.byName[name] = t
	}
	if file.Policies != nil {
		set.Policies.merge(file.Policies.NoParallel, file.Policies.FailingTests)
	}
	return set, nil
}

// All returns every target in the file, in name order.
func (s *TargetSet) All() []Target {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	targets := make([]Target, 0, len(names))
	for _, name := range names {
		targets = append(targets, s.byName[name])
	}
	return targets
}

// Lookup returns the file entry for a target name.
func (s *TargetSet) Lookup(name string) (Target, bool) {
	t, ok := s.byName[name]
	return t, ok
}

// Resolve maps explicit invocation arguments to targets. Each argument may
// embed overrides as name:type:timeoutMinutes; names absent from the file
// are accepted as bare targets (the runner may still know them).
func (s *TargetSet) Resolve(args []string) ([]Target, error) {
	targets := make([]Target, 0, len(args))
	for _, arg := range args {
		t, err := ParseTargetArg(arg)
		if err != nil {
			return nil, err
		}
		if base, ok := s.byName[t.Name]; ok {
			if t.Type == "" {
				t.Type = base.Type
			}
			if t.TimeoutMinutes == 0 {
				t.TimeoutMinutes = base.TimeoutMinutes
			}
			t.Depends = base.Depends
			t.Options = base.Options
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// ParseTargetArg parses an explicit target argument of the form
// name[:type[:timeoutMinutes]].
func ParseTargetArg(arg string) (Target, error) {
	parts := strings.SplitN(arg, ":", 3)
	t := Target{Name: parts[0]}
	if t.Name == "" {
		return Target{}, fmt.Errorf("empty target name in %q", arg)
	}
	if err := checkReservedName(t.Name); err != nil {
		return Target{}, err
	}
	if len(parts) > 1 {
		t.Type = parts[1]
	}
	if len(parts) > 2 {
		minutes, err := strconv.Atoi(parts[2])
		if err != nil || minutes <= 0 {
			return Target{}, fmt.Errorf("invalid timeout in %q: want positive minutes", arg)
		}
		t.TimeoutMinutes = minutes
	}
	return t, nil
}
