package config

import (
	"path/filepath"
	"strings"
	"testing"
)

func writeTargets(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.yaml")
	writeFile(t, path, content)
	return path
}

func TestLoadTargets(t *testing.T) {
	path := writeTargets(t, `
targets:
  json4s:
    type: sbt
    depends: [openjdk-17-jdk-headless, sbt]
  gcc-10:
    timeout: 180
    options: ["--without-doc"]
`)

	set, err := LoadTargets(path)
	if err != nil {
		t.Fatalf("LoadTargets failed: %v", err)
	}

	all := set.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(all))
	}
	// All() is name-ordered
	if all[0].Name != "gcc-10" || all[1].Name != "json4s" {
		t.Errorf("unexpected order: %s, %s", all[0].Name, all[1].Name)
	}

	json4s, ok := set.Lookup("json4s")
	if !ok {
		t.Fatal("expected json4s to be present")
	}
	if json4s.Type != "sbt" {
		t.Errorf("expected type sbt, got %q", json4s.Type)
	}
	if len(json4s.Depends) != 2 {
		t.Errorf("expected 2 depends, got %v", json4s.Depends)
	}

	gcc, _ := set.Lookup("gcc-10")
	if gcc.TimeoutMinutes != 180 {
		t.Errorf("expected timeout 180, got %d", gcc.TimeoutMinutes)
	}
}

func TestLoadTargets_RejectsUnknownKeys(t *testing.T) {
	path := writeTargets(t, `
targets:
  json4s:
    type: sbt
    dependz: [typo]
`)

	_, err := LoadTargets(path)
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "dependz") && !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected unknown-key error, got: %v", err)
	}
}

func TestLoadTargets_RejectsReservedBuildName(t *testing.T) {
	// "build" would derive the same instance name as the build-stage
	// container; normalization makes "Build" and "build." collide too.
	for _, name := range []string{"build", "Build", "build."} {
		path := writeTargets(t, "targets:\n  \""+name+"\": {}\n")
		_, err := LoadTargets(path)
		if err == nil {
			t.Errorf("expected reserved-name error for %q", name)
			continue
		}
		if !strings.Contains(err.Error(), "reserved") {
			t.Errorf("unexpected error for %q: %v", name, err)
		}
	}
}

func TestParseTargetArg_RejectsReservedBuildName(t *testing.T) {
	for _, arg := range []string{"build", "BUILD", "build:c:30"} {
		if _, err := ParseTargetArg(arg); err == nil {
			t.Errorf("expected reserved-name error for %q", arg)
		}
	}
	// Names that merely contain "build" stay legal
	if _, err := ParseTargetArg("debuild-helper"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadTargets_PolicyOverrides(t *testing.T) {
	path := writeTargets(t, `
targets:
  json4s: {}
policies:
  no_parallel:
    mariadb-10.5: "parallel build races in storage engine codegen"
`)

	set, err := LoadTargets(path)
	if err != nil {
		t.Fatalf("LoadTargets failed: %v", err)
	}

	// Built-ins survive the merge
	if _, ok := set.Policies.NoParallel["gcc-10"]; !ok {
		t.Error("expected built-in gcc-10 policy to survive merge")
	}
	reason, ok := set.Policies.NoParallel["mariadb-10.5"]
	if !ok {
		t.Fatal("expected merged policy entry")
	}
	if !strings.Contains(reason, "races") {
		t.Errorf("unexpected reason: %q", reason)
	}
}

func TestResolve_AppliesFileValuesAndOverrides(t *testing.T) {
	path := writeTargets(t, `
targets:
  json4s:
    type: sbt
    timeout: 60
    depends: [sbt]
`)
	set, err := LoadTargets(path)
	if err != nil {
		t.Fatalf("LoadTargets failed: %v", err)
	}

	targets, err := set.Resolve([]string{"json4s::90", "unknown-pkg"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if targets[0].Type != "sbt" {
		t.Errorf("expected file type to fill empty override, got %q", targets[0].Type)
	}
	if targets[0].TimeoutMinutes != 90 {
		t.Errorf("expected explicit timeout 90, got %d", targets[0].TimeoutMinutes)
	}
	if len(targets[0].Depends) != 1 {
		t.Errorf("expected depends from file, got %v", targets[0].Depends)
	}

	// Unknown names are accepted as bare targets
	if targets[1].Name != "unknown-pkg" || targets[1].Type != "" {
		t.Errorf("unexpected bare target: %+v", targets[1])
	}
}

func TestParseTargetArg(t *testing.T) {
	cases := []struct {
		arg     string
		want    Target
		wantErr bool
	}{
		{arg: "json4s", want: Target{Name: "json4s"}},
		{arg: "json4s:sbt", want: Target{Name: "json4s", Type: "sbt"}},
		{arg: "json4s:sbt:90", want: Target{Name: "json4s", Type: "sbt", TimeoutMinutes: 90}},
		{arg: "json4s::30", want: Target{Name: "json4s", TimeoutMinutes: 30}},
		{arg: ":sbt", wantErr: true},
		{arg: "json4s:sbt:soon", wantErr: true},
		{arg: "json4s:sbt:-1", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseTargetArg(tc.arg)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseTargetArg(%q): expected error", tc.arg)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTargetArg(%q): unexpected error %v", tc.arg, err)
			continue
		}
		if got.Name != tc.want.Name || got.Type != tc.want.Type || got.TimeoutMinutes != tc.want.TimeoutMinutes {
			t.Errorf("ParseTargetArg(%q) = %+v, want %+v", tc.arg, got, tc.want)
		}
	}
}

func TestTargetArg(t *testing.T) {
	if got := (Target{Name: "json4s"}).Arg(); got != "json4s" {
		t.Errorf("Arg() = %q", got)
	}
	if got := (Target{Name: "json4s", Type: "sbt"}).Arg(); got != "json4s:sbt" {
		t.Errorf("Arg() = %q", got)
	}
	if got := (Target{Name: "json4s", TimeoutMinutes: 90}).Arg(); got != "json4s::90" {
		t.Errorf("Arg() = %q", got)
	}
	if got := (Target{Name: "json4s", Type: "sbt", TimeoutMinutes: 90}).Arg(); got != "json4s:sbt:90" {
		t.Errorf("Arg() = %q", got)
	}
}
