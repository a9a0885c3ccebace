package container

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ScriptRunner invokes commands inside an instance under script(1) so
// their combined output is preserved byte-for-byte in a host transcript.
type ScriptRunner struct {
	tool string
}

// NewScriptRunner creates a ScriptRunner for the given backend tool.
func NewScriptRunner(tool string) *ScriptRunner {
	return &ScriptRunner{tool: tool}
}

// RunRecorded executes command inside the instance, recording all output
// to the transcript file. Returns the command's shell-style exit status.
func (r *ScriptRunner) RunRecorded(ctx context.Context, instance string, command []string, transcript string) (int, error) {
	inner := fmt.Sprintf("%s exec %s -- %s", r.tool, instance, shellJoin(command))
	cmd := exec.CommandContext(ctx, "script", "-e", "-q", "-c", inner, transcript)

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return translateWait(exitErr), nil
		}
		return -1, fmt.Errorf("failed to record run in %s: %w", instance, err)
	}
	return 0, nil
}

// shellJoin quotes each argument for safe embedding in a shell -c string.
func shellJoin(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\n\"'`$&|;<>()*?[]#~%") {
			quoted[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		} else {
			quoted[i] = a
		}
	}
	return strings.Join(quoted, " ")
}
