package git

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Describe returns a short version identifier for HEAD, using tags when
// available and falling back to an abbreviated commit hash.
func Describe(ctx context.Context, repoPath string) (string, error) {
	output, err := gitExec(ctx, repoPath, "describe", "--always", "--abbrev=8")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// CommitTimestamp returns the authorship timestamp of HEAD. Packages built
// from a commit embed this in their changelog so artifacts are traceable
// to the exact commit under test.
func CommitTimestamp(ctx context.Context, repoPath string) (time.Time, error) {
	output, err := gitExec(ctx, repoPath, "log", "-1", "--format=%at")
	if err != nil {
		return time.Time{}, err
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(output), 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(secs, 0).UTC(), nil
}

// IsRepo reports whether path is inside a git working tree.
func IsRepo(ctx context.Context, path string) bool {
	output, err := gitExec(ctx, path, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(output) == "true"
}
