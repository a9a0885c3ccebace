package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TranscriptPath returns the host path of the per-target, per-timestamp
// transcript recorded by the terminal-recording wrapper.
func TranscriptPath(resultsDir, target, stamp string) string {
	return filepath.Join(resultsDir, fmt.Sprintf("%s-%s.log", target, stamp))
}

// FailedSuffix renders the preservation marker appended to transcripts and
// instance names of failed runs.
func FailedSuffix(stamp string) string {
	return "-FAILED-" + stamp
}

// FinishTranscript disposes of a transcript according to the failure
// policy: a failed run's transcript is renamed with the -FAILED-<stamp>
// suffix and kept regardless of keep; otherwise the transcript is deleted
// unless keep is set. Returns the transcript's final path, or "" if it
// was deleted.
func FinishTranscript(path, stamp string, failed, keep bool) (string, error) {
	if failed {
		renamed := strings.TrimSuffix(path, ".log") + FailedSuffix(stamp) + ".log"
		if err := os.Rename(path, renamed); err != nil {
			return "", fmt.Errorf("preserve transcript: %w", err)
		}
		return renamed, nil
	}
	if keep {
		return path, nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("remove transcript: %w", err)
	}
	return "", nil
}
