package container

import "strings"

// NormalizeTarget lowercases a target name and collapses every run of
// non-alphanumeric characters into a single "-", trimming separators at
// either end. Distinct targets collide only when they are genuinely
// identical after normalization (e.g. "foo.bar" and "foo+bar").
func NormalizeTarget(target string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(target) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return b.String()
}

// InstanceName derives a backend-legal instance name from a run namespace
// and a target name. Deterministic: the same target always maps to the
// same instance name across runs.
func InstanceName(namespace, target string) string {
	normalized := NormalizeTarget(target)
	if normalized == "" {
		return namespace
	}
	return namespace + "-" + normalized
}
