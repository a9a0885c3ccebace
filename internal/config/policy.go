package config

// Policies are the static skip tables consulted before provisioning.
// Each entry documents why the target is excluded so additions stay
// auditable. Recomputed each run, never persisted.
type Policies struct {
	// NoParallel lists targets whose build does not tolerate a forced
	// parallelism level; skipped whenever parallelism != "1".
	NoParallel map[string]string

	// FailingTests lists targets whose in-container test suite is known
	// to fail; skipped whenever test execution is enabled.
	FailingTests map[string]string
}

// DefaultPolicies returns the built-in skip tables. The targets file may
// extend them via its policies block.
func DefaultPolicies() Policies {
	return Policies{
		NoParallel: map[string]string{
			"gcc-10": "bootstrap overrides the requested -j level, skewing the measurement",
			"ghc":    "build serializes itself and exhausts memory under forced parallelism",
		},
		FailingTests: map[string]string{
			"ruby3.1":    "test suite needs network access unavailable in the template image",
			"openjdk-17": "jtreg suite times out inside containers",
		},
	}
}

// SkipNoParallel reports whether target must be skipped at the given
// parallelism spec, and the documented reason.
func (p Policies) SkipNoParallel(target, parallelism string) (string, bool) {
	if parallelism == "1" {
		return "", false
	}
	reason, ok := p.NoParallel[target]
	return reason, ok
}

// SkipFailingTests reports whether target must be skipped when test
// execution is enabled, and the documented reason.
func (p Policies) SkipFailingTests(target string, testsEnabled bool) (string, bool) {
	if !testsEnabled {
		return "", false
	}
	reason, ok := p.FailingTests[target]
	return reason, ok
}

func (p *Policies) merge(noParallel, failingTests map[string]string) {
	for name, reason := range noParallel {
		p.NoParallel[name] = reason
	}
	for name, reason := range failingTests {
		p.FailingTests[name] = reason
	}
}
