package config

const (
	DefaultNamespace   = "bench"
	DefaultImage       = "pkgbench-base"
	DefaultResultsDir  = "results"
	DefaultLedgerName  = "times.csv"
	DefaultTargetsFile = "targets.yaml"
	DefaultTimeFormat  = "%F-%H%M%S"
)

// DefaultConfig returns a Config with all default values applied.
func DefaultConfig() *Config {
	return &Config{
		Namespace:   DefaultNamespace,
		Image:       DefaultImage,
		ResultsDir:  DefaultResultsDir,
		LedgerName:  DefaultLedgerName,
		TargetsFile: DefaultTargetsFile,
		TimeFormat:  DefaultTimeFormat,
	}
}
