package config

import "os"

// envOverrides maps environment variables to config field setters.
var envOverrides = []struct {
	envVar string
	apply  func(*Config, string)
}{
	{
		envVar: "PKGBENCH_NAMESPACE",
		apply: func(c *Config, v string) {
			c.Namespace = v
		},
	},
	{
		envVar: "PKGBENCH_IMAGE",
		apply: func(c *Config, v string) {
			c.Image = v
		},
	},
	{
		envVar: "PKGBENCH_RESULTS_DIR",
		apply: func(c *Config, v string) {
			c.ResultsDir = v
		},
	},
	{
		envVar: "PKGBENCH_TARGETS_FILE",
		apply: func(c *Config, v string) {
			c.TargetsFile = v
		},
	},
}

// applyEnvOverrides modifies config in place with environment variable values.
func applyEnvOverrides(cfg *Config) {
	for _, override := range envOverrides {
		if val := os.Getenv(override.envVar); val != "" {
			override.apply(cfg, val)
		}
	}
}
