package config

import (
	"errors"
	"fmt"
)

// ValidationError contains details about what failed validation.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config.%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// validateConfig checks all config values for validity.
// Returns nil if valid, or joined errors for all validation failures.
func validateConfig(cfg *Config) error {
	var errs []error

	if cfg.Namespace == "" {
		errs = append(errs, &ValidationError{
			Field:   "namespace",
			Value:   cfg.Namespace,
			Message: "must not be empty",
		})
	}
	for _, r := range cfg.Namespace {
		legal := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
		if !legal {
			errs = append(errs, &ValidationError{
				Field:   "namespace",
				Value:   cfg.Namespace,
				Message: "must contain only lowercase alphanumerics and '-'",
			})
			break
		}
	}

	if cfg.Image == "" {
		errs = append(errs, &ValidationError{
			Field:   "image",
			Value:   cfg.Image,
			Message: "must not be empty",
		})
	}

	if cfg.ResultsDir == "" {
		errs = append(errs, &ValidationError{
			Field:   "results_dir",
			Value:   cfg.ResultsDir,
			Message: "must not be empty",
		})
	}

	if cfg.LedgerName == "" {
		errs = append(errs, &ValidationError{
			Field:   "ledger",
			Value:   cfg.LedgerName,
			Message: "must not be empty",
		})
	}

	return errors.Join(errs...)
}
