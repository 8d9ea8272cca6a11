package cmd

import (
	"errors"

	"dircrawl/internal/exitcodes"
	"dircrawl/internal/runlock"
	"dircrawl/internal/safety"
)

// ConfigError marks a failure caused by the configuration or command line.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error returned by a command to the process exit code.
func ExitCode(err error) int {
	var cfgErr *ConfigError
	switch {
	case err == nil:
		return exitcodes.Success
	case errors.As(err, &cfgErr):
		return exitcodes.InvalidConfig
	case safety.IsViolation(err):
		return exitcodes.SafetyViolation
	case errors.Is(err, runlock.ErrLocked):
		return exitcodes.Locked
	default:
		return exitcodes.RuntimeError
	}
}
