package errors

import (
	"fmt"

	cerr "github.com/cockroachdb/errors"
)

// Error types for the application
var (
	ErrPersistence        = cerr.New("PERSISTENCE")
	ErrPlannerUnavailable = cerr.New("PLANNER_UNAVAILABLE")
	ErrInvalidSection     = cerr.New("INVALID_SECTION")
	ErrConfig             = cerr.New("CONFIG")
	ErrDockerUnavailable  = cerr.New("DOCKER_UNAVAILABLE")
)

// Persistence marks err as a failure to write durable output.
func Persistence(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return cerr.Mark(cerr.Wrapf(err, format, args...), ErrPersistence)
}

// PlannerUnavailable marks err as a planner-side failure.
func PlannerUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return cerr.Mark(cerr.WithHint(err, "check the planner endpoint and credentials"), ErrPlannerUnavailable)
}

// DockerUnavailable marks err as a failure to reach the Docker daemon.
func DockerUnavailable(err error) error {
	if err == nil {
		return nil
	}
	return cerr.Mark(cerr.WithHint(cerr.Wrap(err, "docker not available"), "check that the daemon is running and DOCKER_HOST is correct"), ErrDockerUnavailable)
}

// Is reports whether err carries the given mark.
func Is(err, reference error) bool {
	return cerr.Is(err, reference)
}

// ExitError carries a process exit code out of a command handler.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ConfigError wraps invalid configuration values
type ConfigError struct {
	Field string
	Value interface{}
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid value for %s (value: %v): %v", e.Field, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ConfigError against ErrConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}
