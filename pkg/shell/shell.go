// Package shell runs command lines and reports what happened as data.
//
// A Backend never returns an error for a failing command: a missing
// executable, a non-zero exit, a timeout or a launch problem all come back
// as an Outcome with a sentinel exit code and a descriptive stderr line.
package shell

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Sentinel exit codes
const (
	ExitNotFound      = 127 // executable or target not found
	ExitTimeout       = 124 // deadline reached, process killed
	ExitLaunchFailure = 126 // process could not be started
	ExitSkipped       = -1  // not executed by policy
)

// DefaultTimeout applies when a caller passes a non-positive timeout.
const DefaultTimeout = 30 * time.Second

// Outcome is the captured result of one command line.
type Outcome struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	StartedAt time.Time
	Duration  time.Duration
	TimedOut  bool
}

// Succeeded reports a zero exit within the deadline.
func (o Outcome) Succeeded() bool {
	return o.ExitCode == 0 && !o.TimedOut
}

// Backend executes a shell command line somewhere.
type Backend interface {
	Run(ctx context.Context, command string, timeout time.Duration) Outcome
	Name() string
}

// Resolver is implemented by backends that can tell what is installed where
// their commands run.
type Resolver interface {
	LookPath(name string) (string, bool)
	IsDir(path string) bool
}

// appendStderr adds a diagnostic line to captured stderr.
func appendStderr(stderr, format string, args ...interface{}) string {
	line := fmt.Sprintf(format, args...)
	if stderr == "" {
		return line
	}
	if !strings.HasSuffix(stderr, "\n") {
		stderr += "\n"
	}
	return stderr + line
}

func effectiveTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return DefaultTimeout
	}
	return timeout
}
