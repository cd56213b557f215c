package shell

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/computerscienceiscool/llm-troubleshooter/pkg/envsafe"
	"golang.org/x/sys/unix"
)

// LocalBackend runs commands through bash (or sh) on this host with the
// sanitized search path as PATH. Each command gets its own process group so
// the whole tree is killed at the deadline.
type LocalBackend struct {
	path      *envsafe.SearchPath
	dir       string
	waitDelay time.Duration
}

// NewLocalBackend creates a backend bound to a search path.
func NewLocalBackend(sp *envsafe.SearchPath) *LocalBackend {
	return &LocalBackend{
		path:      sp,
		waitDelay: 2 * time.Second,
	}
}

// WithDir sets the working directory for commands.
func (b *LocalBackend) WithDir(dir string) *LocalBackend {
	b.dir = dir
	return b
}

// Name returns the backend identifier
func (b *LocalBackend) Name() string {
	return "local"
}

// Run executes command under timeout.
func (b *LocalBackend) Run(ctx context.Context, command string, timeout time.Duration) Outcome {
	start := time.Now()
	out := Outcome{StartedAt: start}

	shellPath, ok := b.resolveShell()
	if !ok {
		out.ExitCode = ExitNotFound
		out.Stderr = "no shell (bash or sh) found in search path " + b.path.String()
		return out
	}

	timeout = effectiveTimeout(timeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, shellPath, "-c", command)
	cmd.Env = b.path.Env()
	cmd.Dir = b.dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = b.waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out.Duration = time.Since(start)
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		out.TimedOut = true
		out.ExitCode = ExitTimeout
		out.Stderr = appendStderr(out.Stderr, "command timed out after %v", timeout)
		return out
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		out.ExitCode = 0
	case errors.As(err, &exitErr):
		out.ExitCode = exitCode(exitErr)
		if ctx.Err() != nil {
			out.Stderr = appendStderr(out.Stderr, "command cancelled: %v", ctx.Err())
		}
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		out.ExitCode = ExitNotFound
		out.Stderr = appendStderr(out.Stderr, "executable not found: %v", err)
	default:
		out.ExitCode = ExitLaunchFailure
		out.Stderr = appendStderr(out.Stderr, "failed to start command: %v", err)
	}
	return out
}

// LookPath resolves name within the backend's search path.
func (b *LocalBackend) LookPath(name string) (string, bool) {
	return b.path.LookPath(name)
}

// IsDir reports whether path is a directory on this host.
func (b *LocalBackend) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (b *LocalBackend) resolveShell() (string, bool) {
	if p, ok := b.path.LookPath("bash"); ok {
		return p, true
	}
	return b.path.LookPath("sh")
}

// exitCode maps signal deaths to the shell convention 128+signal.
func exitCode(exitErr *exec.ExitError) int {
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal())
	}
	return exitErr.ExitCode()
}
