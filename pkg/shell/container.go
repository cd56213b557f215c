package shell

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/envsafe"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// ContainerAPI is the slice of the Docker client the container backend uses.
type ContainerAPI interface {
	ContainerExecCreate(ctx context.Context, container string, config types.ExecConfig) (types.IDResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config types.ExecStartCheck) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (types.ContainerExecInspect, error)
	Close() error
}

// ContainerBackend runs commands inside an existing container through the
// Docker exec API, for faults that live in a container's namespaces.
type ContainerBackend struct {
	api       ContainerAPI
	container string
	path      *envsafe.SearchPath
	killGrace time.Duration
}

const (
	pingTimeout    = 5 * time.Second // daemon availability check
	resolveTimeout = 5 * time.Second // command -v and test -d lookups
	killGrace      = 2 * time.Second // wait for a timed-out exec to die
	pollInterval   = 50 * time.Millisecond
)

// killScript runs "$2" under timeout(1) so the whole in-container process
// group is SIGKILLed after "$1" seconds. Images without timeout(1) fall back
// to a plain sh.
const killScript = `if command -v timeout >/dev/null 2>&1; then exec timeout -s KILL "$1" sh -c "$2"; fi; exec sh -c "$2"`

// NewContainerBackend connects to the Docker daemon from the environment
// and verifies it answers.
func NewContainerBackend(container string, sp *envsafe.SearchPath) (*ContainerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, apperrors.DockerUnavailable(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		_ = cli.Close()
		return nil, apperrors.DockerUnavailable(err)
	}
	return NewContainerBackendWithAPI(cli, container, sp), nil
}

// NewContainerBackendWithAPI creates a backend on top of an existing client.
func NewContainerBackendWithAPI(api ContainerAPI, container string, sp *envsafe.SearchPath) *ContainerBackend {
	return &ContainerBackend{api: api, container: container, path: sp, killGrace: killGrace}
}

// Name returns the backend identifier
func (b *ContainerBackend) Name() string {
	return "container:" + b.container
}

// Close releases the Docker client.
func (b *ContainerBackend) Close() error {
	return b.api.Close()
}

// Run executes command with sh -c inside the target container. The command
// is killed inside the container at the deadline.
func (b *ContainerBackend) Run(ctx context.Context, command string, timeout time.Duration) Outcome {
	timeout = effectiveTimeout(timeout)
	return b.exec(ctx, []string{"sh", "-c", killScript, "sh", deadlineSeconds(timeout), command}, timeout)
}

// LookPath resolves name with command -v inside the container.
func (b *ContainerBackend) LookPath(name string) (string, bool) {
	out := b.exec(context.Background(), []string{"sh", "-c", `command -v "$1"`, "sh", name}, resolveTimeout)
	resolved := strings.TrimSpace(out.Stdout)
	return resolved, out.Succeeded() && resolved != ""
}

// IsDir reports whether path is a directory inside the container.
func (b *ContainerBackend) IsDir(path string) bool {
	return b.exec(context.Background(), []string{"sh", "-c", `test -d "$1"`, "sh", path}, resolveTimeout).Succeeded()
}

func (b *ContainerBackend) exec(ctx context.Context, cmd []string, timeout time.Duration) Outcome {
	start := time.Now()
	out := Outcome{StartedAt: start}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCfg := types.ExecConfig{
		Cmd:          cmd,
		Env:          []string{"PATH=" + b.path.String()},
		AttachStdout: true,
		AttachStderr: true,
	}

	created, err := b.api.ContainerExecCreate(runCtx, b.container, execCfg)
	if err != nil {
		out.Duration = time.Since(start)
		if client.IsErrNotFound(err) {
			out.ExitCode = ExitNotFound
			out.Stderr = "container " + b.container + " not found: " + err.Error()
			return out
		}
		out.ExitCode = ExitLaunchFailure
		out.Stderr = "failed to create exec in " + b.container + ": " + err.Error()
		return out
	}

	attach, err := b.api.ContainerExecAttach(runCtx, created.ID, types.ExecStartCheck{})
	if err != nil {
		out.Duration = time.Since(start)
		out.ExitCode = ExitLaunchFailure
		out.Stderr = "failed to attach to exec: " + err.Error()
		return out
	}
	defer attach.Close()

	var stdout, stderr strings.Builder
	done := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		done <- copyErr
	}()

	select {
	case copyErr := <-done:
		out.Stdout = stdout.String()
		out.Stderr = stderr.String()
		if copyErr != nil {
			out.Stderr = appendStderr(out.Stderr, "failed to read exec output: %v", copyErr)
		}
	case <-runCtx.Done():
		attach.Close()
		<-done
		out.Stdout = stdout.String()
		out.Stderr = stderr.String()
		if ctx.Err() == nil {
			out.TimedOut = true
			out.ExitCode = ExitTimeout
			out.Stderr = appendStderr(out.Stderr, "command timed out after %v", timeout)
		} else {
			out.ExitCode = ExitLaunchFailure
			out.Stderr = appendStderr(out.Stderr, "command cancelled: %v", ctx.Err())
		}
		if !b.awaitExit(context.WithoutCancel(ctx), created.ID) {
			out.Stderr = appendStderr(out.Stderr, "exec %s may still be running in %s", created.ID, b.container)
		}
		out.Duration = time.Since(start)
		return out
	}

	inspect, err := b.api.ContainerExecInspect(context.WithoutCancel(runCtx), created.ID)
	out.Duration = time.Since(start)
	if err != nil {
		out.ExitCode = ExitLaunchFailure
		out.Stderr = appendStderr(out.Stderr, "failed to inspect exec: %v", err)
		return out
	}
	out.ExitCode = inspect.ExitCode
	return out
}

// awaitExit polls the exec until it stops running or the kill grace period
// ends, so the next command never overlaps a timed-out one.
func (b *ContainerBackend) awaitExit(ctx context.Context, execID string) bool {
	ctx, cancel := context.WithTimeout(ctx, b.killGrace)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		inspect, err := b.api.ContainerExecInspect(ctx, execID)
		if err == nil && !inspect.Running {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// deadlineSeconds rounds timeout up to whole seconds for timeout(1).
func deadlineSeconds(timeout time.Duration) string {
	secs := int(math.Ceil(timeout.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
