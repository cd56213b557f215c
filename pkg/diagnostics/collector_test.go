package diagnostics

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	cerr "github.com/cockroachdb/errors"
	apperrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/envsafe"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend records every command it is asked to run.
type fakeBackend struct {
	ran    []string
	onRun  func(n int)
	result func(cmd string) shell.Outcome
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Run(ctx context.Context, command string, timeout time.Duration) shell.Outcome {
	f.ran = append(f.ran, command)
	if f.onRun != nil {
		f.onRun(len(f.ran))
	}
	if f.result != nil {
		return f.result(command)
	}
	return shell.Outcome{ExitCode: 0, Stdout: "ok: " + command + "\n", StartedAt: time.Now(), Duration: time.Millisecond}
}

// resolvingBackend is a fakeBackend that also answers lookups, the way a
// backend targeting another machine sees that machine's tools.
type resolvingBackend struct {
	fakeBackend
	name     string
	programs map[string]bool
	dirs     map[string]bool
}

func (b *resolvingBackend) Name() string { return b.name }

func (b *resolvingBackend) LookPath(name string) (string, bool) {
	return "/usr/bin/" + name, b.programs[name]
}

func (b *resolvingBackend) IsDir(path string) bool { return b.dirs[path] }

// stubPath creates executables named programs in a temp dir.
func stubPath(t *testing.T, programs ...string) *envsafe.SearchPath {
	t.Helper()
	dir := t.TempDir()
	for _, p := range programs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, p), []byte("#!/bin/sh\n"), 0755))
	}
	return envsafe.New(dir)
}

func testCatalog() Catalog {
	return NewCatalog(map[Section][]Probe{
		SectionSystem:     {{Command: "uname -a", Description: "Kernel"}, {Command: "df -h", Description: "Disk"}},
		SectionPackages:   {{Command: "apt-cache policy", Description: "Apt"}},
		SectionNetwork:    {{Command: "ip route", Description: "Routes"}, {Command: "ip address", Description: "Addrs"}, {Command: "ss -tulpn", Description: "Sockets"}},
		SectionServices:   {{Command: "systemctl --failed", Description: "Failed"}},
		SectionContainers: {{Command: "docker ps -a", Description: "Containers"}},
	})
}

func newTestCollector(t *testing.T, backend shell.Backend, opts ...Option) *Collector {
	t.Helper()
	opts = append([]Option{WithCatalog(testCatalog()), WithOutputDir(t.TempDir())}, opts...)
	return NewCollector(backend, nil, opts...)
}

func TestCollect_ExactlyRequestedCommands(t *testing.T) {
	subsets := [][]Section{
		nil,
		{SectionSystem},
		{SectionNetwork, SectionSystem},
		{SectionContainers, SectionPackages, SectionServices},
		AllSections,
	}

	for _, subset := range subsets {
		name := "all"
		if subset != nil {
			parts := make([]string, len(subset))
			for i, s := range subset {
				parts[i] = string(s)
			}
			name = strings.Join(parts, "+")
		}
		t.Run(name, func(t *testing.T) {
			backend := &fakeBackend{}
			c := newTestCollector(t, backend)

			log, err := c.Collect(context.Background(), subset, "")
			require.NoError(t, err)

			requested := subset
			if len(requested) == 0 {
				requested = AllSections
			}
			var want []string
			for _, s := range AllSections {
				for _, r := range requested {
					if r == s {
						for _, p := range testCatalog().Probes(s) {
							want = append(want, p.Command)
						}
					}
				}
			}

			assert.Equal(t, want, log.Commands())
			assert.Equal(t, want, backend.ran)

			data, err := os.ReadFile(log.Path)
			require.NoError(t, err)
			for _, cmd := range want {
				assert.Equal(t, 1, strings.Count(string(data), "$ "+cmd+"\n"), cmd)
			}
		})
	}
}

func TestCollect_NeverOverwrites(t *testing.T) {
	fixed := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	backend := &fakeBackend{}
	c := newTestCollector(t, backend, WithClock(func() time.Time { return fixed }))

	first, err := c.Collect(context.Background(), []Section{SectionSystem}, "")
	require.NoError(t, err)
	firstContent, err := os.ReadFile(first.Path)
	require.NoError(t, err)

	second, err := c.Collect(context.Background(), []Section{SectionNetwork}, "")
	require.NoError(t, err)

	assert.NotEqual(t, first.Path, second.Path)
	after, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, string(firstContent), string(after))
	assert.Contains(t, string(after), "$ uname -a")
	assert.NotContains(t, string(after), "$ ip route")
}

func TestCollect_ExplicitDestinationNotOverwritten(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "snapshot.log")
	require.NoError(t, os.WriteFile(dest, []byte("previous run\n"), 0644))

	c := newTestCollector(t, &fakeBackend{})
	log, err := c.Collect(context.Background(), []Section{SectionSystem}, dest)
	require.NoError(t, err)

	assert.NotEqual(t, dest, log.Path)
	assert.Equal(t, filepath.Join(filepath.Dir(dest), "snapshot-1.log"), log.Path)
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "previous run\n", string(data))
}

func TestRunCommand_MissingExecutable(t *testing.T) {
	backend := &resolvingBackend{name: "local"}
	c := NewCollector(backend, nil, WithCatalog(testCatalog()))

	var rec Record
	assert.NotPanics(t, func() {
		rec = c.RunCommand(context.Background(), SectionNetwork, Probe{Command: "traceroute 8.8.8.8", Description: "Trace"})
	})

	assert.Equal(t, shell.ExitNotFound, rec.ExitCode)
	assert.NotZero(t, rec.ExitCode)
	assert.Contains(t, rec.Stderr, `"traceroute" not found on backend local`)
	assert.Empty(t, backend.ran, "missing executables are not launched")
}

func TestCollector_ResolvesThroughBackend(t *testing.T) {
	// the host running the collector has none of these tools
	t.Setenv("PATH", t.TempDir())

	backend := &resolvingBackend{
		name:     "container:web",
		programs: map[string]bool{"ip": true, "systemctl": true, "docker": true},
		dirs:     map[string]bool{"/run/systemd/system": true},
	}
	c := NewCollector(backend, nil, WithOutputDir(t.TempDir()))

	t.Run("programs present on the target run", func(t *testing.T) {
		rec := c.RunCommand(context.Background(), SectionNetwork, Probe{Command: "ip route", Description: "Routes"})
		assert.Equal(t, 0, rec.ExitCode)
		assert.Equal(t, "ok: ip route\n", rec.Stdout)
		assert.Equal(t, []string{"ip route"}, backend.ran)
	})

	t.Run("batteries follow the target", func(t *testing.T) {
		services := c.catalog.Probes(SectionServices)
		require.NotEmpty(t, services)
		assert.Equal(t, "systemctl status --no-pager", services[0].Command)

		containers := c.catalog.Probes(SectionContainers)
		require.Len(t, containers, 5)
		assert.Equal(t, "docker info", containers[0].Command)
	})
}

func TestCollector_WithoutResolverRunsDirectly(t *testing.T) {
	backend := &fakeBackend{result: func(cmd string) shell.Outcome {
		return shell.Outcome{ExitCode: shell.ExitNotFound, Stderr: "sh: traceroute: not found\n"}
	}}
	c := NewCollector(backend, nil, WithCatalog(testCatalog()))

	rec := c.RunCommand(context.Background(), SectionNetwork, Probe{Command: "traceroute 8.8.8.8"})
	assert.Equal(t, shell.ExitNotFound, rec.ExitCode)
	assert.Equal(t, []string{"traceroute 8.8.8.8"}, backend.ran)
}

func TestRunCommand_FailuresAreData(t *testing.T) {
	backend := &fakeBackend{result: func(cmd string) shell.Outcome {
		return shell.Outcome{ExitCode: 1, Stderr: "permission denied\n"}
	}}
	c := newTestCollector(t, backend)

	log, err := c.Collect(context.Background(), []Section{SectionNetwork}, "")
	require.NoError(t, err)
	require.Len(t, log.Records, 3)
	for _, r := range log.Records {
		assert.Equal(t, 1, r.ExitCode)
		assert.Equal(t, "permission denied\n", r.Stderr)
	}

	data, err := os.ReadFile(log.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "- exit_code: 1")
	assert.Contains(t, string(data), "--- stdout: <empty> ---")
	assert.Contains(t, string(data), "--- stderr ---\npermission denied\n")
}

func TestCollect_PersistenceFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	c := newTestCollector(t, &fakeBackend{})
	log, err := c.Collect(context.Background(), nil, filepath.Join(blocker, "sub", "diag.log"))

	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrPersistence))
	assert.Contains(t, err.Error(), "could not create log directory")
	assert.True(t, cerr.Is(err, syscall.ENOTDIR))
	assert.NotNil(t, log)
}

func TestCollect_InterruptKeepsWrittenRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend := &fakeBackend{onRun: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	c := newTestCollector(t, backend)

	log, err := c.Collect(ctx, nil, "")
	require.Error(t, err)
	assert.True(t, cerr.Is(err, context.Canceled))
	assert.False(t, apperrors.Is(err, apperrors.ErrPersistence))

	// the in-flight command finishes; nothing after it starts
	require.Len(t, log.Records, 2)
	assert.Len(t, backend.ran, 2)

	data, err := os.ReadFile(log.Path)
	require.NoError(t, err)
	content := string(data)
	for _, r := range log.Records {
		assert.Contains(t, content, FormatRecord(r))
	}
	assert.True(t, strings.HasSuffix(content, "\n\n"), "last entry is complete")
}

func TestCollect_EmptySection(t *testing.T) {
	c := NewCollector(&fakeBackend{}, nil,
		WithCatalog(NewCatalog(map[Section][]Probe{})),
		WithOutputDir(t.TempDir()))

	log, err := c.Collect(context.Background(), []Section{SectionContainers}, "")
	require.NoError(t, err)
	assert.Empty(t, log.Records)

	data, err := os.ReadFile(log.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "## [containers] No commands available on this system.")
}

func TestLog_Digest(t *testing.T) {
	log := &Log{
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Host:      "box",
		Records: []Record{
			{Section: SectionNetwork, Command: "ip route", ExitCode: 0, Stdout: "default via 10.0.0.1 dev eth0\n"},
			{Section: SectionNetwork, Command: "ping -c 1 8.8.8.8", ExitCode: 2, Stderr: strings.Repeat("x", 50)},
		},
	}

	digest := log.Digest(20)
	assert.Contains(t, digest, "[network] $ ip route (exit 0)")
	assert.Contains(t, digest, "default via 10.0.0.")
	assert.Contains(t, digest, "...[truncated]")
	assert.Contains(t, digest, "(exit 2)")

	var empty *Log
	assert.Equal(t, "", empty.Digest(10))
}

func TestReadHostname(t *testing.T) {
	file := filepath.Join(t.TempDir(), "hostname")
	require.NoError(t, os.WriteFile(file, []byte("box-01\r\n "), 0644))
	assert.Equal(t, "box-01", readHostname(file))

	kernel, err := os.Hostname()
	require.NoError(t, err)
	assert.Equal(t, kernel, readHostname(filepath.Join(t.TempDir(), "absent")))

	blank := filepath.Join(t.TempDir(), "hostname")
	require.NoError(t, os.WriteFile(blank, []byte("\n"), 0644))
	assert.Equal(t, kernel, readHostname(blank))
}

func TestFormatRecord_KeepsCapturedWhitespace(t *testing.T) {
	out := FormatRecord(Record{
		Section: SectionSystem,
		Command: "printf",
		Stdout:  "col1  col2   \n\n",
		Stderr:  "\n",
	})
	assert.Contains(t, out, "--- stdout ---\ncol1  col2   \n\n--- stderr")
	assert.Contains(t, out, "--- stderr: <empty> ---")
}

func TestDefaultPath(t *testing.T) {
	ts := time.Date(2026, 10, 19, 8, 30, 15, 123456000, time.UTC)
	assert.Equal(t, filepath.Join("/var/tmp", "diagnostics-20261019-083015.123456.log"), DefaultPath("/var/tmp", ts))
	assert.Equal(t, "diagnostics-20261019-083015.123456.log", DefaultPath("", ts))
}
