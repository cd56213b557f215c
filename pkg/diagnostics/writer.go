package diagnostics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
)

const maxPathAttempts = 1000

// DefaultPath returns a timestamped log path in dir.
func DefaultPath(dir string, now time.Time) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "diagnostics-"+now.Format("20060102-150405.000000")+".log")
}

// logWriter appends a human-readable log, syncing after each entry so an
// interrupted run leaves complete entries on disk.
type logWriter struct {
	file *os.File
	path string
}

// createLogFile opens path exclusively. An existing file is never touched;
// a numeric suffix is tried instead.
func createLogFile(path string) (*logWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, cerr.Wrap(err, "could not create log directory")
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	candidate := path
	for i := 1; ; i++ {
		file, err := os.OpenFile(candidate, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			return &logWriter{file: file, path: candidate}, nil
		}
		if !os.IsExist(err) || i >= maxPathAttempts {
			return nil, cerr.Wrap(err, "could not create diagnostics log")
		}
		candidate = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
}

func (w *logWriter) writeHeader(l *Log) error {
	names := make([]string, len(l.Sections))
	for i, s := range l.Sections {
		names[i] = string(s)
	}
	var b strings.Builder
	b.WriteString("# Diagnostic Snapshot\n")
	fmt.Fprintf(&b, "# Generated: %s\n", l.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "# Output file: %s\n", w.path)
	fmt.Fprintf(&b, "# Sections: %s\n", strings.Join(names, ", "))
	fmt.Fprintf(&b, "# Host: %s\n\n", l.Host)
	return w.commit(b.String())
}

func (w *logWriter) writeEmptySection(s Section) error {
	return w.commit(fmt.Sprintf("## [%s] No commands available on this system.\n\n", s))
}

func (w *logWriter) writeRecord(r Record) error {
	return w.commit(FormatRecord(r))
}

// FormatRecord renders one log entry.
func FormatRecord(r Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## [%s] %s\n", r.Section, r.Description)
	fmt.Fprintf(&b, "$ %s\n", r.Command)
	fmt.Fprintf(&b, "- timestamp: %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "- exit_code: %d\n", r.ExitCode)
	fmt.Fprintf(&b, "- duration: %.3fs\n", r.Duration.Seconds())
	if r.TimedOut {
		b.WriteString("- timed_out: true\n")
	}
	writeStream(&b, "stdout", r.Stdout)
	writeStream(&b, "stderr", r.Stderr)
	b.WriteString("\n")
	return b.String()
}

// writeStream keeps the captured bytes except one trailing newline, which
// the section framing supplies.
func writeStream(b *strings.Builder, name, content string) {
	content = strings.TrimSuffix(content, "\n")
	if content == "" {
		fmt.Fprintf(b, "--- %s: <empty> ---\n", name)
		return
	}
	fmt.Fprintf(b, "--- %s ---\n%s\n", name, content)
}

func (w *logWriter) commit(s string) error {
	if _, err := w.file.WriteString(s); err != nil {
		return err
	}
	return w.file.Sync()
}

func (w *logWriter) Close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
