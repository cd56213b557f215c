// Package journal writes the append-only session journal: one plaintext line
// per loop event, in the form
//
//	RFC3339|session:<id>|<event>|<command>|<status>|<detail>
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	ierrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
)

// Event names written by the loop.
const (
	EventStart   = "start"
	EventPlan    = "plan"
	EventExec    = "exec"
	EventVerify  = "verify"
	EventOutcome = "outcome"
)

// Journal appends session events to a file.
type Journal struct {
	mu        sync.Mutex
	file      *os.File
	sessionID string
	now       func() time.Time
}

// Open opens (or creates) the journal at path in append mode.
func Open(path, sessionID string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, ierrors.Persistence(err, "could not create journal directory %s", dir)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, ierrors.Persistence(err, "could not open journal %s", path)
	}
	return &Journal{file: file, sessionID: sessionID, now: time.Now}, nil
}

// SessionID returns the id stamped on every line.
func (j *Journal) SessionID() string {
	if j == nil {
		return ""
	}
	return j.sessionID
}

// Record writes one line. A nil or closed journal ignores the call.
func (j *Journal) Record(event, command string, success bool, detail string) error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}

	status := "success"
	if !success {
		status = "failed"
	}
	line := fmt.Sprintf("%s|session:%s|%s|%s|%s|%s\n",
		j.now().Format(time.RFC3339),
		j.sessionID,
		event,
		flatten(command),
		status,
		flatten(detail),
	)
	if _, err := j.file.WriteString(line); err != nil {
		return ierrors.Persistence(err, "could not write journal entry")
	}
	return nil
}

// Close syncs and closes the file. Calling it twice is harmless.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	f := j.file
	j.file = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return ierrors.Persistence(err, "could not sync journal")
	}
	return f.Close()
}

// flatten keeps each entry on one line and the field separator unambiguous.
func flatten(s string) string {
	r := strings.NewReplacer("\r\n", `\n`, "\n", `\n`, "\r", `\r`, "|", `\|`)
	return r.Replace(strings.TrimRight(s, "\n"))
}
