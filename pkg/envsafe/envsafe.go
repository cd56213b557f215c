// Package envsafe builds the fixed command search path used for every
// command the agent runs, so that resolution never depends on an inherited
// and possibly corrupted PATH.
package envsafe

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DefaultDirs is the ordered list of standard system directories.
var DefaultDirs = []string{
	"/usr/local/sbin",
	"/usr/local/bin",
	"/usr/sbin",
	"/usr/bin",
	"/sbin",
	"/bin",
}

// SearchPath is an immutable command search configuration.
type SearchPath struct {
	dirs []string
	env  []string
}

var (
	once      sync.Once
	sanitized *SearchPath
)

// Sanitize returns the process-wide search path built from DefaultDirs.
// The first call snapshots the environment; later calls return the same value.
func Sanitize() *SearchPath {
	once.Do(func() {
		sanitized = New(DefaultDirs...)
	})
	return sanitized
}

// New builds a search path from dirs. Empty entries are dropped.
func New(dirs ...string) *SearchPath {
	clean := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if d = strings.TrimSpace(d); d != "" {
			clean = append(clean, d)
		}
	}

	sp := &SearchPath{dirs: clean}
	sp.env = buildEnv(os.Environ(), sp.String())
	return sp
}

func buildEnv(inherited []string, path string) []string {
	env := make([]string, 0, len(inherited)+1)
	for _, kv := range inherited {
		if strings.HasPrefix(kv, "PATH=") {
			continue
		}
		env = append(env, kv)
	}
	return append(env, "PATH="+path)
}

// Dirs returns a copy of the ordered directory list.
func (s *SearchPath) Dirs() []string {
	out := make([]string, len(s.dirs))
	copy(out, s.dirs)
	return out
}

// String returns the PATH value.
func (s *SearchPath) String() string {
	return strings.Join(s.dirs, string(os.PathListSeparator))
}

// Env returns the environment snapshot with PATH replaced.
func (s *SearchPath) Env() []string {
	out := make([]string, len(s.env))
	copy(out, s.env)
	return out
}

// LookPath resolves name within the search path only. Names containing a
// slash are checked as given.
func (s *SearchPath) LookPath(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if strings.Contains(name, "/") {
		if isExecutable(name) {
			return name, true
		}
		return "", false
	}
	for _, dir := range s.dirs {
		candidate := filepath.Join(dir, name)
		if isExecutable(candidate) {
			return candidate, true
		}
	}
	return "", false
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0111 != 0
}
