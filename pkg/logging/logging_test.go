package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	tests := []struct {
		name     string
		opts     Options
		encoding string
		wantErr  bool
	}{
		{"defaults", Options{}, "console", false},
		{"json", Options{Level: "debug", Format: "json"}, "json", false},
		{"upper case level", Options{Level: "WARN"}, "console", false},
		{"bad level", Options{Level: "loud"}, "", true},
		{"bad format", Options{Format: "xml"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Config(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.encoding, cfg.Encoding)
			assert.Equal(t, "stderr", cfg.OutputPaths[0])
		})
	}
}

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")
	logger, err := New(Options{Level: "info", Format: "json", File: path})
	require.NoError(t, err)

	logger.Info("hello from test")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
}

func TestNew_FallsBackWithoutFile(t *testing.T) {
	logger, err := New(Options{File: filepath.Join(t.TempDir(), "missing", "dir", "agent.log")})
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
