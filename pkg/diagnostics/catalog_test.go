package diagnostics

import (
	"testing"

	apperrors "github.com/computerscienceiscool/llm-troubleshooter/internal/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSections(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    []Section
		wantErr bool
	}{
		{"empty means all", nil, AllSections, false},
		{"blank entries mean all", []string{" "}, AllSections, false},
		{"single", []string{"network"}, []Section{SectionNetwork}, false},
		{"canonical order and dedupe", []string{"containers", "System", "containers"}, []Section{SectionSystem, SectionContainers}, false},
		{"unknown", []string{"network", "gpu"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSections(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.Is(err, apperrors.ErrInvalidSection))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildCatalog_DependsOnAvailableTools(t *testing.T) {
	t.Run("bare host", func(t *testing.T) {
		c := BuildCatalog(shell.NewLocalBackend(stubPath(t)))
		assert.Empty(t, c.Probes(SectionContainers))
		assert.Equal(t, []Probe{{Command: "service --status-all", Description: "SysV service status"}}, c.Probes(SectionServices))
		assert.Len(t, c.Probes(SectionSystem), 12)
		assert.Len(t, c.Probes(SectionPackages), 11)
		assert.Len(t, c.Probes(SectionNetwork), 10)
	})

	t.Run("docker and kubectl present", func(t *testing.T) {
		c := BuildCatalog(shell.NewLocalBackend(stubPath(t, "docker", "kubectl")))
		probes := c.Probes(SectionContainers)
		require.Len(t, probes, 8)
		assert.Equal(t, "docker info", probes[0].Command)
		assert.Equal(t, "kubectl get pods --all-namespaces", probes[7].Command)
	})
}

func TestBuildCatalog_NoResolver(t *testing.T) {
	c := BuildCatalog(nil)
	assert.Empty(t, c.Probes(SectionContainers))
	assert.Equal(t, "service --status-all", c.Probes(SectionServices)[0].Command)
	assert.Len(t, c.Probes(SectionNetwork), 10)
}

func TestProbe_Program(t *testing.T) {
	assert.Equal(t, "ps", Probe{Command: "ps aux --sort=-%cpu | head -n 20"}.program())
	assert.Equal(t, "custom", Probe{Command: "ignored", Program: "custom"}.program())
	assert.Equal(t, "", Probe{}.program())
}

func TestCatalog_ProbesIsCopy(t *testing.T) {
	c := testCatalog()
	probes := c.Probes(SectionSystem)
	probes[0].Command = "mutated"
	assert.Equal(t, "uname -a", c.Probes(SectionSystem)[0].Command)
}
