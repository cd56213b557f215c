package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltin(t *testing.T) {
	cases, err := Builtin()
	require.NoError(t, err)

	var names []string
	for _, c := range cases {
		names = append(names, c.Name)
		assert.NotEmpty(t, c.Problem, c.Name)
		assert.NotEmpty(t, c.Setup, c.Name)

		last := c.Plan[len(c.Plan)-1]
		require.NotEmpty(t, last, c.Name)
		assert.NotEmpty(t, last[len(last)-1].ExpectSignal, "%s: final action needs an expected signal", c.Name)
	}
	assert.Equal(t, []string{
		"container-missing-default-route",
		"published-port-blocked",
		"container-detached-from-network",
		"ip-forwarding-disabled",
		"nat-masquerade-missing",
	}, names)
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"invalid yaml", "- name: [", "failed to parse scenarios"},
		{"missing name", "- problem: x\n  plan: [[{command: uptime}]]\n  signature: x\n", "has no name"},
		{"duplicate", "- {name: a, plan: [[{command: uptime}]], signature: x}\n- {name: a, plan: [[{command: uptime}]], signature: x}\n", "duplicate scenario"},
		{"empty plan", "- {name: a, signature: x}\n", "empty plan"},
		{"no signature", "- {name: a, plan: [[{command: uptime}]]}\n", "no signature"},
		{"bad signature", "- {name: a, plan: [[{command: uptime}]], signature: '('}\n", "invalid signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCaseMatches(t *testing.T) {
	cases, err := Parse([]byte("- {name: a, plan: [[{command: x}]], signature: 'ip route add default via 10\\.0\\.0\\.1'}\n"))
	require.NoError(t, err)
	assert.True(t, cases[0].Matches("docker exec web ip route add default via 10.0.0.1"))
	assert.False(t, cases[0].Matches("ip route add default via 10.0.0.2"))

	manual := Case{Signature: "connect appnet"}
	assert.True(t, manual.Matches("docker network connect appnet web"))
	assert.False(t, Case{Signature: "("}.Matches("anything"))
}
