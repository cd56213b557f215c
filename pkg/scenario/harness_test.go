package scenario

import (
	"context"
	"strings"
	"testing"

	"github.com/computerscienceiscool/llm-troubleshooter/pkg/agent"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/shell"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func builtinCase(t *testing.T, name string) Case {
	t.Helper()
	cases, err := Builtin()
	require.NoError(t, err)
	for _, c := range cases {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("no scenario named %q", name)
	return Case{}
}

func TestHarness_BuiltinScenariosPass(t *testing.T) {
	cases, err := Builtin()
	require.NoError(t, err)

	report := NewHarness(cases).Run(context.Background())
	require.Len(t, report.Results, len(cases))
	for _, res := range report.Results {
		assert.True(t, res.Passed, "%s: %s", res.Name, res.Reason)
		assert.Equal(t, agent.StatusComplete, res.Status, res.Name)
		assert.Equal(t, 2, res.Iterations, res.Name)
		assert.True(t, strings.HasPrefix(res.Line(), "PASS "+res.Name))
	}
	assert.True(t, report.Passed())
	assert.Empty(t, report.Failed())
}

// Each fault must really break the final check on a healthy host, or the
// scenarios would pass without the fix.
func TestScenarioSetupBreaksCheck(t *testing.T) {
	cases, err := Builtin()
	require.NoError(t, err)

	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			last := c.Plan[len(c.Plan)-1]
			check := last[len(last)-1]
			host := NewSimHost()

			healthy := host.Run(context.Background(), check.Command, shell.DefaultTimeout)
			require.Equal(t, 0, healthy.ExitCode, healthy.Stderr)
			require.Contains(t, healthy.Stdout+healthy.Stderr, check.ExpectSignal)

			for _, cmd := range c.Setup {
				out := host.Run(context.Background(), cmd, shell.DefaultTimeout)
				require.Equal(t, 0, out.ExitCode, "%s: %s", cmd, out.Stderr)
			}
			broken := host.Run(context.Background(), check.Command, shell.DefaultTimeout)
			assert.False(t, broken.ExitCode == 0 && strings.Contains(broken.Stdout+broken.Stderr, check.ExpectSignal))
		})
	}
}

func TestHarness_MissingDefaultRoute(t *testing.T) {
	c := builtinCase(t, "container-missing-default-route")
	res := NewHarness(nil).RunCase(context.Background(), c)

	require.True(t, res.Passed, res.Reason)
	assert.Equal(t, agent.StatusComplete, res.Status)
	found := false
	for _, cmd := range res.Commands {
		if strings.Contains(cmd, "ip route add default via 172.17.0.1") {
			found = true
		}
	}
	assert.True(t, found, "history %v has no route add via the gateway", res.Commands)
}

func TestHarness_PublishedPortBlocked(t *testing.T) {
	c := builtinCase(t, "published-port-blocked")
	res := NewHarness(nil).RunCase(context.Background(), c)

	require.True(t, res.Passed, res.Reason)
	var lastFirewall string
	for _, cmd := range res.Commands {
		if strings.HasPrefix(cmd, "iptables") {
			lastFirewall = cmd
		}
	}
	assert.Contains(t, lastFirewall, "--dport 8080")
	assert.Contains(t, lastFirewall, "-j ACCEPT")
}

func TestHarness_Failures(t *testing.T) {
	t.Run("plan without a fix", func(t *testing.T) {
		c := builtinCase(t, "ip-forwarding-disabled")
		c.Plan = c.Plan[:1]
		res := NewHarness(nil).RunCase(context.Background(), c)
		assert.False(t, res.Passed)
		assert.Equal(t, agent.StatusFailed, res.Status)
		assert.Equal(t, agent.CausePlannerUnavailable, res.Cause)
		assert.True(t, strings.HasPrefix(res.Line(), "FAIL ip-forwarding-disabled: loop ended failed"))
	})

	t.Run("fix never verified within the cap", func(t *testing.T) {
		c := builtinCase(t, "nat-masquerade-missing")
		round := c.Plan[0]
		c.Plan = [][]model.PlannedAction{round, round, round}
		res := NewHarness(nil, WithMaxIterations(2)).RunCase(context.Background(), c)
		assert.False(t, res.Passed)
		assert.Equal(t, agent.CauseIterationLimit, res.Cause)
		assert.Equal(t, 2, res.Iterations)
	})

	t.Run("completion without the signature", func(t *testing.T) {
		c := builtinCase(t, "container-detached-from-network")
		c.Signature = `docker network create`
		c.signature = nil
		res := NewHarness(nil).RunCase(context.Background(), c)
		assert.False(t, res.Passed)
		assert.Equal(t, agent.StatusComplete, res.Status)
		assert.Contains(t, res.Reason, "no successful command matches")
	})

	t.Run("setup failure", func(t *testing.T) {
		c := builtinCase(t, "container-detached-from-network")
		c.Setup = []string{"docker network disconnect appnet ghost"}
		res := NewHarness(nil).RunCase(context.Background(), c)
		assert.False(t, res.Passed)
		assert.Contains(t, res.Reason, "setup")
		assert.Empty(t, res.Commands)
	})
}

func TestHarness_TeardownRuns(t *testing.T) {
	c := builtinCase(t, "ip-forwarding-disabled")
	var host *SimHost
	h := NewHarness([]Case{c}, WithHostFactory(func() shell.Backend {
		host = NewSimHost()
		return host
	}))

	report := h.Run(context.Background())
	require.True(t, report.Passed())
	history := host.History()
	assert.Equal(t, "sysctl -w net.ipv4.ip_forward=0", history[0])
	assert.Equal(t, "sysctl -w net.ipv4.ip_forward=1", history[len(history)-1])
}

func TestHarness_Interrupted(t *testing.T) {
	cases, err := Builtin()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := NewHarness(cases).Run(ctx)
	require.Len(t, report.Results, len(cases))
	assert.False(t, report.Passed())
	for _, res := range report.Results {
		assert.Equal(t, agent.StatusAborted, res.Status)
	}
	assert.False(t, Report{}.Passed())
}
