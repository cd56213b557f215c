package planner

import (
	"context"
	"testing"

	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScripted(t *testing.T) {
	first := []model.PlannedAction{{Command: "ip route"}}
	second := []model.PlannedAction{{Command: "ip route add default via 10.0.0.1"}, {Command: "ip route show default", ExpectSignal: "default"}}
	s := NewScripted(first, second)
	ctx := context.Background()

	got, err := s.Propose(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = s.Propose(ctx, Request{})
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.Equal(t, 2, s.Calls())

	_, err = s.Propose(ctx, Request{})
	assert.ErrorIs(t, err, ErrScriptExhausted)
}

func TestScripted_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScripted([]model.PlannedAction{{Command: "true"}}).Propose(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRenderRequest(t *testing.T) {
	req := Request{
		Problem:     "container web has no internet",
		Diagnostics: "[network] $ ip route (exit 0)",
		History: []model.Step{
			{Action: model.PlannedAction{Command: "docker exec web ip route"}, Result: model.ExecutionResult{ExitCode: 0, Stdout: "172.17.0.0/16 dev eth0\n"}},
			{Action: model.PlannedAction{Command: "sleep 99"}, Result: model.ExecutionResult{TimedOut: true, ExitCode: 124}},
			{Action: model.PlannedAction{Command: "docker exec <c> true"}, Result: model.ExecutionResult{Skipped: true, SkipReason: "unfilled placeholder"}},
		},
	}
	text := renderRequest(req)
	assert.Contains(t, text, "Problem: container web has no internet")
	assert.Contains(t, text, "Diagnostics snapshot:")
	assert.Contains(t, text, "1. $ docker exec web ip route [exit 0]")
	assert.Contains(t, text, "2. $ sleep 99 [timed out]")
	assert.Contains(t, text, "3. $ docker exec <c> true [skipped: unfilled placeholder]")

	assert.Contains(t, renderRequest(Request{Problem: "x"}), "No commands have been run yet.")
}
