package planner

import (
	"testing"

	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, false},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"surrounded by prose", "Sure! {\"a\":1} hope that helps", `{"a":1}`, false},
		{"no object", "I cannot help", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePlan(t *testing.T) {
	t.Run("string commands with expect on last", func(t *testing.T) {
		actions, err := parsePlan(`{"explanation":"1. check routes","commands":["ip route","ip route add default via 10.0.0.1"],"expect":"default via"}`)
		require.NoError(t, err)
		assert.Equal(t, []model.PlannedAction{
			{Command: "ip route", Rationale: "1. check routes"},
			{Command: "ip route add default via 10.0.0.1", Rationale: "1. check routes", ExpectSignal: "default via"},
		}, actions)
	})

	t.Run("object commands", func(t *testing.T) {
		actions, err := parsePlan(`{"explanation":"plan","commands":[{"command":"ss -tlnp","rationale":"list sockets"},{"command":"curl -s localhost:8080","expect":"200"}]}`)
		require.NoError(t, err)
		require.Len(t, actions, 2)
		assert.Equal(t, "list sockets", actions[0].Rationale)
		assert.Equal(t, "plan", actions[1].Rationale)
		assert.Equal(t, "200", actions[1].ExpectSignal)
	})

	t.Run("blank commands dropped", func(t *testing.T) {
		actions, err := parsePlan(`{"commands":["  ", "uptime"]}`)
		require.NoError(t, err)
		assert.Len(t, actions, 1)
	})

	t.Run("empty array is not an error", func(t *testing.T) {
		actions, err := parsePlan(`{"explanation":"nothing to do","commands":[]}`)
		require.NoError(t, err)
		assert.Empty(t, actions)
	})

	t.Run("missing commands", func(t *testing.T) {
		_, err := parsePlan(`{"explanation":"hmm"}`)
		assert.Error(t, err)
	})

	t.Run("bad entry type", func(t *testing.T) {
		_, err := parsePlan(`{"commands":[42]}`)
		assert.Error(t, err)
	})
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  model.Decision
	}{
		{"done", `{"done":true,"summary":"route restored"}`, model.DecisionComplete},
		{"continue", `{"done":false}`, model.DecisionContinue},
		{"give up", `{"done":false,"give_up":true,"reason":"hardware fault"}`, model.DecisionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseVerdict(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Decision)
		})
	}

	_, err := parseVerdict("not json")
	assert.Error(t, err)
}
