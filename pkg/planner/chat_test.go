package planner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, handler func(w http.ResponseWriter, req chatRequest, call int32)) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		handler(w, req, n)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func reply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
}

func newTestClient(t *testing.T, url string) *ChatClient {
	t.Helper()
	c, err := NewChatClient(ChatConfig{
		BaseURL:    url + "/v1/",
		APIKey:     "test-key",
		Model:      "test-model",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestChatClient_Propose(t *testing.T) {
	srv, calls := chatServer(t, func(w http.ResponseWriter, req chatRequest, call int32) {
		assert.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[1].Content, "port 8080 unreachable")
		reply(w, "```json\n{\"explanation\":\"check firewall\",\"commands\":[\"iptables -S INPUT\"]}\n```")
	})

	actions, err := newTestClient(t, srv.URL).Propose(context.Background(), Request{Problem: "port 8080 unreachable"})
	require.NoError(t, err)
	assert.Equal(t, []model.PlannedAction{{Command: "iptables -S INPUT", Rationale: "check firewall"}}, actions)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestChatClient_RetriesServerErrors(t *testing.T) {
	srv, calls := chatServer(t, func(w http.ResponseWriter, req chatRequest, call int32) {
		if call < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		reply(w, `{"commands":["uptime"]}`)
	})

	actions, err := newTestClient(t, srv.URL).Propose(context.Background(), Request{Problem: "slow"})
	require.NoError(t, err)
	assert.Len(t, actions, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestChatClient_DoesNotRetryClientErrors(t *testing.T) {
	srv, calls := chatServer(t, func(w http.ResponseWriter, req chatRequest, call int32) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	_, err := newTestClient(t, srv.URL).Propose(context.Background(), Request{Problem: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestChatClient_Verify(t *testing.T) {
	srv, _ := chatServer(t, func(w http.ResponseWriter, req chatRequest, call int32) {
		require.Len(t, req.Messages, 3)
		assert.Contains(t, req.Messages[2].Content, "resolved")
		reply(w, `{"done":true,"summary":"default route restored"}`)
	})

	v, err := newTestClient(t, srv.URL).Verify(context.Background(), Request{Problem: "no route"})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionComplete, v.Decision)
	assert.Equal(t, "default route restored", v.Summary)
}

func TestNewChatClient_Validation(t *testing.T) {
	_, err := NewChatClient(ChatConfig{Model: "m"}, nil)
	assert.Error(t, err)
	_, err = NewChatClient(ChatConfig{BaseURL: "http://localhost"}, nil)
	assert.Error(t, err)
}
