package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	cerr "github.com/cockroachdb/errors"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/logging"
	"github.com/computerscienceiscool/llm-troubleshooter/pkg/model"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ChatConfig configures an OpenAI-compatible chat completions endpoint.
type ChatConfig struct {
	BaseURL           string
	APIKey            string
	Model             string
	Temperature       float64
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	RequestsPerMinute int
}

// ChatClient proposes commands and judges completion through a chat model.
type ChatClient struct {
	cfg     ChatConfig
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *zap.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// statusError is a non-2xx reply.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("planner endpoint returned %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// NewChatClient validates cfg and builds a client.
func NewChatClient(cfg ChatConfig, logger *zap.Logger) (*ChatClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, cerr.New("planner base URL is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, cerr.New("planner model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	logger = logging.OrNop(logger)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "planner",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Planner circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &ChatClient{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}, nil
}

// Propose asks the model for the next commands.
func (c *ChatClient) Propose(ctx context.Context, req Request) ([]model.PlannedAction, error) {
	content, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: renderRequest(req)},
	})
	if err != nil {
		return nil, err
	}
	actions, err := parsePlan(content)
	if err != nil {
		return nil, cerr.Wrap(err, "cannot parse plan")
	}
	c.logger.Debug("Planner proposed actions", zap.Int("count", len(actions)))
	return actions, nil
}

// Verify asks the model whether the problem is resolved.
func (c *ChatClient) Verify(ctx context.Context, req Request) (model.Verdict, error) {
	content, err := c.complete(ctx, []chatMessage{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: renderRequest(req)},
		{Role: "user", Content: verifyPrompt},
	})
	if err != nil {
		return model.Verdict{}, err
	}
	v, err := parseVerdict(content)
	if err != nil {
		return model.Verdict{}, cerr.Wrap(err, "cannot parse verdict")
	}
	return v, nil
}

func (c *ChatClient) complete(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		Messages:    messages,
	})
	if err != nil {
		return "", cerr.Wrap(err, "cannot encode chat request")
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		var lastErr error
		for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
			content, err := c.post(ctx, body)
			if err == nil {
				return content, nil
			}
			lastErr = err
			var se *statusError
			if cerr.As(err, &se) && !se.retryable() {
				break
			}
			c.logger.Warn("Planner request failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			if attempt < c.cfg.MaxRetries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(c.cfg.RetryDelay):
				}
			}
		}
		return nil, lastErr
	})
	if err != nil {
		return "", cerr.Wrap(err, "planner request failed")
	}
	return out.(string), nil
}

func (c *ChatClient) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(snippet))}
	}

	var data chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", cerr.Wrap(err, "cannot decode chat response")
	}
	if len(data.Choices) == 0 {
		return "", cerr.New("chat response has no choices")
	}
	return data.Choices[0].Message.Content, nil
}
