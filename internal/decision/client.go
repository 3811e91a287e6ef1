package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"aitrader/internal/errors"
	"aitrader/internal/safety"
	"aitrader/pkg/types"
)

// ClientConfig configures the AI decision service client.
type ClientConfig struct {
	Endpoint   string        `json:"endpoint"`
	Model      string        `json:"model"`
	APIKeys    []string      `json:"api_keys"`
	Timeout    time.Duration `json:"-"`
	TimeoutSec int           `json:"timeout_sec"`
	MaxRetries int           `json:"max_retries"`

	SystemPrompt string `json:"system_prompt"`
}

// Client talks to the external AI decision service. Requests rotate
// through the key pool and run behind a circuit breaker so a flapping
// endpoint cannot stall the trading loop.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	keys    *KeyPool
	limiter *safety.RateLimiter
	breaker *safety.CircuitBreaker
}

// NewClient creates a decision service client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		if cfg.TimeoutSec > 0 {
			cfg.Timeout = time.Duration(cfg.TimeoutSec) * time.Second
		} else {
			cfg.Timeout = 30 * time.Second
		}
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		keys:    NewKeyPool(cfg.APIKeys),
		limiter: safety.NewRateLimiter("ai_decision", 10, 2),
		breaker: safety.NewCircuitBreaker("ai_decision", safety.CircuitBreakerConfig{}),
	}
}

// chat mirrors the service's completion schema.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// RequestDecision sends the decision context and parses the reply into
// a DecisionRecord. The caller validates the record; this layer only
// guarantees syntactic well-formedness.
func (c *Client) RequestDecision(ctx context.Context, dctx Context) (types.DecisionRecord, error) {
	var record types.DecisionRecord

	payload, err := json.Marshal(dctx)
	if err != nil {
		return record, fmt.Errorf("failed to marshal decision context: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.cfg.SystemPrompt},
			{Role: "user", Content: string(payload)},
		},
	})
	if err != nil {
		return record, fmt.Errorf("failed to marshal request: %w", err)
	}

	var reply string
	callErr := c.breaker.Call(func() error {
		var innerErr error
		for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt) * time.Second):
				}
			}
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			reply, innerErr = c.post(ctx, body)
			if innerErr == nil {
				return nil
			}
		}
		return innerErr
	})
	if callErr != nil {
		return record, errors.Categorize(callErr, "decision_client", "request")
	}

	raw, err := ExtractJSON(reply)
	if err != nil {
		return record, errors.NewDecisionError("decision_client", "extract_reply", err)
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		return record, errors.NewDecisionError("decision_client", "parse_reply", err)
	}
	return record, nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if key := c.keys.Next(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("decision service returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("invalid completion envelope: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("decision service error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("decision service returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
