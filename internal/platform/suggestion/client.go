// Package suggestion is the boundary to an external text-generation service
// used for advisory content (drug-interaction and dosage notes). Calls are
// synchronous with a hard timeout; every failure collapses into
// ErrUnavailable so callers can only ever degrade, never break.
package suggestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ErrUnavailable is the only error Suggest returns. The underlying cause is
// logged, not propagated.
var ErrUnavailable = errors.New("suggestion service unavailable")

type Config struct {
	URL     string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Enabled reports whether the adapter is configured to make calls at all.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != "" && c.cfg.URL != ""
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Suggest sends a single prompt to the configured chat-completions endpoint
// and returns the suggestion text. On timeout, transport failure, non-2xx
// status, or an empty response it returns ErrUnavailable.
func (c *Client) Suggest(ctx context.Context, prompt string) (string, error) {
	if !c.Enabled() {
		return "", ErrUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   1000,
		Temperature: 0.1,
	})
	if err != nil {
		return "", c.unavailable(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", c.unavailable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", c.unavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return "", c.unavailable(fmt.Errorf("status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", c.unavailable(err)
	}

	if len(parsed.Choices) == 0 {
		return "", c.unavailable(errors.New("empty choices"))
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", c.unavailable(errors.New("empty suggestion"))
	}

	return text, nil
}

func (c *Client) unavailable(cause error) error {
	c.logger.Warn().Err(cause).Str("model", c.cfg.Model).Msg("suggestion call failed")
	return ErrUnavailable
}
