// Package webhook provides the HTTP webhook caller used by webhook steps.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Caller posts JSON payloads with a per-call timeout. The response body is
// drained and discarded; only the status code matters to the engine.
type Caller struct {
	client *http.Client
	logger *slog.Logger
}

func NewCaller(logger *slog.Logger) *Caller {
	return &Caller{
		client: &http.Client{},
		logger: logger.With("module", "webhook_caller"),
	}
}

func (c *Caller) PostJSON(ctx context.Context, url string, payload map[string]any, timeout time.Duration) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	c.logger.DebugContext(ctx, "Webhook delivered", "url", url, "status", resp.StatusCode)

	return resp.StatusCode, nil
}
