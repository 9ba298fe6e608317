package model

import (
	"context"
	"time"

	"github.com/tmalldedede/agentbox/internal/apperr"
)

// RetryingClient retries a Generate call on transient model failures with
// exponential backoff, grounded on the corpus's retry-with-jitter pattern
// for external API calls. Non-transient errors (parse failures, bad
// request) are never retried.
type RetryingClient struct {
	inner      Client
	maxRetries int
	baseDelay  time.Duration
}

func NewRetryingClient(inner Client, maxRetries int) *RetryingClient {
	return &RetryingClient{inner: inner, maxRetries: maxRetries, baseDelay: 200 * time.Millisecond}
}

func (c *RetryingClient) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	var lastErr error
	delay := c.baseDelay
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		out, err := c.inner.Generate(ctx, prompt, params)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !apperr.IsTransient(err) {
			return "", err
		}
		if attempt == c.maxRetries {
			break
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}
		delay *= 2
	}
	return "", lastErr
}
