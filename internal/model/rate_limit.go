package model

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedClient wraps a Client with a token-bucket limiter so the
// pipeline's batch-level concurrency never exceeds the external model's own
// rate limit. This responsibility lives on the client, not the pipeline:
// the pipeline itself adds nothing beyond retry/backoff.
type RateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimitedClient builds a limiter allowing ratePerSecond requests per
// second with a burst of burst.
func NewRateLimitedClient(inner Client, ratePerSecond float64, burst int) *RateLimitedClient {
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

func (c *RateLimitedClient) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return c.inner.Generate(ctx, prompt, params)
}
