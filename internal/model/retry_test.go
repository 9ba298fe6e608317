package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tmalldedede/agentbox/internal/apperr"
)

type countingClient struct {
	calls int
	errs  []error
	out   string
}

func (c *countingClient) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) {
		return "", c.errs[i]
	}
	return c.out, nil
}

func TestRetryingClient_RetriesTransientModelFailures(t *testing.T) {
	inner := &countingClient{
		errs: []error{apperr.TransientModel(errors.New("rate limited")), apperr.TransientModel(errors.New("rate limited"))},
		out:  "ok",
	}
	c := NewRetryingClient(inner, 2)
	c.baseDelay = 0

	out, err := c.Generate(context.Background(), "prompt", Params{})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 3, inner.calls)
}

func TestRetryingClient_StopsRetryingOnNonTransientFailure(t *testing.T) {
	inner := &countingClient{errs: []error{apperr.BadRequest("bad prompt")}}
	c := NewRetryingClient(inner, 3)
	c.baseDelay = 0

	_, err := c.Generate(context.Background(), "prompt", Params{})
	require.Error(t, err)
	require.Equal(t, apperr.TypeBadRequest, apperr.GetType(err))
	require.Equal(t, 1, inner.calls)
}

func TestRetryingClient_GivesUpAfterMaxRetries(t *testing.T) {
	transient := func() error { return apperr.TransientModel(errors.New("still down")) }
	inner := &countingClient{errs: []error{transient(), transient(), transient()}}
	c := NewRetryingClient(inner, 2)
	c.baseDelay = 0

	_, err := c.Generate(context.Background(), "prompt", Params{})
	require.Error(t, err)
	require.True(t, apperr.IsTransient(err))
	require.Equal(t, 3, inner.calls)
}

func TestRetryingClient_CancelledContextStopsRetryLoop(t *testing.T) {
	inner := &countingClient{errs: []error{apperr.TransientModel(errors.New("down"))}}
	c := NewRetryingClient(inner, 5)
	c.baseDelay = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Generate(ctx, "prompt", Params{})
	require.Error(t, err)
}
