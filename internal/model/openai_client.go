package model

import (
	"context"
	"errors"

	oa "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/tmalldedede/agentbox/internal/apperr"
	"github.com/tmalldedede/agentbox/internal/logger"
)

var log = logger.Module("model.openai")

// OpenAIConfig configures the external-model collaborator, backed here
// by a real provider rather than a deterministic stub.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIClient implements Client against the Chat Completions endpoint.
type OpenAIClient struct {
	client oa.Client
	model  string
}

// NewOpenAIClient builds a Client from cfg, applying the API key and
// optional custom base URL (for OpenAI-compatible proxies) the way the
// corpus's batch client does.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	m := cfg.Model
	if m == "" {
		m = oa.ChatModelGPT4oMini
	}
	return &OpenAIClient{client: oa.NewClient(opts...), model: m}
}

func (c *OpenAIClient) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	temp := params.Temperature
	if temp == 0 {
		temp = 0.2
	}

	completion, err := c.client.Chat.Completions.New(ctx, oa.ChatCompletionNewParams{
		Model: c.model,
		Messages: []oa.ChatCompletionMessageParamUnion{
			oa.UserMessage(prompt),
		},
		Temperature: oa.Float(temp),
	})
	if err != nil {
		log.Warn("chat completion failed", "error", err)
		return "", classify(err)
	}
	if len(completion.Choices) == 0 {
		return "", apperr.TransientModel(errors.New("empty completion"))
	}
	return completion.Choices[0].Message.Content, nil
}

// classify turns a raw error from the OpenAI SDK into the app's own error
// taxonomy, using the corpus's reason-based failover classifier to decide
// whether RetryingClient should treat it as transient. Auth/bad-request/
// context-window failures are never worth retrying; rate-limit, overload,
// timeout and network errors are.
func classify(err error) error {
	fe := apperr.ClassifyError(err)
	if fe.Retryable {
		return apperr.TransientModel(err)
	}
	switch fe.Reason {
	case apperr.ReasonAuthFailed:
		return apperr.Wrap(err, "model authentication failed")
	case apperr.ReasonContextWindow:
		return apperr.BadRequest("prompt exceeds model context window")
	case apperr.ReasonBadRequest:
		return apperr.BadRequest(fe.Message)
	default:
		return apperr.Fatal(err)
	}
}

// RateLimited wraps c with a token-bucket limiter, matching the corpus's
// rate-limiting middleware pattern for external-model backpressure.
func (c *OpenAIClient) RateLimited(ratePerSecond float64, burst int) Client {
	return NewRateLimitedClient(c, ratePerSecond, burst)
}

// OpenAIEmbedder implements Embedder against the Embeddings endpoint,
// sharing the same underlying client as OpenAIClient.
type OpenAIEmbedder struct {
	client oa.Client
	model  string
}

func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	opts := []option.RequestOption{}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	m := cfg.Model
	if m == "" {
		m = "text-embedding-3-small"
	}
	return &OpenAIEmbedder{client: oa.NewClient(opts...), model: m}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, len(texts))
	copy(inputs, texts)

	resp, err := e.client.Embeddings.New(ctx, oa.EmbeddingNewParams{
		Model: e.model,
		Input: oa.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	})
	if err != nil {
		return nil, classify(err)
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}
