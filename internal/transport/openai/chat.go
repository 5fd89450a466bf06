package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/hanwool-labs/docchat/internal/domain"
	"github.com/hanwool-labs/docchat/internal/metrics"
)

var (
	_ domain.Completer = (*ChatClient)(nil)
	_ domain.Streamer  = (*ChatClient)(nil)
)

// ChatClient calls an OpenAI-compatible chat completion API. A process-wide
// weighted semaphore bounds the number of simultaneous upstream calls; calls
// beyond the limit queue rather than fail. A streaming call holds its slot
// until the stream is closed.
type ChatClient struct {
	client      *openai.Client
	model       string
	rerankModel string
	sem         *semaphore.Weighted
	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration
	logger      *zap.Logger
}

// ChatConfig holds completion provider settings.
type ChatConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	RerankModel    string
	MaxConcurrent  int64
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	Logger         *zap.Logger
}

// NewChatClient creates an OpenAI-compatible chat client.
func NewChatClient(cfg *ChatConfig) *ChatClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	baseDelay := cfg.RetryBaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	maxDelay := cfg.RetryMaxDelay
	if maxDelay <= 0 {
		maxDelay = 8 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ChatClient{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		rerankModel: cfg.RerankModel,
		sem:         semaphore.NewWeighted(maxConcurrent),
		maxRetries:  cfg.MaxRetries,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		logger:      logger,
	}
}

// Model returns the default completion model name.
func (c *ChatClient) Model() string { return c.model }

// RerankModel returns the model used for relevance scoring. Falls back to the
// default model when no dedicated rerank model is configured.
func (c *ChatClient) RerankModel() string {
	if c.rerankModel != "" {
		return c.rerankModel
	}
	return c.model
}

// Complete issues a synchronous chat completion and returns the message text.
func (c *ChatClient) Complete(ctx context.Context, model string, msgs []domain.ChatMessage, opts domain.ChatOptions) (string, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("acquire completion slot: %w", err)
	}
	defer c.sem.Release(1)

	req := c.buildRequest(model, msgs, opts)

	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, func() error {
		start := time.Now()
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, req)
		c.record(model, "complete", start, callErr)
		return callErr
	})
	if err != nil {
		return "", parseAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response: %w", domain.ErrUpstreamUnavailable)
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream opens a streaming chat completion. The returned stream must be
// closed by the caller; the concurrency slot is released on close.
func (c *ChatClient) Stream(ctx context.Context, model string, msgs []domain.ChatMessage, opts domain.ChatOptions) (domain.TokenStream, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire completion slot: %w", err)
	}

	req := c.buildRequest(model, msgs, opts)
	req.Stream = true

	start := time.Now()
	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		c.record(model, "stream", start, err)
		c.sem.Release(1)
		return nil, parseAPIError(err)
	}
	c.record(model, "stream", start, nil)

	return &Stream{inner: stream, release: func() { c.sem.Release(1) }}, nil
}

// HealthCheck probes the provider with a model listing. It does not take a
// concurrency-limiter slot.
func (c *ChatClient) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return parseAPIError(err)
	}
	return nil
}

func (c *ChatClient) buildRequest(model string, msgs []domain.ChatMessage, opts domain.ChatOptions) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	}
	if opts.JSONMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return req
}

// withRetry retries fn with exponential backoff, only on rate-limit or
// server-class errors. Other failures return immediately.
func (c *ChatClient) withRetry(ctx context.Context, fn func() error) error {
	delay := c.baseDelay
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || attempt >= c.maxRetries || !isRetryable(err) {
			return err
		}

		c.logger.Warn("Retrying completion call",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.maxDelay {
			delay = c.maxDelay
		}
	}
}

func (c *ChatClient) record(model, kind string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestsTotal.WithLabelValues(model, kind, status).Inc()
	if err == nil {
		metrics.LLMRequestDuration.WithLabelValues(model, kind).Observe(time.Since(start).Seconds())
	}
}

// Stream wraps the provider stream and ties the concurrency-limiter slot to
// its lifetime.
type Stream struct {
	inner   *openai.ChatCompletionStream
	release func()
	closed  bool
}

// Recv returns the next text delta. io.EOF signals normal stream end.
func (s *Stream) Recv() (string, error) {
	resp, err := s.inner.Recv()
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Delta.Content, nil
}

// Close releases the underlying stream and the limiter slot. Safe to call twice.
func (s *Stream) Close() {
	if s.closed {
		return
	}
	s.closed = true
	_ = s.inner.Close()
	s.release()
}

// isRetryable reports whether the error is a rate-limit or server-class API error.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	return false
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain sentinels for uniform fallback handling.
func parseAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		wrap := domain.ErrUpstreamUnavailable
		if apiErr.HTTPStatusCode == 429 {
			wrap = domain.ErrRateLimited
		}
		return fmt.Errorf("completion API error %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("completion API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), domain.ErrUpstreamUnavailable)
	}

	return fmt.Errorf("completion request failed: %w", domain.ErrUpstreamUnavailable)
}
