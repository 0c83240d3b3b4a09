package llm

import (
	"context"
	"strings"
	"time"

	loomerrors "loom/internal/errors"
	"loom/internal/logging"
)

// retryClient wraps a Client with classification-aware retry logic. It is the
// only place a generative call is invoked from inside pipeline stages.
type retryClient struct {
	underlying     Client
	retryConfig    loomerrors.RetryConfig
	defaultTimeout time.Duration
	logger         logging.Logger
}

var _ Client = (*retryClient)(nil)

// WrapWithRetry decorates a client with retry/backoff. defaultTimeout bounds
// each individual attempt when the request does not set its own.
func WrapWithRetry(client Client, retryConfig loomerrors.RetryConfig, defaultTimeout time.Duration) Client {
	if defaultTimeout <= 0 {
		defaultTimeout = 60 * time.Second
	}
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		defaultTimeout: defaultTimeout,
		logger:         logging.NewComponentLogger("llm-retry"),
	}
}

// Generate executes the call with per-attempt timeouts and exponential
// backoff on transient failures.
func (c *retryClient) Generate(ctx context.Context, req Request) (string, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	startTime := time.Now()

	text, err := loomerrors.RetryWithResultAndLog(ctx, c.retryConfig, func(ctx context.Context) (string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		response, genErr := c.underlying.Generate(attemptCtx, req)
		if genErr != nil {
			return "", classifyGenerationError(genErr)
		}
		return response, nil
	}, c.logger)

	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("Generation failed after retries (took %v): %v", duration, err)
		return "", err
	}

	if duration > 5*time.Second {
		c.logger.Debug("Generation succeeded after %v", duration)
	}

	return text, nil
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}

// classifyGenerationError tags provider errors so the retry loop can decide
// between backoff and immediate failure.
func classifyGenerationError(err error) error {
	if err == nil {
		return nil
	}

	lowerErr := strings.ToLower(err.Error())

	if strings.Contains(lowerErr, "429") || strings.Contains(lowerErr, "rate limit") {
		return loomerrors.NewTransientError(err, "generation rate limit reached, retrying with backoff")
	}

	for _, marker := range []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout"} {
		if strings.Contains(lowerErr, marker) {
			return loomerrors.NewTransientError(err, "generation backend unavailable, retrying")
		}
	}

	if strings.Contains(lowerErr, "timeout") || strings.Contains(lowerErr, "deadline exceeded") {
		return loomerrors.NewTransientError(err, "generation timed out, retrying with backoff")
	}

	for _, marker := range []string{"connection refused", "connection reset", "broken pipe", "network", "dns"} {
		if strings.Contains(lowerErr, marker) {
			return loomerrors.NewTransientError(err, "network error reaching generation backend, retrying")
		}
	}

	if strings.Contains(lowerErr, "401") || strings.Contains(lowerErr, "unauthorized") {
		return loomerrors.NewPermanentError(err, "generation authentication failed, check the API key")
	}

	if strings.Contains(lowerErr, "403") || strings.Contains(lowerErr, "forbidden") {
		return loomerrors.NewPermanentError(err, "access to the generation model is forbidden")
	}

	if strings.Contains(lowerErr, "400") || strings.Contains(lowerErr, "bad request") {
		return loomerrors.NewPermanentError(err, "generation request was rejected as invalid")
	}

	// Leave classification to errors.IsTransient defaults.
	return err
}
