package source

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-aggregator/internal/policy/retry"
	"github.com/JakeFAU/profile-aggregator/internal/profile"
	"github.com/JakeFAU/profile-aggregator/internal/telemetry"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 256
)

// Limiter throttles outbound requests by URL.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// ClientOptions tunes a Client. Zero values pick safe defaults: no retries,
// no rate limiting, a 15s attempt timeout and a no-op logger.
type ClientOptions struct {
	Policy  *retry.ExponentialPolicy
	Limiter Limiter
	Timeout time.Duration
	Logger  *zap.Logger
}

// Client performs source requests and classifies their failures.
type Client struct {
	requester profile.Requester
	policy    *retry.ExponentialPolicy
	limiter   Limiter
	timeout   time.Duration
	logger    *zap.Logger
}

// NewClient wires a requester with retry, rate limiting and timeouts.
func NewClient(requester profile.Requester, opts ClientOptions) *Client {
	c := &Client{
		requester: requester,
		policy:    opts.Policy,
		limiter:   opts.Limiter,
		timeout:   opts.Timeout,
		logger:    opts.Logger,
	}
	if c.policy == nil {
		c.policy = retry.NewExponentialPolicy(retry.Config{})
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Fetch returns the body of a 2xx response for the named source. Every
// failure is a *profile.FetchError.
func (c *Client) Fetch(ctx context.Context, name profile.SourceName, req profile.FetchRequest) ([]byte, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "source.fetch", trace.WithAttributes(
		attribute.String("source", string(name)),
		attribute.String("url", req.URL),
	))
	defer span.End()

	start := time.Now()
	body, err := c.fetchWithRetry(ctx, name, req)
	status := "success"
	if err != nil {
		status = string(profile.AsFetchError(name, err).Kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	telemetry.ObserveSourceFetch(string(name), status, time.Since(start))
	return body, err
}

func (c *Client) fetchWithRetry(ctx context.Context, name profile.SourceName, req profile.FetchRequest) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		body, err := c.attempt(ctx, name, req)
		if err == nil {
			c.logger.Debug("source fetched",
				zap.String("source", string(name)),
				zap.String("url", req.URL),
				zap.Int("attempt", attempt),
			)
			return body, nil
		}
		if !c.policy.ShouldRetry(err, attempt) {
			return nil, err
		}
		delay := c.policy.Backoff(attempt)
		telemetry.ObserveSourceRetry(string(name))
		c.logger.Warn("retrying source fetch",
			zap.String("source", string(name)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if sleepErr := retry.Sleep(ctx, delay); sleepErr != nil {
			return nil, err
		}
	}
}

func (c *Client) attempt(ctx context.Context, name profile.SourceName, req profile.FetchRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &profile.FetchError{Source: name, Kind: profile.FailureNetwork, Err: err}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, req.URL); err != nil {
			return nil, &profile.FetchError{Source: name, Kind: profile.FailureNetwork, Err: err}
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.requester.Do(attemptCtx, req)
	if err != nil {
		return nil, &profile.FetchError{Source: name, Kind: profile.FailureNetwork, Err: err}
	}
	if !resp.IsSuccess() {
		return nil, &profile.FetchError{
			Source: name,
			Kind:   profile.FailureStatus,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("unexpected response %q", truncate(resp.Body, maxErrorBody)),
		}
	}
	return resp.Body, nil
}

func truncate(body []byte, limit int) string {
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
