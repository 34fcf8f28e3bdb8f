// Package delivery posts assembled aggregates to the ingestion endpoint.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-aggregator/internal/profile"
	"github.com/JakeFAU/profile-aggregator/internal/telemetry"
)

// Receipt describes the ingestion endpoint's answer to a delivery.
type Receipt struct {
	Status   int           `json:"status"`
	Body     string        `json:"body"`
	Duration time.Duration `json:"duration"`
}

// Client submits aggregates with a single POST. It never retries; a failed
// delivery is routed to the fallback by the caller.
type Client struct {
	requester profile.Requester
	url       string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewClient builds a delivery client for url.
func NewClient(requester profile.Requester, url string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if requester == nil {
		return nil, fmt.Errorf("delivery requester is required")
	}
	if url == "" {
		return nil, fmt.Errorf("delivery url is required")
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{requester: requester, url: url, timeout: timeout, logger: logger}, nil
}

// URL returns the ingestion endpoint.
func (c *Client) URL() string {
	return c.url
}

// Submit posts agg as JSON. Any 2xx status is a success; anything else,
// including transport failures, is a *profile.DeliveryError.
func (c *Client) Submit(ctx context.Context, agg profile.Aggregate) (Receipt, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "delivery.submit", trace.WithAttributes(attribute.String("url", c.url)))
	defer span.End()

	payload, err := json.Marshal(agg)
	if err != nil {
		return Receipt{}, &profile.DeliveryError{Err: fmt.Errorf("encode aggregate: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Accept", "application/json")

	resp, err := c.requester.Do(ctx, profile.FetchRequest{
		Method:  http.MethodPost,
		URL:     c.url,
		Headers: headers,
		Body:    payload,
	})
	if err != nil {
		telemetry.ObserveDelivery(0)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		c.logger.Warn("delivery transport failure", zap.String("url", c.url), zap.Error(err))
		return Receipt{}, &profile.DeliveryError{Err: err}
	}

	receipt := Receipt{Status: resp.StatusCode, Body: string(resp.Body), Duration: resp.Duration}
	telemetry.ObserveDelivery(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	c.logger.Info("delivery response",
		zap.String("url", c.url),
		zap.Int("status", resp.StatusCode),
		zap.String("body", receipt.Body),
		zap.Duration("duration", resp.Duration),
	)

	if !resp.IsSuccess() {
		span.SetStatus(codes.Error, "non-2xx response")
		return receipt, &profile.DeliveryError{Status: resp.StatusCode, Body: receipt.Body}
	}
	return receipt, nil
}
