package source

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-aggregator/internal/policy/retry"
	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

type scriptedStep struct {
	status int
	body   string
	err    error
}

// scriptedRequester replays steps in order and repeats the last one.
type scriptedRequester struct {
	mu    sync.Mutex
	steps []scriptedStep
	calls int
}

func (s *scriptedRequester) Do(ctx context.Context, req profile.FetchRequest) (profile.FetchResponse, error) {
	s.mu.Lock()
	idx := s.calls
	if idx >= len(s.steps) {
		idx = len(s.steps) - 1
	}
	s.calls++
	step := s.steps[idx]
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return profile.FetchResponse{}, err
	}
	if step.err != nil {
		return profile.FetchResponse{}, step.err
	}
	return profile.FetchResponse{URL: req.URL, StatusCode: step.status, Body: []byte(step.body)}, nil
}

func (s *scriptedRequester) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type countingLimiter struct {
	mu   sync.Mutex
	urls []string
}

func (l *countingLimiter) Wait(_ context.Context, url string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.urls = append(l.urls, url)
	return nil
}

func fastPolicy(retries int) *retry.ExponentialPolicy {
	return retry.NewExponentialPolicy(retry.Config{
		MaxRetries: retries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	})
}

func TestClientRetriesServerErrorsThenSucceeds(t *testing.T) {
	t.Parallel()

	req := &scriptedRequester{steps: []scriptedStep{
		{status: http.StatusServiceUnavailable, body: "busy"},
		{status: http.StatusTooManyRequests, body: "slow down"},
		{status: http.StatusOK, body: `"ok"`},
	}}
	limiter := &countingLimiter{}
	client := NewClient(req, ClientOptions{Policy: fastPolicy(2), Limiter: limiter})

	body, err := client.Fetch(context.Background(), profile.SourceIBAN, profile.FetchRequest{URL: "https://randommer.io/api/Finance/Iban/FR"})
	require.NoError(t, err)
	assert.Equal(t, `"ok"`, string(body))
	assert.Equal(t, 3, req.Calls())
	assert.Len(t, limiter.urls, 3)
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	req := &scriptedRequester{steps: []scriptedStep{{status: http.StatusBadGateway, body: "bad gateway"}}}
	client := NewClient(req, ClientOptions{Policy: fastPolicy(2)})

	_, err := client.Fetch(context.Background(), profile.SourceCard, profile.FetchRequest{URL: "https://randommer.io/api/Card"})
	require.Error(t, err)

	var fe *profile.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, profile.SourceCard, fe.Source)
	assert.Equal(t, profile.FailureStatus, fe.Kind)
	assert.Equal(t, http.StatusBadGateway, fe.Status)
	assert.Equal(t, 3, req.Calls())
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	req := &scriptedRequester{steps: []scriptedStep{{status: http.StatusUnauthorized, body: "missing key"}}}
	client := NewClient(req, ClientOptions{Policy: fastPolicy(3)})

	_, err := client.Fetch(context.Background(), profile.SourcePhone, profile.FetchRequest{URL: "https://randommer.io/api/Phone/Generate"})
	var fe *profile.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusUnauthorized, fe.Status)
	assert.Contains(t, fe.Error(), "missing key")
	assert.Equal(t, 1, req.Calls())
}

func TestClientRetriesTransportErrors(t *testing.T) {
	t.Parallel()

	req := &scriptedRequester{steps: []scriptedStep{
		{err: errors.New("connection reset by peer")},
		{status: http.StatusOK, body: "[]"},
	}}
	client := NewClient(req, ClientOptions{Policy: fastPolicy(1)})

	body, err := client.Fetch(context.Background(), profile.SourceQuote, profile.FetchRequest{URL: "https://zenquotes.io/api/random"})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, 2, req.Calls())
}

func TestClientWithoutRetriesFailsOnce(t *testing.T) {
	t.Parallel()

	req := &scriptedRequester{steps: []scriptedStep{{err: errors.New("dial tcp: refused")}}}
	client := NewClient(req, ClientOptions{})

	_, err := client.Fetch(context.Background(), profile.SourceJoke, profile.FetchRequest{URL: "https://v2.jokeapi.dev/joke/Any"})
	var fe *profile.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, profile.FailureNetwork, fe.Kind)
	assert.Equal(t, 1, req.Calls())
}

func TestClientStopsOnCancellation(t *testing.T) {
	t.Parallel()

	req := &scriptedRequester{steps: []scriptedStep{{status: http.StatusOK, body: "x"}}}
	limiter := &countingLimiter{}
	client := NewClient(req, ClientOptions{Policy: fastPolicy(5), Limiter: limiter})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Fetch(ctx, profile.SourcePet, profile.FetchRequest{URL: "https://randommer.io/pet-names"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, req.Calls(), "canceled fetch must not reach the requester")
	assert.Empty(t, limiter.urls)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", truncate([]byte("abc"), 5))
	assert.Equal(t, "ab...", truncate([]byte("abcdef"), 2))
}
