package collyfetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-aggregator/internal/profile"
)

func TestFetcherDoGetWithHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		require.Equal(t, "FR", r.URL.Query().Get("CountryCode"))
		require.Equal(t, "coverage-agent", r.UserAgent())
		w.Header().Set("X-Resp", "ok")
		_, _ = w.Write([]byte(`["0612345678"]`))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "coverage-agent", Timeout: time.Second})
	resp, err := f.Do(context.Background(), profile.FetchRequest{
		URL:     srv.URL + "/api/Phone/Generate?CountryCode=FR",
		Headers: http.Header{"X-Api-Key": {"secret"}},
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, `["0612345678"]`, string(resp.Body))
	require.Equal(t, "ok", resp.Headers.Get("X-Resp"))
	require.True(t, resp.IsSuccess())
}

func TestFetcherDoPostForm(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "XMLHttpRequest", r.Header.Get("X-Requested-With"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		values, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		require.Equal(t, "Dog", values.Get("animal"))
		_, _ = w.Write([]byte(`["Rex"]`))
	}))
	defer srv.Close()

	f := New(Config{})
	resp, err := f.Do(context.Background(), profile.FetchRequest{
		Method: http.MethodPost,
		URL:    srv.URL + "/pet-names",
		Headers: http.Header{
			"X-Requested-With": {"XMLHttpRequest"},
			"Content-Type":     {"application/x-www-form-urlencoded"},
		},
		Body: []byte(url.Values{"animal": {"Dog"}, "number": {"1"}}.Encode()),
	})
	require.NoError(t, err)
	require.Equal(t, `["Rex"]`, string(resp.Body))
}

func TestFetcherDoReturnsErrorStatusAsResponse(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	f := New(Config{})
	for i := 0; i < 2; i++ {
		resp, err := f.Do(context.Background(), profile.FetchRequest{URL: srv.URL})
		require.NoError(t, err)
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.Equal(t, "down", string(resp.Body))
		require.False(t, resp.IsSuccess())
	}
}

func TestFetcherDoTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := srv.URL
	srv.Close()

	f := New(Config{Timeout: time.Second})
	_, err := f.Do(context.Background(), profile.FetchRequest{URL: target})
	require.Error(t, err)
}

func TestFetcherDoCanceled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	f := New(Config{Timeout: 5 * time.Second})
	_, err := f.Do(ctx, profile.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetcherDoSkipsRequestWhenAlreadyCanceled(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{}).Do(ctx, profile.FetchRequest{URL: srv.URL})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, hits.Load())
}

func TestFetcherDoCancelAbortsInFlightRequest(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	aborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-r.Context().Done():
			close(aborted)
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := New(Config{Timeout: 10 * time.Second}).Do(ctx, profile.FetchRequest{URL: srv.URL})
		errCh <- err
	}()

	<-started
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream request kept running after cancel")
	}
}

func TestFetcherDoRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}).Do(context.Background(), profile.FetchRequest{})
	require.Error(t, err)
}

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	req := profile.FetchRequest{
		URL:     "https://example.com",
		Headers: http.Header{"X-Trace": {"yes"}},
	}
	var result profile.FetchResponse
	var fetchErr error

	hooks := &stubHooks{}
	f.configureCollectorHooks(context.Background(), hooks, req, time.Unix(0, 0), &result, &fetchErr)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusCreated,
		Body:       []byte("body"),
		Headers:    &http.Header{"X-Resp": {"ok"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	require.Equal(t, http.StatusCreated, result.StatusCode)
	require.Equal(t, "body", string(result.Body))
	require.Equal(t, "ok", result.Headers.Get("X-Resp"))

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}

func TestCopyHeadersHandlesNil(t *testing.T) {
	t.Parallel()

	f := New(Config{})
	collyReq := &colly.Request{Headers: &http.Header{}}
	f.copyHeaders(profile.FetchRequest{}, collyReq)
	require.Empty(t, *collyReq.Headers)
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
