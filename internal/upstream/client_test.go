package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(failures uint32) *Client {
	return New(Config{
		Name:            "test",
		UserAgent:       "site-test",
		MaxBodyBytes:    64,
		BreakerFailures: failures,
		BreakerOpen:     time.Minute,
	}, NewHTTPClient(NewTransport(), 5*time.Second), zap.NewNop())
}

func TestGetReturnsBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.UserAgent()))
	}))
	defer srv.Close()

	body, err := newTestClient(3).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "site-test", string(body))
}

func TestGetNon2xxIsStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(3).Get(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrUnavailable)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestGetRejectsOversizedBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 65)))
	}))
	defer srv.Close()

	_, err := newTestClient(3).Get(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := newTestClient(2)
	for range 2 {
		_, err := client.Get(context.Background(), srv.URL)
		require.Error(t, err)
	}
	_, err := client.Get(context.Background(), srv.URL)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.Equal(t, int32(2), hits.Load(), "open breaker short-circuits")
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(1)
	for range 3 {
		_, err := client.Get(context.Background(), srv.URL)
		var statusErr *StatusError
		require.ErrorAs(t, err, &statusErr)
		require.NotErrorIs(t, err, gobreaker.ErrOpenState)
	}
}

func TestDoWrapsArbitraryFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("parse failed")
	_, err := newTestClient(3).Do(context.Background(), func(context.Context) ([]byte, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, boom)
}

func TestIsSuccessful(t *testing.T) {
	t.Parallel()

	require.True(t, isSuccessful(nil))
	require.True(t, isSuccessful(&StatusError{StatusCode: http.StatusNotFound}))
	require.False(t, isSuccessful(&StatusError{StatusCode: http.StatusTooManyRequests}))
	require.False(t, isSuccessful(&StatusError{StatusCode: http.StatusInternalServerError}))
	require.False(t, isSuccessful(errors.New("dial tcp")))
	require.True(t, isSuccessful(context.Canceled))
	require.True(t, isSuccessful(&callerDoneError{err: context.DeadlineExceeded}))
	require.False(t, isSuccessful(context.DeadlineExceeded), "upstream timeouts still count")
}

func TestAbandonedRequestsDoNotTripBreaker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("slow") {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client := newTestClient(2)
	for range 3 {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err := client.Get(ctx, srv.URL+"?slow=1")
		cancel()
		require.ErrorIs(t, err, context.DeadlineExceeded)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Get(ctx, srv.URL+"?slow=1")
	require.ErrorIs(t, err, context.Canceled)

	body, err := client.Get(context.Background(), srv.URL)
	require.NoError(t, err, "breaker must stay closed after callers give up")
	require.Equal(t, "ok", string(body))
}
