// Package upstream wraps outbound calls to third-party sites with a shared
// HTTP transport, a per-upstream circuit breaker and Prometheus accounting.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/personal-site-api/internal/logging"
	"github.com/JakeFAU/personal-site-api/internal/metrics"
)

// ErrUnavailable marks every failure to get a usable answer from an upstream.
var ErrUnavailable = errors.New("upstream unavailable")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Upstream   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s responded with status %d", e.Upstream, e.StatusCode)
}

// Is lets errors.Is(err, ErrUnavailable) match status failures.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnavailable
}

// Config tunes one upstream client.
type Config struct {
	Name            string
	UserAgent       string
	MaxBodyBytes    int64
	BreakerFailures uint32
	BreakerOpen     time.Duration
}

// Client performs breaker-guarded calls against a single upstream.
type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	logger  *zap.Logger
}

// NewTransport builds the pooled transport shared by every outbound client.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
}

// NewHTTPClient returns an http.Client over transport with the given timeout.
func NewHTTPClient(transport http.RoundTripper, timeout time.Duration) *http.Client {
	return &http.Client{Transport: transport, Timeout: timeout}
}

// New wires a Client. httpClient is shared; the breaker is private to this upstream.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5 << 20
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpen <= 0 {
		cfg.BreakerOpen = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(NewTransport(), 15*time.Second)
	}
	logger = logging.OrNop(logger).With(zap.String("upstream", cfg.Name))

	metrics.SetBreakerOpen(cfg.Name, false)
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			metrics.SetBreakerOpen(name, to == gobreaker.StateOpen)
		},
		IsSuccessful: isSuccessful,
	})

	return &Client{cfg: cfg, http: httpClient, breaker: breaker, logger: logger}
}

// callerDoneError marks a failure that happened after the caller's context ended.
type callerDoneError struct{ err error }

func (e *callerDoneError) Error() string { return e.err.Error() }

func (e *callerDoneError) Unwrap() error { return e.err }

// isSuccessful keeps client errors (4xx) and abandoned requests from tripping the breaker.
func isSuccessful(err error) bool {
	if err == nil {
		return true
	}
	var done *callerDoneError
	if errors.As(err, &done) || errors.Is(err, context.Canceled) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 &&
			statusErr.StatusCode != http.StatusTooManyRequests
	}
	return false
}

// Name returns the upstream label.
func (c *Client) Name() string { return c.cfg.Name }

// Get issues a GET and returns the body of a 2xx response.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.Do(ctx, func(ctx context.Context) ([]byte, error) {
		return c.get(ctx, url)
	})
}

// Do runs fn through the breaker and records the outcome. Any failure wraps ErrUnavailable.
func (c *Client) Do(ctx context.Context, fn func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	start := time.Now()
	body, err := c.breaker.Execute(func() ([]byte, error) {
		body, err := fn(ctx)
		if err != nil && ctx.Err() != nil {
			return nil, &callerDoneError{err: err}
		}
		return body, err
	})
	outcome := "ok"
	var done *callerDoneError
	switch {
	case err == nil:
	case errors.As(err, &done):
		outcome = "canceled"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	metrics.ObserveUpstream(c.cfg.Name, outcome, time.Since(start))
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, c.cfg.Name, err)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", c.cfg.Name, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Upstream: c.cfg.Name, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", c.cfg.Name, err)
	}
	if int64(len(body)) > c.cfg.MaxBodyBytes {
		return nil, fmt.Errorf("%s body exceeds %d bytes", c.cfg.Name, c.cfg.MaxBodyBytes)
	}
	return body, nil
}
