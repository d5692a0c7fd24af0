// Package external wraps outbound HTTP calls to third-party services. Every
// request goes through BaseClient, which applies a request-rate floor, circuit
// breaking, optional retries and error mapping to types.AppError.
package external

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"circlemap/internal/types"

	"github.com/sony/gobreaker/v2"
)

// RetryPolicy configures retries on 429 and 5xx responses. MaxRetries of 0
// makes exactly one attempt.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy retries three times with backoff between 500ms and 10s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		MinWait:    500 * time.Millisecond,
		MaxWait:    10 * time.Second,
	}
}

// NoRetryPolicy makes a single attempt per call.
func NoRetryPolicy() RetryPolicy {
	return RetryPolicy{MinWait: 500 * time.Millisecond, MaxWait: 10 * time.Second}
}

// BreakerSettings configures the circuit breaker of a BaseClient.
type BreakerSettings struct {
	Name string
	// ConsecutiveFailures trips the breaker once exceeded.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings trips after more than five consecutive failures and
// probes again after 30s.
func DefaultBreakerSettings(name string) BreakerSettings {
	return BreakerSettings{Name: name, ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// BaseClient wraps an *http.Client with a circuit breaker, a minimum gap
// between requests and a retry policy. Provider clients hold one BaseClient.
type BaseClient struct {
	client      *http.Client
	breaker     *gobreaker.CircuitBreaker[*http.Response]
	retryPolicy RetryPolicy
	userAgent   string
	sleepFn     func(context.Context, time.Duration) error

	minInterval time.Duration
	slotMu      sync.Mutex
	nextSlot    time.Time
}

// BaseClientOption configures a BaseClient.
type BaseClientOption func(*BaseClient)

// WithSleepFunc overrides the wait used between retries and for the
// request-rate floor. Tests use it to avoid real delays.
func WithSleepFunc(fn func(context.Context, time.Duration) error) BaseClientOption {
	return func(c *BaseClient) {
		c.sleepFn = fn
	}
}

// WithMinInterval enforces a minimum gap between consecutive requests made by
// this client. Public Nominatim requires at most one request per second.
func WithMinInterval(d time.Duration) BaseClientOption {
	return func(c *BaseClient) {
		c.minInterval = d
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(cb *gobreaker.CircuitBreaker[*http.Response]) BaseClientOption {
	return func(c *BaseClient) {
		c.breaker = cb
	}
}

// NewBreaker builds a circuit breaker from settings.
func NewBreaker(s BreakerSettings) *gobreaker.CircuitBreaker[*http.Response] {
	threshold := s.ConsecutiveFailures
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})
}

// NewBaseClient creates a BaseClient with the default breaker for name.
func NewBaseClient(
	httpClient *http.Client,
	name string,
	retryPolicy RetryPolicy,
	userAgent string,
	opts ...BaseClientOption,
) *BaseClient {
	bc := &BaseClient{
		client:      httpClient,
		breaker:     NewBreaker(DefaultBreakerSettings(name)),
		retryPolicy: retryPolicy,
		userAgent:   userAgent,
		sleepFn:     sleepContext,
	}
	for _, opt := range opts {
		opt(bc)
	}
	return bc
}

// BreakerState reports the current circuit breaker state.
func (c *BaseClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Do sends the request. It waits for a request slot, sets User-Agent and
// X-Request-ID, runs the call through the breaker and retries 429/5xx
// responses per the retry policy.
//
// Non-429 responses below 500 are returned as-is and the caller closes the
// body. Transport failures, exhausted retries and an open breaker come back as
// *types.AppError with an upstream code.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if reqID := types.GetRequestID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to buffer request body", err)
		}
		_ = req.Body.Close()
	}

	var lastResp *http.Response
	var lastErr error

	attempts := 1 + max(0, c.retryPolicy.MaxRetries)
	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.waitForSlot(ctx); err != nil {
			return nil, c.mapError(nil, err)
		}
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		last := attempt == attempts-1
		if resp != nil {
			if last {
				lastResp = resp
			} else {
				_ = resp.Body.Close()
			}
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		if last {
			break
		}
		if err := c.sleepFn(ctx, c.computeBackoff(attempt, resp)); err != nil {
			lastErr = err
			break
		}
	}

	if lastResp != nil {
		_ = lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// waitForSlot blocks until minInterval has passed since the previous slot was
// handed out, or ctx ends.
func (c *BaseClient) waitForSlot(ctx context.Context) error {
	if c.minInterval <= 0 {
		return ctx.Err()
	}
	for {
		c.slotMu.Lock()
		wait := time.Until(c.nextSlot)
		if wait <= 0 {
			c.nextSlot = time.Now().Add(c.minInterval)
			c.slotMu.Unlock()
			return nil
		}
		c.slotMu.Unlock()
		if err := c.sleepFn(ctx, wait); err != nil {
			return err
		}
	}
}

// computeBackoff honors Retry-After (seconds or HTTP date) capped at MaxWait,
// otherwise uses exponential backoff with jitter in [MinWait, MaxWait].
func (c *BaseClient) computeBackoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds > 0 {
				return min(time.Duration(seconds)*time.Second, c.retryPolicy.MaxWait)
			}
			if t, err := http.ParseTime(retryAfter); err == nil {
				wait := time.Until(t)
				if wait <= 0 {
					return c.retryPolicy.MinWait
				}
				return min(wait, c.retryPolicy.MaxWait)
			}
		}
	}

	base := min(float64(c.retryPolicy.MinWait)*math.Pow(2, float64(attempt)), float64(c.retryPolicy.MaxWait))
	minWait := float64(c.retryPolicy.MinWait)
	if base <= minWait {
		return c.retryPolicy.MinWait
	}
	return time.Duration(minWait + rand.Float64()*(base-minWait))
}

// mapError converts a failed call into an AppError. Callers that need a
// provider-specific code wrap the result.
func (c *BaseClient) mapError(resp *http.Response, err error) *types.AppError {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "circuit breaker is open", err)
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream request timed out", err)
	case errors.Is(err, context.Canceled):
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream request canceled", err)
	}
	if resp != nil {
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return types.NewAppError(types.ErrCodeUpstreamRateLimited, "upstream rate limit exceeded", err)
		case resp.StatusCode >= 500:
			return types.NewAppError(types.ErrCodeUpstreamUnavailable,
				fmt.Sprintf("upstream returned %d", resp.StatusCode), err)
		}
	}
	return types.NewAppError(types.ErrCodeUpstreamUnavailable, "upstream request failed", err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
