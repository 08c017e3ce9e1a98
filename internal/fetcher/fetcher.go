package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/RishiKendai/contestguard/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	acceptHeader = "application/json, text/javascript, */*; q=0.01"
	maxBodyBytes = 32 << 20
)

var (
	// ErrRetriesExhausted is wrapped by every FetchError.
	ErrRetriesExhausted = errors.New("retries exhausted")

	errMalformedBody = errors.New("malformed response body")
)

// FetchError is the terminal failure for one URL after all attempts failed.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrRetriesExhausted, e.Err}
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.StatusCode)
}

type Options struct {
	// MaxRetries bounds the retries after the first attempt.
	MaxRetries int
	// RequestTimeout applies to each attempt separately.
	RequestTimeout time.Duration
	// RequestsPerSecond limits attempts across all callers. Zero disables the limit.
	RequestsPerSecond float64
	Burst             int
	// BackoffUnit scales the [1, min(2^i, BackoffCap)] retry delay.
	BackoffUnit time.Duration
	BackoffCap  int
	UserAgents  []string
	Referer     string
	HTTPClient  *http.Client
}

func DefaultOptions() Options {
	return Options{
		MaxRetries:     50,
		RequestTimeout: 15 * time.Second,
		Burst:          1,
		BackoffUnit:    time.Second,
		BackoffCap:     30,
		UserAgents:     DefaultUserAgents(),
		Referer:        "https://leetcode.com/contest",
	}
}

// Fetcher issues GET requests with retry, jittered exponential backoff and
// user agent rotation. It is safe for concurrent use.
type Fetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	opts    Options
}

func New(opts Options) *Fetcher {
	defaults := DefaultOptions()
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaults.RequestTimeout
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = defaults.BackoffUnit
	}
	if opts.BackoffCap <= 0 {
		opts.BackoffCap = defaults.BackoffCap
	}
	if len(opts.UserAgents) == 0 {
		opts.UserAgents = defaults.UserAgents
	}
	if opts.Burst <= 0 {
		opts.Burst = defaults.Burst
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	limiter := rate.NewLimiter(rate.Inf, opts.Burst)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst)
	}

	return &Fetcher{
		client:  client,
		limiter: limiter,
		opts:    opts,
	}
}

// Fetch returns the body of url. Transient failures are retried; the caller
// only sees the body, a *FetchError once retries are exhausted, or the
// context error when ctx is done.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	attempts := f.opts.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt, f.opts.BackoffUnit, f.opts.BackoffCap)
			log.Debug().
				Str("url", url).
				Int("retry", attempt).
				Dur("delay", delay).
				Msg("Backing off before retry")
			if err := wait(ctx, delay); err != nil {
				return nil, err
			}
		}

		body, err := f.attempt(ctx, url)
		if err == nil {
			metrics.FetchAttempts.WithLabelValues("success").Inc()
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		metrics.FetchAttempts.WithLabelValues("failure").Inc()
		lastErr = err
		log.Warn().
			Err(err).
			Str("url", url).
			Int("try", attempt).
			Msg("Failed to fetch")
	}

	metrics.FetchExhausted.Inc()
	log.Error().
		Str("url", url).
		Int("attempts", attempts).
		Msg("Could not fetch after exhausting retries")

	return nil, &FetchError{URL: url, Attempts: attempts, Err: lastErr}
}

// FetchJSON fetches url and decodes the body into out.
func (f *Fetcher) FetchJSON(ctx context.Context, url string, out any) error {
	body, err := f.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}

func (f *Fetcher) attempt(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, f.opts.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", pickUserAgent(f.opts.UserAgents))
	if f.opts.Referer != "" {
		req.Header.Set("Referer", f.opts.Referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}
	if !json.Valid(body) {
		return nil, errMalformedBody
	}

	return body, nil
}

// backoffDelay draws the delay before retry i (1-based) uniformly from
// [1, min(2^i, capUnits)] units.
func backoffDelay(retry int, unit time.Duration, capUnits int) time.Duration {
	upper := capUnits
	if retry < 31 && 1<<retry < capUnits {
		upper = 1 << retry
	}
	if upper <= 1 {
		return unit
	}
	span := int64(upper-1) * int64(unit)
	return unit + time.Duration(rand.Int64N(span+1))
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
