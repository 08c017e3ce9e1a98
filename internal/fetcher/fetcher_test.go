package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testOptions(maxRetries int) Options {
	opts := DefaultOptions()
	opts.MaxRetries = maxRetries
	opts.BackoffUnit = time.Millisecond
	opts.RequestTimeout = time.Second
	return opts
}

func TestFetchReturnsBodyOnFirstSuccess(t *testing.T) {
	var hits atomic.Int32
	var accept, userAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		accept.Store(r.Header.Get("Accept"))
		userAgent.Store(r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := New(testOptions(3))
	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, f.FetchJSON(context.Background(), srv.URL, &out))
	require.True(t, out.OK)
	require.Equal(t, int32(1), hits.Load())
	require.Equal(t, acceptHeader, accept.Load())
	require.Contains(t, DefaultUserAgents(), userAgent.Load())
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch hits.Add(1) {
		case 1:
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			_, _ = w.Write([]byte(`<html>throttled</html>`))
		default:
			_, _ = w.Write([]byte(`{"code":"print(1)"}`))
		}
	}))
	defer srv.Close()

	body, err := New(testOptions(5)).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.JSONEq(t, `{"code":"print(1)"}`, string(body))
	require.Equal(t, int32(3), hits.Load())
}

func TestFetchNeverExceedsRetryBound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	const maxRetries = 4
	_, err := New(testOptions(maxRetries)).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrRetriesExhausted)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, maxRetries+1, fetchErr.Attempts)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusBadGateway, statusErr.StatusCode)

	require.Equal(t, int32(maxRetries+1), hits.Load())
}

func TestFetchRotatesUserAgentsFromPool(t *testing.T) {
	pool := []string{"agent-a", "agent-b"}
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("User-Agent"))
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	opts := testOptions(9)
	opts.UserAgents = pool
	_, err := New(opts).Fetch(context.Background(), srv.URL)
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 10)
	for _, ua := range seen {
		require.True(t, slices.Contains(pool, ua), "unexpected user agent %q", ua)
	}
}

func TestFetchAppliesPerAttemptTimeout(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	opts := testOptions(2)
	opts.RequestTimeout = 50 * time.Millisecond
	body, err := New(opts).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "[]", string(body))
	require.Equal(t, int32(2), hits.Load())
}

func TestFetchStopsOnCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	opts := testOptions(50)
	opts.BackoffUnit = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New(opts).Fetch(ctx, srv.URL)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
	require.False(t, errors.Is(err, ErrRetriesExhausted))
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestFetchJSONDecodeErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`"a string"`))
	}))
	defer srv.Close()

	var out struct{ Code string }
	err := New(testOptions(3)).FetchJSON(context.Background(), srv.URL, &out)
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrRetriesExhausted))
	require.Equal(t, int32(1), hits.Load())
}

func TestBackoffDelayStaysWithinBounds(t *testing.T) {
	unit := time.Millisecond
	for retry := 1; retry <= 50; retry++ {
		upper := 30
		if retry < 5 {
			upper = 1 << retry
		}
		for range 50 {
			d := backoffDelay(retry, unit, 30)
			require.GreaterOrEqual(t, d, unit)
			require.LessOrEqual(t, d, time.Duration(upper)*unit, "retry %d", retry)
		}
	}
}
