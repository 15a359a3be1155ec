package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() ClientConfig {
	return ClientConfig{
		MaxConcurrency: 2,
		RequestTimeout: time.Second,
		MaxRetries:     2,
		BackoffBase:    time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
		UserAgent:      "randomwalk-test",
	}
}

func TestClientPool_RetriesGatewayErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "randomwalk-test", r.Header.Get("User-Agent"))
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool := NewClientPool(testConfig())
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := pool.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(2), pool.GetStats().RetriedRequests)
	assert.Equal(t, int64(1), pool.GetStats().SuccessRequests)
}

func TestClientPool_ReturnsLastResponseWhenRetriesExhausted(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	pool := NewClientPool(testConfig())
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	resp, err := pool.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClientPool_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	pool := NewClientPool(testConfig())
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)

	resp, err := pool.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientPool_CalculateBackoff(t *testing.T) {
	pool := NewClientPool(ClientConfig{BackoffBase: 100 * time.Millisecond, BackoffMax: 300 * time.Millisecond})

	assert.Equal(t, 100*time.Millisecond, pool.calculateBackoff(1))
	assert.Equal(t, 200*time.Millisecond, pool.calculateBackoff(2))
	assert.Equal(t, 300*time.Millisecond, pool.calculateBackoff(3))
}
