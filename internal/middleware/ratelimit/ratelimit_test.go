package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimiter_AllowsRequests(t *testing.T) {
	rl := New(Config{
		Enabled:        true,
		RequestsPerMin: 60,
		BurstSize:      5,
		CleanupMinutes: 1,
	})
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/api/v1/config", nil)
		req.RemoteAddr = "192.168.1.100:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code, "request %d should succeed", i+1)
	}
}

func TestRateLimiter_BlocksExcessRequests(t *testing.T) {
	rl := New(Config{
		Enabled:        true,
		RequestsPerMin: 60,
		BurstSize:      2,
		CleanupMinutes: 1,
	})
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/v1/config", nil)
		req.RemoteAddr = "192.168.1.100:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
	}

	req := httptest.NewRequest("GET", "/api/v1/config", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	var response map[string]any
	err := json.Unmarshal(rr.Body.Bytes(), &response)
	require.NoError(t, err)
	errObj, ok := response["error"].(map[string]any)
	require.True(t, ok, "error should be an object")
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errObj["code"])
}

func TestRateLimiter_SeparateLimitsPerIP(t *testing.T) {
	rl := New(Config{
		Enabled:        true,
		RequestsPerMin: 60,
		BurstSize:      2,
		CleanupMinutes: 1,
	})
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/v1/config", nil)
		req.RemoteAddr = "192.168.1.100:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
	}

	req := httptest.NewRequest("GET", "/api/v1/config", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)

	req2 := httptest.NewRequest("GET", "/api/v1/config", nil)
	req2.RemoteAddr = "192.168.1.101:12345"
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req2)
	assert.Equal(t, http.StatusOK, rr2.Code)
}

func TestRateLimiter_BypassesExemptPaths(t *testing.T) {
	rl := New(Config{
		Enabled:        true,
		RequestsPerMin: 60,
		BurstSize:      1,
		CleanupMinutes: 1,
	})
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	for _, path := range []string{"/health", "/healthz", "/metrics"} {
		for i := 0; i < 10; i++ {
			req := httptest.NewRequest("GET", path, nil)
			req.RemoteAddr = "192.168.1.100:12345"
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, http.StatusOK, rr.Code, "%s request %d should not be rate limited", path, i+1)
		}
	}
}

func TestRateLimiter_Disabled(t *testing.T) {
	handler := Middleware(Config{
		Enabled:        false,
		RequestsPerMin: 1,
		BurstSize:      1,
		CleanupMinutes: 1,
	})(okHandler())

	for i := 0; i < 100; i++ {
		req := httptest.NewRequest("GET", "/api/v1/config", nil)
		req.RemoteAddr = "192.168.1.100:12345"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := New(Config{
		Enabled:        true,
		RequestsPerMin: 6000,
		BurstSize:      100,
		CleanupMinutes: 1,
	})
	defer rl.Stop()

	handler := rl.Middleware()(okHandler())

	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				req := httptest.NewRequest("GET", "/api/v1/config", nil)
				req.RemoteAddr = "192.168.1.100:12345"
				rr := httptest.NewRecorder()
				handler.ServeHTTP(rr, req)
			}
		}()
	}
	wg.Wait()
}

func TestRateLimiter_CleanupStale(t *testing.T) {
	rl := New(Config{
		Enabled:        true,
		RequestsPerMin: 60,
		BurstSize:      5,
		CleanupMinutes: 1,
	})
	defer rl.Stop()

	rl.getLimiter("test-ip")

	rl.mu.Lock()
	_, exists := rl.limiters["test-ip"]
	rl.mu.Unlock()
	assert.True(t, exists)

	rl.mu.Lock()
	if entry, ok := rl.limiters["test-ip"]; ok {
		entry.lastSeen = time.Now().Add(-2 * time.Minute)
	}
	rl.mu.Unlock()

	rl.cleanupStale()

	rl.mu.Lock()
	_, exists = rl.limiters["test-ip"]
	rl.mu.Unlock()
	assert.False(t, exists, "stale IP should be cleaned up")
}
