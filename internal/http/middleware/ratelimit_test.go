package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newLimitedRouter(rps float64, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rl := NewRateLimiter(rps, burst, KeyByClientIP())
	r.Use(rl.Handler())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func TestRateLimiter_BurstThenReject(t *testing.T) {
	// No refill to speak of within the test; only the burst is available.
	r := newLimitedRouter(0.0001, 3)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d inside burst: status %d", i+1, w.Code)
		}
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("request over burst: status %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("429 without Retry-After")
	}
}

func TestRateLimiter_DistinctClientsHaveDistinctBuckets(t *testing.T) {
	r := newLimitedRouter(0.0001, 1)

	reqA := httptest.NewRequest(http.MethodGet, "/ping", nil)
	reqA.RemoteAddr = "10.0.0.1:1234"
	reqB := httptest.NewRequest(http.MethodGet, "/ping", nil)
	reqB.RemoteAddr = "10.0.0.2:1234"

	wA := httptest.NewRecorder()
	r.ServeHTTP(wA, reqA)
	wB := httptest.NewRecorder()
	r.ServeHTTP(wB, reqB)

	if wA.Code != http.StatusOK || wB.Code != http.StatusOK {
		t.Fatalf("distinct clients share a bucket: %d, %d", wA.Code, wB.Code)
	}
}

func TestNewRateLimiter_CoercesBurst(t *testing.T) {
	rl := NewRateLimiter(1, 0, KeyByClientIP())
	if rl.burst != 1 {
		t.Fatalf("burst = %d, want coerced to 1", rl.burst)
	}
}
