package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// An unreachable redis forces the middleware onto the in-memory fallback
// limiter, which is the path exercised here. The redis path itself runs the
// same token bucket server-side.
func newUnreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
}

func newLimitedRouter(requestsPerSecond int) *gin.Engine {
	r := gin.New()
	r.Use(RateLimitMiddleware(newUnreachableRedis(), requestsPerSecond))
	r.POST("/write", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func doWrite(r *gin.Engine, ip string) int {
	req := httptest.NewRequest(http.MethodPost, "/write", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestLocalFallbackAllowsWithinBurst(t *testing.T) {
	r := newLimitedRouter(5)

	for i := 0; i < 5; i++ {
		if code := doWrite(r, "10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d within burst got status %d", i+1, code)
		}
	}
}

func TestLocalFallbackRejectsAboveBurst(t *testing.T) {
	r := newLimitedRouter(2)

	doWrite(r, "10.0.0.2")
	doWrite(r, "10.0.0.2")
	if code := doWrite(r, "10.0.0.2"); code != http.StatusTooManyRequests {
		t.Errorf("request above burst got status %d, want 429", code)
	}
}

func TestLimitIsPerClient(t *testing.T) {
	r := newLimitedRouter(1)

	if code := doWrite(r, "10.0.0.3"); code != http.StatusOK {
		t.Fatalf("first client first request got status %d", code)
	}
	if code := doWrite(r, "10.0.0.3"); code != http.StatusTooManyRequests {
		t.Fatalf("first client second request got status %d, want 429", code)
	}
	// A different client has its own bucket.
	if code := doWrite(r, "10.0.0.4"); code != http.StatusOK {
		t.Errorf("second client first request got status %d, want 200", code)
	}
}

func TestRateLimitHeaders(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(newUnreachableRedis(), 5))
	r.POST("/write", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/write", nil)
	req.RemoteAddr = "10.0.0.5:12345"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-RateLimit-Limit"); got != "5" {
		t.Errorf("X-RateLimit-Limit = %q, want %q", got, "5")
	}
}
