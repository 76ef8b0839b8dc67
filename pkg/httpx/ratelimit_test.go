package httpx_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aussiebroadwan/gatekeep/pkg/httpx"
	"github.com/aussiebroadwan/gatekeep/pkg/ratelimit"
	"github.com/stretchr/testify/require"
)

func TestIPKeyExtractor(t *testing.T) {
	t.Run("extracts from RemoteAddr", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"

		ip := httpx.IPKeyExtractor(req)
		require.Equal(t, "192.168.1.1", ip)
	})

	t.Run("prefers X-Forwarded-For", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 192.168.1.1")

		ip := httpx.IPKeyExtractor(req)
		require.Equal(t, "203.0.113.1", ip)
	})

	t.Run("uses X-Real-IP if X-Forwarded-For absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req.Header.Set("X-Real-IP", "203.0.113.2")

		ip := httpx.IPKeyExtractor(req)
		require.Equal(t, "203.0.113.2", ip)
	})
}

func TestCompositeKeyExtractor(t *testing.T) {
	t.Run("combines multiple extractors", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"
		req = req.WithContext(httpx.WithUserID(req.Context(), "alice"))

		extractor := httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, httpx.UserIDKeyExtractor)
		require.Equal(t, "192.168.1.1:alice", extractor(req))
	})

	t.Run("skips empty values", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.168.1.1:12345"

		extractor := httpx.CompositeKeyExtractor(":", httpx.IPKeyExtractor, httpx.UserIDKeyExtractor)
		require.Equal(t, "192.168.1.1", extractor(req))
	})
}

func TestMethodCost(t *testing.T) {
	require.Equal(t, 1, httpx.MethodCost(httptest.NewRequest(http.MethodGet, "/", nil)))
	require.Equal(t, 1, httpx.MethodCost(httptest.NewRequest(http.MethodOptions, "/", nil)))
	require.Equal(t, 2, httpx.MethodCost(httptest.NewRequest(http.MethodPost, "/", nil)))
	require.Equal(t, 2, httpx.MethodCost(httptest.NewRequest(http.MethodDelete, "/", nil)))
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func limited(rl *httpx.RateLimiter) http.Handler {
	return rl.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func serve(h http.Handler, method, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimiter(t *testing.T) {
	t.Run("blocks requests over limit", func(t *testing.T) {
		rl := httpx.NewRateLimiter(httpx.RateLimitConfig{Requests: 3, Interval: time.Minute}, httpx.IPKeyExtractor, httpx.MethodCost)
		h := limited(rl)

		for i := range 3 {
			require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "192.168.1.1:1").Code, "request %d", i+1)
		}

		rec := serve(h, http.MethodGet, "192.168.1.1:1")
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "60", rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Contains(t, rec.Body.String(), "rate_limit_exceeded")
		require.Contains(t, rec.Body.String(), "error_description")
	})

	t.Run("writes cost two", func(t *testing.T) {
		rl := httpx.NewRateLimiter(httpx.RateLimitConfig{Requests: 3, Interval: time.Minute}, httpx.IPKeyExtractor, httpx.MethodCost)
		h := limited(rl)

		require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "192.168.1.1:1").Code)
		require.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodPost, "192.168.1.1:1").Code)
		require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "192.168.1.1:1").Code)
	})

	t.Run("different keys are tracked separately", func(t *testing.T) {
		rl := httpx.NewRateLimiter(httpx.RateLimitConfig{Requests: 1, Interval: time.Minute}, httpx.IPKeyExtractor, nil)
		h := limited(rl)

		require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "192.168.1.1:1").Code)
		require.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodGet, "192.168.1.1:1").Code)
		require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "192.168.1.2:1").Code)
	})

	t.Run("tokens refill over time", func(t *testing.T) {
		c := &clock{t: time.Unix(1_700_000_000, 0)}
		rl := httpx.NewRateLimiter(httpx.RateLimitConfig{Requests: 2, Interval: time.Second}, httpx.IPKeyExtractor, httpx.MethodCost, ratelimit.WithClock(c.now))
		h := limited(rl)

		require.Equal(t, http.StatusOK, serve(h, http.MethodPost, "10.0.0.1:1").Code)
		require.Equal(t, http.StatusTooManyRequests, serve(h, http.MethodGet, "10.0.0.1:1").Code)

		c.t = c.t.Add(time.Second)
		require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "10.0.0.1:1").Code)
	})

	t.Run("allows request when key extractor returns empty", func(t *testing.T) {
		rl := httpx.NewRateLimiter(httpx.RateLimitConfig{Requests: 1, Interval: time.Minute}, func(*http.Request) string { return "" }, nil)
		h := limited(rl)

		for range 3 {
			require.Equal(t, http.StatusOK, serve(h, http.MethodGet, "192.168.1.1:1").Code)
		}
	})

	t.Run("reports rejections", func(t *testing.T) {
		rl := httpx.NewRateLimiter(httpx.RateLimitConfig{Requests: 1, Interval: time.Minute}, httpx.IPKeyExtractor, nil)
		var rejected int
		rl.OnReject = func(*http.Request) { rejected++ }
		h := limited(rl)

		serve(h, http.MethodGet, "192.168.1.1:1")
		serve(h, http.MethodGet, "192.168.1.1:1")
		require.Equal(t, 1, rejected)
	})

	t.Run("prune drops idle keys", func(t *testing.T) {
		c := &clock{t: time.Unix(1_700_000_000, 0)}
		rl := httpx.NewRateLimiter(httpx.RateLimitConfig{Requests: 1, Interval: time.Minute}, httpx.IPKeyExtractor, nil, ratelimit.WithClock(c.now))
		h := limited(rl)

		serve(h, http.MethodGet, "192.168.1.1:1")
		c.t = c.t.Add(time.Hour)
		require.Equal(t, 1, rl.Prune(time.Minute))
	})
}

func TestParseRateLimitFromEnv(t *testing.T) {
	def := httpx.RateLimitConfig{Requests: 100, Interval: time.Second}

	t.Run("uses defaults when unset", func(t *testing.T) {
		require.Equal(t, def, httpx.ParseRateLimitFromEnv("GLOBAL", def))
	})

	t.Run("reads overrides", func(t *testing.T) {
		t.Setenv("RATELIMIT_GLOBAL_REQUESTS", "5")
		t.Setenv("RATELIMIT_GLOBAL_INTERVAL_MS", "250")

		cfg := httpx.ParseRateLimitFromEnv("GLOBAL", def)
		require.Equal(t, 5, cfg.Requests)
		require.Equal(t, 250*time.Millisecond, cfg.Interval)
	})

	t.Run("ignores invalid values", func(t *testing.T) {
		t.Setenv("RATELIMIT_GLOBAL_REQUESTS", "-3")
		t.Setenv("RATELIMIT_GLOBAL_INTERVAL_MS", "abc")
		require.Equal(t, def, httpx.ParseRateLimitFromEnv("GLOBAL", def))
	})
}

func BenchmarkRateLimiter(b *testing.B) {
	rl := httpx.NewRateLimiter(httpx.RateLimitConfig{Requests: 1_000_000, Interval: time.Millisecond}, httpx.IPKeyExtractor, httpx.MethodCost)
	h := limited(rl)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	b.ResetTimer()
	for range b.N {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
}
