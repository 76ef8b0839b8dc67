package httpx

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeep/pkg/ratelimit"
	"github.com/aussiebroadwan/gatekeep/pkg/slogx"
)

// RateLimitConfig defines a constant refill bucket: Requests tokens, one
// token back every Interval.
type RateLimitConfig struct {
	Requests int
	Interval time.Duration
}

// GlobalLimit is the per-IP budget applied to every request.
var GlobalLimit = RateLimitConfig{
	Requests: 100,
	Interval: time.Second,
}

// ParseRateLimitFromEnv reads rate limit configuration from environment variables.
// Environment variables follow the pattern: RATELIMIT_{prefix}_{field}
// For example: RATELIMIT_GLOBAL_REQUESTS, RATELIMIT_GLOBAL_INTERVAL_MS
func ParseRateLimitFromEnv(prefix string, defaultConfig RateLimitConfig) RateLimitConfig {
	config := defaultConfig

	if val := os.Getenv("RATELIMIT_" + prefix + "_REQUESTS"); val != "" {
		if requests, err := strconv.Atoi(val); err == nil && requests > 0 {
			config.Requests = requests
		}
	}

	if val := os.Getenv("RATELIMIT_" + prefix + "_INTERVAL_MS"); val != "" {
		if ms, err := strconv.Atoi(val); err == nil && ms > 0 {
			config.Interval = time.Duration(ms) * time.Millisecond
		}
	}

	return config
}

// KeyExtractor is a function that extracts a unique key from the request
// for rate limiting purposes (e.g., IP address, user ID, etc.)
type KeyExtractor func(*http.Request) string

// IPKeyExtractor extracts the client IP address from the request.
// It handles X-Forwarded-For and X-Real-IP headers for proxied requests.
func IPKeyExtractor(r *http.Request) string {
	// Check X-Forwarded-For header (comma-separated list)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// Fallback to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// UserIDKeyExtractor extracts the user ID from the request context.
// Returns empty string if no user ID is found.
func UserIDKeyExtractor(r *http.Request) string {
	return UserIDFromContext(r.Context())
}

// CompositeKeyExtractor combines multiple key extractors with a separator.
// Example: CompositeKeyExtractor(":", IPKeyExtractor, UserIDKeyExtractor)
// would produce keys like "192.168.1.1:user123"
func CompositeKeyExtractor(sep string, extractors ...KeyExtractor) KeyExtractor {
	return func(r *http.Request) string {
		var parts []string
		for _, extractor := range extractors {
			if key := extractor(r); key != "" {
				parts = append(parts, key)
			}
		}
		return strings.Join(parts, sep)
	}
}

// CostFunc prices a request in bucket tokens.
type CostFunc func(*http.Request) int

// MethodCost charges 1 token for safe methods and 2 for anything that may
// change state.
func MethodCost(r *http.Request) int {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return 1
	default:
		return 2
	}
}

// RateLimiter guards handlers with a constant refill bucket per key.
type RateLimiter struct {
	config RateLimitConfig
	key    KeyExtractor
	cost   CostFunc
	bucket *ratelimit.ConstantRefillBucket[string]

	// OnReject, when set, is called for every rejected request.
	OnReject func(r *http.Request)
}

func NewRateLimiter(config RateLimitConfig, key KeyExtractor, cost CostFunc, opts ...ratelimit.Option) *RateLimiter {
	if cost == nil {
		cost = func(*http.Request) int { return 1 }
	}
	return &RateLimiter{
		config: config,
		key:    key,
		cost:   cost,
		bucket: ratelimit.NewConstantRefillBucket[string](config.Requests, config.Interval, opts...),
	}
}

// Prune drops idle keys; it is the housekeeping hook.
func (rl *RateLimiter) Prune(maxIdle time.Duration) int {
	return rl.bucket.Prune(maxIdle)
}

// Middleware rejects requests whose key has run out of tokens with 429.
func (rl *RateLimiter) Middleware() Middleware {
	retryAfter := strconv.Itoa(max(int(rl.config.Interval.Round(time.Second).Seconds()), 1))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := slogx.FromContext(r.Context())

			key := rl.key(r)
			if key == "" {
				// If we can't extract a key, allow the request but log it
				log.Warn("rate limit: unable to extract key, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			if !rl.bucket.Check(key, rl.cost(r)) {
				if rl.OnReject != nil {
					rl.OnReject(r)
				}
				log.Warn("rate limit exceeded", "key", key, "endpoint", r.URL.Path)

				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.config.Requests))
				WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Too many requests. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
