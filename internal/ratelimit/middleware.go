package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/kuitang/movieform/internal/obs"
)

// DefaultRetryAfterSeconds is sent in Retry-After when a session is throttled.
const DefaultRetryAfterSeconds = 1

// Middleware limits requests by the key returned from keyFunc. Requests with an empty
// key pass through untouched.
//
// Throttled requests get 429 with Retry-After and a JSON error body; allowed requests carry
// X-RateLimit-Remaining.
func Middleware(limiter *RateLimiter, keyFunc func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			bucket := limiter.GetLimiter(key)
			if !bucket.Allow() {
				obs.From(r.Context()).Warn("rate_limited", "key", key, "path", r.URL.Path)
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"too many events, slow down"}`))
				return
			}

			remaining := int(bucket.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}

// PathValueKey keys requests by a route wildcard such as {id}.
func PathValueKey(name string) func(r *http.Request) string {
	return func(r *http.Request) string {
		return r.PathValue(name)
	}
}
