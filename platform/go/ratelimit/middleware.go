package ratelimit

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	platformlogging "github.com/folio-erp/folio/platform/go/logging"
)

// KeyFunc derives the throttling key from a request. An empty key skips throttling.
type KeyFunc func(r *http.Request) string

// Middleware rejects requests over quota with 429 and the standard error envelope.
func Middleware(limiter *FixedWindowLimiter, keyFn KeyFunc, base *zap.Logger) func(http.Handler) http.Handler {
	if limiter == nil {
		panic("ratelimit middleware: limiter is required")
	}
	if keyFn == nil {
		panic("ratelimit middleware: key func is required")
	}
	if base == nil {
		base = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				platformlogging.FromRequest(r, base).Error("rate limiter unavailable", zap.Error(err), zap.String("key", key))
			}
			if !allowed {
				w.Header().Set("Retry-After", retryAfter(limiter.Window()))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   "Too many requests, retry later",
					"code":    "RATE_LIMITED",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter renders d as whole seconds, rounded up so sub-second windows never advertise 0.
func retryAfter(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
