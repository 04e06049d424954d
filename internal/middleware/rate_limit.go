package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/baharkarakas/transferflow/internal/api/httpx"
	"github.com/baharkarakas/transferflow/internal/metrics"
	"github.com/baharkarakas/transferflow/internal/ratelimit"
)

// RateLimit is the coarse per-IP request guard. A nil limiter disables it; limiter
// errors let the request through.
func RateLimit(l ratelimit.Limiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d, err := l.Allow(r.Context(), "ip:"+ClientIP(r))
			if err != nil {
				slog.Warn("rate limiter unavailable", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !d.Allowed {
				metrics.RateLimited.Inc()
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
				httpx.WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
