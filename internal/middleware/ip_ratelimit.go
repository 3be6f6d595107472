package middleware

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/pensim/interview-server-go/internal/audit"
)

// IPRateLimitMiddleware throttles unauthenticated endpoints by remote
// address, before any participant identity exists.
type IPRateLimitMiddleware struct {
	limiter *RateLimiter
	limit   int
}

func NewIPRateLimitMiddleware(limiter *RateLimiter, limit int) *IPRateLimitMiddleware {
	return &IPRateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
	}
}

func (m *IPRateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}

		allowed, resetAt := m.limiter.Check("ip:"+ip, m.limit)
		if !allowed {
			audit.LogFromRequest(r, audit.Event{Type: audit.EventRateLimitExceed})
			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			w.Header().Set("Retry-After", fmt.Sprintf("%d", secondsLeft))
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"error": "Too many requests. Please try again later.",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
