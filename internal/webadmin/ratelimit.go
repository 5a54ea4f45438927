// ABOUTME: Per-address token-bucket throttle for login submissions
// ABOUTME: Limiters are kept in a TTL registry so idle addresses are forgotten

package webadmin

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/keyconsole/internal/registry"
)

const (
	limiterIdleTTL    = 15 * time.Minute
	limiterMaxEntries = 10_000
)

type loginLimiter struct {
	limiters *registry.Registry[*rate.Limiter]
	limit    rate.Limit
	burst    int
}

// newLoginLimiter allows rps logins per second per address with the given
// burst. A non-positive rps disables throttling.
func newLoginLimiter(rps float64, burst int) *loginLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &loginLimiter{
		limiters: registry.New[*rate.Limiter](limiterIdleTTL, limiterMaxEntries, 0, nil),
		limit:    limit,
		burst:    burst,
	}
}

// Allow reports whether a login from r's address may proceed now
func (l *loginLimiter) Allow(r *http.Request) bool {
	lim, _ := l.limiters.GetOrCreate(remoteHost(r), func() *rate.Limiter {
		return rate.NewLimiter(l.limit, l.burst)
	})
	return lim.Allow()
}

func (l *loginLimiter) Close() {
	l.limiters.Close()
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
