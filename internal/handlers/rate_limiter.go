package handlers

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/donabox/api/internal/platform/httpx"
)

type rateLimiter interface {
	// Allow counts one request for key. When the key is over its limit it returns false
	// and how long until the window resets.
	Allow(key string) (bool, time.Duration)
}

// windowLimiter is a fixed-window counter per key.
type windowLimiter struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu        sync.Mutex
	windows   map[string]*window
	lastPrune time.Time
}

type window struct {
	used int
	ends time.Time
}

func newWindowLimiter(limit int, span time.Duration, clock func() time.Time) rateLimiter {
	if limit <= 0 || span <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &windowLimiter{limit: limit, window: span, clock: clock, windows: map[string]*window{}}
}

func (l *windowLimiter) Allow(key string) (bool, time.Duration) {
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastPrune) >= l.window {
		for k, w := range l.windows {
			if !now.Before(w.ends) {
				delete(l.windows, k)
			}
		}
		l.lastPrune = now
	}

	w := l.windows[key]
	if w == nil || !now.Before(w.ends) {
		l.windows[key] = &window{used: 1, ends: now.Add(l.window)}
		return true, 0
	}
	if w.used >= l.limit {
		return false, w.ends.Sub(now)
	}
	w.used++
	return true, 0
}

// rateLimitByClient answers 429 once a client exceeds the limiter. Signed-in callers
// are keyed by uid, anonymous ones by remote address (RealIP runs first).
func rateLimitByClient(limiter rateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := limiter.Allow(clientKey(r))
			if !ok {
				w.Header().Set("Retry-After", retryAfterSeconds(wait))
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "Demasiadas solicitudes, intenta de nuevo en un momento.", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(wait time.Duration) string {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func clientKey(r *http.Request) string {
	if uid := callerFromRequest(r).UID; uid != "" {
		return "uid:" + uid
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
