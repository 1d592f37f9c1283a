package httpapi

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// maxClients bounds how many client windows are tracked at once; the least
// recently seen client is evicted first and starts a fresh window.
const maxClients = 10_000

type window struct {
	start time.Time
	hits  int
}

// limiter admits at most max requests per client in each fixed window.
type limiter struct {
	max    int
	period time.Duration
	now    func() time.Time

	mu      sync.Mutex
	windows *expirable.LRU[string, *window]
}

func newLimiter(n int, period time.Duration) *limiter {
	return &limiter{
		max:     n,
		period:  period,
		now:     time.Now,
		windows: expirable.NewLRU[string, *window](maxClients, nil, period),
	}
}

// allow counts one request for client. When the window is spent it returns
// ok=false and the time left until it resets.
func (l *limiter) allow(client string) (remaining int, retry time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, found := l.windows.Get(client)
	if !found || now.Sub(w.start) >= l.period {
		w = &window{start: now}
		l.windows.Add(client, w)
	}
	if w.hits >= l.max {
		return 0, w.start.Add(l.period).Sub(now), false
	}
	w.hits++
	return l.max - w.hits, 0, true
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *server) throttle(next http.Handler) http.Handler {
	if s.limit == nil {
		return next
	}
	limit := strconv.Itoa(s.limit.max)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		remaining, retry, ok := s.limit.allow(clientIP(r))
		w.Header().Set("X-RateLimit-Limit", limit)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			secs := int(math.Ceil(retry.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(secs, 1)))
			writeJSON(w, http.StatusTooManyRequests, message{Message: "Too Many Attempts."})
			return
		}
		next.ServeHTTP(w, r)
	})
}
