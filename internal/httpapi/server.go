// Package httpapi exposes a transcache.Service as a JSON HTTP API.
package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/unkn0wn-root/transcache"
)

type Options struct {
	Service transcache.Service
	Logger  transcache.Logger // if nil, NopLogger is used
	// Token, when set, is required as "Authorization: Bearer <token>" on
	// every /api route.
	Token string
	// Metrics is mounted on GET /metrics when non-nil.
	Metrics http.Handler
	// Health backs GET /healthz; nil => always healthy.
	Health func(ctx context.Context) error
	// RateLimit caps /api requests per client IP per minute; 0 disables it.
	RateLimit int
}

type server struct {
	svc    transcache.Service
	log    transcache.Logger
	token  string
	health func(ctx context.Context) error
	limit  *limiter
}

// New returns the API handler with request timing and logging applied.
func New(opts Options) http.Handler {
	s := &server{svc: opts.Service, log: opts.Logger, token: opts.Token, health: opts.Health}
	if s.log == nil {
		s.log = transcache.NopLogger{}
	}
	if opts.RateLimit > 0 {
		s.limit = newLimiter(opts.RateLimit, time.Minute)
	}

	api := http.NewServeMux()
	api.HandleFunc("GET /api/translations", s.list)
	api.HandleFunc("POST /api/translations", s.create)
	api.HandleFunc("GET /api/translations/export", s.export)
	api.HandleFunc("GET /api/translations/{id}", s.get)
	api.HandleFunc("PUT /api/translations/{id}", s.update)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.throttle(s.auth(api)))
	mux.HandleFunc("GET /healthz", s.healthz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	return s.observe(mux)
}

func (s *server) auth(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	want := []byte("Bearer " + s.token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get("Authorization"))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSON(w, http.StatusUnauthorized, message{Message: "Unauthenticated."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.log.Warn("health check failed", transcache.Fields{"err": err})
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// recorder stamps X-Response-Time just before the header is flushed.
type recorder struct {
	http.ResponseWriter
	start  time.Time
	status int
}

func (rw *recorder) WriteHeader(code int) {
	if rw.status != 0 {
		return
	}
	rw.status = code
	rw.Header().Set("X-Response-Time", formatElapsed(time.Since(rw.start)))
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

func (rw *recorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

func (s *server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &recorder{ResponseWriter: w, start: time.Now()}
		next.ServeHTTP(rw, r)
		if rw.status == 0 {
			rw.WriteHeader(http.StatusOK)
		}
		elapsed := time.Since(rw.start)
		f := transcache.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rw.status,
			"duration": elapsed.String(),
		}
		switch {
		case rw.status >= 500:
			s.log.Error("http request", f)
		case strings.HasPrefix(r.URL.Path, "/healthz"), strings.HasPrefix(r.URL.Path, "/metrics"):
			s.log.Debug("http request", f)
		default:
			s.log.Info("http request", f)
		}
	})
}

func formatElapsed(d time.Duration) string {
	return d.Round(time.Microsecond).String()
}
