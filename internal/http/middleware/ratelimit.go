package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter guarda un limiter por clave y descarta las claves inactivas.
type RateLimiter struct {
	limit  rate.Limit
	burst  int
	maxAge time.Duration

	mu    sync.Mutex
	store map[string]*limiterEntry
	sweep time.Time
}

type limiterEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

// NewRateLimiter crea el limitador con reqPerSec y ráfaga burst por clave.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:  rate.Limit(reqPerSec),
		burst:  burst,
		maxAge: 10 * time.Minute,
		store:  make(map[string]*limiterEntry),
	}
}

// Allow consume un token de la clave.
func (l *RateLimiter) Allow(key string) bool {
	return l.get(key).Allow()
}

func (l *RateLimiter) get(key string) *rate.Limiter {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.sweep) > time.Minute {
		for k, e := range l.store {
			if now.Sub(e.seen) > l.maxAge {
				delete(l.store, k)
			}
		}
		l.sweep = now
	}

	if e, ok := l.store[key]; ok {
		e.seen = now
		return e.limiter
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.store[key] = &limiterEntry{limiter: lim, seen: now}
	return lim
}

// LimitByKey aplica el límite a la clave que devuelve keyFunc.
// Sin clave, el request pasa.
func (l *RateLimiter) LimitByKey(next http.Handler, keyFunc func(*http.Request) (string, bool)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := keyFunc(r)
		if !ok || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if !l.Allow(key) {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "RATE_LIMIT", "límite de solicitudes excedido")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IPRateLimit usa la IP del cliente como clave.
func IPRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			return clientIP(r), true
		})
	}
}

// UserRateLimit usa el usuario de la sesión como clave.
func UserRateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return limiter.LimitByKey(next, func(r *http.Request) (string, bool) {
			subject := GetSubject(r)
			return subject, subject != ""
		})
	}
}

func clientIP(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
