package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/biblequest-duels/internal/duel"
	"github.com/park285/biblequest-duels/internal/obslog"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess duel.Session)

// session resolves the caller from X-User-Id and passes it on explicitly.
func (s *Server) session(h sessionHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			s.writeError(w, r, errUnauthenticated)
			return
		}
		h(w, r, duel.Session{PlayerID: id})
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack passes websocket upgrades through to the underlying connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		obslog.L().Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("user_id", r.Header.Get(HeaderUserID)),
		)
	})
}

func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				obslog.L().Error("http_panic", zap.Any("panic", v), zap.String("path", r.URL.Path), zap.Stack("stack"))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// playerLimiter hands out one token bucket per player.
type playerLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[string]*limiterEntry
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

const limiterIdleTTL = 10 * time.Minute

func newPlayerLimiter(limit rate.Limit, burst int) *playerLimiter {
	return &playerLimiter{limit: limit, burst: burst, buckets: make(map[string]*limiterEntry)}
}

func (p *playerLimiter) Allow(playerID string) bool {
	now := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.buckets[playerID]
	if !ok {
		if len(p.buckets) > 1024 {
			for id, old := range p.buckets {
				if now.Sub(old.seen) > limiterIdleTTL {
					delete(p.buckets, id)
				}
			}
		}
		e = &limiterEntry{lim: rate.NewLimiter(p.limit, p.burst)}
		p.buckets[playerID] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}
