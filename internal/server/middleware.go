package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raeburnlaw/caseguard/internal/audit"
	"github.com/raeburnlaw/caseguard/internal/config"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// responseWriter captures the status code and size of a response
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

// loggingMiddleware logs API requests with a request-scoped id
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.WithRequestID(requestID).Info("API request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status_code", rw.statusCode),
			zap.Duration("duration", time.Since(start)),
			zap.Int("response_size", rw.size),
		)
	})
}

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	cfg      config.RateLimitConfig
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func newClientLimiter(cfg config.RateLimitConfig) *clientLimiter {
	return &clientLimiter{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow checks the bucket for the given client IP.
func (cl *clientLimiter) Allow(clientIP string) bool {
	if !cl.cfg.Enabled {
		return true
	}

	cl.mu.Lock()
	limiter, ok := cl.limiters[clientIP]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(cl.cfg.RPS), cl.cfg.Burst)
		cl.limiters[clientIP] = limiter
	}
	cl.mu.Unlock()

	return limiter.Allow()
}

// rateLimitMiddleware rejects clients over their budget and records a
// rate-limit-exceeded audit event for each rejection.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := requestClientIP(r)
		if !s.limiter.Allow(clientIP) {
			s.writer.Log(audit.Event{
				EventType: audit.EventRateLimitExceeded,
				Severity:  audit.SeverityWarning,
				Result:    audit.ResultFailure,
				IPAddress: clientIP,
				UserAgent: r.UserAgent(),
				Resource:  "api",
				Action:    r.Method + " " + r.URL.Path,
			})
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if comma := strings.Index(forwarded, ","); comma != -1 {
			return strings.TrimSpace(forwarded[:comma])
		}
		return strings.TrimSpace(forwarded)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
