package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/xraph/reimburse/internal/logger"
	"github.com/xraph/reimburse/types"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type callerKey struct{}

// requestID reuses the client's X-Request-ID or generates one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)

		ctx := logger.ContextWithRequestID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs every completed request at a level chosen by status.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []any{
				"status", status,
				"method", r.Method,
				"path", r.URL.Path,
				"latency_ms", time.Since(start).Milliseconds(),
				"bytes", ww.BytesWritten(),
			}
			if query := r.URL.RawQuery; query != "" {
				attrs = append(attrs, "query", query)
			}

			l := logger.WithContext(r.Context(), log)
			switch {
			case status >= 500:
				l.Error("request completed", attrs...)
			case status >= 400:
				l.Warn("request completed", attrs...)
			default:
				l.Info("request completed", attrs...)
			}
		})
	}
}

// authenticate resolves the caller and rejects anonymous requests.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, err := s.auth.caller(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), callerKey{}, account)
		ctx = logger.ContextWithCaller(ctx, account.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerFrom returns the account set by authenticate.
func callerFrom(ctx context.Context) types.Account {
	account, _ := ctx.Value(callerKey{}).(types.Account)
	return account
}

// limiter hands out one token bucket per caller.
type limiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets map[types.Account]*rate.Limiter
}

func newLimiter(rps float64, burst int) *limiter {
	return &limiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: make(map[types.Account]*rate.Limiter),
	}
}

func (l *limiter) allow(account types.Account) bool {
	l.mu.Lock()
	b, ok := l.buckets[account]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.buckets[account] = b
	}
	l.mu.Unlock()
	return b.Allow()
}

// rateLimit throttles each authenticated caller separately. It must run
// after authenticate.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account := callerFrom(r.Context())
		if !s.limiter.allow(account) {
			logger.WithContext(r.Context(), s.logger).Warn("rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded, retry later")
			return
		}
		next.ServeHTTP(w, r)
	})
}
