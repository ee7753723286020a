// Package httpapi exposes the reimbursement ledger over a JSON HTTP API.
//
// Amounts are integers in the smallest unit. Every /v1 route requires a
// caller, resolved from an HS256 bearer token whose subject is the account
// address (or from the development header when enabled).
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/reimburse"
	"github.com/xraph/reimburse/internal/logger"
)

// Config configures a Server.
type Config struct {
	Auth Auth

	// RateLimit is the sustained requests per second allowed per caller.
	// Zero disables limiting.
	RateLimit float64
	Burst     int

	RequestTimeout time.Duration

	// Metrics, when set, is served on MetricsPath without authentication.
	Metrics     http.Handler
	MetricsPath string
}

// Server serves the API for one ledger.
type Server struct {
	ledger  *reimburse.Ledger
	cfg     Config
	auth    Auth
	limiter *limiter
	logger  *slog.Logger
}

// NewServer creates an API server. A nil logger uses slog.Default.
func NewServer(l *reimburse.Ledger, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{
		ledger: l,
		cfg:    cfg,
		auth:   cfg.Auth,
		logger: log,
	}
	if cfg.RateLimit > 0 {
		s.limiter = newLimiter(cfg.RateLimit, cfg.Burst)
	}
	return s
}

// Handler returns the HTTP handler with all routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	if s.cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/health", s.handleHealth)
	if s.cfg.Metrics != nil {
		r.Handle(s.cfg.MetricsPath, s.cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Use(s.rateLimit)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", s.handleCreateSubscription)
			r.Get("/{id}", s.handleGetSubscription)
			r.Post("/{id}/renew", s.handleRenewSubscription)
			r.Post("/{id}/cancel", s.handleCancelSubscription)
		})

		r.Route("/claims", func(r chi.Router) {
			r.Post("/", s.handleSubmitClaim)
			r.Get("/", s.handleListClaims)
			r.Get("/{id}", s.handleGetClaim)
			r.Get("/{id}/verification", s.handleGetVerification)
			r.Post("/{id}/review", s.handleBeginReview)
			r.Post("/{id}/approve", s.handleApproveClaim)
			r.Post("/{id}/reject", s.handleRejectClaim)
			r.Post("/{id}/pay", s.handleProcessPayment)
		})

		r.Get("/accounts/{account}/subscriptions", s.handleAccountSubscriptions)
		r.Get("/accounts/{account}/claims", s.handleAccountClaims)
		r.Get("/accounts/{account}/claims/stats", s.handleAccountClaimStats)

		r.Route("/funds", func(r chi.Router) {
			r.Get("/", s.handleFunds)
			r.Post("/deposit", s.handleDeposit)
			r.Post("/withdraw", s.handleWithdraw)
			r.Get("/movements", s.handleMovements)
		})

		r.Put("/settings/processing-fee", s.handleUpdateProcessingFee)
		r.Put("/settings/owner", s.handleTransferOwnership)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Store().Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ──────────────────────────────────────────────────
// Responses
// ──────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client went away
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    kind,
		},
	})
}

// writeLedgerError maps an engine error to its HTTP status.
func (s *Server) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(r.Context(), s.logger).Error("request failed", "error", err)
	}
	writeError(w, status, kind, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case reimburse.IsValidation(err):
		return http.StatusBadRequest, "validation_error"
	case reimburse.IsAuthorization(err):
		return http.StatusForbidden, "forbidden"
	case reimburse.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case reimburse.IsState(err):
		return http.StatusConflict, "conflict"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case reimburse.IsTransferFailure(err):
		return http.StatusBadGateway, "transfer_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
