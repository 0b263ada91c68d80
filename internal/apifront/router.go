package apifront

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/goldrouter/internal/audit"
	"github.com/sawpanic/goldrouter/internal/portfolio"
	"github.com/sawpanic/goldrouter/internal/venue"
	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
)

// ConnectorStatus is one row of GET /connectors.
type ConnectorStatus struct {
	VenueID      string
	Kind         venue.Kind
	Status       venue.Status
	BreakerState string
	ErrorRate    float64
	LatencyMs    float64
}

// Registry is the venue-lifecycle surface the API front needs: listing
// status for /connectors and /health, and the admin register/disable
// calls of SPEC_FULL.md §9. internal/resilience.Controller satisfies this.
type Registry interface {
	List() []ConnectorStatus
	RegisterVenue(ctx context.Context, venueID string, kind venue.Kind) error
	DisableVenue(ctx context.Context, venueID string) error
}

// Server is the API Front (spec §4.5).
type Server struct {
	router      *mux.Router
	httpServer  *http.Server
	aggregator  *portfolio.Aggregator
	journal     *audit.Journal
	registry    Registry
	metrics     *MetricsRegistry
	limiter     *ClientLimiter
	authTokens  map[string]bool
	devProfile  bool
}

// Config configures Server construction.
type Config struct {
	Addr            string
	AuthTokens      []string
	RateWindowMs    int64
	RateMaxRequests int
	DevProfile      bool
}

func NewServer(cfg Config, aggregator *portfolio.Aggregator, journal *audit.Journal, registry Registry) *Server {
	tokens := make(map[string]bool, len(cfg.AuthTokens))
	for _, t := range cfg.AuthTokens {
		tokens[t] = true
	}

	s := &Server{
		router:     mux.NewRouter(),
		aggregator: aggregator,
		journal:    journal,
		registry:   registry,
		metrics:    NewMetricsRegistry(),
		limiter:    NewClientLimiter(cfg.RateWindowMs, cfg.RateMaxRequests),
		authTokens: tokens,
		devProfile: cfg.DevProfile,
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes wires the fixed middleware chain of spec §4.5: rate-limit ->
// authenticate -> audit-request -> dispatch -> record-metrics. gorilla/mux
// applies router-level Use() middleware outermost-first, so the order
// below is the literal call order on every request. requestIDMiddleware
// runs ahead of all of it so every response, including a 429 from the
// rate limiter or a 401 from auth, carries a correlation id (spec §4.5
// "every response carries a correlation id").
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.rateLimitMiddleware)
	s.router.Use(s.authenticateMiddleware)
	s.router.Use(s.auditRequestMiddleware)
	s.router.Use(s.metricsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/portfolio", s.handlePortfolio).Methods(http.MethodGet)
	s.router.HandleFunc("/connectors", s.handleConnectors).Methods(http.MethodGet)
	s.router.HandleFunc("/audit/logs", s.handleAuditLogs).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/admin/venues", s.handleRegisterVenue).Methods(http.MethodPost)
	s.router.HandleFunc("/admin/venues/{id}/disable", s.handleDisableVenue).Methods(http.MethodPost)
	s.router.PathPrefix("/prometheus").Handler(s.metrics.PrometheusHandler())

	s.router.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
}

func (s *Server) ListenAndServe() error { return s.httpServer.ListenAndServe() }
func (s *Server) Shutdown(ctx context.Context) error { return s.httpServer.Shutdown(ctx) }

type ctxKey string

const ctxRequestID ctxKey = "request_id"

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(ctxRequestID).(string); ok {
		return id
	}
	return ""
}

// requestIDMiddleware assigns the correlation id used by every downstream
// stage, including error responses written before auditRequestMiddleware
// ever runs (spec §4.5 "every response carries a correlation id").
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		ctx := context.WithValue(r.Context(), ctxRequestID, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware is the first stage of the chain (spec §4.5).
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := ClientIdentity(r.Header.Get("X-Forwarded-For"))
		allowed, reset := s.limiter.Allow(identity)
		if !allowed {
			s.writeError(w, r, http.StatusTooManyRequests, venueerr.RateLimitError, "rate limit exceeded",
				fmt.Sprintf("resetTime=%s", reset.Format(time.RFC3339)))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticateMiddleware requires a Bearer token from the configured set
// (spec §4.5). /health is exempt so load balancers can probe it.
func (s *Server) authenticateMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix || !s.authTokens[auth[len(prefix):]] {
			s.writeError(w, r, http.StatusUnauthorized, venueerr.AuthError, "missing or invalid bearer token", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// auditRequestMiddleware emits an API_REQUEST audit record before dispatch
// (spec §4.4 taxonomy), tagged with the request id requestIDMiddleware
// already assigned.
func (s *Server) auditRequestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.journal != nil {
			_, _ = s.journal.Append(audit.KindAPIRequest, audit.GenericDetails{
				"method":     r.Method,
				"path":       r.URL.Path,
				"request_id": requestIDFrom(r.Context()),
			}, "api-front", "")
		}
		next.ServeHTTP(w, r)
	})
}

// responseRecorder captures the status code for the metrics stage.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *responseRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// metricsMiddleware is the final stage: dispatch already ran by the time
// this wraps the handler's own WriteHeader call, recording duration and
// status (spec §4.5 middleware order "dispatch -> record-metrics").
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if m, err := mux.CurrentRoute(r).GetPathTemplate(); err == nil {
			route = m
		}
		s.metrics.RecordRequest(route, r.Method, strconv.Itoa(rec.status), time.Since(start))
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Int("status", rec.status).Dur("duration", time.Since(start)).Msg("api front request")
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, httpStatus int, code venueerr.Code, message, details string) {
	s.metrics.RecordError(string(code))
	body := ErrorResponse{Code: string(code), Message: message, RequestID: requestIDFrom(r.Context())}
	if s.devProfile {
		body.Details = details
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, venueerr.NotFound, "no such endpoint", "")
}
