// Package api exposes listing and reservation operations over HTTP/JSON.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"spotshare/internal/booking"
	"spotshare/internal/listing"
	"spotshare/internal/model"
)

// APIKeyHeader carries the shared secret on every /api request.
const APIKeyHeader = "X-Api-Key"

// ReadyFunc reports whether downstream dependencies are reachable.
type ReadyFunc func(ctx context.Context) error

// Options configures an HTTPServer.
type Options struct {
	Address        string
	APIKey         string
	RateLimitRPS   float64
	RateLimitBurst int
	Ready          ReadyFunc
}

// HTTPServer serves the public API.
type HTTPServer struct {
	server   *http.Server
	arbiter  *booking.Arbiter
	listing  *listing.Service
	validate *validator.Validate
	limiter  *rate.Limiter
	apiKey   string
	ready    ReadyFunc
	logger   zerolog.Logger
}

// NewHTTPServer builds the server and its routes.
func NewHTTPServer(opts Options, arbiter *booking.Arbiter, listingSvc *listing.Service, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		arbiter:  arbiter,
		listing:  listingSvc,
		validate: validator.New(),
		apiKey:   opts.APIKey,
		ready:    opts.Ready,
		logger:   logger.With().Str("component", "api").Logger(),
	}
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = int(opts.RateLimitRPS) + 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/spots", s.handleCreateSpot)
	api.HandleFunc("GET /api/v1/spots/available", s.handleAvailableSpots)
	api.HandleFunc("GET /api/v1/spots/{id}", s.handleGetSpot)
	api.HandleFunc("POST /api/v1/spots/{id}/approve", s.handleModerateSpot(true))
	api.HandleFunc("POST /api/v1/spots/{id}/reject", s.handleModerateSpot(false))
	api.HandleFunc("POST /api/v1/spots/{id}/availability", s.handleSpotAvailability)
	api.HandleFunc("POST /api/v1/spots/{id}/schedule", s.handleSpotSchedule)
	api.HandleFunc("GET /api/v1/spots/{id}/reviews", s.handleSpotReviews)

	api.HandleFunc("POST /api/v1/reservations", s.handleCreateReservation)
	api.HandleFunc("GET /api/v1/reservations", s.handleListReservations)
	api.HandleFunc("GET /api/v1/reservations/{id}", s.handleGetReservation)
	api.HandleFunc("POST /api/v1/reservations/{id}/approve", s.handleDecideReservation(true))
	api.HandleFunc("POST /api/v1/reservations/{id}/reject", s.handleDecideReservation(false))
	api.HandleFunc("POST /api/v1/reservations/{id}/cancel", s.handleCancelReservation)
	api.HandleFunc("POST /api/v1/reservations/{id}/complete", s.handleCompleteReservation)
	api.HandleFunc("POST /api/v1/reservations/{id}/payment", s.handlePayment)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("/api/", s.rateLimit(s.auth(api)))

	s.server = &http.Server{
		Addr:              opts.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("address", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get(APIKeyHeader) != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// decode reads a JSON body strictly and validates it.
func (s *HTTPServer) decode(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return errors.New("invalid JSON body")
	}
	return s.validate.Struct(out)
}

// fail maps a domain error to a status code and writes it.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidInterval),
		errors.Is(err, model.ErrInvalidSchedule),
		errors.Is(err, model.ErrInvalidResource),
		errors.Is(err, model.ErrInvalidReview):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrResourceNotFound),
		errors.Is(err, model.ErrReservationNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, model.ErrGeocodeUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrNotApproved),
		errors.Is(err, model.ErrDisabled),
		errors.Is(err, model.ErrOutOfWindow),
		errors.Is(err, model.ErrScheduleMismatch),
		errors.Is(err, model.ErrSlotConflict),
		errors.Is(err, model.ErrInvalidStateTransition),
		errors.Is(err, model.ErrTooLateToCancel),
		errors.Is(err, model.ErrTooEarlyToComplete),
		errors.Is(err, model.ErrPaymentAlreadyCompleted),
		errors.Is(err, model.ErrConcurrentModification):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
