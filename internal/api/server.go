// Package api exposes bookings and payments over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"courtbook/internal/audit"
	"courtbook/internal/coordinator"
	"courtbook/internal/ledger"
	"courtbook/internal/model"
)

// Config configures the HTTP API.
type Config struct {
	Port                int
	AdminAPIKey         string
	PublicRatePerSecond float64
	PublicBurst         int
}

// HTTPServer serves the public booking API, the payment webhook and the admin API.
type HTTPServer struct {
	server   *http.Server
	ledger   *ledger.Ledger
	coord    *coordinator.Coordinator
	exporter *audit.Exporter
	apiKey   string
	limiter  *clientLimiter
	logger   zerolog.Logger
	now      func() time.Time
}

// NewHTTPServer wires the routes. exporter may be nil, which disables the export endpoint.
func NewHTTPServer(cfg Config, l *ledger.Ledger, c *coordinator.Coordinator, exporter *audit.Exporter, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		ledger:   l,
		coord:    c,
		exporter: exporter,
		apiKey:   cfg.AdminAPIKey,
		limiter:  newClientLimiter(cfg.PublicRatePerSecond, cfg.PublicBurst),
		logger:   logger.With().Str("component", "api").Logger(),
		now:      time.Now,
	}

	mux := http.NewServeMux()
	s.public(mux, "GET /api/bookings/slots", "slots", s.handleSlots)
	s.public(mux, "POST /api/bookings", "create_booking", s.handleCreateBooking)
	s.public(mux, "GET /api/bookings/{id}", "get_booking", s.handleGetBooking)
	s.public(mux, "POST /api/payments/initiate", "initiate_payment", s.handleInitiatePayment)
	s.public(mux, "GET /api/payments/{id}", "get_transaction", s.handleGetTransaction)

	// Provider callbacks are neither rate limited nor authenticated with the admin key.
	mux.Handle("POST /api/payments/webhook", s.instrument("webhook", http.HandlerFunc(s.handleWebhook)))

	s.admin(mux, "GET /api/bookings", "list_bookings", s.handleListBookings)
	s.admin(mux, "GET /api/bookings/stats", "stats", s.handleStats)
	s.admin(mux, "PATCH /api/bookings/{id}/status", "update_status", s.handleUpdateStatus)
	s.admin(mux, "DELETE /api/bookings/{id}", "delete_booking", s.handleDeleteBooking)
	s.admin(mux, "GET /api/admin/export", "export", s.handleExport)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	return s
}

func (s *HTTPServer) public(mux *http.ServeMux, pattern, route string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(route, s.rateLimit(h)))
}

func (s *HTTPServer) admin(mux *http.ServeMux, pattern, route string, h http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(route, s.requireAPIKey(h)))
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("api server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrMalformedWebhook):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: invalid JSON body", model.ErrValidation)
	}
	return nil
}
