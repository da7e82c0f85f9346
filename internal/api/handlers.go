package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"courtbook/internal/audit"
	"courtbook/internal/coordinator"
	"courtbook/internal/model"
)

const maxWebhookBody = 64 << 10

// CreateBookingResponse is returned by POST /api/bookings.
type CreateBookingResponse struct {
	Message     string             `json:"message"`
	Booking     *model.Booking     `json:"booking"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
	CheckoutURL string             `json:"checkoutUrl,omitempty"`
	Error       string             `json:"error,omitempty"`
}

// InitiatePaymentRequest is the body of POST /api/payments/initiate. Either
// BookingID names an existing pending booking, or Booking carries the form of
// a new one.
type InitiatePaymentRequest struct {
	BookingID string                       `json:"bookingId,omitempty"`
	Booking   *coordinator.ReservationForm `json:"booking,omitempty"`
	Amount    float64                      `json:"amount,omitempty"`
}

// InitiatePaymentResponse is returned by POST /api/payments/initiate.
type InitiatePaymentResponse struct {
	BookingID     string `json:"bookingId"`
	Reference     string `json:"reference"`
	TransactionID string `json:"transactionId"`
	CheckoutURL   string `json:"checkoutUrl,omitempty"`
	Error         string `json:"error,omitempty"`
}

// UpdateStatusRequest is the body of PATCH /api/bookings/{id}/status.
type UpdateStatusRequest struct {
	Status model.BookingStatus `json:"status"`
}

// WebhookResponse acknowledges a provider callback.
type WebhookResponse struct {
	OK      bool               `json:"ok"`
	Outcome string             `json:"outcome,omitempty"`
	Tx      *model.Transaction `json:"tx,omitempty"`
	Error   string             `json:"error,omitempty"`
}

// handleSlots lists the day's slots with availability.
// GET /api/bookings/slots?date=YYYY-MM-DD
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	slots, err := s.ledger.GetAvailableSlots(r.Context(), date)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

// handleCreateBooking creates a pending booking and opens checkout.
// POST /api/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var form coordinator.ReservationForm
	if err := decodeJSON(w, r, &form); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	res, err := s.coord.StartReservation(r.Context(), form)
	if errors.Is(err, model.ErrGatewayUnavailable) && res != nil {
		// The booking exists and can be paid later through /api/payments/initiate.
		writeJSON(w, http.StatusBadGateway, CreateBookingResponse{
			Message:     "Booking created but payment could not be started. Please try again.",
			Booking:     res.Booking,
			Transaction: res.Transaction,
			Error:       err.Error(),
		})
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, CreateBookingResponse{
		Message:     "Booking successfully created (pending payment).",
		Booking:     res.Booking,
		Transaction: res.Transaction,
		CheckoutURL: res.CheckoutURL,
	})
}

// handleGetBooking returns a booking with its transactions.
// GET /api/bookings/{id}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.ledger.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleListBookings returns all bookings, newest first.
// GET /api/bookings
func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := s.ledger.ListAll(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// handleStats returns the dashboard summary.
// GET /api/bookings/stats
func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.ledger.ComputeStats(r.Context(), s.now())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleUpdateStatus applies an admin status override.
// PATCH /api/bookings/{id}/status
func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if req.Status == "" {
		writeError(w, http.StatusBadRequest, "status is required")
		return
	}

	b, err := s.coord.AdminSetStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleDeleteBooking removes a booking.
// DELETE /api/bookings/{id}
func (s *HTTPServer) handleDeleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Booking deleted"})
}

// handleInitiatePayment opens a new checkout, for an existing pending booking
// or for a booking created from the inline form.
// POST /api/payments/initiate
func (s *HTTPServer) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	var (
		res *coordinator.Reservation
		err error
	)
	switch {
	case strings.TrimSpace(req.BookingID) != "":
		res, err = s.coord.InitiatePayment(r.Context(), req.BookingID, req.Amount)
	case req.Booking != nil:
		res, err = s.coord.ReserveAndPay(r.Context(), *req.Booking, req.Amount)
	default:
		writeError(w, http.StatusBadRequest, "bookingId or booking is required")
		return
	}

	if errors.Is(err, model.ErrGatewayUnavailable) && res != nil {
		writeJSON(w, http.StatusBadGateway, newInitiatePaymentResponse(res, err))
		return
	}
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newInitiatePaymentResponse(res, nil))
}

func newInitiatePaymentResponse(res *coordinator.Reservation, err error) InitiatePaymentResponse {
	out := InitiatePaymentResponse{
		BookingID:   res.Booking.ID,
		Reference:   res.Booking.Reference,
		CheckoutURL: res.CheckoutURL,
	}
	if res.Transaction != nil {
		out.TransactionID = res.Transaction.ID
	}
	if err != nil {
		out.Error = err.Error()
	}
	return out
}

// handleWebhook applies a provider payment callback.
// POST /api/payments/webhook
func (s *HTTPServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "webhook body too large")
		return
	}

	res, err := s.coord.HandlePaymentCallback(r.Context(), raw)
	switch {
	case errors.Is(err, model.ErrConflict) && res != nil:
		writeJSON(w, http.StatusConflict, WebhookResponse{Outcome: res.Outcome, Tx: res.Transaction, Error: err.Error()})
	case err != nil:
		s.writeDomainError(w, r, err)
	default:
		writeJSON(w, http.StatusOK, WebhookResponse{OK: true, Outcome: res.Outcome, Tx: res.Transaction})
	}
}

// handleGetTransaction returns one payment attempt.
// GET /api/payments/{id}
func (s *HTTPServer) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.coord.GetTransaction(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// handleExport returns an xlsx workbook of bookings and transactions.
// GET /api/admin/export
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusNotFound, "export is disabled")
		return
	}
	var buf bytes.Buffer
	if err := s.exporter.Export(r.Context(), &buf); err != nil {
		s.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", audit.Filename(s.now())))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
