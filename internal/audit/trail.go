package audit

import (
	"github.com/rs/zerolog"

	"courtbook/internal/events"
	"courtbook/internal/metrics"
)

// Trail records every committed booking and payment event as one structured
// log line, giving operators a chronological activity log next to the
// periodic workbook.
type Trail struct {
	logger zerolog.Logger
}

func NewTrail(logger *zerolog.Logger) *Trail {
	return &Trail{logger: logger.With().Str("component", "audit_trail").Logger()}
}

// Subscribe attaches the trail to every lifecycle event type.
func (t *Trail) Subscribe(bus *events.EventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(t.record,
		events.BookingCreated,
		events.BookingStatusChanged,
		events.BookingDeleted,
		events.PaymentInitiated,
		events.PaymentFinished,
	)
}

func (t *Trail) record(e events.Event) error {
	metrics.IncLifecycleEvent(e.Type)

	entry := t.logger.Info().
		Str("event", e.Type).
		Str("booking_id", e.BookingID).
		Time("at", e.CreatedAt)
	if e.BookingDate != "" {
		entry = entry.Str("date", e.BookingDate).Str("slot", e.TimeSlot)
	}
	if e.Status != "" {
		entry = entry.Str("status", e.Status)
	}
	if e.TransactionID != "" {
		entry = entry.Str("transaction_id", e.TransactionID)
	}
	entry.Msg("lifecycle event")
	return nil
}
