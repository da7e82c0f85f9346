// Package coordinator drives a reservation from booking form through payment
// to confirmation, and keeps webhook handling idempotent.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"courtbook/internal/db"
	"courtbook/internal/events"
	"courtbook/internal/ledger"
	"courtbook/internal/metrics"
	"courtbook/internal/model"
	"courtbook/internal/payment"
)

const paymentMethod = "gcash"

// Callback outcomes.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeConflict  = "conflict"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeReplay    = "replay"
)

// Config holds the URLs handed to the provider and the gateway deadline.
type Config struct {
	// CallbackURL is the absolute URL of the payment webhook endpoint.
	CallbackURL string
	// ReturnURL is the frontend base the customer lands on after checkout.
	ReturnURL      string
	GatewayTimeout time.Duration
}

// Reservation is the result of starting a reservation or a payment attempt.
type Reservation struct {
	Booking     *model.Booking     `json:"booking"`
	Transaction *model.Transaction `json:"transaction,omitempty"`
	CheckoutURL string             `json:"checkoutUrl,omitempty"`
}

// CallbackResult reports what a webhook did.
type CallbackResult struct {
	Outcome     string             `json:"outcome"`
	Booking     *model.Booking     `json:"booking,omitempty"`
	Transaction *model.Transaction `json:"tx"`
}

// Coordinator orchestrates the ledger and the payment gateway.
type Coordinator struct {
	db      *db.DB
	ledger  *ledger.Ledger
	slots   ledger.SlotSource
	gateway payment.Gateway
	bus     *events.EventBus
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

// New constructs a Coordinator. bus may be nil.
func New(database *db.DB, l *ledger.Ledger, slots ledger.SlotSource, gateway payment.Gateway,
	bus *events.EventBus, cfg Config, logger *zerolog.Logger,
) *Coordinator {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	return &Coordinator{
		db:      database,
		ledger:  l,
		slots:   slots,
		gateway: gateway,
		bus:     bus,
		cfg:     cfg,
		logger:  logger.With().Str("component", "coordinator").Logger(),
		now:     time.Now,
	}
}

// StartReservation creates a pending booking from the form and opens a
// checkout session for it. When the gateway fails the booking stays pending
// and is returned together with the error, so payment can be retried.
func (c *Coordinator) StartReservation(ctx context.Context, form ReservationForm) (*Reservation, error) {
	return c.ReserveAndPay(ctx, form, 0)
}

// ReserveAndPay is StartReservation with an explicit checkout amount. A zero
// amount charges the catalog rate of the slot.
func (c *Coordinator) ReserveAndPay(ctx context.Context, form ReservationForm, amount float64) (*Reservation, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", model.ErrValidation)
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}
	slot, ok := c.slots.Lookup(strings.TrimSpace(string(form.TimeSlot)))
	if !ok {
		return nil, fmt.Errorf("%w: time slot %q is not offered", model.ErrValidation, form.TimeSlot)
	}

	b, err := c.ledger.CreatePendingBooking(ctx, form.customer(), form.Date, slot.TimeRange, slot.Rate)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		amount = b.Rate
	}
	return c.initiate(ctx, b, amount)
}

// InitiatePayment opens a new checkout session for a pending booking. A zero
// amount charges the booking rate.
func (c *Coordinator) InitiatePayment(ctx context.Context, bookingID string, amount float64) (*Reservation, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative", model.ErrValidation)
	}
	b, err := c.ledger.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: booking %s is %s, only pending bookings accept payment", model.ErrConflict, b.Reference, b.Status)
	}
	if amount == 0 {
		amount = b.Rate
	}
	return c.initiate(ctx, b, amount)
}

func (c *Coordinator) initiate(ctx context.Context, b *model.Booking, amount float64) (*Reservation, error) {
	now := c.now().UTC()
	ref, err := payment.NewProviderReference(now)
	if err != nil {
		return nil, err
	}
	tx := &model.Transaction{
		ID:                uuid.NewString(),
		BookingID:         b.ID,
		ProviderReference: ref,
		Amount:            amount,
		Status:            model.TxInitiated,
		PaymentMethod:     paymentMethod,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := c.db.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	log := c.logger.With().Str("booking_id", b.ID).Str("provider_ref", ref).Logger()

	gctx, cancel := context.WithTimeout(ctx, c.cfg.GatewayTimeout)
	defer cancel()
	start := time.Now()
	checkout, err := c.gateway.InitiateCheckout(gctx, payment.CheckoutRequest{
		TransactionID:     tx.ID,
		ProviderReference: ref,
		Amount:            amount,
		CallbackURL:       c.cfg.CallbackURL,
		ReturnURL:         c.returnURL(tx.ID),
	})
	if err != nil {
		metrics.ObserveGateway(c.gateway.Name(), "error", time.Since(start))
		log.Error().Err(err).Msg("checkout initiation failed")

		// The request context may already be done; the failure still has to be recorded.
		if _, ferr := c.db.FinishTransaction(context.WithoutCancel(ctx), tx.ID, model.TxFailed, model.ReasonGatewayError, "", nil); ferr != nil {
			log.Error().Err(ferr).Msg("failed to record gateway failure")
		}
		tx.Status = model.TxFailed
		tx.FailureReason = model.ReasonGatewayError
		if !errors.Is(err, model.ErrGatewayUnavailable) {
			err = fmt.Errorf("%w: %v", model.ErrGatewayUnavailable, err)
		}
		return &Reservation{Booking: b, Transaction: tx}, err
	}
	metrics.ObserveGateway(c.gateway.Name(), "ok", time.Since(start))

	if err := c.db.SetCheckout(ctx, tx.ID, checkout.CheckoutURL, checkout.ExternalTransactionID); err != nil {
		return nil, err
	}
	tx.CheckoutURL = checkout.CheckoutURL
	tx.ExternalTransactionID = checkout.ExternalTransactionID

	log.Info().Float64("amount", amount).Str("gateway", c.gateway.Name()).Msg("payment initiated")
	c.bus.Publish(events.Event{
		Type:          events.PaymentInitiated,
		BookingID:     b.ID,
		BookingDate:   b.BookingDate,
		TimeSlot:      b.TimeSlotKey,
		TransactionID: tx.ID,
		Status:        string(tx.Status),
	})
	return &Reservation{Booking: b, Transaction: tx, CheckoutURL: checkout.CheckoutURL}, nil
}

func (c *Coordinator) returnURL(txID string) string {
	if c.cfg.ReturnURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/payment-complete?tx=%s", strings.TrimRight(c.cfg.ReturnURL, "/"), url.QueryEscape(txID))
}

// HandlePaymentCallback applies a provider webhook. Each transaction leaves
// initiated at most once; replays return the recorded state unchanged. A
// successful payment for a slot that another booking already confirmed
// cancels this booking, fails the transaction and returns model.ErrConflict
// together with the result. A successful payment for a booking that is
// already cancelled fails the transaction, leaves the booking cancelled and
// returns model.ErrBookingCancelled with the result.
func (c *Coordinator) HandlePaymentCallback(ctx context.Context, raw []byte) (*CallbackResult, error) {
	n, err := payment.NormalizeWebhook(raw, c.now())
	if err != nil {
		metrics.IncWebhook("malformed")
		c.logger.Warn().Err(err).Msg("rejected malformed webhook")
		return nil, err
	}
	log := c.logger.With().Str("provider_ref", n.ProviderReference).Str("outcome", string(n.Outcome)).Logger()

	var res CallbackResult
	var publish func()
	err = c.db.InTx(ctx, func(s db.Store) error {
		l, pub := c.ledger.WithTx(s)
		publish = pub
		return c.applyCallback(ctx, s, l, n, &res)
	})
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			metrics.IncWebhook("unknown")
			log.Warn().Err(err).Msg("webhook references an unknown transaction or booking")
		}
		return nil, err
	}
	publish()

	metrics.IncWebhook(res.Outcome)
	switch res.Outcome {
	case OutcomeReplay:
		log.Info().Str("status", string(res.Transaction.Status)).Msg("webhook replay ignored")
	case OutcomeConflict:
		metrics.IncBookingStatus(string(model.StatusCancelled), "payment")
		log.Warn().Str("booking_id", res.Transaction.BookingID).Msg("slot already confirmed by another booking, booking cancelled")
		c.publishFinished(res)
		return &res, fmt.Errorf("%w: slot was confirmed by another booking first", model.ErrConflict)
	case OutcomeRejected:
		log.Warn().Str("booking_id", res.Transaction.BookingID).Msg("payment received for a cancelled booking, not confirmed")
		c.publishFinished(res)
		return &res, fmt.Errorf("%w: payment arrived after cancellation", model.ErrBookingCancelled)
	case OutcomeConfirmed:
		metrics.IncBookingStatus(string(model.StatusConfirmed), "payment")
		log.Info().Str("booking_id", res.Transaction.BookingID).Msg("payment succeeded, booking confirmed")
		c.publishFinished(res)
	default:
		log.Info().Str("booking_id", res.Transaction.BookingID).Msg("payment failed, booking left pending")
		c.publishFinished(res)
	}
	return &res, nil
}

func (c *Coordinator) applyCallback(ctx context.Context, s db.Store, l *ledger.Ledger, n *payment.Notification, res *CallbackResult) error {
	tx, err := s.GetTransactionByProviderRef(ctx, n.ProviderReference)
	if err != nil {
		return err
	}
	if tx.IsFinal() {
		return c.replay(ctx, s, tx, res)
	}

	var (
		status = model.TxFailed
		reason string
		paidAt *time.Time
	)
	switch n.Outcome {
	case payment.OutcomeSuccess:
		_, err := l.ConfirmPayment(ctx, tx.BookingID)
		switch {
		case errors.Is(err, model.ErrBookingCancelled):
			reason = model.ReasonBookingCancelled
			res.Outcome = OutcomeRejected
		case errors.Is(err, model.ErrConflict):
			reason = model.ReasonSlotConflict
			res.Outcome = OutcomeConflict
		case err != nil:
			return err
		default:
			status = model.TxSuccess
			paidAt = &n.PaidAt
			res.Outcome = OutcomeConfirmed
		}
	case payment.OutcomeCancelled:
		reason = model.ReasonCancelled
		res.Outcome = OutcomeFailed
	default:
		reason = model.ReasonPaymentFailed
		res.Outcome = OutcomeFailed
	}

	ok, err := s.FinishTransaction(ctx, tx.ID, status, reason, n.ExternalTransactionID, paidAt)
	if err != nil {
		return err
	}
	if !ok {
		return c.replay(ctx, s, tx, res)
	}

	if res.Outcome == OutcomeConflict {
		if _, err := l.SetStatus(ctx, tx.BookingID, model.StatusCancelled); err != nil {
			return err
		}
	}

	if res.Transaction, err = s.GetTransaction(ctx, tx.ID); err != nil {
		return err
	}
	if res.Booking, err = s.GetBooking(ctx, tx.BookingID); err != nil {
		return err
	}
	return nil
}

func (c *Coordinator) replay(ctx context.Context, s db.Store, tx *model.Transaction, res *CallbackResult) error {
	current, err := s.GetTransaction(ctx, tx.ID)
	if err != nil {
		return err
	}
	*res = CallbackResult{Outcome: OutcomeReplay, Transaction: current}
	b, err := s.GetBooking(ctx, tx.BookingID)
	switch {
	case err == nil:
		res.Booking = b
	case !errors.Is(err, model.ErrNotFound):
		return err
	}
	return nil
}

func (c *Coordinator) publishFinished(res CallbackResult) {
	e := events.Event{
		Type:          events.PaymentFinished,
		BookingID:     res.Transaction.BookingID,
		TransactionID: res.Transaction.ID,
		Status:        string(res.Transaction.Status),
	}
	if res.Booking != nil {
		e.BookingDate = res.Booking.BookingDate
		e.TimeSlot = res.Booking.TimeSlotKey
	}
	c.bus.Publish(e)
}

// AdminSetStatus applies an admin status override. Confirming still goes
// through the confirmed-slot guard; cancelling is unconditional.
func (c *Coordinator) AdminSetStatus(ctx context.Context, bookingID string, status model.BookingStatus) (*model.Booking, error) {
	b, err := c.ledger.SetStatus(ctx, bookingID, status)
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			c.logger.Warn().Str("booking_id", bookingID).Msg("admin confirmation rejected, slot already confirmed")
		}
		return nil, err
	}
	metrics.IncBookingStatus(string(status), "admin")
	return b, nil
}

// GetTransaction returns a payment attempt by id.
func (c *Coordinator) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return c.db.GetTransaction(ctx, id)
}
