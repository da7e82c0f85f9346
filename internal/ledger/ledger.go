// Package ledger owns booking records: availability, creation, status changes and stats.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"courtbook/internal/cache"
	"courtbook/internal/db"
	"courtbook/internal/events"
	"courtbook/internal/metrics"
	"courtbook/internal/model"
)

const maxReferenceAttempts = 5

// Repository is the booking storage used by the ledger. db.Store and *db.DB satisfy it.
type Repository interface {
	CreateBooking(ctx context.Context, b *model.Booking) error
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	ListBookings(ctx context.Context) ([]model.Booking, error)
	DeleteBooking(ctx context.Context, id string) error
	HasConfirmed(ctx context.Context, date, slot string) (bool, error)
	ConfirmedSlots(ctx context.Context, date string) ([]string, error)
	UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) (bool, error)
	ConfirmPendingBooking(ctx context.Context, id string) (bool, error)
	BookingStats(ctx context.Context, today string) (model.Stats, error)
	ListTransactionsForBooking(ctx context.Context, bookingID string) ([]model.Transaction, error)
	ListTransactions(ctx context.Context) ([]model.Transaction, error)
}

// SlotSource provides the active slot catalog.
type SlotSource interface {
	ListActiveSlots() []model.TimeSlotDefinition
	Lookup(timeRange string) (model.TimeSlotDefinition, bool)
}

// Ledger implements booking operations on top of a Repository.
type Ledger struct {
	repo   Repository
	slots  SlotSource
	cache  *cache.Availability
	bus    *events.EventBus
	logger zerolog.Logger

	// held collects events of a transaction-bound ledger until commit.
	held *[]events.Event

	now          func() time.Time
	newReference func() (string, error)
}

// New constructs a Ledger. cache and bus may be nil.
func New(repo Repository, slots SlotSource, availability *cache.Availability, bus *events.EventBus, logger *zerolog.Logger) *Ledger {
	return &Ledger{
		repo:         repo,
		slots:        slots,
		cache:        availability,
		bus:          bus,
		logger:       logger.With().Str("component", "ledger").Logger(),
		now:          time.Now,
		newReference: NewReference,
	}
}

// WithTx returns a ledger bound to repo, usually a db.Store from DB.InTx.
// It skips the availability cache and holds its events; call publish after
// the surrounding transaction commits.
func (l *Ledger) WithTx(repo Repository) (bound *Ledger, publish func()) {
	held := make([]events.Event, 0, 2)
	cp := *l
	cp.repo = repo
	cp.cache = nil
	cp.held = &held
	return &cp, func() {
		for _, e := range held {
			l.bus.Publish(e)
		}
	}
}

func (l *Ledger) emit(e events.Event) {
	if l.held != nil {
		*l.held = append(*l.held, e)
		return
	}
	l.bus.Publish(e)
}

// GetAvailableSlots lists the active catalog for date. A slot is unavailable
// only when a confirmed booking holds it; pending bookings never block.
func (l *Ledger) GetAvailableSlots(ctx context.Context, date string) ([]model.AvailableSlot, error) {
	date, err := model.ParseDate(date)
	if err != nil {
		return nil, err
	}

	confirmed, ok := l.cache.ConfirmedSlots(ctx, date)
	if !ok {
		confirmed, err = l.repo.ConfirmedSlots(ctx, date)
		if err != nil {
			return nil, fmt.Errorf("load confirmed slots: %w", err)
		}
		l.cache.StoreConfirmedSlots(ctx, date, confirmed)
	}

	taken := make(map[string]struct{}, len(confirmed))
	for _, s := range confirmed {
		taken[s] = struct{}{}
	}

	active := l.slots.ListActiveSlots()
	out := make([]model.AvailableSlot, 0, len(active))
	for _, s := range active {
		_, isTaken := taken[s.TimeRange]
		out = append(out, model.AvailableSlot{
			TimeRange:   s.TimeRange,
			DisplayTime: s.DisplayTime,
			Rate:        s.Rate,
			Period:      s.Period,
			Available:   !isTaken,
		})
	}
	return out, nil
}

// CreatePendingBooking stores a new pending booking with a fresh reference.
// It rejects the request early when the slot is already confirmed; concurrent
// pending bookings for one slot are allowed and resolved at confirmation.
func (l *Ledger) CreatePendingBooking(ctx context.Context, customer model.Customer, date, slotKey string, rate float64) (*model.Booking, error) {
	date, err := model.ParseDate(date)
	if err != nil {
		return nil, err
	}
	if rate <= 0 {
		return nil, fmt.Errorf("%w: rate must be positive", model.ErrValidation)
	}
	slot, ok := l.slots.Lookup(slotKey)
	if !ok {
		return nil, fmt.Errorf("%w: unknown time slot %q", model.ErrValidation, slotKey)
	}

	taken, err := l.repo.HasConfirmed(ctx, date, slotKey)
	if err != nil {
		return nil, fmt.Errorf("check slot: %w", err)
	}
	if taken {
		metrics.IncSlotConflict("create")
		return nil, fmt.Errorf("%w: slot %s on %s is already booked", model.ErrConflict, slotKey, date)
	}

	now := l.now().UTC()
	b := &model.Booking{
		ID:           uuid.NewString(),
		CustomerName: strings.TrimSpace(customer.Name),
		Email:        strings.TrimSpace(customer.Email),
		Phone:        strings.TrimSpace(customer.Phone),
		BookingDate:  date,
		TimeSlotKey:  slotKey,
		DisplayTime:  slot.DisplayTime,
		Period:       slot.Period,
		Rate:         rate,
		Status:       model.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for attempt := 1; ; attempt++ {
		b.Reference, err = l.newReference()
		if err != nil {
			return nil, err
		}
		err = l.repo.CreateBooking(ctx, b)
		if !errors.Is(err, db.ErrDuplicateReference) || attempt == maxReferenceAttempts {
			break
		}
		l.logger.Debug().Str("reference", b.Reference).Msg("booking reference collision, retrying")
	}
	if err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}

	metrics.IncBookingCreated()
	l.logger.Info().
		Str("booking_id", b.ID).
		Str("reference", b.Reference).
		Str("date", date).
		Str("slot", slotKey).
		Msg("pending booking created")
	l.emit(events.Event{Type: events.BookingCreated, BookingID: b.ID, BookingDate: date, TimeSlot: slotKey, Status: string(b.Status)})
	return b, nil
}

// SetStatus moves a booking to status. Setting the current status again is a
// no-op. Confirming runs the atomic confirmed-slot guard and fails with
// model.ErrConflict when another booking already holds the slot.
func (l *Ledger) SetStatus(ctx context.Context, id string, status model.BookingStatus) (*model.Booking, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: invalid status %q", model.ErrValidation, status)
	}
	return l.transition(ctx, id, status, func() (bool, error) {
		return l.repo.UpdateBookingStatus(ctx, id, status)
	})
}

// ConfirmPayment confirms a booking on behalf of a successful payment. Unlike
// SetStatus it never revives a cancelled booking: that fails with
// model.ErrBookingCancelled.
func (l *Ledger) ConfirmPayment(ctx context.Context, id string) (*model.Booking, error) {
	return l.transition(ctx, id, model.StatusConfirmed, func() (bool, error) {
		return l.repo.ConfirmPendingBooking(ctx, id)
	})
}

func (l *Ledger) transition(ctx context.Context, id string, status model.BookingStatus, apply func() (bool, error)) (*model.Booking, error) {
	changed, err := apply()
	if err != nil {
		if errors.Is(err, model.ErrConflict) && !errors.Is(err, model.ErrBookingCancelled) {
			metrics.IncSlotConflict("confirm")
		}
		return nil, err
	}

	b, err := l.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		l.logger.Info().Str("booking_id", id).Str("status", string(status)).Msg("booking status changed")
		l.emit(events.Event{
			Type:        events.BookingStatusChanged,
			BookingID:   id,
			BookingDate: b.BookingDate,
			TimeSlot:    b.TimeSlotKey,
			Status:      string(status),
		})
	}
	return b, nil
}

// GetByID returns a booking with its payment attempts.
func (l *Ledger) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	b, err := l.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	txs, err := l.repo.ListTransactionsForBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	b.Transactions = txs
	return b, nil
}

// ListAll returns every booking, newest first, each with its payment attempts.
func (l *Ledger) ListAll(ctx context.Context) ([]model.Booking, error) {
	bookings, err := l.repo.ListBookings(ctx)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return []model.Booking{}, nil
	}

	txs, err := l.repo.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	byBooking := make(map[string][]model.Transaction, len(bookings))
	for _, t := range txs {
		byBooking[t.BookingID] = append(byBooking[t.BookingID], t)
	}
	for i := range bookings {
		bookings[i].Transactions = byBooking[bookings[i].ID]
	}
	return bookings, nil
}

// Delete removes a booking. Its transactions are kept.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	b, err := l.repo.GetBooking(ctx, id)
	if err != nil {
		return err
	}
	if err := l.repo.DeleteBooking(ctx, id); err != nil {
		return err
	}
	l.logger.Info().Str("booking_id", id).Str("reference", b.Reference).Msg("booking deleted")
	l.emit(events.Event{Type: events.BookingDeleted, BookingID: id, BookingDate: b.BookingDate, TimeSlot: b.TimeSlotKey})
	return nil
}

// ComputeStats summarizes bookings; todayBookings counts bookings dated on asOf's calendar day.
func (l *Ledger) ComputeStats(ctx context.Context, asOf time.Time) (model.Stats, error) {
	return l.repo.BookingStats(ctx, model.DateOf(asOf))
}
