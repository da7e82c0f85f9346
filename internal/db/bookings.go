package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"courtbook/internal/model"
)

// ErrDuplicateReference is returned when a generated booking reference is already taken.
var ErrDuplicateReference = errors.New("duplicate booking reference")

const bookingColumns = `id, reference, customer_name, email, phone, booking_date, time_slot,
	display_time, period, rate, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var b model.Booking
	var period, status string
	if err := row.Scan(
		&b.ID, &b.Reference, &b.CustomerName, &b.Email, &b.Phone, &b.BookingDate, &b.TimeSlotKey,
		&b.DisplayTime, &period, &b.Rate, &status, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Period = model.Period(period)
	b.Status = model.BookingStatus(status)
	return &b, nil
}

// CreateBooking inserts a new booking row.
func (s Store) CreateBooking(ctx context.Context, b *model.Booking) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Reference, b.CustomerName, b.Email, b.Phone, b.BookingDate, b.TimeSlotKey,
		b.DisplayTime, string(b.Period), b.Rate, string(b.Status), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) && strings.Contains(err.Error(), "bookings.reference") {
			return ErrDuplicateReference
		}
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: slot %s on %s is already confirmed", model.ErrConflict, b.TimeSlotKey, b.BookingDate)
		}
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

// GetBooking returns a booking by id.
func (s Store) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(s.q.QueryRowContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: booking %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

// ListBookings returns all bookings, newest first.
func (s Store) ListBookings(ctx context.Context) ([]model.Booking, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM bookings ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// DeleteBooking removes a booking row.
func (s Store) DeleteBooking(ctx context.Context, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: booking %s", model.ErrNotFound, id)
	}
	return nil
}

// HasConfirmed reports whether the slot is already confirmed on date.
func (s Store) HasConfirmed(ctx context.Context, date, slot string) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bookings
		WHERE booking_date = ? AND time_slot = ? AND status = 'confirmed'`,
		date, slot,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ConfirmedSlots returns the slot keys holding a confirmed booking on date.
func (s Store) ConfirmedSlots(ctx context.Context, date string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT time_slot FROM bookings
		WHERE booking_date = ? AND status = 'confirmed'
		ORDER BY time_slot`,
		date,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []string
	for rows.Next() {
		var slot string
		if err := rows.Scan(&slot); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// ConfirmBooking moves a booking to confirmed in a single conditional write.
// It reports changed=false when the booking was already confirmed and fails
// with model.ErrConflict when another booking holds the same date and slot.
// A cancelled booking may be confirmed; this is the admin override path.
func (s Store) ConfirmBooking(ctx context.Context, id string) (bool, error) {
	return s.confirm(ctx, id, false)
}

// ConfirmPendingBooking is ConfirmBooking for the payment path: only a
// pending booking can be confirmed, and a cancelled one fails with
// model.ErrBookingCancelled.
func (s Store) ConfirmPendingBooking(ctx context.Context, id string) (bool, error) {
	return s.confirm(ctx, id, true)
}

func (s Store) confirm(ctx context.Context, id string, pendingOnly bool) (bool, error) {
	from := `status <> 'confirmed'`
	if pendingOnly {
		from = `status = 'pending'`
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE bookings SET status = 'confirmed', updated_at = ?
		WHERE id = ? AND `+from+`
		AND NOT EXISTS (
			SELECT 1 FROM bookings other
			WHERE other.booking_date = bookings.booking_date
			AND other.time_slot = bookings.time_slot
			AND other.status = 'confirmed'
			AND other.id <> bookings.id
		)`,
		time.Now().UTC(), id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("%w: booking %s", model.ErrConflict, id)
		}
		return false, fmt.Errorf("confirm booking: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	b, err := s.GetBooking(ctx, id)
	if err != nil {
		return false, err
	}
	if b.Status == model.StatusConfirmed {
		return false, nil
	}
	if pendingOnly && b.Status == model.StatusCancelled {
		return false, fmt.Errorf("%w: booking %s", model.ErrBookingCancelled, b.Reference)
	}
	return false, fmt.Errorf("%w: slot %s on %s is already confirmed by another booking",
		model.ErrConflict, b.TimeSlotKey, b.BookingDate)
}

// UpdateBookingStatus sets a non-confirmed status. It reports changed=false
// when the booking already had that status.
func (s Store) UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus) (bool, error) {
	if status == model.StatusConfirmed {
		return s.ConfirmBooking(ctx, id)
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE bookings SET status = ?, updated_at = ?
		WHERE id = ? AND status <> ?`,
		string(status), time.Now().UTC(), id, string(status),
	)
	if err != nil {
		return false, fmt.Errorf("update booking status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.GetBooking(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// BookingStats aggregates the admin dashboard numbers. today is a YYYY-MM-DD date.
func (s Store) BookingStats(ctx context.Context, today string) (model.Stats, error) {
	var st model.Stats
	err := s.q.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN booking_date = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'confirmed' THEN rate ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0)
		FROM bookings`,
		today,
	).Scan(&st.TotalBookings, &st.TodayBookings, &st.TotalRevenue, &st.PendingBookings)
	if err != nil {
		return model.Stats{}, fmt.Errorf("booking stats: %w", err)
	}
	return st, nil
}
