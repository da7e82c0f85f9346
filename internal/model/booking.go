package model

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage form of a booking date.
const DateLayout = "2006-01-02"

// BookingStatus represents booking status.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

type Booking struct {
	ID           string        `json:"id"`
	Reference    string        `json:"reference"`
	CustomerName string        `json:"customer_name"`
	Email        string        `json:"email"`
	Phone        string        `json:"phone"`
	BookingDate  string        `json:"booking_date"` // YYYY-MM-DD, never a timestamp
	TimeSlotKey  string        `json:"time_slot"`
	DisplayTime  string        `json:"display_time"`
	Period       Period        `json:"period"`
	Rate         float64       `json:"rate"`
	Status       BookingStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Transactions []Transaction `json:"transactions,omitempty"`
}

// Customer holds the contact details collected by the booking form.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"contact"`
}

// ParseDate parses a YYYY-MM-DD booking date and returns it in canonical form.
func ParseDate(s string) (string, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", ErrValidation, s)
	}
	return d.Format(DateLayout), nil
}

// DateOf returns the calendar date of t in its own location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}
