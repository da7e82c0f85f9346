package model

import (
	"errors"
	"fmt"
)

// Error kinds returned by the ledger and the coordinator. Callers wrap them
// with context and test with errors.Is.
var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("slot conflict")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrMalformedWebhook   = errors.New("malformed webhook")
)

// ErrBookingCancelled is a conflict: the booking is cancelled and a payment
// can no longer confirm it.
var ErrBookingCancelled = fmt.Errorf("%w: booking is cancelled", ErrConflict)
