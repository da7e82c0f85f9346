// Package payment is the boundary to the external payment provider: checkout
// initiation and normalization of asynchronous status callbacks.
package payment

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// CheckoutRequest describes one checkout session to open with the provider.
type CheckoutRequest struct {
	TransactionID     string
	ProviderReference string
	Amount            float64
	CallbackURL       string
	ReturnURL         string
}

// Checkout is the provider's answer to a checkout request.
type Checkout struct {
	CheckoutURL           string
	ExternalTransactionID string
}

// Gateway opens checkout sessions. Implementations return errors wrapping
// model.ErrGatewayUnavailable when the provider cannot be reached or refuses
// the request.
type Gateway interface {
	InitiateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	Name() string
}

const refAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewProviderReference returns a reference such as gcash_1717200000000_k3j9x0a2b.
func NewProviderReference(now time.Time) (string, error) {
	buf := make([]byte, 9)
	limit := big.NewInt(int64(len(refAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate provider reference: %w", err)
		}
		buf[i] = refAlphabet[n.Int64()]
	}
	return fmt.Sprintf("gcash_%d_%s", now.UnixMilli(), buf), nil
}
