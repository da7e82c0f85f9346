package payment

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"courtbook/internal/model"
)

// Outcome is the provider-independent result of a payment.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

// Notification is a normalized payment callback.
type Notification struct {
	ProviderReference     string
	Outcome               Outcome
	ExternalTransactionID string
	PaidAt                time.Time
}

type webhookPayload struct {
	Reference          string `json:"reference"`
	ReferenceID        string `json:"referenceId"`
	Status             string `json:"status"`
	TransactionID      string `json:"transactionId"`
	GcashTransactionID string `json:"gcash_transaction_id"`
	PaidAt             string `json:"paid_at"`
}

// NormalizeWebhook maps a raw provider callback to a Notification. received
// is used as the payment time when the payload carries none.
func NormalizeWebhook(raw []byte, received time.Time) (*Notification, error) {
	var p webhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedWebhook, err)
	}

	n := &Notification{
		ProviderReference:     firstNonEmpty(p.Reference, p.ReferenceID),
		ExternalTransactionID: firstNonEmpty(p.TransactionID, p.GcashTransactionID),
		PaidAt:                received.UTC(),
	}
	if n.ProviderReference == "" {
		return nil, fmt.Errorf("%w: missing reference", model.ErrMalformedWebhook)
	}

	switch strings.ToLower(strings.TrimSpace(p.Status)) {
	case "success", "completed", "paid":
		n.Outcome = OutcomeSuccess
	case "failed":
		n.Outcome = OutcomeFailed
	case "cancelled", "canceled":
		n.Outcome = OutcomeCancelled
	case "":
		return nil, fmt.Errorf("%w: missing status", model.ErrMalformedWebhook)
	default:
		return nil, fmt.Errorf("%w: unknown status %q", model.ErrMalformedWebhook, p.Status)
	}

	if p.PaidAt != "" {
		t, err := time.Parse(time.RFC3339, p.PaidAt)
		if err != nil {
			return nil, fmt.Errorf("%w: paid_at: %v", model.ErrMalformedWebhook, err)
		}
		n.PaidAt = t.UTC()
	}
	return n, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
