package model

import "time"

// TransactionStatus represents payment attempt status.
type TransactionStatus string

const (
	TxInitiated TransactionStatus = "initiated"
	TxSuccess   TransactionStatus = "success"
	TxFailed    TransactionStatus = "failed"
)

// Failure reasons recorded on failed transactions.
const (
	ReasonGatewayError     = "gateway_error"
	ReasonPaymentFailed    = "payment_failed"
	ReasonCancelled        = "payment_cancelled"
	ReasonSlotConflict     = "slot_conflict"
	ReasonBookingCancelled = "booking_cancelled"
)

// Transaction is one payment attempt for a booking.
type Transaction struct {
	ID                    string            `json:"id"`
	BookingID             string            `json:"booking_id"`
	ProviderReference     string            `json:"provider_reference"`
	ExternalTransactionID string            `json:"external_transaction_id,omitempty"`
	Amount                float64           `json:"amount"`
	Status                TransactionStatus `json:"status"`
	FailureReason         string            `json:"failure_reason,omitempty"`
	CheckoutURL           string            `json:"checkout_url,omitempty"`
	PaymentMethod         string            `json:"payment_method"`
	PaymentDate           *time.Time        `json:"payment_date,omitempty"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// IsFinal reports whether the transaction already left the initiated state.
func (t *Transaction) IsFinal() bool {
	return t.Status != TxInitiated
}
