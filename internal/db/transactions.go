package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"courtbook/internal/model"
)

const transactionColumns = `id, booking_id, provider_reference, external_transaction_id, amount, status,
	failure_reason, checkout_url, payment_method, payment_date, created_at, updated_at`

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var t model.Transaction
	var status string
	var externalID, reason, checkout sql.NullString
	var paidAt sql.NullTime
	if err := row.Scan(
		&t.ID, &t.BookingID, &t.ProviderReference, &externalID, &t.Amount, &status,
		&reason, &checkout, &t.PaymentMethod, &paidAt, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Status = model.TransactionStatus(status)
	t.ExternalTransactionID = externalID.String
	t.FailureReason = reason.String
	t.CheckoutURL = checkout.String
	if paidAt.Valid {
		paid := paidAt.Time
		t.PaymentDate = &paid
	}
	return &t, nil
}

// CreateTransaction inserts a payment attempt.
func (s Store) CreateTransaction(ctx context.Context, t *model.Transaction) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.BookingID, t.ProviderReference, nullString(t.ExternalTransactionID), t.Amount, string(t.Status),
		nullString(t.FailureReason), nullString(t.CheckoutURL), t.PaymentMethod, t.PaymentDate, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetTransaction returns a transaction by id.
func (s Store) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	t, err := scanTransaction(s.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

// GetTransactionByProviderRef looks a transaction up by its provider reference.
func (s Store) GetTransactionByProviderRef(ctx context.Context, ref string) (*model.Transaction, error) {
	t, err := scanTransaction(s.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE provider_reference = ?`, ref))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction with provider reference %s", model.ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by provider ref: %w", err)
	}
	return t, nil
}

// ListTransactionsForBooking returns a booking's payment attempts, oldest first.
func (s Store) ListTransactionsForBooking(ctx context.Context, bookingID string) ([]model.Transaction, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE booking_id = ? ORDER BY created_at, id`,
		bookingID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// ListTransactions returns every payment attempt, oldest first.
func (s Store) ListTransactions(ctx context.Context) ([]model.Transaction, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

// SetCheckout records the provider checkout session on an initiated transaction.
func (s Store) SetCheckout(ctx context.Context, id, checkoutURL, externalID string) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE transactions
		SET checkout_url = ?, external_transaction_id = COALESCE(?, external_transaction_id), updated_at = ?
		WHERE id = ? AND status = 'initiated'`,
		checkoutURL, nullString(externalID), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("set checkout: %w", err)
	}
	return nil
}

// FinishTransaction moves an initiated transaction to success or failed.
// It reports false when the transaction had already left initiated, which is
// how webhook replays are detected.
func (s Store) FinishTransaction(ctx context.Context, id string, status model.TransactionStatus, reason, externalID string, paidAt *time.Time) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE transactions
		SET status = ?, failure_reason = ?, external_transaction_id = COALESCE(?, external_transaction_id),
			payment_date = ?, updated_at = ?
		WHERE id = ? AND status = 'initiated'`,
		string(status), nullString(reason), nullString(externalID), paidAt, time.Now().UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("finish transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
