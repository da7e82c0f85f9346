package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"courtbook/internal/catalog"
	"courtbook/internal/db"
	"courtbook/internal/events"
	"courtbook/internal/ledger"
	"courtbook/internal/model"
	"courtbook/internal/payment"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) InitiateCheckout(ctx context.Context, req payment.CheckoutRequest) (*payment.Checkout, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Checkout), args.Error(1)
}

func (m *MockGateway) Name() string { return "test" }

type fixture struct {
	coord   *Coordinator
	ledger  *ledger.Ledger
	db      *db.DB
	gateway *MockGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	database, err := db.NewDB(filepath.Join(t.TempDir(), "coord.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	slots := catalog.New([]model.TimeSlotDefinition{
		{TimeRange: "08:00-09:00", DisplayTime: "8:00 AM - 9:00 AM", Rate: 500, Period: model.PeriodMorning, Active: true},
		{TimeRange: "18:00-19:00", DisplayTime: "6:00 PM - 7:00 PM", Rate: 650, Period: model.PeriodEvening, Active: true},
	})
	bus := events.NewEventBus(&logger)
	l := ledger.New(database, slots, nil, bus, &logger)
	gw := new(MockGateway)
	coord := New(database, l, slots, gw, bus, Config{
		CallbackURL:    "http://localhost:4000/api/payments/webhook",
		ReturnURL:      "http://localhost:3000",
		GatewayTimeout: time.Second,
	}, &logger)
	return &fixture{coord: coord, ledger: l, db: database, gateway: gw}
}

func (f *fixture) checkoutOK() {
	f.gateway.On("InitiateCheckout", mock.Anything, mock.AnythingOfType("payment.CheckoutRequest")).
		Return(&payment.Checkout{CheckoutURL: "https://pay.example/checkout", ExternalTransactionID: "EXT"}, nil)
}

func form(date, slot string) ReservationForm {
	return ReservationForm{
		Name:     "Paolo Reyes",
		Email:    "paolo@example.com",
		Contact:  "09181234567",
		Date:     date,
		TimeSlot: SlotRef(slot),
	}
}

func webhook(ref, status string) []byte {
	data, _ := json.Marshal(map[string]string{"reference": ref, "status": status, "transactionId": "GC-" + ref})
	return data
}

func TestReservationScenario(t *testing.T) {
	f := newFixture(t)
	f.checkoutOK()
	ctx := context.Background()

	res, err := f.coord.StartReservation(ctx, form("2025-06-01", "08:00-09:00"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.Booking.Status)
	assert.Regexp(t, ledger.ReferencePattern, res.Booking.Reference)
	assert.Equal(t, 500.0, res.Booking.Rate)
	assert.Equal(t, model.TxInitiated, res.Transaction.Status)
	assert.NotEmpty(t, res.CheckoutURL)

	f.gateway.AssertCalled(t, "InitiateCheckout", mock.Anything, mock.MatchedBy(func(req payment.CheckoutRequest) bool {
		return req.Amount == 500 &&
			req.ProviderReference == res.Transaction.ProviderReference &&
			req.ReturnURL == "http://localhost:3000/payment-complete?tx="+res.Transaction.ID
	}))

	cb, err := f.coord.HandlePaymentCallback(ctx, webhook(res.Transaction.ProviderReference, "success"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, cb.Outcome)
	assert.Equal(t, model.StatusConfirmed, cb.Booking.Status)
	assert.Equal(t, model.TxSuccess, cb.Transaction.Status)
	require.NotNil(t, cb.Transaction.PaymentDate)

	again, err := f.coord.HandlePaymentCallback(ctx, webhook(res.Transaction.ProviderReference, "success"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplay, again.Outcome)
	assert.Equal(t, cb.Transaction.UpdatedAt, again.Transaction.UpdatedAt, "replay does not touch the transaction")
	assert.Equal(t, cb.Booking.UpdatedAt, again.Booking.UpdatedAt, "replay does not touch the booking")

	slots, err := f.ledger.GetAvailableSlots(ctx, "2025-06-01")
	require.NoError(t, err)
	assert.False(t, slots[0].Available)

	_, err = f.coord.StartReservation(ctx, form("2025-06-01", "08:00-09:00"))
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestHandlePaymentCallback_ConcurrentSuccessSingleWinner(t *testing.T) {
	f := newFixture(t)
	f.checkoutOK()
	ctx := context.Background()

	r1, err := f.coord.StartReservation(ctx, form("2025-06-01", "18:00-19:00"))
	require.NoError(t, err)
	r2, err := f.coord.StartReservation(ctx, form("2025-06-01", "18:00-19:00"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*CallbackResult, 2)
	errs := make([]error, 2)
	for i, ref := range []string{r1.Transaction.ProviderReference, r2.Transaction.ProviderReference} {
		wg.Add(1)
		go func(i int, ref string) {
			defer wg.Done()
			results[i], errs[i] = f.coord.HandlePaymentCallback(ctx, webhook(ref, "paid"))
		}(i, ref)
	}
	wg.Wait()

	confirmed, conflicts := 0, 0
	for i := range results {
		require.NotNil(t, results[i])
		switch results[i].Outcome {
		case OutcomeConfirmed:
			assert.NoError(t, errs[i])
			confirmed++
		case OutcomeConflict:
			assert.ErrorIs(t, errs[i], model.ErrConflict)
			assert.Equal(t, model.StatusCancelled, results[i].Booking.Status)
			assert.Equal(t, model.TxFailed, results[i].Transaction.Status)
			assert.Equal(t, model.ReasonSlotConflict, results[i].Transaction.FailureReason)
			conflicts++
		}
	}
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 1, conflicts)

	all, err := f.ledger.ListAll(ctx)
	require.NoError(t, err)
	nConfirmed := 0
	for _, b := range all {
		if b.Status == model.StatusConfirmed {
			nConfirmed++
		}
	}
	assert.Equal(t, 1, nConfirmed)
}

func TestHandlePaymentCallback_FailureLeavesBookingPending(t *testing.T) {
	f := newFixture(t)
	f.checkoutOK()
	ctx := context.Background()

	res, err := f.coord.StartReservation(ctx, form("2025-06-02", "08:00-09:00"))
	require.NoError(t, err)

	cb, err := f.coord.HandlePaymentCallback(ctx, webhook(res.Transaction.ProviderReference, "cancelled"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, cb.Outcome)
	assert.Equal(t, model.TxFailed, cb.Transaction.Status)
	assert.Equal(t, model.ReasonCancelled, cb.Transaction.FailureReason)
	assert.Equal(t, model.StatusPending, cb.Booking.Status)

	// A late success for the failed attempt is a replay.
	late, err := f.coord.HandlePaymentCallback(ctx, webhook(res.Transaction.ProviderReference, "success"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeReplay, late.Outcome)
	assert.Equal(t, model.StatusPending, late.Booking.Status)

	// The customer retries with a new payment attempt.
	retry, err := f.coord.InitiatePayment(ctx, res.Booking.ID, 0)
	require.NoError(t, err)
	assert.NotEqual(t, res.Transaction.ProviderReference, retry.Transaction.ProviderReference)
	assert.Equal(t, 500.0, retry.Transaction.Amount)

	cb, err = f.coord.HandlePaymentCallback(ctx, webhook(retry.Transaction.ProviderReference, "completed"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeConfirmed, cb.Outcome)

	b, err := f.ledger.GetByID(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Len(t, b.Transactions, 2)
}

func TestHandlePaymentCallback_CancelledBookingStaysCancelled(t *testing.T) {
	t.Run("after admin cancel", func(t *testing.T) {
		f := newFixture(t)
		f.checkoutOK()
		ctx := context.Background()

		res, err := f.coord.StartReservation(ctx, form("2025-06-05", "08:00-09:00"))
		require.NoError(t, err)
		_, err = f.coord.AdminSetStatus(ctx, res.Booking.ID, model.StatusCancelled)
		require.NoError(t, err)

		cb, err := f.coord.HandlePaymentCallback(ctx, webhook(res.Transaction.ProviderReference, "success"))
		assert.ErrorIs(t, err, model.ErrBookingCancelled)
		require.NotNil(t, cb)
		assert.Equal(t, OutcomeRejected, cb.Outcome)
		assert.Equal(t, model.StatusCancelled, cb.Booking.Status)
		assert.Equal(t, model.TxFailed, cb.Transaction.Status)
		assert.Equal(t, model.ReasonBookingCancelled, cb.Transaction.FailureReason)

		again, err := f.coord.HandlePaymentCallback(ctx, webhook(res.Transaction.ProviderReference, "success"))
		require.NoError(t, err)
		assert.Equal(t, OutcomeReplay, again.Outcome)

		slots, err := f.ledger.GetAvailableSlots(ctx, "2025-06-05")
		require.NoError(t, err)
		assert.True(t, slots[0].Available)
	})

	t.Run("second attempt after losing the slot", func(t *testing.T) {
		f := newFixture(t)
		f.checkoutOK()
		ctx := context.Background()

		winner, err := f.coord.StartReservation(ctx, form("2025-06-06", "18:00-19:00"))
		require.NoError(t, err)
		loser, err := f.coord.StartReservation(ctx, form("2025-06-06", "18:00-19:00"))
		require.NoError(t, err)
		second, err := f.coord.InitiatePayment(ctx, loser.Booking.ID, 0)
		require.NoError(t, err)

		_, err = f.coord.HandlePaymentCallback(ctx, webhook(winner.Transaction.ProviderReference, "success"))
		require.NoError(t, err)
		cb, err := f.coord.HandlePaymentCallback(ctx, webhook(loser.Transaction.ProviderReference, "success"))
		assert.ErrorIs(t, err, model.ErrConflict)
		require.NotNil(t, cb)
		assert.Equal(t, model.StatusCancelled, cb.Booking.Status)

		// Free the slot so only the cancelled status stands in the way.
		_, err = f.coord.AdminSetStatus(ctx, winner.Booking.ID, model.StatusCancelled)
		require.NoError(t, err)

		cb, err = f.coord.HandlePaymentCallback(ctx, webhook(second.Transaction.ProviderReference, "paid"))
		assert.ErrorIs(t, err, model.ErrBookingCancelled)
		require.NotNil(t, cb)
		assert.Equal(t, OutcomeRejected, cb.Outcome)
		assert.Equal(t, model.ReasonBookingCancelled, cb.Transaction.FailureReason)

		b, err := f.ledger.GetByID(ctx, loser.Booking.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, b.Status)
	})
}

func TestHandlePaymentCallback_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.coord.HandlePaymentCallback(ctx, []byte(`{"status":"paid"}`))
	assert.ErrorIs(t, err, model.ErrMalformedWebhook)

	_, err = f.coord.HandlePaymentCallback(ctx, []byte(`not json`))
	assert.ErrorIs(t, err, model.ErrMalformedWebhook)

	_, err = f.coord.HandlePaymentCallback(ctx, webhook("gcash_0_unknown00", "paid"))
	assert.ErrorIs(t, err, model.ErrNotFound)

	all, err := f.ledger.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "unsolicited webhooks never create bookings")
}

func TestStartReservation_GatewayFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.gateway.On("InitiateCheckout", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: connection refused", model.ErrGatewayUnavailable))

	res, err := f.coord.StartReservation(ctx, form("2025-06-01", "08:00-09:00"))
	assert.ErrorIs(t, err, model.ErrGatewayUnavailable)
	require.NotNil(t, res)
	assert.Equal(t, model.StatusPending, res.Booking.Status)

	tx, err := f.coord.GetTransaction(ctx, res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TxFailed, tx.Status)
	assert.Equal(t, model.ReasonGatewayError, tx.FailureReason)

	b, err := f.ledger.GetByID(ctx, res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, b.Status)
}

func TestStartReservation_GatewayTimeout(t *testing.T) {
	f := newFixture(t)
	f.coord.cfg.GatewayTimeout = 50 * time.Millisecond
	ctx := context.Background()

	f.gateway.On("InitiateCheckout", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)

	start := time.Now()
	res, err := f.coord.StartReservation(ctx, form("2025-06-01", "08:00-09:00"))
	assert.ErrorIs(t, err, model.ErrGatewayUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.NotNil(t, res)
	assert.Equal(t, model.TxFailed, res.Transaction.Status)
}

func TestStartReservation_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		form ReservationForm
	}{
		{name: "short name", form: func() ReservationForm { fm := form("2025-06-01", "08:00-09:00"); fm.Name = "A"; return fm }()},
		{name: "bad email", form: func() ReservationForm { fm := form("2025-06-01", "08:00-09:00"); fm.Email = "nope"; return fm }()},
		{name: "missing contact", form: func() ReservationForm { fm := form("2025-06-01", "08:00-09:00"); fm.Contact = " "; return fm }()},
		{name: "bad date", form: form("2025-13-01", "08:00-09:00")},
		{name: "unknown slot", form: form("2025-06-01", "03:00-04:00")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.StartReservation(ctx, tt.form)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
	f.gateway.AssertNotCalled(t, "InitiateCheckout", mock.Anything, mock.Anything)
}

func TestInitiatePayment(t *testing.T) {
	f := newFixture(t)
	f.checkoutOK()
	ctx := context.Background()

	res, err := f.coord.StartReservation(ctx, form("2025-06-03", "08:00-09:00"))
	require.NoError(t, err)

	_, err = f.coord.InitiatePayment(ctx, res.Booking.ID, -1)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = f.coord.InitiatePayment(ctx, "missing", 0)
	assert.ErrorIs(t, err, model.ErrNotFound)

	custom, err := f.coord.InitiatePayment(ctx, res.Booking.ID, 250)
	require.NoError(t, err)
	assert.Equal(t, 250.0, custom.Transaction.Amount)

	_, err = f.coord.AdminSetStatus(ctx, res.Booking.ID, model.StatusCancelled)
	require.NoError(t, err)
	_, err = f.coord.InitiatePayment(ctx, res.Booking.ID, 0)
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestAdminSetStatus_ConfirmRunsGuard(t *testing.T) {
	f := newFixture(t)
	f.checkoutOK()
	ctx := context.Background()

	r1, err := f.coord.StartReservation(ctx, form("2025-06-04", "08:00-09:00"))
	require.NoError(t, err)
	r2, err := f.coord.StartReservation(ctx, form("2025-06-04", "08:00-09:00"))
	require.NoError(t, err)

	b, err := f.coord.AdminSetStatus(ctx, r1.Booking.ID, model.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, b.Status)

	_, err = f.coord.AdminSetStatus(ctx, r2.Booking.ID, model.StatusConfirmed)
	assert.ErrorIs(t, err, model.ErrConflict)

	// Paying for the losing booking afterwards resolves to a conflict.
	cb, err := f.coord.HandlePaymentCallback(ctx, webhook(r2.Transaction.ProviderReference, "success"))
	assert.ErrorIs(t, err, model.ErrConflict)
	require.NotNil(t, cb)
	assert.Equal(t, model.StatusCancelled, cb.Booking.Status)

	_, err = f.coord.AdminSetStatus(ctx, r1.Booking.ID, model.StatusCancelled)
	require.NoError(t, err)
	b, err = f.coord.AdminSetStatus(ctx, r2.Booking.ID, model.StatusConfirmed)
	require.NoError(t, err, "slot is free again once the holder is cancelled")
	assert.Equal(t, model.StatusConfirmed, b.Status)
}

func TestSlotRefDecoding(t *testing.T) {
	var fm ReservationForm
	require.NoError(t, json.Unmarshal([]byte(`{"timeSlot":{"time":"08:00-09:00","rate":1}}`), &fm))
	assert.Equal(t, SlotRef("08:00-09:00"), fm.TimeSlot)

	require.NoError(t, json.Unmarshal([]byte(`{"timeSlot":"18:00-19:00"}`), &fm))
	assert.Equal(t, SlotRef("18:00-19:00"), fm.TimeSlot)
}
