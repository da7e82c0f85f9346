package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courtbook/internal/events"
)

func TestTrailRecordsLifecycleEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	bus := events.NewEventBus(&logger)
	NewTrail(&logger).Subscribe(bus)

	bus.Publish(events.Event{Type: events.BookingCreated, BookingID: "b1", BookingDate: "2025-06-01", TimeSlot: "08:00-09:00", Status: "pending"})
	bus.Publish(events.Event{Type: events.PaymentInitiated, BookingID: "b1", BookingDate: "2025-06-01", TimeSlot: "08:00-09:00", TransactionID: "t1", Status: "initiated"})
	bus.Publish(events.Event{Type: events.PaymentFinished, BookingID: "b1", TransactionID: "t1", Status: "success"})
	bus.Publish(events.Event{Type: events.BookingDeleted, BookingID: "b1", BookingDate: "2025-06-01", TimeSlot: "08:00-09:00"})

	var lines []map[string]any
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		lines = append(lines, line)
	}
	require.Len(t, lines, 4)

	assert.Equal(t, "booking.created", lines[0]["event"])
	assert.Equal(t, "2025-06-01", lines[0]["date"])
	assert.Equal(t, "audit_trail", lines[0]["component"])

	assert.Equal(t, "payment.initiated", lines[1]["event"])
	assert.Equal(t, "t1", lines[1]["transaction_id"])

	assert.Equal(t, "payment.finished", lines[2]["event"])
	assert.Equal(t, "success", lines[2]["status"])
	assert.NotContains(t, lines[2], "date")

	assert.Equal(t, "booking.deleted", lines[3]["event"])
	assert.NotContains(t, lines[3], "status")
}

func TestTrailNilBus(t *testing.T) {
	logger := zerolog.Nop()
	assert.NotPanics(t, func() { NewTrail(&logger).Subscribe(nil) })
}
