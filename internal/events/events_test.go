package events

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestEventBus_PublishDispatchesByType(t *testing.T) {
	logger := zerolog.Nop()
	bus := NewEventBus(&logger)

	var got []Event
	bus.Subscribe(func(e Event) error {
		got = append(got, e)
		return nil
	}, BookingStatusChanged, BookingDeleted)

	bus.Subscribe(func(Event) error { return errors.New("boom") }, BookingStatusChanged)

	bus.Publish(Event{Type: BookingStatusChanged, BookingID: "b1", Status: "confirmed"})
	bus.Publish(Event{Type: BookingCreated, BookingID: "b2"})
	bus.Publish(Event{Type: BookingDeleted, BookingID: "b3"})

	if assert.Len(t, got, 2) {
		assert.Equal(t, "b1", got[0].BookingID)
		assert.False(t, got[0].CreatedAt.IsZero())
		assert.Equal(t, BookingDeleted, got[1].Type)
	}
}

func TestEventBus_NilIsNoop(t *testing.T) {
	var bus *EventBus
	assert.NotPanics(t, func() { bus.Publish(Event{Type: BookingCreated}) })
}
