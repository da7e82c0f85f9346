package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"courtbook/internal/model"
)

func testSlots() []model.TimeSlotDefinition {
	return []model.TimeSlotDefinition{
		{TimeRange: "08:00-09:00", DisplayTime: "8:00 AM - 9:00 AM", Rate: 500, Period: model.PeriodMorning, Active: true},
		{TimeRange: "13:00-14:00", DisplayTime: "1:00 PM - 2:00 PM", Rate: 550, Period: model.PeriodAfternoon, Active: false},
		{TimeRange: "18:00-19:00", DisplayTime: "6:00 PM - 7:00 PM", Rate: 650, Period: model.PeriodEvening, Active: true},
	}
}

func TestListActiveSlots(t *testing.T) {
	c := New(testSlots())

	active := c.ListActiveSlots()
	assert.Len(t, active, 2)
	assert.Equal(t, "08:00-09:00", active[0].TimeRange)
	assert.Equal(t, "18:00-19:00", active[1].TimeRange)
}

func TestLookup(t *testing.T) {
	c := New(testSlots())

	s, ok := c.Lookup("18:00-19:00")
	assert.True(t, ok)
	assert.Equal(t, 650.0, s.Rate)

	_, ok = c.Lookup("13:00-14:00")
	assert.False(t, ok, "inactive slot must not be bookable")

	_, ok = c.Lookup("23:00-24:00")
	assert.False(t, ok)
}

func TestReplace_DoesNotAliasCallerSlice(t *testing.T) {
	defs := testSlots()
	c := New(defs)
	defs[0].Rate = 1

	s, _ := c.Lookup("08:00-09:00")
	assert.Equal(t, 500.0, s.Rate)

	c.Replace(nil)
	assert.Empty(t, c.ListActiveSlots())
}
