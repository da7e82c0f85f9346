// Package catalog holds the bookable time slots of a court day.
package catalog

import (
	"sync/atomic"

	"courtbook/internal/model"
)

// Catalog is a read-mostly snapshot of slot definitions. Readers never see a
// partially replaced catalog.
type Catalog struct {
	slots atomic.Pointer[[]model.TimeSlotDefinition]
}

// New creates a catalog with the given definitions.
func New(defs []model.TimeSlotDefinition) *Catalog {
	c := &Catalog{}
	c.Replace(defs)
	return c
}

// Replace publishes a new set of definitions.
func (c *Catalog) Replace(defs []model.TimeSlotDefinition) {
	snapshot := make([]model.TimeSlotDefinition, len(defs))
	copy(snapshot, defs)
	c.slots.Store(&snapshot)
}

// ListActiveSlots returns active slots in catalog order.
func (c *Catalog) ListActiveSlots() []model.TimeSlotDefinition {
	all := c.slots.Load()
	if all == nil {
		return nil
	}
	active := make([]model.TimeSlotDefinition, 0, len(*all))
	for _, s := range *all {
		if s.Active {
			active = append(active, s)
		}
	}
	return active
}

// Lookup returns the active slot with the given time range.
func (c *Catalog) Lookup(timeRange string) (model.TimeSlotDefinition, bool) {
	all := c.slots.Load()
	if all == nil {
		return model.TimeSlotDefinition{}, false
	}
	for _, s := range *all {
		if s.TimeRange == timeRange && s.Active {
			return s, true
		}
	}
	return model.TimeSlotDefinition{}, false
}
