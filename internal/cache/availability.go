// Package cache keeps a short-lived Redis copy of the confirmed slots per date.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"courtbook/internal/events"
	"courtbook/internal/metrics"
)

// Availability caches the confirmed slot keys of a date. A nil *Availability
// is valid and behaves as an always-missing cache.
type Availability struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewAvailability returns nil when client is nil or ttl is not positive.
func NewAvailability(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *Availability {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &Availability{redis: client, ttl: ttl, logger: logger}
}

func key(date string) string {
	return fmt.Sprintf("courtbook:confirmed:%s", date)
}

// ConfirmedSlots returns the cached slot keys for date and whether they were found.
func (c *Availability) ConfirmedSlots(ctx context.Context, date string) ([]string, bool) {
	if c == nil {
		return nil, false
	}
	val, err := c.redis.Get(ctx, key(date)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("date", date).Msg("availability cache read failed")
		}
		metrics.IncCacheLookup("miss")
		return nil, false
	}
	var slots []string
	if err := json.Unmarshal([]byte(val), &slots); err != nil {
		metrics.IncCacheLookup("miss")
		return nil, false
	}
	metrics.IncCacheLookup("hit")
	return slots, true
}

// StoreConfirmedSlots caches the slot keys for date.
func (c *Availability) StoreConfirmedSlots(ctx context.Context, date string, slots []string) {
	if c == nil {
		return
	}
	if slots == nil {
		slots = []string{}
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key(date), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("date", date).Msg("availability cache write failed")
	}
}

// Invalidate drops the cached entry for date.
func (c *Availability) Invalidate(ctx context.Context, date string) error {
	if c == nil || date == "" {
		return nil
	}
	return c.redis.Del(ctx, key(date)).Err()
}

// Subscribe drops cached dates whenever a booking on that date changes status
// or is deleted.
func (c *Availability) Subscribe(bus *events.EventBus) {
	if c == nil || bus == nil {
		return
	}
	bus.Subscribe(func(e events.Event) error {
		return c.Invalidate(context.Background(), e.BookingDate)
	}, events.BookingStatusChanged, events.BookingDeleted)
}
