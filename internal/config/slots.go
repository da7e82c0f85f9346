package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"courtbook/internal/model"
)

// SlotConfig represents a single bookable window in slots.yaml.
type SlotConfig struct {
	Time        string  `yaml:"time"`         // "08:00-09:00"
	DisplayTime string  `yaml:"display_time"` // "8:00 AM - 9:00 AM"
	Rate        float64 `yaml:"rate"`
	Period      string  `yaml:"period"` // morning, afternoon, evening
	IsActive    *bool   `yaml:"is_active,omitempty"`
}

// SlotsConfig is the root configuration for slots.yaml.
type SlotsConfig struct {
	Defaults struct {
		Rate float64 `yaml:"rate"`
	} `yaml:"defaults"`
	Slots []SlotConfig `yaml:"slots"`
}

// ParseSlotsConfig decodes slots.yaml contents, applies defaults and validates.
func ParseSlotsConfig(data []byte) (*SlotsConfig, error) {
	var cfg SlotsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse slots config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate slots config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *SlotsConfig) Validate() error {
	if len(c.Slots) == 0 {
		return fmt.Errorf("no slots defined")
	}

	seen := make(map[string]bool)
	for i, s := range c.Slots {
		start, end, err := parseRange(s.Time)
		if err != nil {
			return fmt.Errorf("slot[%d]: %w", i, err)
		}
		if !end.After(start) {
			return fmt.Errorf("slot[%d]: end must be after start in %q", i, s.Time)
		}
		if seen[s.Time] {
			return fmt.Errorf("slot[%d]: duplicate time range %q", i, s.Time)
		}
		seen[s.Time] = true

		if s.Rate <= 0 {
			return fmt.Errorf("slot[%d]: rate must be positive, got %v", i, s.Rate)
		}
		if !model.Period(s.Period).Valid() {
			return fmt.Errorf("slot[%d]: invalid period %q, must be morning, afternoon or evening", i, s.Period)
		}
	}
	return nil
}

func (c *SlotsConfig) applyDefaults() {
	for i := range c.Slots {
		if c.Slots[i].Rate == 0 {
			c.Slots[i].Rate = c.Defaults.Rate
		}
		if c.Slots[i].DisplayTime == "" {
			c.Slots[i].DisplayTime = displayFor(c.Slots[i].Time)
		}
		if c.Slots[i].IsActive == nil {
			active := true
			c.Slots[i].IsActive = &active
		}
	}
}

// Definitions converts the file form into catalog entries, preserving order.
func (c *SlotsConfig) Definitions() []model.TimeSlotDefinition {
	defs := make([]model.TimeSlotDefinition, 0, len(c.Slots))
	for _, s := range c.Slots {
		defs = append(defs, model.TimeSlotDefinition{
			TimeRange:   s.Time,
			DisplayTime: s.DisplayTime,
			Rate:        s.Rate,
			Period:      model.Period(s.Period),
			Active:      s.IsActive == nil || *s.IsActive,
		})
	}
	return defs
}

func parseRange(r string) (time.Time, time.Time, error) {
	parts := strings.Split(r, "-")
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid time range %q, expected HH:MM-HH:MM", r)
	}
	start, err := time.Parse("15:04", strings.TrimSpace(parts[0]))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start in %q, expected HH:MM", r)
	}
	end, err := time.Parse("15:04", strings.TrimSpace(parts[1]))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end in %q, expected HH:MM", r)
	}
	return start, end, nil
}

// displayFor renders "08:00-09:00" as "8:00 AM - 9:00 AM".
func displayFor(r string) string {
	start, end, err := parseRange(r)
	if err != nil {
		return r
	}
	return start.Format("3:04 PM") + " - " + end.Format("3:04 PM")
}
