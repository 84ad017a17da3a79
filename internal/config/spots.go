package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"spotshare/internal/geo"
	"spotshare/internal/schedule"
)

const dateLayout = "2006-01-02"

// SpotConfig is one seeded parking spot.
type SpotConfig struct {
	ID           string               `yaml:"id"`
	OwnerID      string               `yaml:"owner_id"`
	Address      string               `yaml:"address"`
	Location     *geo.Point           `yaml:"location,omitempty"`
	Status       string               `yaml:"status"`
	Available    *bool                `yaml:"available,omitempty"`
	ActiveFrom   string               `yaml:"active_from,omitempty"`  // "2026-01-01"
	ActiveUntil  string               `yaml:"active_until,omitempty"` // inclusive date
	PricePerHour int64                `yaml:"price_per_hour"`
	Schedule     []schedule.EntrySpec `yaml:"schedule,omitempty"`
}

// SpotDefaults apply to spots that leave a field empty.
type SpotDefaults struct {
	Schedule     []schedule.EntrySpec `yaml:"schedule"`
	PricePerHour int64                `yaml:"price_per_hour"`
}

// SpotsConfig is the root of spots.yaml.
type SpotsConfig struct {
	Spots    []SpotConfig `yaml:"spots"`
	Defaults SpotDefaults `yaml:"defaults"`
}

// LoadSpotsConfig loads and validates spots configuration from YAML file.
func LoadSpotsConfig(path string) (*SpotsConfig, error) {
	if path == "" {
		path = "configs/spots.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spots config: %w", err)
	}

	var cfg SpotsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse spots config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate spots config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *SpotsConfig) Validate() error {
	if len(c.Spots) == 0 {
		return fmt.Errorf("no spots defined")
	}

	if len(c.Defaults.Schedule) > 0 {
		if _, err := schedule.FromSpecs(c.Defaults.Schedule); err != nil {
			return fmt.Errorf("defaults.schedule: %w", err)
		}
	}

	ids := make(map[string]bool)
	for i, s := range c.Spots {
		if s.ID == "" {
			return fmt.Errorf("spot[%d]: id is required", i)
		}
		if ids[s.ID] {
			return fmt.Errorf("spot[%d]: duplicate id '%s'", i, s.ID)
		}
		ids[s.ID] = true

		if s.OwnerID == "" {
			return fmt.Errorf("spot[%d]: owner_id is required", i)
		}
		if s.Location == nil {
			return fmt.Errorf("spot[%d]: location is required", i)
		}
		if !s.Location.Valid() {
			return fmt.Errorf("spot[%d]: location out of range", i)
		}
		switch s.Status {
		case "", "pending", "approved", "rejected":
		default:
			return fmt.Errorf("spot[%d]: invalid status '%s'", i, s.Status)
		}
		if s.PricePerHour < 0 {
			return fmt.Errorf("spot[%d]: price_per_hour cannot be negative", i)
		}

		if _, err := schedule.FromSpecs(s.Schedule); err != nil {
			return fmt.Errorf("spot[%d].schedule: %w", i, err)
		}

		from, until, err := s.Window(time.UTC)
		if err != nil {
			return fmt.Errorf("spot[%d]: %w", i, err)
		}
		if from != nil && until != nil && until.Before(*from) {
			return fmt.Errorf("spot[%d]: active_until must not be before active_from", i)
		}
	}

	return nil
}

// Window converts the active date range to instants in loc.
// ActiveUntil covers its whole day.
func (s SpotConfig) Window(loc *time.Location) (from, until *time.Time, err error) {
	if s.ActiveFrom != "" {
		t, err := time.ParseInLocation(dateLayout, s.ActiveFrom, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid active_from '%s', expected YYYY-MM-DD", s.ActiveFrom)
		}
		from = &t
	}
	if s.ActiveUntil != "" {
		t, err := time.ParseInLocation(dateLayout, s.ActiveUntil, loc)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid active_until '%s', expected YYYY-MM-DD", s.ActiveUntil)
		}
		end := t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		until = &end
	}
	return from, until, nil
}

// applyDefaults fills empty schedules and prices from defaults.
func (c *SpotsConfig) applyDefaults() {
	for i := range c.Spots {
		if len(c.Spots[i].Schedule) == 0 && len(c.Defaults.Schedule) > 0 {
			c.Spots[i].Schedule = append([]schedule.EntrySpec(nil), c.Defaults.Schedule...)
		}
		if c.Spots[i].PricePerHour == 0 {
			c.Spots[i].PricePerHour = c.Defaults.PricePerHour
		}
	}
}
