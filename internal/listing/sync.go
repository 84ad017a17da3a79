package listing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spotshare/internal/config"
	"spotshare/internal/metrics"
	"spotshare/internal/model"
	"spotshare/internal/schedule"
)

// SyncFromConfig applies spots.yaml to the store.
// It upserts spots, keeps their reservation lists, and disables seeded spots that disappeared from the file.
func (s *Service) SyncFromConfig(ctx context.Context, cfg *config.SpotsConfig, loc *time.Location) error {
	if cfg == nil {
		return fmt.Errorf("spots config is nil")
	}
	if loc == nil {
		loc = time.UTC
	}

	now := s.now()
	seen := make(map[string]struct{}, len(cfg.Spots))

	for _, spot := range cfg.Spots {
		weekly, err := schedule.FromSpecs(spot.Schedule)
		if err != nil {
			return fmt.Errorf("sync spot %s schedule: %w", spot.ID, err)
		}
		from, until, err := spot.Window(loc)
		if err != nil {
			return fmt.Errorf("sync spot %s: %w", spot.ID, err)
		}

		r := &model.Resource{
			ID:           spot.ID,
			OwnerID:      spot.OwnerID,
			Address:      spot.Address,
			Point:        *spot.Location,
			Schedule:     weekly,
			Status:       model.Status(spot.Status),
			Available:    spot.Available == nil || *spot.Available,
			ActiveFrom:   from,
			ActiveUntil:  until,
			PricePerHour: spot.PricePerHour,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := s.upsertSpot(ctx, r); err != nil {
			return fmt.Errorf("sync spot %s: %w", spot.ID, err)
		}
		seen[spot.ID] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Disable spots that were seeded earlier and disappeared from config.
	for id := range s.seeded {
		if _, ok := seen[id]; ok {
			continue
		}
		_, err := s.mutate(ctx, id, func(r *model.Resource) error {
			r.Available = false
			return nil
		})
		if errors.Is(err, model.ErrResourceNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("disable spot %s: %w", id, err)
		}
		s.logger.Info().Str("resource_id", id).Msg("spot removed from config, disabled")
	}
	s.seeded = seen

	s.logger.Info().Int("spots", len(seen)).Msg("spots synced from config")
	return nil
}

// upsertSpot saves desired over the stored spot, keeping its creation time and,
// when the file leaves status empty, its moderation status.
func (s *Service) upsertSpot(ctx context.Context, desired *model.Resource) error {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		r := desired.Clone()
		existing, err := s.store.GetResource(ctx, r.ID)
		switch {
		case err == nil:
			r.Version = existing.Version
			r.CreatedAt = existing.CreatedAt
			if r.Status == "" {
				r.Status = existing.Status
			}
		case errors.Is(err, model.ErrResourceNotFound):
		default:
			return err
		}
		if r.Status == "" {
			r.Status = model.StatusPending
		}

		err = s.store.SaveResource(ctx, &r)
		if !errors.Is(err, model.ErrConcurrentModification) {
			return err
		}
		metrics.IncWriteConflict()
	}
	return model.ErrConcurrentModification
}
