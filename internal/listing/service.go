// Package listing manages the parking spots owners offer: creation with geocoding,
// moderation, availability toggles and schedule updates.
package listing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spotshare/internal/geo"
	"spotshare/internal/geocode"
	"spotshare/internal/metrics"
	"spotshare/internal/model"
	"spotshare/internal/schedule"
)

// maxSaveAttempts bounds the read-modify-write retries on one resource.
const maxSaveAttempts = 8

// Store persists resources. SaveResource rejects a stale Version with ErrConcurrentModification.
type Store interface {
	SaveResource(ctx context.Context, r *model.Resource) error
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	ListResources(ctx context.Context) ([]model.Resource, error)
	ListReviews(ctx context.Context, resourceID string) ([]model.Review, error)
}

// NewResource is the owner's input for a listing. Location wins over Address when both are set.
type NewResource struct {
	OwnerID      string
	Address      string
	Location     *geo.Point
	Schedule     schedule.Weekly
	PricePerHour int64
	ActiveFrom   *time.Time
	ActiveUntil  *time.Time
}

// Service implements listing operations.
type Service struct {
	store    Store
	geocoder geocode.Geocoder
	now      func() time.Time
	logger   zerolog.Logger

	mu     sync.Mutex
	seeded map[string]struct{}
}

// NewService builds a Service. A nil geocoder makes address-only listings fail with ErrGeocodeUnavailable.
func NewService(store Store, geocoder geocode.Geocoder, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		geocoder: geocoder,
		now:      time.Now,
		logger:   logger.With().Str("component", "listing").Logger(),
		seeded:   make(map[string]struct{}),
	}
}

// CreateResource validates in, resolves its location and stores a pending listing.
func (s *Service) CreateResource(ctx context.Context, in NewResource) (*model.Resource, error) {
	if in.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", model.ErrInvalidResource)
	}
	if in.PricePerHour < 0 {
		return nil, fmt.Errorf("%w: price_per_hour cannot be negative", model.ErrInvalidResource)
	}
	if in.ActiveFrom != nil && in.ActiveUntil != nil && in.ActiveUntil.Before(*in.ActiveFrom) {
		return nil, fmt.Errorf("%w: active_until must not be before active_from", model.ErrInvalidResource)
	}

	point, err := s.resolve(ctx, in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	r := &model.Resource{
		ID:           uuid.NewString(),
		OwnerID:      in.OwnerID,
		Address:      in.Address,
		Point:        point,
		Schedule:     in.Schedule,
		Status:       model.StatusPending,
		Available:    true,
		ActiveFrom:   in.ActiveFrom,
		ActiveUntil:  in.ActiveUntil,
		PricePerHour: in.PricePerHour,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.SaveResource(ctx, r); err != nil {
		return nil, fmt.Errorf("save resource: %w", err)
	}

	s.logger.Info().Str("resource_id", r.ID).Str("owner_id", r.OwnerID).Msg("resource listed")
	return r, nil
}

// resolve never falls back to a default location.
func (s *Service) resolve(ctx context.Context, in NewResource) (geo.Point, error) {
	if in.Location != nil {
		if !in.Location.Valid() {
			return geo.Point{}, fmt.Errorf("%w: location out of range", model.ErrInvalidResource)
		}
		return *in.Location, nil
	}
	if in.Address == "" {
		return geo.Point{}, fmt.Errorf("%w: address or location is required", model.ErrInvalidResource)
	}
	if s.geocoder == nil {
		return geo.Point{}, fmt.Errorf("%w: no geocoder configured", model.ErrGeocodeUnavailable)
	}

	p, err := s.geocoder.Geocode(ctx, in.Address)
	if err != nil {
		s.logger.Warn().Err(err).Str("address", in.Address).Msg("geocoding failed")
		if errors.Is(err, model.ErrGeocodeUnavailable) {
			return geo.Point{}, err
		}
		return geo.Point{}, fmt.Errorf("%w: %v", model.ErrGeocodeUnavailable, err)
	}
	return p, nil
}

// ApproveResource publishes a listing for booking.
func (s *Service) ApproveResource(ctx context.Context, id string) (*model.Resource, error) {
	return s.moderate(ctx, id, model.StatusApproved)
}

// RejectResource withdraws a listing from booking.
func (s *Service) RejectResource(ctx context.Context, id string) (*model.Resource, error) {
	return s.moderate(ctx, id, model.StatusRejected)
}

func (s *Service) moderate(ctx context.Context, id string, to model.Status) (*model.Resource, error) {
	r, err := s.mutate(ctx, id, func(r *model.Resource) error {
		if !model.CanTransitionResource(r.Status, to) {
			return fmt.Errorf("%w: cannot move resource from %s to %s", model.ErrInvalidStateTransition, r.Status, to)
		}
		r.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("resource_id", id).Str("status", string(to)).Msg("resource moderated")
	return r, nil
}

// SetAvailability flips the owner's manual flag.
func (s *Service) SetAvailability(ctx context.Context, id, ownerID string, available bool) (*model.Resource, error) {
	return s.ownerUpdate(ctx, id, ownerID, func(r *model.Resource) { r.Available = available })
}

// UpdateSchedule replaces the weekly open hours. Existing reservations are kept as they are.
func (s *Service) UpdateSchedule(ctx context.Context, id, ownerID string, weekly schedule.Weekly) (*model.Resource, error) {
	return s.ownerUpdate(ctx, id, ownerID, func(r *model.Resource) { r.Schedule = weekly })
}

func (s *Service) ownerUpdate(ctx context.Context, id, ownerID string, apply func(r *model.Resource)) (*model.Resource, error) {
	return s.mutate(ctx, id, func(r *model.Resource) error {
		if r.OwnerID != ownerID {
			return model.ErrNotOwner
		}
		apply(r)
		return nil
	})
}

// mutate reloads the resource, applies fn and saves it under the loaded version.
// A concurrent write in between makes it start over, at most maxSaveAttempts times.
func (s *Service) mutate(ctx context.Context, id string, fn func(r *model.Resource) error) (*model.Resource, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		r, err := s.store.GetResource(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(r); err != nil {
			return nil, err
		}
		r.UpdatedAt = s.now()
		err = s.store.SaveResource(ctx, r)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, model.ErrConcurrentModification) {
			return nil, fmt.Errorf("save resource: %w", err)
		}
		metrics.IncWriteConflict()
		s.logger.Debug().Str("resource_id", id).Int("attempt", attempt).Msg("resource changed concurrently, retrying")
	}
	return nil, fmt.Errorf("save resource %s: %w", id, model.ErrConcurrentModification)
}

// GetResource returns one listing.
func (s *Service) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	return s.store.GetResource(ctx, id)
}

// ListResources returns all listings.
func (s *Service) ListResources(ctx context.Context) ([]model.Resource, error) {
	return s.store.ListResources(ctx)
}

// ListReviews returns the reviews of a listing.
func (s *Service) ListReviews(ctx context.Context, id string) ([]model.Review, error) {
	if _, err := s.store.GetResource(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListReviews(ctx, id)
}
