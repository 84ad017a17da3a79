// Package memstore is an in-process store for resources and reservations.
// Every write happens under a single mutex, which makes conditional writes atomic.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"spotshare/internal/geo"
	"spotshare/internal/model"
)

// Store keeps resources, reservations and reviews in maps.
type Store struct {
	mu           sync.RWMutex
	resources    map[string]*model.Resource
	reservations map[string]*model.Reservation
	reviews      map[string][]model.Review
}

// New returns an empty store.
func New() *Store {
	return &Store{
		resources:    make(map[string]*model.Resource),
		reservations: make(map[string]*model.Reservation),
		reviews:      make(map[string][]model.Review),
	}
}

// SaveResource creates or replaces the descriptive fields of a resource.
// Replacing an existing resource requires r.Version to match the stored
// version and bumps it; the reservation list is preserved.
func (s *Store) SaveResource(_ context.Context, r *model.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := r.Clone()
	if prev, ok := s.resources[r.ID]; ok {
		if prev.Version != r.Version {
			return model.ErrConcurrentModification
		}
		stored.ReservationIDs = append([]string(nil), prev.ReservationIDs...)
		stored.Version = prev.Version + 1
		stored.CreatedAt = prev.CreatedAt
	} else {
		stored.ReservationIDs = nil
		stored.Version = 0
	}
	s.resources[r.ID] = &stored

	r.Version = stored.Version
	r.ReservationIDs = append([]string(nil), stored.ReservationIDs...)
	r.CreatedAt = stored.CreatedAt
	return nil
}

// GetResource returns a copy of the resource.
func (s *Store) GetResource(_ context.Context, id string) (*model.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.resources[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrResourceNotFound, id)
	}
	out := r.Clone()
	return &out, nil
}

// ListResources returns all resources ordered by creation time.
func (s *Store) ListResources(_ context.Context) ([]model.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Resource, 0, len(s.resources))
	for _, r := range s.resources {
		out = append(out, r.Clone())
	}
	sortResources(out)
	return out, nil
}

// CandidateResources scans every resource against the bounding box.
func (s *Store) CandidateResources(_ context.Context, bound geo.Rect) ([]model.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Resource, 0)
	for _, r := range s.resources {
		if bound.Contains(r.Point) {
			out = append(out, r.Clone())
		}
	}
	sortResources(out)
	return out, nil
}

// ActiveReservations follows the resource's reservation list.
func (s *Store) ActiveReservations(_ context.Context, resourceID string) ([]model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res, ok := s.resources[resourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrResourceNotFound, resourceID)
	}
	out := make([]model.Reservation, 0, len(res.ReservationIDs))
	for _, id := range res.ReservationIDs {
		r, ok := s.reservations[id]
		if ok && r.Status.Active() {
			out = append(out, *r)
		}
	}
	return out, nil
}

// InsertReservation appends r to its resource if the resource version is unchanged.
func (s *Store) InsertReservation(_ context.Context, r *model.Reservation, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, ok := s.resources[r.ResourceID]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrResourceNotFound, r.ResourceID)
	}
	if res.Version != expectedVersion {
		return model.ErrConcurrentModification
	}
	if _, exists := s.reservations[r.ID]; exists {
		return fmt.Errorf("reservation %s already exists", r.ID)
	}

	r.Version = 1
	stored := *r
	s.reservations[r.ID] = &stored
	res.ReservationIDs = append(res.ReservationIDs, r.ID)
	res.Version++
	res.UpdatedAt = time.Now()
	return nil
}

// GetReservation returns a copy of the reservation.
func (s *Store) GetReservation(_ context.Context, id string) (*model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reservations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrReservationNotFound, id)
	}
	out := *r
	return &out, nil
}

// UpdateReservation replaces the reservation if its version is unchanged.
func (s *Store) UpdateReservation(_ context.Context, r *model.Reservation, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(r, expectedVersion)
}

// CompleteReservation updates the reservation and stores the review together.
func (s *Store) CompleteReservation(_ context.Context, r *model.Reservation, expectedVersion int64, review *model.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.updateLocked(r, expectedVersion); err != nil {
		return err
	}
	s.reviews[review.ResourceID] = append(s.reviews[review.ResourceID], *review)
	return nil
}

func (s *Store) updateLocked(r *model.Reservation, expectedVersion int64) error {
	cur, ok := s.reservations[r.ID]
	if !ok {
		return fmt.Errorf("%w: %s", model.ErrReservationNotFound, r.ID)
	}
	if cur.Version != expectedVersion {
		return model.ErrConcurrentModification
	}

	r.Version = expectedVersion + 1
	stored := *r
	stored.ResourceID, stored.Start, stored.End = cur.ResourceID, cur.Start, cur.End
	s.reservations[r.ID] = &stored

	if stored.Status == model.StatusCancelled {
		if res, ok := s.resources[stored.ResourceID]; ok {
			if i := slices.Index(res.ReservationIDs, stored.ID); i >= 0 {
				res.ReservationIDs = slices.Delete(res.ReservationIDs, i, i+1)
				res.Version++
			}
		}
	}
	return nil
}

// ListReservations returns matching reservations ordered by start time.
func (s *Store) ListReservations(_ context.Context, filter model.ReservationFilter) ([]model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Reservation, 0)
	for _, r := range s.reservations {
		if filter.Match(*r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start.Equal(out[j].Start) {
			return out[i].ID < out[j].ID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

// ListReviews returns the reviews left for a resource.
func (s *Store) ListReviews(_ context.Context, resourceID string) ([]model.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Review(nil), s.reviews[resourceID]...), nil
}

// PingContext satisfies health checks.
func (s *Store) PingContext(context.Context) error {
	return nil
}

func sortResources(rs []model.Resource) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].CreatedAt.Before(rs[j].CreatedAt)
	})
}
