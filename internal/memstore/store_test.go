package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotshare/internal/geo"
	"spotshare/internal/model"
)

func seed(t *testing.T, s *Store) *model.Resource {
	t.Helper()
	res := &model.Resource{
		ID:        "spot-1",
		OwnerID:   "owner-1",
		Point:     geo.Point{Lat: 55.75, Lng: 37.62},
		Status:    model.StatusApproved,
		Available: true,
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.SaveResource(context.Background(), res))
	return res
}

func newReservation(id string, hour int) *model.Reservation {
	start := time.Date(2026, 3, 2, hour, 0, 0, 0, time.UTC)
	return &model.Reservation{
		ID:          id,
		ResourceID:  "spot-1",
		RequesterID: "user-1",
		Start:       start,
		End:         start.Add(time.Hour),
		Status:      model.StatusPending,
	}
}

func TestInsertReservationCAS(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s)

	require.NoError(t, s.InsertReservation(ctx, newReservation("r-1", 10), 0))

	err := s.InsertReservation(ctx, newReservation("r-2", 12), 0)
	assert.ErrorIs(t, err, model.ErrConcurrentModification)

	require.NoError(t, s.InsertReservation(ctx, newReservation("r-2", 12), 1))

	res, err := s.GetResource(ctx, "spot-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Version)
	assert.Equal(t, []string{"r-1", "r-2"}, res.ReservationIDs)

	err = s.InsertReservation(ctx, &model.Reservation{ID: "r-x", ResourceID: "missing"}, 0)
	assert.ErrorIs(t, err, model.ErrResourceNotFound)
}

func TestUpdateReservationCancelRemovesReference(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s)
	require.NoError(t, s.InsertReservation(ctx, newReservation("r-1", 10), 0))

	r, err := s.GetReservation(ctx, "r-1")
	require.NoError(t, err)
	r.Status = model.StatusCancelled

	assert.ErrorIs(t, s.UpdateReservation(ctx, r, r.Version+1), model.ErrConcurrentModification)
	require.NoError(t, s.UpdateReservation(ctx, r, 1))
	assert.Equal(t, int64(2), r.Version)

	res, err := s.GetResource(ctx, "spot-1")
	require.NoError(t, err)
	assert.Empty(t, res.ReservationIDs)
	assert.Equal(t, int64(2), res.Version)

	active, err := s.ActiveReservations(ctx, "spot-1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestSaveResourcePreservesReservations(t *testing.T) {
	ctx := context.Background()
	s := New()
	res := seed(t, s)
	require.NoError(t, s.InsertReservation(ctx, newReservation("r-1", 10), 0))

	res.Available = false
	res.ReservationIDs = nil
	res.Version = 1
	require.NoError(t, s.SaveResource(ctx, res))

	got, err := s.GetResource(ctx, "spot-1")
	require.NoError(t, err)
	assert.False(t, got.Available)
	assert.Equal(t, []string{"r-1"}, got.ReservationIDs)
	assert.Equal(t, int64(2), got.Version)
}

func TestSaveResourceVersionCheck(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s)

	first, err := s.GetResource(ctx, "spot-1")
	require.NoError(t, err)
	second, err := s.GetResource(ctx, "spot-1")
	require.NoError(t, err)

	first.Status = model.StatusRejected
	require.NoError(t, s.SaveResource(ctx, first))
	assert.Equal(t, int64(1), first.Version)

	second.Available = false
	assert.ErrorIs(t, s.SaveResource(ctx, second), model.ErrConcurrentModification)

	got, err := s.GetResource(ctx, "spot-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, got.Status)
	assert.True(t, got.Available, "stale write must not land")

	// A reservation checked against the copy read before the owner's edit loses too.
	assert.ErrorIs(t, s.InsertReservation(ctx, newReservation("r-1", 10), 0), model.ErrConcurrentModification)
}

func TestCandidateResourcesAndLists(t *testing.T) {
	ctx := context.Background()
	s := New()
	seed(t, s)

	in, err := s.CandidateResources(ctx, geo.Rect{MinLat: 55, MaxLat: 56, MinLng: 37, MaxLng: 38})
	require.NoError(t, err)
	assert.Len(t, in, 1)

	out, err := s.CandidateResources(ctx, geo.Rect{MinLat: 10, MaxLat: 11, MinLng: 37, MaxLng: 38})
	require.NoError(t, err)
	assert.Empty(t, out)

	require.NoError(t, s.InsertReservation(ctx, newReservation("r-2", 12), 0))
	require.NoError(t, s.InsertReservation(ctx, newReservation("r-1", 10), 1))
	list, err := s.ListReservations(ctx, model.ReservationFilter{RequesterID: "user-1"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r-1", list[0].ID)

	_, err = s.GetReservation(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrReservationNotFound)
}
