package listing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"spotshare/internal/config"
	"spotshare/internal/geo"
	"spotshare/internal/memstore"
	"spotshare/internal/model"
	"spotshare/internal/schedule"
)

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, address string) (geo.Point, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(geo.Point), args.Error(1)
}

func newService(t *testing.T, g *mockGeocoder) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	var svc *Service
	if g == nil {
		svc = NewService(store, nil, zerolog.Nop())
	} else {
		svc = NewService(store, g, zerolog.Nop())
	}
	return svc, store
}

func TestCreateResourceWithLocation(t *testing.T) {
	svc, _ := newService(t, nil)

	r, err := svc.CreateResource(context.Background(), NewResource{
		OwnerID:      "owner-1",
		Location:     &geo.Point{Lat: 55.75, Lng: 37.61},
		PricePerHour: 100,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, model.StatusPending, r.Status)
	assert.True(t, r.Available)

	got, err := svc.GetResource(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Point, got.Point)
}

func TestCreateResourceGeocodesAddress(t *testing.T) {
	g := &mockGeocoder{}
	g.On("Geocode", mock.Anything, "Tverskaya 1").Return(geo.Point{Lat: 55.7575, Lng: 37.613}, nil).Once()
	svc, _ := newService(t, g)

	r, err := svc.CreateResource(context.Background(), NewResource{OwnerID: "owner-1", Address: "Tverskaya 1"})
	require.NoError(t, err)
	assert.InDelta(t, 55.7575, r.Point.Lat, 1e-9)
	g.AssertExpectations(t)
}

func TestCreateResourceGeocodeFailure(t *testing.T) {
	g := &mockGeocoder{}
	g.On("Geocode", mock.Anything, "Nowhere").Return(geo.Point{}, errors.New("timeout")).Once()
	svc, store := newService(t, g)

	_, err := svc.CreateResource(context.Background(), NewResource{OwnerID: "owner-1", Address: "Nowhere"})
	assert.ErrorIs(t, err, model.ErrGeocodeUnavailable)

	all, err := store.ListResources(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all, "no listing is stored with a default location")

	noGeocoder, _ := newService(t, nil)
	_, err = noGeocoder.CreateResource(context.Background(), NewResource{OwnerID: "owner-1", Address: "Tverskaya 1"})
	assert.ErrorIs(t, err, model.ErrGeocodeUnavailable)
}

func TestCreateResourceValidation(t *testing.T) {
	svc, _ := newService(t, nil)
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	until := from.AddDate(0, 0, -1)

	tests := []struct {
		name string
		in   NewResource
	}{
		{"missing owner", NewResource{Location: &geo.Point{}}},
		{"missing location and address", NewResource{OwnerID: "o"}},
		{"bad location", NewResource{OwnerID: "o", Location: &geo.Point{Lat: 100}}},
		{"negative price", NewResource{OwnerID: "o", Location: &geo.Point{}, PricePerHour: -1}},
		{"inverted window", NewResource{OwnerID: "o", Location: &geo.Point{}, ActiveFrom: &from, ActiveUntil: &until}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateResource(context.Background(), tt.in)
			assert.ErrorIs(t, err, model.ErrInvalidResource)
		})
	}
}

func TestModeration(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	r, err := svc.CreateResource(ctx, NewResource{OwnerID: "owner-1", Location: &geo.Point{Lat: 1, Lng: 1}})
	require.NoError(t, err)

	approved, err := svc.ApproveResource(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, approved.Status)

	_, err = svc.ApproveResource(ctx, r.ID)
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)

	rejected, err := svc.RejectResource(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, rejected.Status)

	_, err = svc.ApproveResource(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrResourceNotFound)
}

func TestOwnerUpdates(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	r, err := svc.CreateResource(ctx, NewResource{OwnerID: "owner-1", Location: &geo.Point{Lat: 1, Lng: 1}})
	require.NoError(t, err)

	_, err = svc.SetAvailability(ctx, r.ID, "intruder", false)
	assert.ErrorIs(t, err, model.ErrNotOwner)

	updated, err := svc.SetAvailability(ctx, r.ID, "owner-1", false)
	require.NoError(t, err)
	assert.False(t, updated.Available)

	weekly, err := schedule.FromSpecs([]schedule.EntrySpec{{Day: "Friday", Open: "07:00", Close: "23:00"}})
	require.NoError(t, err)
	updated, err = svc.UpdateSchedule(ctx, r.ID, "owner-1", weekly)
	require.NoError(t, err)
	_, ok := updated.Schedule.Entry(time.Friday)
	assert.True(t, ok)

	reviews, err := svc.ListReviews(ctx, r.ID)
	require.NoError(t, err)
	assert.Empty(t, reviews)
}

// lockstepStore holds the first two GetResource calls until both have read,
// so two writers start from the same version.
type lockstepStore struct {
	*memstore.Store
	reads sync.WaitGroup
	calls atomic.Int32
}

func newLockstepStore() *lockstepStore {
	s := &lockstepStore{Store: memstore.New()}
	s.reads.Add(2)
	return s
}

func (s *lockstepStore) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	r, err := s.Store.GetResource(ctx, id)
	if s.calls.Add(1) <= 2 {
		s.reads.Done()
		s.reads.Wait()
	}
	return r, err
}

type conflictingStore struct {
	*memstore.Store
	saves atomic.Int32
}

func (s *conflictingStore) SaveResource(context.Context, *model.Resource) error {
	s.saves.Add(1)
	return model.ErrConcurrentModification
}

func TestConcurrentModerationAndOwnerUpdate(t *testing.T) {
	ctx := context.Background()
	store := newLockstepStore()
	require.NoError(t, store.Store.SaveResource(ctx, &model.Resource{
		ID:        "spot-1",
		OwnerID:   "owner-1",
		Point:     geo.Point{Lat: 55.75, Lng: 37.61},
		Status:    model.StatusPending,
		Available: true,
	}))
	svc := NewService(store, nil, zerolog.Nop())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = svc.ApproveResource(ctx, "spot-1")
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = svc.SetAvailability(ctx, "spot-1", "owner-1", false)
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got, err := store.Store.GetResource(ctx, "spot-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.False(t, got.Available)
	assert.Equal(t, int64(2), got.Version)
}

func TestUpdateGivesUpAfterRepeatedConflicts(t *testing.T) {
	ctx := context.Background()
	store := &conflictingStore{Store: memstore.New()}
	require.NoError(t, store.Store.SaveResource(ctx, &model.Resource{ID: "spot-1", OwnerID: "owner-1", Status: model.StatusPending}))
	svc := NewService(store, nil, zerolog.Nop())

	_, err := svc.ApproveResource(ctx, "spot-1")
	assert.ErrorIs(t, err, model.ErrConcurrentModification)
	assert.Equal(t, int32(maxSaveAttempts), store.saves.Load())

	got, err := store.Store.GetResource(ctx, "spot-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
}

func TestSyncFromConfig(t *testing.T) {
	svc, store := newService(t, nil)
	ctx := context.Background()
	off := false

	cfg := &config.SpotsConfig{Spots: []config.SpotConfig{
		{
			ID:          "spot-a",
			OwnerID:     "owner-1",
			Location:    &geo.Point{Lat: 55.75, Lng: 37.61},
			Status:      "approved",
			ActiveFrom:  "2026-01-01",
			ActiveUntil: "2026-12-31",
			Schedule:    []schedule.EntrySpec{{Day: "Monday", Open: "08:00", Close: "20:00"}},
		},
		{ID: "spot-b", OwnerID: "owner-2", Location: &geo.Point{Lat: 55.76, Lng: 37.62}, Available: &off},
	}}
	require.NoError(t, svc.SyncFromConfig(ctx, cfg, time.UTC))

	a, err := store.GetResource(ctx, "spot-a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, a.Status)
	assert.True(t, a.Available)
	require.NotNil(t, a.ActiveUntil)
	assert.Equal(t, 31, a.ActiveUntil.Day())

	b, err := store.GetResource(ctx, "spot-b")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.False(t, b.Available)

	// A reservation made between syncs survives the next sync.
	require.NoError(t, store.InsertReservation(ctx, &model.Reservation{ID: "r-1", ResourceID: "spot-a", Status: model.StatusPending}, a.Version))

	cfg.Spots = cfg.Spots[:1]
	require.NoError(t, svc.SyncFromConfig(ctx, cfg, time.UTC))

	a, err = store.GetResource(ctx, "spot-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"r-1"}, a.ReservationIDs)

	b, err = store.GetResource(ctx, "spot-b")
	require.NoError(t, err)
	assert.False(t, b.Available, "spot removed from config is disabled")

	assert.Error(t, svc.SyncFromConfig(ctx, nil, time.UTC))
}
