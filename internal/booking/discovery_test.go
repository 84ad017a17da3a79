package booking

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotshare/internal/geo"
	"spotshare/internal/memstore"
	"spotshare/internal/model"
)

// offset returns a point roughly km kilometres north of center.
func offset(km float64) geo.Point {
	return geo.Point{Lat: center.Lat + km/111.2, Lng: center.Lng}
}

func ids(rs []model.Resource) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestFindAvailableFiltersByRadius(t *testing.T) {
	forEachStore(t, func(t *testing.T, store seedableStore) {
		seedSpot(t, store, "near", offset(1))
		seedSpot(t, store, "nearest", offset(0.2))
		seedSpot(t, store, "far", offset(10))
		a := newArbiter(store)

		got, err := a.CollectAvailable(context.Background(), center, 5, monday(10, 0), monday(11, 0))
		require.NoError(t, err)
		assert.Equal(t, []string{"nearest", "near"}, ids(got))
	})
}

func TestFindAvailableSkipsUnbookable(t *testing.T) {
	forEachStore(t, func(t *testing.T, store seedableStore) {
		ctx := context.Background()
		seedSpot(t, store, "open", offset(0.5))
		seedSpot(t, store, "pending", offset(0.5), func(r *model.Resource) { r.Status = model.StatusPending })
		seedSpot(t, store, "off", offset(0.5), func(r *model.Resource) { r.Available = false })
		seedSpot(t, store, "busy", offset(0.5))
		a := newArbiter(store)

		_, err := a.RequestReservation(ctx, request("busy", monday(10, 30), monday(11, 30)))
		require.NoError(t, err)

		got, err := a.CollectAvailable(ctx, center, 2, monday(10, 0), monday(11, 0))
		require.NoError(t, err)
		assert.Equal(t, []string{"open"}, ids(got))

		got, err = a.CollectAvailable(ctx, center, 2, monday(19, 0), monday(20, 0))
		require.NoError(t, err)
		assert.Empty(t, got, "outside open hours")
	})
}

func TestFindAvailableEdgeCases(t *testing.T) {
	store := memstore.New()
	seedSpot(t, store, "here", center)
	a := newArbiter(store)
	ctx := context.Background()

	_, err := a.FindAvailable(ctx, center, 5, monday(11, 0), monday(10, 0))
	assert.ErrorIs(t, err, model.ErrInvalidInterval)

	got, err := a.CollectAvailable(ctx, center, 0.01, monday(10, 0), monday(11, 0))
	require.NoError(t, err)
	assert.Equal(t, []string{"here"}, ids(got))

	got, err = a.CollectAvailable(ctx, center, -1, monday(10, 0), monday(11, 0))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindAvailableIsRestartable(t *testing.T) {
	store := memstore.New()
	seedSpot(t, store, "one", offset(0.1))
	seedSpot(t, store, "two", offset(0.3))
	a := newArbiter(store)
	ctx := context.Background()

	seq, err := a.FindAvailable(ctx, center, 1, monday(10, 0), monday(11, 0))
	require.NoError(t, err)

	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 2, count())

	// A booking committed between passes is visible to the next pass.
	_, err = a.RequestReservation(ctx, request("one", monday(10, 0), monday(11, 0)))
	require.NoError(t, err)
	assert.Equal(t, 1, count())

	// Breaking out early stops the scan.
	seen := 0
	for range seq {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

type failingStore struct {
	*memstore.Store
	err error
}

func (s *failingStore) CandidateResources(context.Context, geo.Rect) ([]model.Resource, error) {
	return nil, s.err
}

func TestFindAvailableYieldsStoreError(t *testing.T) {
	boom := errors.New("disk on fire")
	store := &failingStore{Store: memstore.New(), err: boom}
	a := newArbiter(store)

	seq, err := a.FindAvailable(context.Background(), center, 5, monday(10, 0), monday(11, 0))
	require.NoError(t, err)

	var errs []error
	for _, err := range seq {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], boom)

	_, err = a.CollectAvailable(context.Background(), center, 5, monday(10, 0), monday(11, 0))
	assert.ErrorIs(t, err, boom)
}
