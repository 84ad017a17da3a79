package audit

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"spotshare/internal/geo"
	"spotshare/internal/memstore"
	"spotshare/internal/model"
)

func seeded(t *testing.T) *memstore.Store {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	require.NoError(t, store.SaveResource(ctx, &model.Resource{
		ID:           "spot-1",
		OwnerID:      "owner-1",
		Address:      "Tverskaya 1",
		Point:        geo.Point{Lat: 55.75, Lng: 37.61},
		Status:       model.StatusApproved,
		Available:    true,
		PricePerHour: 150,
	}))
	res, err := store.GetResource(ctx, "spot-1")
	require.NoError(t, err)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertReservation(ctx, &model.Reservation{
		ID:            "r-1",
		ResourceID:    "spot-1",
		RequesterID:   "user-1",
		Start:         start,
		End:           start.Add(2 * time.Hour),
		Status:        model.StatusApproved,
		PaymentStatus: model.PaymentSucceeded,
		TotalPrice:    300,
		VehicleReg:    "A123BC",
		CreatedAt:     start.Add(-24 * time.Hour),
	}, res.Version))
	return store
}

func TestExportWritesBothSheets(t *testing.T) {
	store := seeded(t)
	e := NewExporter(store, time.UTC, zerolog.Nop())

	var buf bytes.Buffer
	require.NoError(t, e.Export(context.Background(), &buf, model.ReservationFilter{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Spots", "Reservations"}, f.GetSheetList())

	spots, err := f.GetRows("Spots")
	require.NoError(t, err)
	require.Len(t, spots, 2)
	assert.Equal(t, spotColumns, spots[0])
	assert.Equal(t, "spot-1", spots[1][0])
	assert.Equal(t, "Tverskaya 1", spots[1][2])

	rows, err := f.GetRows("Reservations")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, reservationColumns, rows[0])
	assert.Equal(t, "r-1", rows[1][0])
	assert.Equal(t, "2026-03-02 10:00", rows[1][3])
	assert.Equal(t, "2", rows[1][5])
	assert.Equal(t, "approved", rows[1][6])
	assert.Equal(t, "300", rows[1][8])
}

func TestExportAppliesFilterAndLocation(t *testing.T) {
	store := seeded(t)
	e := NewExporter(store, time.FixedZone("MSK", 3*60*60), zerolog.Nop())

	var buf bytes.Buffer
	require.NoError(t, e.Export(context.Background(), &buf, model.ReservationFilter{RequesterID: "user-1"}))
	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Reservations")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-03-02 13:00", rows[1][3])

	buf.Reset()
	require.NoError(t, e.Export(context.Background(), &buf, model.ReservationFilter{RequesterID: "nobody"}))
	f2, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f2.Close()
	rows, err = f2.GetRows("Reservations")
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}

type brokenSource struct{}

func (brokenSource) ListResources(context.Context) ([]model.Resource, error) {
	return nil, errors.New("boom")
}

func (brokenSource) ListReservations(context.Context, model.ReservationFilter) ([]model.Reservation, error) {
	return nil, nil
}

func TestExportPropagatesSourceError(t *testing.T) {
	var buf bytes.Buffer
	err := NewExporter(brokenSource{}, nil, zerolog.Nop()).Export(context.Background(), &buf, model.ReservationFilter{})
	assert.ErrorContains(t, err, "boom")
	assert.Zero(t, buf.Len())
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "reservations_2026-03.xlsx", Filename(time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)))
}
