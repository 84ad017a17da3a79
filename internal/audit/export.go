package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"spotshare/internal/model"
)

// Source provides the rows to export.
type Source interface {
	ListResources(ctx context.Context) ([]model.Resource, error)
	ListReservations(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, error)
}

var (
	spotColumns = []string{
		"ID", "Owner", "Address", "Latitude", "Longitude", "Status", "Available",
		"Active from", "Active until", "Price per hour",
	}
	reservationColumns = []string{
		"ID", "Spot", "Requester", "Start", "End", "Hours", "Status", "Payment",
		"Total price", "Vehicle", "Created",
	}
)

// Exporter writes a workbook with a Spots sheet and a Reservations sheet.
type Exporter struct {
	source    Source
	newWriter func() SheetWriter
	loc       *time.Location
	logger    zerolog.Logger
}

// NewExporter builds an Exporter. Times are rendered in loc.
func NewExporter(source Source, loc *time.Location, logger zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{
		source:    source,
		newWriter: func() SheetWriter { return NewExcelizeWriter() },
		loc:       loc,
		logger:    logger.With().Str("component", "audit").Logger(),
	}
}

// Export writes the reservations matching filter, and every spot, to out.
func (e *Exporter) Export(ctx context.Context, out io.Writer, filter model.ReservationFilter) error {
	spots, err := e.source.ListResources(ctx)
	if err != nil {
		return fmt.Errorf("list spots: %w", err)
	}
	reservations, err := e.source.ListReservations(ctx, filter)
	if err != nil {
		return fmt.Errorf("list reservations: %w", err)
	}

	w := e.newWriter()
	defer w.Close()

	if err := w.AddSheet("Spots"); err != nil {
		return err
	}
	if err := w.WriteHeader(spotColumns); err != nil {
		return err
	}
	for _, s := range spots {
		if err := w.WriteRow(e.spotRow(s)); err != nil {
			return err
		}
	}

	if err := w.AddSheet("Reservations"); err != nil {
		return err
	}
	if err := w.WriteHeader(reservationColumns); err != nil {
		return err
	}
	for _, r := range reservations {
		if err := w.WriteRow(e.reservationRow(r)); err != nil {
			return err
		}
	}

	if err := w.Save(out); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	e.logger.Info().Int("spots", len(spots)).Int("reservations", len(reservations)).Msg("export written")
	return nil
}

func (e *Exporter) spotRow(s model.Resource) []any {
	return []any{
		s.ID, s.OwnerID, s.Address, s.Point.Lat, s.Point.Lng, string(s.Status), s.Available,
		e.date(s.ActiveFrom), e.date(s.ActiveUntil), s.PricePerHour,
	}
}

func (e *Exporter) reservationRow(r model.Reservation) []any {
	return []any{
		r.ID, r.ResourceID, r.RequesterID,
		e.stamp(r.Start), e.stamp(r.End), r.Duration().Hours(),
		string(r.Status), string(r.PaymentStatus), r.TotalPrice, r.VehicleReg,
		e.stamp(r.CreatedAt),
	}
}

func (e *Exporter) stamp(t time.Time) string {
	return t.In(e.loc).Format("2006-01-02 15:04")
}

func (e *Exporter) date(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(e.loc).Format("2006-01-02")
}

// Filename returns the default export name for t, like reservations_2026-03.xlsx.
func Filename(t time.Time) string {
	return fmt.Sprintf("reservations_%s.xlsx", t.Format("2006-01"))
}
