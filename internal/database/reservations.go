package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"spotshare/internal/model"
)

type reservationRow struct {
	ID            string    `db:"id"`
	ResourceID    string    `db:"resource_id"`
	RequesterID   string    `db:"requester_id"`
	StartTime     time.Time `db:"start_time"`
	EndTime       time.Time `db:"end_time"`
	Status        string    `db:"status"`
	PaymentStatus string    `db:"payment_status"`
	TotalPrice    int64     `db:"total_price"`
	VehicleReg    string    `db:"vehicle_reg"`
	Version       int64     `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r reservationRow) model() model.Reservation {
	return model.Reservation{
		ID:            r.ID,
		ResourceID:    r.ResourceID,
		RequesterID:   r.RequesterID,
		Start:         r.StartTime,
		End:           r.EndTime,
		Status:        model.Status(r.Status),
		PaymentStatus: model.PaymentStatus(r.PaymentStatus),
		TotalPrice:    r.TotalPrice,
		VehicleReg:    r.VehicleReg,
		Version:       r.Version,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type reviewRow struct {
	ID            string    `db:"id"`
	ReservationID string    `db:"reservation_id"`
	ResourceID    string    `db:"resource_id"`
	RequesterID   string    `db:"requester_id"`
	Rating        int       `db:"rating"`
	Comment       string    `db:"comment"`
	CreatedAt     time.Time `db:"created_at"`
}

const reservationColumns = `id, resource_id, requester_id, start_time, end_time, status, payment_status,
	total_price, vehicle_reg, version, created_at, updated_at`

// ActiveReservations returns pending and approved reservations in the resource's list order.
func (db *DB) ActiveReservations(ctx context.Context, resourceID string) ([]model.Reservation, error) {
	var rows []reservationRow
	err := db.SelectContext(ctx, &rows, `
		SELECT r.id, r.resource_id, r.requester_id, r.start_time, r.end_time, r.status, r.payment_status,
			r.total_price, r.vehicle_reg, r.version, r.created_at, r.updated_at
		FROM resource_reservations rr
		JOIN reservations r ON r.id = rr.reservation_id
		WHERE rr.resource_id = ? AND r.status IN (?, ?)
		ORDER BY rr.seq`,
		resourceID, string(model.StatusPending), string(model.StatusApproved))
	if err != nil {
		return nil, fmt.Errorf("active reservations: %w", err)
	}

	out := make([]model.Reservation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// InsertReservation bumps the resource version from expectedVersion, stores r and appends its reference.
func (db *DB) InsertReservation(ctx context.Context, r *model.Reservation, expectedVersion int64) error {
	row := reservationRow{
		ID:            r.ID,
		ResourceID:    r.ResourceID,
		RequesterID:   r.RequesterID,
		StartTime:     r.Start.UTC(),
		EndTime:       r.End.UTC(),
		Status:        string(r.Status),
		PaymentStatus: string(r.PaymentStatus),
		TotalPrice:    r.TotalPrice,
		VehicleReg:    r.VehicleReg,
		Version:       1,
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}

	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE resources SET version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
			time.Now().UTC(), r.ResourceID, expectedVersion)
		if err != nil {
			return fmt.Errorf("bump resource version: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return missingOr(ctx, tx, `SELECT COUNT(*) FROM resources WHERE id = ?`, r.ResourceID, model.ErrResourceNotFound)
		}

		if _, err := tx.NamedExecContext(ctx, `INSERT INTO reservations (`+reservationColumns+`)
			VALUES (:id, :resource_id, :requester_id, :start_time, :end_time, :status, :payment_status,
				:total_price, :vehicle_reg, :version, :created_at, :updated_at)`, row); err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO resource_reservations (resource_id, reservation_id) VALUES (?, ?)`,
			r.ResourceID, r.ID); err != nil {
			return fmt.Errorf("insert reservation ref: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.Version = 1
	return nil
}

// GetReservation loads one reservation.
func (db *DB) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	var row reservationRow
	err := db.GetContext(ctx, &row, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", model.ErrReservationNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	out := row.model()
	return &out, nil
}

// UpdateReservation writes the mutable fields of r if its stored version equals expectedVersion.
func (db *DB) UpdateReservation(ctx context.Context, r *model.Reservation, expectedVersion int64) error {
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		return updateReservationTx(ctx, tx, r, expectedVersion)
	})
	if err != nil {
		return err
	}
	r.Version = expectedVersion + 1
	return nil
}

// CompleteReservation updates r and inserts its review in one transaction.
func (db *DB) CompleteReservation(ctx context.Context, r *model.Reservation, expectedVersion int64, review *model.Review) error {
	err := db.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := updateReservationTx(ctx, tx, r, expectedVersion); err != nil {
			return err
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO reviews (id, reservation_id, resource_id, requester_id, rating, comment, created_at)
			VALUES (:id, :reservation_id, :resource_id, :requester_id, :rating, :comment, :created_at)`,
			reviewRow{
				ID:            review.ID,
				ReservationID: review.ReservationID,
				ResourceID:    review.ResourceID,
				RequesterID:   review.RequesterID,
				Rating:        review.Rating,
				Comment:       review.Comment,
				CreatedAt:     review.CreatedAt.UTC(),
			})
		if err != nil {
			return fmt.Errorf("insert review: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.Version = expectedVersion + 1
	return nil
}

func updateReservationTx(ctx context.Context, tx *sqlx.Tx, r *model.Reservation, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET status = ?, payment_status = ?, vehicle_reg = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(r.Status), string(r.PaymentStatus), r.VehicleReg, r.UpdatedAt.UTC(), r.ID, expectedVersion)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return missingOr(ctx, tx, `SELECT COUNT(*) FROM reservations WHERE id = ?`, r.ID, model.ErrReservationNotFound)
	}

	if r.Status != model.StatusCancelled {
		return nil
	}
	res, err = tx.ExecContext(ctx, `DELETE FROM resource_reservations WHERE reservation_id = ?`, r.ID)
	if err != nil {
		return fmt.Errorf("remove reservation ref: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE resources SET version = version + 1, updated_at = ?
			WHERE id = (SELECT resource_id FROM reservations WHERE id = ?)`,
			time.Now().UTC(), r.ID); err != nil {
			return fmt.Errorf("bump resource version: %w", err)
		}
	}
	return nil
}

// missingOr distinguishes a missing row from a lost version race.
func missingOr(ctx context.Context, tx *sqlx.Tx, countQuery, id string, notFound error) error {
	var count int
	if err := tx.GetContext(ctx, &count, countQuery, id); err != nil {
		return fmt.Errorf("check existence: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return model.ErrConcurrentModification
}

// ListReservations returns reservations matching filter ordered by start time.
func (db *DB) ListReservations(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.ResourceID != "" {
		clauses = append(clauses, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.RequesterID != "" {
		clauses = append(clauses, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + reservationColumns + ` FROM reservations`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY start_time, id"

	var rows []reservationRow
	if err := db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	out := make([]model.Reservation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.model())
	}
	return out, nil
}

// ListReviews returns reviews of a resource, newest first.
func (db *DB) ListReviews(ctx context.Context, resourceID string) ([]model.Review, error) {
	var rows []reviewRow
	err := db.SelectContext(ctx, &rows, `
		SELECT id, reservation_id, resource_id, requester_id, rating, comment, created_at
		FROM reviews WHERE resource_id = ? ORDER BY created_at DESC, id`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	out := make([]model.Review, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.Review(row))
	}
	return out, nil
}
