package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"spotshare/internal/geo"
	"spotshare/internal/model"
	"spotshare/internal/schedule"
)

type resourceRow struct {
	ID           string       `db:"id"`
	OwnerID      string       `db:"owner_id"`
	Address      string       `db:"address"`
	Lat          float64      `db:"lat"`
	Lng          float64      `db:"lng"`
	Status       string       `db:"status"`
	Available    bool         `db:"available"`
	ActiveFrom   sql.NullTime `db:"active_from"`
	ActiveUntil  sql.NullTime `db:"active_until"`
	PricePerHour int64        `db:"price_per_hour"`
	Version      int64        `db:"version"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

type scheduleRow struct {
	ResourceID string `db:"resource_id"`
	Weekday    int    `db:"weekday"`
	OpenTime   string `db:"open_time"`
	CloseTime  string `db:"close_time"`
}

type refRow struct {
	ResourceID    string `db:"resource_id"`
	ReservationID string `db:"reservation_id"`
}

const resourceColumns = `id, owner_id, address, lat, lng, status, available, active_from, active_until,
	price_per_hour, version, created_at, updated_at`

// SaveResource inserts or updates a resource and replaces its schedule.
// Updating an existing resource requires r.Version to match the stored
// version and bumps it; the reservation list is left untouched.
func (db *DB) SaveResource(ctx context.Context, r *model.Resource) error {
	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	row := resourceRow{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Address:      r.Address,
		Lat:          r.Point.Lat,
		Lng:          r.Point.Lng,
		Status:       string(r.Status),
		Available:    r.Available,
		ActiveFrom:   nullTime(r.ActiveFrom),
		ActiveUntil:  nullTime(r.ActiveUntil),
		PricePerHour: r.PricePerHour,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt,
	}

	return db.inTx(ctx, func(tx *sqlx.Tx) error {
		var count int
		if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM resources WHERE id = ?`, r.ID); err != nil {
			return fmt.Errorf("check resource: %w", err)
		}
		if count == 0 {
			_, err := tx.NamedExecContext(ctx, `
				INSERT INTO resources (`+resourceColumns+`)
				VALUES (:id, :owner_id, :address, :lat, :lng, :status, :available, :active_from, :active_until,
					:price_per_hour, 0, :created_at, :updated_at)`, row)
			if err != nil {
				return fmt.Errorf("insert resource: %w", err)
			}
		} else {
			res, err := tx.NamedExecContext(ctx, `
				UPDATE resources SET
					owner_id = :owner_id,
					address = :address,
					lat = :lat,
					lng = :lng,
					status = :status,
					available = :available,
					active_from = :active_from,
					active_until = :active_until,
					price_per_hour = :price_per_hour,
					version = version + 1,
					updated_at = :updated_at
				WHERE id = :id AND version = :version`, row)
			if err != nil {
				return fmt.Errorf("update resource: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return model.ErrConcurrentModification
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM resource_schedules WHERE resource_id = ?`, r.ID); err != nil {
			return fmt.Errorf("clear schedule: %w", err)
		}
		for _, e := range r.Schedule.Entries() {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO resource_schedules (resource_id, weekday, open_time, close_time) VALUES (?, ?, ?, ?)`,
				r.ID, int(e.Day), e.Open.String(), e.Close.String())
			if err != nil {
				return fmt.Errorf("insert schedule: %w", err)
			}
		}

		var stored struct {
			Version   int64     `db:"version"`
			CreatedAt time.Time `db:"created_at"`
		}
		if err := tx.GetContext(ctx, &stored, `SELECT version, created_at FROM resources WHERE id = ?`, r.ID); err != nil {
			return fmt.Errorf("read back resource: %w", err)
		}
		r.Version = stored.Version
		r.CreatedAt = stored.CreatedAt

		ids, err := reservationRefs(ctx, tx, r.ID)
		if err != nil {
			return err
		}
		r.ReservationIDs = ids
		return nil
	})
}

// GetResource loads a resource with its schedule and reservation list.
func (db *DB) GetResource(ctx context.Context, id string) (*model.Resource, error) {
	var row resourceRow
	err := db.GetContext(ctx, &row, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	if isNoRows(err) {
		return nil, fmt.Errorf("%w: %s", model.ErrResourceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get resource: %w", err)
	}

	out, err := db.hydrate(ctx, []resourceRow{row})
	if err != nil {
		return nil, err
	}
	return &out[0], nil
}

// ListResources returns every resource ordered by creation time.
func (db *DB) ListResources(ctx context.Context) ([]model.Resource, error) {
	var rows []resourceRow
	if err := db.SelectContext(ctx, &rows, `SELECT `+resourceColumns+` FROM resources ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return db.hydrate(ctx, rows)
}

// CandidateResources uses the location index to fetch resources inside bound.
func (db *DB) CandidateResources(ctx context.Context, bound geo.Rect) ([]model.Resource, error) {
	var rows []resourceRow
	err := db.SelectContext(ctx, &rows, `
		SELECT `+resourceColumns+` FROM resources
		WHERE lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?
		ORDER BY created_at, id`,
		bound.MinLat, bound.MaxLat, bound.MinLng, bound.MaxLng)
	if err != nil {
		return nil, fmt.Errorf("candidate resources: %w", err)
	}
	return db.hydrate(ctx, rows)
}

// hydrate attaches schedules and reservation lists to resource rows.
func (db *DB) hydrate(ctx context.Context, rows []resourceRow) ([]model.Resource, error) {
	out := make([]model.Resource, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}

	query, args, err := sqlx.In(`SELECT resource_id, weekday, open_time, close_time
		FROM resource_schedules WHERE resource_id IN (?) ORDER BY resource_id, weekday`, ids)
	if err != nil {
		return nil, err
	}
	var schedRows []scheduleRow
	if err := db.SelectContext(ctx, &schedRows, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	byResource := make(map[string][]schedule.Entry, len(rows))
	for _, s := range schedRows {
		open, err := schedule.ParseTimeOfDay(s.OpenTime)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", s.ResourceID, err)
		}
		closeAt, err := schedule.ParseTimeOfDay(s.CloseTime)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", s.ResourceID, err)
		}
		byResource[s.ResourceID] = append(byResource[s.ResourceID], schedule.Entry{
			Day:   time.Weekday(s.Weekday),
			Open:  open,
			Close: closeAt,
		})
	}

	query, args, err = sqlx.In(`SELECT resource_id, reservation_id
		FROM resource_reservations WHERE resource_id IN (?) ORDER BY seq`, ids)
	if err != nil {
		return nil, err
	}
	var refs []refRow
	if err := db.SelectContext(ctx, &refs, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("load reservation refs: %w", err)
	}
	refsByResource := make(map[string][]string, len(rows))
	for _, ref := range refs {
		refsByResource[ref.ResourceID] = append(refsByResource[ref.ResourceID], ref.ReservationID)
	}

	for _, r := range rows {
		weekly, err := schedule.New(byResource[r.ID]...)
		if err != nil {
			return nil, fmt.Errorf("resource %s: %w", r.ID, err)
		}
		out = append(out, model.Resource{
			ID:             r.ID,
			OwnerID:        r.OwnerID,
			Address:        r.Address,
			Point:          geo.Point{Lat: r.Lat, Lng: r.Lng},
			Schedule:       weekly,
			Status:         model.Status(r.Status),
			Available:      r.Available,
			ActiveFrom:     timePtr(r.ActiveFrom),
			ActiveUntil:    timePtr(r.ActiveUntil),
			PricePerHour:   r.PricePerHour,
			ReservationIDs: refsByResource[r.ID],
			Version:        r.Version,
			CreatedAt:      r.CreatedAt,
			UpdatedAt:      r.UpdatedAt,
		})
	}
	return out, nil
}

func reservationRefs(ctx context.Context, q sqlx.QueryerContext, resourceID string) ([]string, error) {
	var ids []string
	err := sqlx.SelectContext(ctx, q, &ids,
		`SELECT reservation_id FROM resource_reservations WHERE resource_id = ? ORDER BY seq`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("load reservation refs: %w", err)
	}
	return ids, nil
}
