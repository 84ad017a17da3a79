package booking

import (
	"context"

	"spotshare/internal/events"
	"spotshare/internal/geo"
	"spotshare/internal/model"
)

// Store persists resources and reservations. Implementations must make
// InsertReservation and UpdateReservation atomic conditional writes.
type Store interface {
	GetResource(ctx context.Context, id string) (*model.Resource, error)
	// CandidateResources returns resources whose location may fall inside bound.
	CandidateResources(ctx context.Context, bound geo.Rect) ([]model.Resource, error)
	// ActiveReservations returns pending and approved reservations referenced by the resource.
	ActiveReservations(ctx context.Context, resourceID string) ([]model.Reservation, error)

	// InsertReservation stores r and appends it to its resource's reservation list
	// only if the resource version still equals expectedVersion.
	InsertReservation(ctx context.Context, r *model.Reservation, expectedVersion int64) error
	GetReservation(ctx context.Context, id string) (*model.Reservation, error)
	// UpdateReservation replaces r if its stored version equals expectedVersion.
	// A cancelled reservation is also removed from its resource's list.
	UpdateReservation(ctx context.Context, r *model.Reservation, expectedVersion int64) error
	// CompleteReservation is UpdateReservation plus storing the review in the same write.
	CompleteReservation(ctx context.Context, r *model.Reservation, expectedVersion int64, review *model.Review) error
	ListReservations(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, error)
}

// Publisher delivers lifecycle events to collaborators such as payments.
type Publisher interface {
	Publish(event events.Event)
}
