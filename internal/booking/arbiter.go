// Package booking decides whether a reservation may be created on a resource and
// drives the reservation lifecycle under concurrent access.
package booking

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"spotshare/internal/availability"
	"spotshare/internal/events"
	"spotshare/internal/interval"
	"spotshare/internal/metrics"
	"spotshare/internal/model"
)

// DefaultMaxAttempts bounds conditional write retries per operation.
const DefaultMaxAttempts = 8

// DefaultRetryBackoff is the base of the jittered pause after a lost reservation race.
// The pause ceiling doubles per attempt up to maxRetryBackoff; the pause is
// drawn from the upper half of it.
const DefaultRetryBackoff = 2 * time.Millisecond

const maxRetryBackoff = 50 * time.Millisecond

// ReservationRequest is the input of RequestReservation.
type ReservationRequest struct {
	ResourceID  string
	RequesterID string
	Start       time.Time
	End         time.Time
	VehicleReg  string
}

// Arbiter serializes conflicting reservations through optimistic concurrency on the store.
type Arbiter struct {
	store       Store
	publisher   Publisher
	now         func() time.Time
	loc         *time.Location
	maxAttempts int
	backoff     time.Duration
	logger      zerolog.Logger
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) { a.now = now }
}

// WithLocation sets the zone in which weekly schedules are evaluated.
func WithLocation(loc *time.Location) Option {
	return func(a *Arbiter) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithMaxAttempts bounds the retries of a conditional write.
func WithMaxAttempts(n int) Option {
	return func(a *Arbiter) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithRetryBackoff sets the base pause between reservation retries. Zero disables the pause.
func WithRetryBackoff(d time.Duration) Option {
	return func(a *Arbiter) {
		if d >= 0 {
			a.backoff = d
		}
	}
}

// WithPublisher sets the event sink notified after each committed transition.
func WithPublisher(p Publisher) Option {
	return func(a *Arbiter) { a.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Arbiter) { a.logger = logger.With().Str("component", "arbiter").Logger() }
}

// NewArbiter constructs an Arbiter over store.
func NewArbiter(store Store, opts ...Option) *Arbiter {
	a := &Arbiter{
		store:       store,
		now:         time.Now,
		loc:         time.UTC,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultRetryBackoff,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RequestReservation creates a pending reservation if the resource is bookable,
// the range fits its open hours and no active reservation overlaps it.
// Every write to a resource bumps its version, so requests for disjoint ranges
// still race each other; one that loses maxAttempts times in a row gets
// ErrSlotConflict even though its range was free.
func (a *Arbiter) RequestReservation(ctx context.Context, req ReservationRequest) (*model.Reservation, error) {
	if !interval.Valid(req.Start, req.End) {
		metrics.IncReservationRequest(resultLabel(model.ErrInvalidInterval))
		return nil, model.ErrInvalidInterval
	}

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resv, err := a.tryReserve(ctx, req)
		if err == nil {
			metrics.IncReservationRequest("created")
			a.logger.Info().
				Str("reservation_id", resv.ID).
				Str("resource_id", resv.ResourceID).
				Int("attempt", attempt).
				Msg("reservation created")
			a.notify(events.ReservationRequested, resv)
			return resv, nil
		}
		if !errors.Is(err, model.ErrConcurrentModification) {
			metrics.IncReservationRequest(resultLabel(err))
			return nil, err
		}

		metrics.IncWriteConflict()
		a.logger.Debug().
			Str("resource_id", req.ResourceID).
			Int("attempt", attempt).
			Msg("reservation write lost race, retrying")
		if attempt < a.maxAttempts {
			if err := a.pause(ctx, attempt); err != nil {
				return nil, err
			}
		}
	}

	metrics.IncReservationRequest(resultLabel(model.ErrSlotConflict))
	a.logger.Warn().
		Str("resource_id", req.ResourceID).
		Int("attempts", a.maxAttempts).
		Msg("reservation retries exhausted")
	return nil, fmt.Errorf("%w: write contention after %d attempts", model.ErrSlotConflict, a.maxAttempts)
}

// pause sleeps for a jittered delay that doubles with each attempt.
func (a *Arbiter) pause(ctx context.Context, attempt int) error {
	if a.backoff <= 0 {
		return nil
	}
	limit := max(a.backoff, maxRetryBackoff)
	ceiling := limit
	if shift := attempt - 1; shift < 16 {
		ceiling = min(a.backoff<<shift, limit)
	}
	half := ceiling / 2
	wait := half + time.Duration(rand.Int64N(int64(ceiling-half)+1))
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Arbiter) tryReserve(ctx context.Context, req ReservationRequest) (*model.Reservation, error) {
	res, err := a.store.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	if err := a.admissible(ctx, *res, req.Start, req.End); err != nil {
		return nil, err
	}

	now := a.now()
	resv := &model.Reservation{
		ID:            uuid.NewString(),
		ResourceID:    res.ID,
		RequesterID:   req.RequesterID,
		Start:         req.Start,
		End:           req.End,
		Status:        model.StatusPending,
		PaymentStatus: model.PaymentPending,
		TotalPrice:    model.TotalPrice(res.PricePerHour, req.End.Sub(req.Start)),
		VehicleReg:    req.VehicleReg,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := a.store.InsertReservation(ctx, resv, res.Version); err != nil {
		return nil, err
	}
	return resv, nil
}

// admissible runs the window, schedule and overlap checks against a resource snapshot.
func (a *Arbiter) admissible(ctx context.Context, res model.Resource, start, end time.Time) error {
	if err := availability.IsBookable(res, start); err != nil {
		return err
	}
	if !res.Schedule.FitsInterval(start, end, a.loc) {
		return model.ErrScheduleMismatch
	}

	active, err := a.store.ActiveReservations(ctx, res.ID)
	if err != nil {
		return fmt.Errorf("load reservations of %s: %w", res.ID, err)
	}
	for _, r := range active {
		if interval.Overlaps(start, end, r.Start, r.End) {
			return model.ErrSlotConflict
		}
	}
	return nil
}

// ApproveReservation moves a pending reservation to approved and notifies the payment collaborator.
func (a *Arbiter) ApproveReservation(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := a.update(ctx, id, func(r *model.Reservation, _ time.Time) error {
		return transition(r, model.StatusApproved)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncReservationDecision("approved")
	a.logger.Info().Str("reservation_id", id).Msg("reservation approved")
	a.notify(events.ReservationApproved, r)
	return r, nil
}

// RejectReservation moves a pending reservation to rejected.
func (a *Arbiter) RejectReservation(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := a.update(ctx, id, func(r *model.Reservation, _ time.Time) error {
		return transition(r, model.StatusRejected)
	})
	if err != nil {
		return nil, err
	}
	metrics.IncReservationDecision("rejected")
	a.logger.Info().Str("reservation_id", id).Msg("reservation rejected")
	a.notify(events.ReservationRejected, r)
	return r, nil
}

// CancelReservation cancels a pending or approved reservation owned by requesterID before it starts.
func (a *Arbiter) CancelReservation(ctx context.Context, id, requesterID string) (*model.Reservation, error) {
	r, err := a.update(ctx, id, func(r *model.Reservation, now time.Time) error {
		if r.RequesterID != requesterID {
			return model.ErrNotOwner
		}
		if !model.CanTransition(r.Status, model.StatusCancelled) {
			return fmt.Errorf("%w: cannot cancel reservation with status %s", model.ErrInvalidStateTransition, r.Status)
		}
		if !now.Before(r.Start) {
			return model.ErrTooLateToCancel
		}
		r.Status = model.StatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncReservationCancelled()
	a.logger.Info().Str("reservation_id", id).Str("requester_id", requesterID).Msg("reservation cancelled")
	a.notify(events.ReservationCancelled, r)
	return r, nil
}

// CompleteReservation closes an approved reservation after it ended and records the requester's review.
func (a *Arbiter) CompleteReservation(ctx context.Context, id, requesterID string, rating int, comment string) (*model.Reservation, *model.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, nil, model.ErrInvalidReview
	}

	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		r, err := a.store.GetReservation(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		now := a.now()
		if r.RequesterID != requesterID {
			return nil, nil, model.ErrNotOwner
		}
		if err := transition(r, model.StatusCompleted); err != nil {
			return nil, nil, err
		}
		if now.Before(r.End) {
			return nil, nil, model.ErrTooEarlyToComplete
		}

		expected := r.Version
		r.UpdatedAt = now
		review := &model.Review{
			ID:            uuid.NewString(),
			ReservationID: r.ID,
			ResourceID:    r.ResourceID,
			RequesterID:   requesterID,
			Rating:        rating,
			Comment:       comment,
			CreatedAt:     now,
		}

		err = a.store.CompleteReservation(ctx, r, expected, review)
		if err == nil {
			a.logger.Info().Str("reservation_id", id).Int("rating", rating).Msg("reservation completed")
			a.notify(events.ReservationCompleted, r)
			return r, review, nil
		}
		if !errors.Is(err, model.ErrConcurrentModification) {
			return nil, nil, err
		}
		metrics.IncWriteConflict()
	}
	return nil, nil, fmt.Errorf("complete reservation %s: %w", id, model.ErrConcurrentModification)
}

// RecordPayment stores the payment collaborator's outcome. A succeeded payment is final.
func (a *Arbiter) RecordPayment(ctx context.Context, id string, succeeded bool) (*model.Reservation, error) {
	r, err := a.update(ctx, id, func(r *model.Reservation, _ time.Time) error {
		if r.PaymentStatus == model.PaymentSucceeded {
			return model.ErrPaymentAlreadyCompleted
		}
		if !r.Status.Active() {
			return fmt.Errorf("%w: cannot record payment for reservation with status %s", model.ErrInvalidStateTransition, r.Status)
		}
		r.PaymentStatus = model.PaymentFailed
		if succeeded {
			r.PaymentStatus = model.PaymentSucceeded
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info().Str("reservation_id", id).Str("payment_status", string(r.PaymentStatus)).Msg("payment recorded")
	a.notify(events.PaymentRecorded, r)
	return r, nil
}

// GetReservation returns a single reservation.
func (a *Arbiter) GetReservation(ctx context.Context, id string) (*model.Reservation, error) {
	return a.store.GetReservation(ctx, id)
}

// ListReservations returns reservations matching filter.
func (a *Arbiter) ListReservations(ctx context.Context, filter model.ReservationFilter) ([]model.Reservation, error) {
	return a.store.ListReservations(ctx, filter)
}

// update applies fn to a fresh copy of the reservation and commits it with a version check, retrying on contention.
func (a *Arbiter) update(ctx context.Context, id string, fn func(r *model.Reservation, now time.Time) error) (*model.Reservation, error) {
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		r, err := a.store.GetReservation(ctx, id)
		if err != nil {
			return nil, err
		}
		now := a.now()
		expected := r.Version
		if err := fn(r, now); err != nil {
			return nil, err
		}
		r.UpdatedAt = now

		err = a.store.UpdateReservation(ctx, r, expected)
		if err == nil {
			return r, nil
		}
		if !errors.Is(err, model.ErrConcurrentModification) {
			return nil, err
		}
		metrics.IncWriteConflict()
		a.logger.Debug().Str("reservation_id", id).Int("attempt", attempt).Msg("reservation update lost race, retrying")
	}
	return nil, fmt.Errorf("update reservation %s: %w", id, model.ErrConcurrentModification)
}

func transition(r *model.Reservation, to model.Status) error {
	if !model.CanTransition(r.Status, to) {
		return fmt.Errorf("%w: %s -> %s", model.ErrInvalidStateTransition, r.Status, to)
	}
	r.Status = to
	return nil
}

// notify publishes after the write committed, off the caller's goroutine.
func (a *Arbiter) notify(eventType string, r *model.Reservation) {
	if a.publisher == nil {
		return
	}
	evt, err := events.NewEvent(eventType, events.ReservationPayload{
		ReservationID: r.ID,
		ResourceID:    r.ResourceID,
		RequesterID:   r.RequesterID,
		Status:        string(r.Status),
		PaymentStatus: string(r.PaymentStatus),
		TotalPrice:    r.TotalPrice,
		Start:         r.Start,
		End:           r.End,
	})
	if err != nil {
		a.logger.Error().Err(err).Str("event", eventType).Msg("encode event")
		return
	}
	go a.publisher.Publish(evt)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidInterval):
		return "invalid_interval"
	case errors.Is(err, model.ErrResourceNotFound):
		return "resource_not_found"
	case errors.Is(err, model.ErrNotApproved):
		return "not_approved"
	case errors.Is(err, model.ErrDisabled):
		return "disabled"
	case errors.Is(err, model.ErrOutOfWindow):
		return "out_of_window"
	case errors.Is(err, model.ErrScheduleMismatch):
		return "schedule_mismatch"
	case errors.Is(err, model.ErrSlotConflict):
		return "slot_conflict"
	default:
		return "error"
	}
}
