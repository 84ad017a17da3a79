package model

import (
	"errors"

	"spotshare/internal/schedule"
)

// Validation errors.
var (
	ErrInvalidInterval = errors.New("invalid interval: start must be before end")
	ErrInvalidSchedule = schedule.ErrInvalidSchedule
	ErrInvalidResource = errors.New("invalid resource")
	ErrInvalidReview   = errors.New("invalid review: rating must be between 1 and 5")
)

// Lookup errors.
var (
	ErrResourceNotFound    = errors.New("resource not found")
	ErrReservationNotFound = errors.New("reservation not found")
)

// Business rule errors.
var (
	ErrNotApproved             = errors.New("resource is not approved")
	ErrDisabled                = errors.New("resource is disabled by owner")
	ErrOutOfWindow             = errors.New("resource is outside its active date range")
	ErrScheduleMismatch        = errors.New("interval does not fit resource open hours")
	ErrSlotConflict            = errors.New("interval overlaps an existing reservation")
	ErrInvalidStateTransition  = errors.New("invalid status transition")
	ErrTooLateToCancel         = errors.New("reservation has already started")
	ErrTooEarlyToComplete      = errors.New("reservation has not ended yet")
	ErrNotOwner                = errors.New("caller does not own this record")
	ErrPaymentAlreadyCompleted = errors.New("payment already completed")
)

// ErrConcurrentModification is returned by stores when a conditional write loses a race.
var ErrConcurrentModification = errors.New("concurrent modification")

// ErrGeocodeUnavailable wraps any address resolution failure.
var ErrGeocodeUnavailable = errors.New("geocoding unavailable")
