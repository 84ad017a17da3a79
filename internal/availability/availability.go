// Package availability gates whether a resource accepts reservations at a given instant.
package availability

import (
	"time"

	"spotshare/internal/model"
)

// IsBookable checks the listing status, the owner's manual flag and the active date range, in that order.
func IsBookable(r model.Resource, at time.Time) error {
	if r.Status != model.StatusApproved {
		return model.ErrNotApproved
	}
	if !r.Available {
		return model.ErrDisabled
	}
	if r.ActiveFrom != nil && at.Before(*r.ActiveFrom) {
		return model.ErrOutOfWindow
	}
	if r.ActiveUntil != nil && at.After(*r.ActiveUntil) {
		return model.ErrOutOfWindow
	}
	return nil
}
