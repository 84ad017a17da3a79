package model

import "slices"

// Status is the lifecycle state of a reservation or a resource listing.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// PaymentStatus tracks the payment collaborator's outcome.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

var reservationTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved: {StatusCancelled, StatusCompleted},
}

var resourceTransitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusRejected: {StatusApproved},
	StatusApproved: {StatusRejected},
}

// CanTransition reports whether a reservation may move from one status to another.
func CanTransition(from, to Status) bool {
	return slices.Contains(reservationTransitions[from], to)
}

// CanTransitionResource reports whether a resource listing may move between statuses.
func CanTransitionResource(from, to Status) bool {
	return slices.Contains(resourceTransitions[from], to)
}

// Active reports whether a reservation in this status blocks its time range.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(reservationTransitions[s]) == 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}
