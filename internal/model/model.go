// Package model defines the resources, reservations and reviews shared across the engine.
package model

import (
	"time"

	"spotshare/internal/geo"
	"spotshare/internal/schedule"
)

// Resource is a bookable parking spot.
type Resource struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"owner_id"`
	Address        string          `json:"address"`
	Point          geo.Point       `json:"location"`
	Schedule       schedule.Weekly `json:"schedule"`
	Status         Status          `json:"status"`
	Available      bool            `json:"available"`
	ActiveFrom     *time.Time      `json:"active_from,omitempty"`
	ActiveUntil    *time.Time      `json:"active_until,omitempty"`
	PricePerHour   int64           `json:"price_per_hour"`
	ReservationIDs []string        `json:"-"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Location implements geo.Located.
func (r Resource) Location() geo.Point {
	return r.Point
}

// Clone returns a deep copy safe to hand out of a store.
func (r Resource) Clone() Resource {
	out := r
	out.ReservationIDs = append([]string(nil), r.ReservationIDs...)
	if r.ActiveFrom != nil {
		v := *r.ActiveFrom
		out.ActiveFrom = &v
	}
	if r.ActiveUntil != nil {
		v := *r.ActiveUntil
		out.ActiveUntil = &v
	}
	return out
}

// Reservation is a requester's claim on [Start, End) of a resource.
type Reservation struct {
	ID            string        `json:"id"`
	ResourceID    string        `json:"resource_id"`
	RequesterID   string        `json:"requester_id"`
	Start         time.Time     `json:"start"`
	End           time.Time     `json:"end"`
	Status        Status        `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	TotalPrice    int64         `json:"total_price"`
	VehicleReg    string        `json:"vehicle_reg,omitempty"`
	Version       int64         `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Duration returns the reserved length.
func (r Reservation) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Review is left by the requester when completing a reservation.
type Review struct {
	ID            string    `json:"id"`
	ReservationID string    `json:"reservation_id"`
	ResourceID    string    `json:"resource_id"`
	RequesterID   string    `json:"requester_id"`
	Rating        int       `json:"rating"`
	Comment       string    `json:"comment,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ReservationFilter narrows reservation listings. Empty fields match everything.
type ReservationFilter struct {
	ResourceID  string
	RequesterID string
	Status      Status
}

// Match reports whether r satisfies the filter.
func (f ReservationFilter) Match(r Reservation) bool {
	if f.ResourceID != "" && r.ResourceID != f.ResourceID {
		return false
	}
	if f.RequesterID != "" && r.RequesterID != f.RequesterID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// TotalPrice charges pricePerHour for every started hour of d.
func TotalPrice(pricePerHour int64, d time.Duration) int64 {
	if d <= 0 || pricePerHour <= 0 {
		return 0
	}
	hours := int64(d / time.Hour)
	if d%time.Hour != 0 {
		hours++
	}
	return hours * pricePerHour
}
