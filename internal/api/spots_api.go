package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"spotshare/internal/geo"
	"spotshare/internal/listing"
	"spotshare/internal/metrics"
	"spotshare/internal/model"
	"spotshare/internal/schedule"
)

// CreateSpotRequest is the body of POST /api/v1/spots.
type CreateSpotRequest struct {
	OwnerID      string               `json:"owner_id" validate:"required,max=128"`
	Address      string               `json:"address" validate:"required_without=Location,max=512"`
	Location     *geo.Point           `json:"location,omitempty"`
	PricePerHour int64                `json:"price_per_hour" validate:"gte=0"`
	ActiveFrom   *time.Time           `json:"active_from,omitempty"`
	ActiveUntil  *time.Time           `json:"active_until,omitempty"`
	Schedule     []schedule.EntrySpec `json:"schedule" validate:"dive"`
}

// AvailabilityToggleRequest is the body of POST /api/v1/spots/{id}/availability.
type AvailabilityToggleRequest struct {
	OwnerID   string `json:"owner_id" validate:"required"`
	Available *bool  `json:"available" validate:"required"`
}

// ScheduleRequest is the body of POST /api/v1/spots/{id}/schedule.
type ScheduleRequest struct {
	OwnerID  string               `json:"owner_id" validate:"required"`
	Schedule []schedule.EntrySpec `json:"schedule" validate:"dive"`
}

// AvailableSpot is one discovery result.
type AvailableSpot struct {
	model.Resource
	DistanceKm float64 `json:"distance_km"`
}

// handleCreateSpot lists a new spot in pending status.
// POST /api/v1/spots
func (s *HTTPServer) handleCreateSpot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("spots_create")

	var req CreateSpotRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	weekly, err := schedule.FromSpecs(req.Schedule)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	spot, err := s.listing.CreateResource(r.Context(), listing.NewResource{
		OwnerID:      req.OwnerID,
		Address:      req.Address,
		Location:     req.Location,
		Schedule:     weekly,
		PricePerHour: req.PricePerHour,
		ActiveFrom:   req.ActiveFrom,
		ActiveUntil:  req.ActiveUntil,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, spot)
}

// handleGetSpot returns one spot.
// GET /api/v1/spots/{id}
func (s *HTTPServer) handleGetSpot(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("spots_get")

	spot, err := s.listing.GetResource(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spot)
}

// handleModerateSpot approves or rejects a listing.
// POST /api/v1/spots/{id}/approve, POST /api/v1/spots/{id}/reject
func (s *HTTPServer) handleModerateSpot(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var (
			spot *model.Resource
			err  error
		)
		if approve {
			metrics.IncHTTP("spots_approve")
			spot, err = s.listing.ApproveResource(r.Context(), id)
		} else {
			metrics.IncHTTP("spots_reject")
			spot, err = s.listing.RejectResource(r.Context(), id)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, spot)
	}
}

// handleSpotAvailability flips the owner's availability flag.
// POST /api/v1/spots/{id}/availability
func (s *HTTPServer) handleSpotAvailability(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("spots_availability")

	var req AvailabilityToggleRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spot, err := s.listing.SetAvailability(r.Context(), r.PathValue("id"), req.OwnerID, *req.Available)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spot)
}

// handleSpotSchedule replaces the weekly open hours.
// POST /api/v1/spots/{id}/schedule
func (s *HTTPServer) handleSpotSchedule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("spots_schedule")

	var req ScheduleRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	weekly, err := schedule.FromSpecs(req.Schedule)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spot, err := s.listing.UpdateSchedule(r.Context(), r.PathValue("id"), req.OwnerID, weekly)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, spot)
}

// handleSpotReviews lists reviews left on a spot.
// GET /api/v1/spots/{id}/reviews
func (s *HTTPServer) handleSpotReviews(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("spots_reviews")

	reviews, err := s.listing.ListReviews(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": reviews})
}

// handleAvailableSpots returns spots near a point that accept the requested range.
// GET /api/v1/spots/available?lat=&lng=&radius_km=&start=&end=
func (s *HTTPServer) handleAvailableSpots(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("spots_available")

	center, radius, start, end, err := parseDiscoveryQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	spots, err := s.arbiter.CollectAvailable(r.Context(), center, radius, start, end)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]AvailableSpot, 0, len(spots))
	for _, spot := range spots {
		out = append(out, AvailableSpot{Resource: spot, DistanceKm: geo.DistanceKm(center, spot.Point)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"spots": out})
}

func parseDiscoveryQuery(r *http.Request) (center geo.Point, radius float64, start, end time.Time, err error) {
	q := r.URL.Query()

	parseFloat := func(name string) (float64, error) {
		raw := q.Get(name)
		if raw == "" {
			return 0, fmt.Errorf("%s is required", name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("invalid %s", name)
		}
		return v, nil
	}
	parseTime := func(name string) (time.Time, error) {
		raw := q.Get(name)
		if raw == "" {
			return time.Time{}, fmt.Errorf("%s is required", name)
		}
		v, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid %s format; expected RFC3339", name)
		}
		return v, nil
	}

	if center.Lat, err = parseFloat("lat"); err != nil {
		return
	}
	if center.Lng, err = parseFloat("lng"); err != nil {
		return
	}
	if !center.Valid() {
		err = fmt.Errorf("lat/lng out of range")
		return
	}
	if radius, err = parseFloat("radius_km"); err != nil {
		return
	}
	if start, err = parseTime("start"); err != nil {
		return
	}
	end, err = parseTime("end")
	return
}
