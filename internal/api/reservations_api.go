package api

import (
	"net/http"
	"time"

	"spotshare/internal/booking"
	"spotshare/internal/metrics"
	"spotshare/internal/model"
)

// CreateReservationRequest is the body of POST /api/v1/reservations.
type CreateReservationRequest struct {
	ResourceID  string    `json:"resource_id" validate:"required"`
	RequesterID string    `json:"requester_id" validate:"required"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required"`
	VehicleReg  string    `json:"vehicle_reg,omitempty" validate:"max=16"`
}

// CancelRequest is the body of POST /api/v1/reservations/{id}/cancel.
type CancelRequest struct {
	RequesterID string `json:"requester_id" validate:"required"`
}

// CompleteRequest is the body of POST /api/v1/reservations/{id}/complete.
type CompleteRequest struct {
	RequesterID string `json:"requester_id" validate:"required"`
	Rating      int    `json:"rating" validate:"required,min=1,max=5"`
	Comment     string `json:"comment,omitempty" validate:"max=2000"`
}

// PaymentRequest is the body of POST /api/v1/reservations/{id}/payment.
type PaymentRequest struct {
	Succeeded *bool `json:"succeeded" validate:"required"`
}

// handleCreateReservation requests a reservation on a spot.
// POST /api/v1/reservations
func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_create")

	var req CreateReservationRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resv, err := s.arbiter.RequestReservation(r.Context(), booking.ReservationRequest{
		ResourceID:  req.ResourceID,
		RequesterID: req.RequesterID,
		Start:       req.Start,
		End:         req.End,
		VehicleReg:  req.VehicleReg,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resv)
}

// handleListReservations filters reservations by spot, requester or status.
// GET /api/v1/reservations?resource_id=&requester_id=&status=
func (s *HTTPServer) handleListReservations(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_list")

	q := r.URL.Query()
	filter := model.ReservationFilter{
		ResourceID:  q.Get("resource_id"),
		RequesterID: q.Get("requester_id"),
		Status:      model.Status(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	list, err := s.arbiter.ListReservations(r.Context(), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": list})
}

// handleGetReservation returns one reservation.
// GET /api/v1/reservations/{id}
func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_get")

	resv, err := s.arbiter.GetReservation(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resv)
}

// handleDecideReservation records the owner's decision on a pending reservation.
// POST /api/v1/reservations/{id}/approve, POST /api/v1/reservations/{id}/reject
func (s *HTTPServer) handleDecideReservation(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		var (
			resv *model.Reservation
			err  error
		)
		if approve {
			metrics.IncHTTP("reservations_approve")
			resv, err = s.arbiter.ApproveReservation(r.Context(), id)
		} else {
			metrics.IncHTTP("reservations_reject")
			resv, err = s.arbiter.RejectReservation(r.Context(), id)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resv)
	}
}

// handleCancelReservation cancels a reservation on behalf of its requester.
// POST /api/v1/reservations/{id}/cancel
func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_cancel")

	var req CancelRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resv, err := s.arbiter.CancelReservation(r.Context(), r.PathValue("id"), req.RequesterID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resv)
}

// handleCompleteReservation closes a finished reservation with a review.
// POST /api/v1/reservations/{id}/complete
func (s *HTTPServer) handleCompleteReservation(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_complete")

	var req CompleteRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resv, review, err := s.arbiter.CompleteReservation(r.Context(), r.PathValue("id"), req.RequesterID, req.Rating, req.Comment)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservation": resv, "review": review})
}

// handlePayment records the payment collaborator's outcome.
// POST /api/v1/reservations/{id}/payment
func (s *HTTPServer) handlePayment(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("reservations_payment")

	var req PaymentRequest
	if err := s.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resv, err := s.arbiter.RecordPayment(r.Context(), r.PathValue("id"), *req.Succeeded)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resv)
}
