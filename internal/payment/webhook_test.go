package payment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotshare/internal/events"
)

func TestApprovedEventPostsCharge(t *testing.T) {
	got := make(chan ChargeRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		var body ChargeRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	bus := events.NewEventBus()
	var handlerErr error
	bus.OnError(func(_ events.Event, err error) { handlerErr = err })
	NewWebhookClient(srv.URL, "secret", zerolog.Nop()).Subscribe(bus)

	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	evt, err := events.NewEvent(events.ReservationApproved, events.ReservationPayload{
		ReservationID: "r-1",
		ResourceID:    "spot-1",
		RequesterID:   "user-1",
		TotalPrice:    300,
		Start:         start,
		End:           start.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	bus.Publish(evt)

	require.NoError(t, handlerErr)
	select {
	case body := <-got:
		assert.Equal(t, "r-1", body.ReservationID)
		assert.Equal(t, int64(300), body.Amount)
		assert.True(t, body.Start.Equal(start))
	default:
		t.Fatal("webhook not called")
	}
}

func TestChargeFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewWebhookClient(srv.URL, "", zerolog.Nop())
	evt, err := events.NewEvent(events.ReservationApproved, events.ReservationPayload{ReservationID: "r-1"})
	require.NoError(t, err)
	assert.ErrorContains(t, c.HandleApproved(evt), "http 502")

	assert.Error(t, c.HandleApproved(events.Event{Type: events.ReservationApproved, Payload: []byte("{")}))
}
