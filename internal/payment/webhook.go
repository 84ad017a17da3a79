// Package payment forwards approved reservations to the external payment collaborator.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"spotshare/internal/events"
)

// ChargeRequest is the body posted to the payment webhook.
type ChargeRequest struct {
	ReservationID string    `json:"reservation_id"`
	ResourceID    string    `json:"resource_id"`
	RequesterID   string    `json:"requester_id"`
	Amount        int64     `json:"amount"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
}

// WebhookClient posts charge requests to a configured URL.
type WebhookClient struct {
	url        string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewWebhookClient constructs a client for url.
func NewWebhookClient(url, apiKey string, logger zerolog.Logger) *WebhookClient {
	return &WebhookClient{
		url:        url,
		apiKey:     apiKey,
		timeout:    10 * time.Second,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With().Str("component", "payment").Logger(),
	}
}

// Charge posts req to the webhook. Any non-2xx answer is an error.
func (c *WebhookClient) Charge(ctx context.Context, req ChargeRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("payment webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("payment webhook: http %d", resp.StatusCode)
	}
	return nil
}

// HandleApproved is an events.EventHandler for reservation.approved.
func (c *WebhookClient) HandleApproved(evt events.Event) error {
	var p events.ReservationPayload
	if err := evt.Decode(&p); err != nil {
		return fmt.Errorf("decode %s: %w", evt.Type, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	err := c.Charge(ctx, ChargeRequest{
		ReservationID: p.ReservationID,
		ResourceID:    p.ResourceID,
		RequesterID:   p.RequesterID,
		Amount:        p.TotalPrice,
		Start:         p.Start,
		End:           p.End,
	})
	if err != nil {
		return err
	}
	c.logger.Info().Str("reservation_id", p.ReservationID).Int64("amount", p.TotalPrice).Msg("charge requested")
	return nil
}

// Subscribe wires the client to approvals on bus.
func (c *WebhookClient) Subscribe(bus *events.EventBus) {
	bus.Subscribe(events.ReservationApproved, c.HandleApproved)
}
