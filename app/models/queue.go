package models

import "encoding/json"

// WebhookMessage is the SQS envelope for a verified Stripe event.
type WebhookMessage struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"` // full stripe.Event JSON
}
