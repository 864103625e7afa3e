package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEvent records one inbound provider notification. It is written
// before processing begins so that failures remain auditable.
type WebhookEvent struct {
	ID          uuid.UUID         `json:"id"`
	Provider    ProviderType      `json:"provider"`
	PaymentID   *uuid.UUID        `json:"payment_id,omitempty"`
	Payload     []byte            `json:"payload"`
	Headers     map[string]string `json:"headers"`
	RemoteAddr  string            `json:"remote_addr"`
	Processed   bool              `json:"processed"`
	Error       *string           `json:"error,omitempty"`
	ReceivedAt  time.Time         `json:"received_at"`
	ProcessedAt *time.Time        `json:"processed_at,omitempty"`

	// Params holds the payload decoded into flat key/value form. Derived
	// from Payload at ingestion, not persisted separately.
	Params map[string]string `json:"-"`
}

// Param returns a decoded payload field, or "" when absent.
func (e *WebhookEvent) Param(key string) string {
	if e.Params == nil {
		return ""
	}
	return e.Params[key]
}

// HasParam reports whether the decoded payload carries key.
func (e *WebhookEvent) HasParam(key string) bool {
	_, ok := e.Params[key]
	return ok
}
