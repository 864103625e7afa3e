package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"paygate/internal/core/domain"

	"github.com/google/uuid"
)

// WebhookEventRepo implements ports.WebhookEventRepository.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// Create inserts an inbound notification row.
func (r *WebhookEventRepo) Create(ctx context.Context, event *domain.WebhookEvent) error {
	headers, err := json.Marshal(event.Headers)
	if err != nil {
		return fmt.Errorf("marshal webhook headers: %w", err)
	}

	query := `INSERT INTO webhook_events (id, provider, payment_id, payload, headers, remote_addr, processed, error, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.pool.Exec(ctx, query,
		event.ID, event.Provider, event.PaymentID, event.Payload,
		headers, event.RemoteAddr, event.Processed, event.Error, event.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// MarkProcessed flips the processed flag, recording the processing error
// when there is one.
func (r *WebhookEventRepo) MarkProcessed(ctx context.Context, id uuid.UUID, procErr *string) error {
	query := `UPDATE webhook_events SET processed = TRUE, error = $1, processed_at = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, query, procErr, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}
