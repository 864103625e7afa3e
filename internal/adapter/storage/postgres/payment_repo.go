package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"paygate/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const paymentColumns = `id, order_id, gateway_id, provider, provider_txn_id, amount, currency, status, idempotency_key, attempts, history, completed_at, failed_at, created_at, updated_at`

// Create inserts a new payment record.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.PaymentRecord) error {
	history, err := p.MarshalHistory()
	if err != nil {
		return fmt.Errorf("marshal payment history: %w", err)
	}

	query := `INSERT INTO payments (id, order_id, gateway_id, provider, provider_txn_id, amount, currency, status, idempotency_key, attempts, history, completed_at, failed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = r.pool.Exec(ctx, query,
		p.ID, p.OrderID, p.GatewayID, p.Provider, p.ProviderTxnID,
		p.Amount, p.Currency, p.Status, p.IdempotencyKey, p.Attempts,
		history, p.CompletedAt, p.FailedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment by its UUID.
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByIdempotencyKey fetches a payment by its initiation token.
func (r *PaymentRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE idempotency_key = $1`
	return r.getOne(ctx, query, key)
}

// GetByProviderTxnID fetches a payment by the provider's transaction id.
func (r *PaymentRepo) GetByProviderTxnID(ctx context.Context, provider domain.ProviderType, txnID string) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE provider = $1 AND provider_txn_id = $2`
	return r.getOne(ctx, query, provider, txnID)
}

// GetLatestByOrder returns the provider's most recent payment for an order.
func (r *PaymentRepo) GetLatestByOrder(ctx context.Context, provider domain.ProviderType, orderID uuid.UUID) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
		WHERE provider = $1 AND order_id = $2
		ORDER BY created_at DESC LIMIT 1`
	return r.getOne(ctx, query, provider, orderID)
}

// Update replaces the mutable fields of a payment record.
func (r *PaymentRepo) Update(ctx context.Context, p *domain.PaymentRecord) error {
	history, err := p.MarshalHistory()
	if err != nil {
		return fmt.Errorf("marshal payment history: %w", err)
	}

	query := `UPDATE payments
		SET provider_txn_id=$1, status=$2, attempts=$3, history=$4, completed_at=$5, failed_at=$6, updated_at=$7
		WHERE id=$8`
	_, err = r.pool.Exec(ctx, query,
		p.ProviderTxnID, p.Status, p.Attempts, history,
		p.CompletedAt, p.FailedAt, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return nil
}

// CountByGateway reports how many payments reference a configuration.
func (r *PaymentRepo) CountByGateway(ctx context.Context, gatewayID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE gateway_id = $1`, gatewayID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count payments by gateway: %w", err)
	}
	return count, nil
}

func (r *PaymentRepo) getOne(ctx context.Context, query string, args ...any) (*domain.PaymentRecord, error) {
	p := &domain.PaymentRecord{}
	var history []byte
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&p.ID, &p.OrderID, &p.GatewayID, &p.Provider, &p.ProviderTxnID,
		&p.Amount, &p.Currency, &p.Status, &p.IdempotencyKey, &p.Attempts,
		&history, &p.CompletedAt, &p.FailedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &p.History); err != nil {
			return nil, fmt.Errorf("unmarshal payment history: %w", err)
		}
	}
	return p, nil
}
