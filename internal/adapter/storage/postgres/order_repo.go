package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"paygate/internal/core/domain"
	"paygate/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderRepo implements ports.OrderRepository against the externally owned
// orders table. This system only reads order data and writes back the
// aggregate payment status.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

const orderColumns = `id, number, total, currency, description, customer_email, customer_phone, user_id, payment_status`

// GetByID fetches an order by its UUID.
func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*ports.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return r.getOne(ctx, query, id)
}

// GetByNumber fetches an order by its human-readable number.
func (r *OrderRepo) GetByNumber(ctx context.Context, number string) (*ports.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE number = $1`
	return r.getOne(ctx, query, number)
}

// SetPaymentStatus propagates the aggregate payment status to the order.
func (r *OrderRepo) SetPaymentStatus(ctx context.Context, orderID uuid.UUID, status domain.PaymentStatus) error {
	query := `UPDATE orders SET payment_status = $1, updated_at = $2 WHERE id = $3`
	_, err := r.pool.Exec(ctx, query, status, time.Now().UTC(), orderID)
	if err != nil {
		return fmt.Errorf("set order payment status: %w", err)
	}
	return nil
}

func (r *OrderRepo) getOne(ctx context.Context, query string, args ...any) (*ports.Order, error) {
	o := &ports.Order{}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&o.ID, &o.Number, &o.Total, &o.Currency, &o.Description,
		&o.CustomerEmail, &o.CustomerPhone, &o.UserID, &o.PaymentStatus,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}
