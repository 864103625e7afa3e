package ports

import (
	"context"

	"paygate/internal/core/domain"

	"github.com/google/uuid"
)

// GatewayConfigFilter narrows gateway configuration listings.
type GatewayConfigFilter struct {
	Type     *domain.ProviderType
	Enabled  *bool
	TestMode *bool
}

// GatewayConfigRepository defines persistence for provider configurations.
// Rows are stored with secret fields already encrypted; the repository does
// not touch the cipher.
type GatewayConfigRepository interface {
	Create(ctx context.Context, cfg *domain.GatewayConfig) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.GatewayConfig, error)
	GetByTypeAndBank(ctx context.Context, t domain.ProviderType, bank domain.BankCode) (*domain.GatewayConfig, error)
	// List returns configs matching the filter ordered by display position.
	List(ctx context.Context, filter GatewayConfigFilter) ([]domain.GatewayConfig, error)
	Update(ctx context.Context, cfg *domain.GatewayConfig) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// PaymentRepository defines persistence for payment records.
type PaymentRepository interface {
	Create(ctx context.Context, record *domain.PaymentRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentRecord, error)
	GetByProviderTxnID(ctx context.Context, provider domain.ProviderType, txnID string) (*domain.PaymentRecord, error)
	// GetLatestByOrder returns the provider's most recent payment for an order.
	GetLatestByOrder(ctx context.Context, provider domain.ProviderType, orderID uuid.UUID) (*domain.PaymentRecord, error)
	Update(ctx context.Context, record *domain.PaymentRecord) error
	// CountByGateway reports how many payments reference a configuration.
	CountByGateway(ctx context.Context, gatewayID uuid.UUID) (int64, error)
}

// WebhookEventRepository defines persistence for inbound notifications.
type WebhookEventRepository interface {
	Create(ctx context.Context, event *domain.WebhookEvent) error
	// MarkProcessed flips the processed flag exactly once, recording the
	// processing error when there is one.
	MarkProcessed(ctx context.Context, id uuid.UUID, procErr *string) error
}

// Order is the slice of the external order aggregate this system consumes.
type Order struct {
	ID            uuid.UUID
	Number        string
	Total         float64
	Currency      string
	Description   string
	CustomerEmail string
	CustomerPhone string
	UserID        *uuid.UUID
	PaymentStatus domain.PaymentStatus
}

// OrderRepository is the read/propagate surface of the owning order domain.
type OrderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// SetPaymentStatus propagates the aggregate payment status to the order.
	SetPaymentStatus(ctx context.Context, orderID uuid.UUID, status domain.PaymentStatus) error
}
