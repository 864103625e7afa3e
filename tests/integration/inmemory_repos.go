package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"paygate/internal/core/domain"
	"paygate/internal/core/ports"

	"github.com/google/uuid"
)

// --- In-Memory Gateway Config Repo ---

type inMemoryConfigRepo struct {
	mu      sync.RWMutex
	configs map[uuid.UUID]*domain.GatewayConfig
}

func newInMemoryConfigRepo() *inMemoryConfigRepo {
	return &inMemoryConfigRepo{configs: make(map[uuid.UUID]*domain.GatewayConfig)}
}

func (r *inMemoryConfigRepo) Create(ctx context.Context, cfg *domain.GatewayConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cfg
	r.configs[cfg.ID] = &cp
	return nil
}

func (r *inMemoryConfigRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.GatewayConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[id]
	if !ok {
		return nil, nil
	}
	cp := *cfg
	return &cp, nil
}

func (r *inMemoryConfigRepo) GetByTypeAndBank(ctx context.Context, t domain.ProviderType, bank domain.BankCode) (*domain.GatewayConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, cfg := range r.configs {
		if cfg.Type == t && cfg.Bank == bank {
			cp := *cfg
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryConfigRepo) List(ctx context.Context, filter ports.GatewayConfigFilter) ([]domain.GatewayConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.GatewayConfig
	for _, cfg := range r.configs {
		if filter.Type != nil && cfg.Type != *filter.Type {
			continue
		}
		if filter.Enabled != nil && cfg.Enabled != *filter.Enabled {
			continue
		}
		if filter.TestMode != nil && cfg.TestMode != *filter.TestMode {
			continue
		}
		result = append(result, *cfg)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position < result[j].Position
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *inMemoryConfigRepo) Update(ctx context.Context, cfg *domain.GatewayConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[cfg.ID]; !ok {
		return fmt.Errorf("gateway config not found")
	}
	cp := *cfg
	r.configs[cfg.ID] = &cp
	return nil
}

func (r *inMemoryConfigRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.configs, id)
	return nil
}

// --- In-Memory Payment Repo ---

type inMemoryPaymentRepo struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*domain.PaymentRecord
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{payments: make(map[uuid.UUID]*domain.PaymentRecord)}
}

func (r *inMemoryPaymentRepo) Create(ctx context.Context, record *domain.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.IdempotencyKey == record.IdempotencyKey {
			return fmt.Errorf("duplicate idempotency key")
		}
	}
	cp := *record
	r.payments[record.ID] = &cp
	return nil
}

func (r *inMemoryPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryPaymentRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.IdempotencyKey == key {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPaymentRepo) GetByProviderTxnID(ctx context.Context, provider domain.ProviderType, txnID string) (*domain.PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.Provider == provider && p.ProviderTxnID != nil && *p.ProviderTxnID == txnID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPaymentRepo) GetLatestByOrder(ctx context.Context, provider domain.ProviderType, orderID uuid.UUID) (*domain.PaymentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *domain.PaymentRecord
	for _, p := range r.payments {
		if p.Provider != provider || p.OrderID != orderID {
			continue
		}
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) {
			latest = p
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *inMemoryPaymentRepo) Update(ctx context.Context, record *domain.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[record.ID]; !ok {
		return fmt.Errorf("payment not found")
	}
	cp := *record
	r.payments[record.ID] = &cp
	return nil
}

func (r *inMemoryPaymentRepo) CountByGateway(ctx context.Context, gatewayID uuid.UUID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, p := range r.payments {
		if p.GatewayID == gatewayID {
			count++
		}
	}
	return count, nil
}

// --- In-Memory Webhook Event Repo ---

type inMemoryEventRepo struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*domain.WebhookEvent
	// processedCalls counts MarkProcessed invocations per event, to assert
	// the exactly-once contract.
	processedCalls map[uuid.UUID]int
}

func newInMemoryEventRepo() *inMemoryEventRepo {
	return &inMemoryEventRepo{
		events:         make(map[uuid.UUID]*domain.WebhookEvent),
		processedCalls: make(map[uuid.UUID]int),
	}
}

func (r *inMemoryEventRepo) Create(ctx context.Context, event *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *event
	r.events[event.ID] = &cp
	return nil
}

func (r *inMemoryEventRepo) MarkProcessed(ctx context.Context, id uuid.UUID, procErr *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return fmt.Errorf("webhook event not found")
	}
	now := time.Now().UTC()
	e.Processed = true
	e.Error = procErr
	e.ProcessedAt = &now
	r.processedCalls[id]++
	return nil
}

func (r *inMemoryEventRepo) all() []domain.WebhookEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.WebhookEvent, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, *e)
	}
	return out
}

// --- In-Memory Order Repo ---

type inMemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*ports.Order
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{orders: make(map[uuid.UUID]*ports.Order)}
}

func (r *inMemoryOrderRepo) seed(o *ports.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.orders[o.ID] = &cp
}

func (r *inMemoryOrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*ports.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *inMemoryOrderRepo) GetByNumber(ctx context.Context, number string) (*ports.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, o := range r.orders {
		if o.Number == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryOrderRepo) SetPaymentStatus(ctx context.Context, orderID uuid.UUID, status domain.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return fmt.Errorf("order not found")
	}
	o.PaymentStatus = status
	return nil
}
