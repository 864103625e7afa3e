package dto

import (
	"paygate/internal/core/domain"
	"paygate/internal/core/ports"

	"github.com/google/uuid"
)

// InitiatePaymentRequest is the request body for payment initiation. Either
// GatewayID or GatewayType selects the provider; Bank narrows the choice for
// multi-bank providers.
type InitiatePaymentRequest struct {
	OrderID      uuid.UUID  `json:"order_id" binding:"required"`
	GatewayID    *uuid.UUID `json:"gateway_id,omitempty"`
	GatewayType  string     `json:"gateway_type,omitempty" binding:"omitempty,safe_id"`
	Bank         string     `json:"bank,omitempty" binding:"omitempty,safe_id"`
	ReturnURL    string     `json:"return_url,omitempty" binding:"omitempty,safe_url"`
	CancelURL    string     `json:"cancel_url,omitempty" binding:"omitempty,safe_url"`
	PreAuthorize bool       `json:"pre_authorize,omitempty"`
}

// ToParams converts the request into orchestrator input.
func (r *InitiatePaymentRequest) ToParams(actorID *uuid.UUID) ports.InitiateParams {
	return ports.InitiateParams{
		OrderID:      r.OrderID,
		GatewayID:    r.GatewayID,
		GatewayType:  domain.ProviderType(r.GatewayType),
		Bank:         domain.BankCode(r.Bank),
		ReturnURL:    r.ReturnURL,
		CancelURL:    r.CancelURL,
		PreAuthorize: r.PreAuthorize,
		ActorID:      actorID,
	}
}

// AmountRequest carries the optional amount for refund and deposit
// operations. A nil amount means the full remaining amount.
type AmountRequest struct {
	Amount *float64 `json:"amount,omitempty" binding:"omitempty,gt=0"`
}

// PayWithBindingRequest charges a registered payment with a stored card.
type PayWithBindingRequest struct {
	PaymentID uuid.UUID `json:"payment_id" binding:"required"`
	BindingID string    `json:"binding_id" binding:"required,max=64"`
	CVC       string    `json:"cvc,omitempty" binding:"omitempty,numeric,min=3,max=4"`
}

// GatewayConfigRequest is the request body for creating or updating a
// provider configuration. Config carries provider-specific settings
// including secrets, which are encrypted at rest and masked on read-out.
type GatewayConfigRequest struct {
	Type     string         `json:"type" binding:"required,safe_id"`
	Bank     string         `json:"bank,omitempty" binding:"omitempty,safe_id"`
	Name     string         `json:"name" binding:"required,min=1,max=100"`
	Enabled  bool           `json:"enabled"`
	TestMode bool           `json:"test_mode"`
	Position int            `json:"position" binding:"omitempty,gte=0"`
	Config   map[string]any `json:"config" binding:"required"`
}

// ToDomain converts the request into a domain config.
func (r *GatewayConfigRequest) ToDomain() *domain.GatewayConfig {
	return &domain.GatewayConfig{
		Type:     domain.ProviderType(r.Type),
		Bank:     domain.BankCode(r.Bank),
		Name:     r.Name,
		Enabled:  r.Enabled,
		TestMode: r.TestMode,
		Position: r.Position,
		Config:   r.Config,
	}
}

// PaymentResponse is the payment record as rendered to API callers.
type PaymentResponse struct {
	ID            uuid.UUID  `json:"id"`
	OrderID       uuid.UUID  `json:"order_id"`
	GatewayID     uuid.UUID  `json:"gateway_id"`
	Provider      string     `json:"provider"`
	ProviderTxnID *string    `json:"provider_txn_id,omitempty"`
	Amount        float64    `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	RefundedTotal float64    `json:"refunded_total"`
	CreatedAt     string     `json:"created_at"`
	CompletedAt   *string    `json:"completed_at,omitempty"`
}

// FromPayment maps a payment record to its API shape.
func FromPayment(p *domain.PaymentRecord) PaymentResponse {
	resp := PaymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		GatewayID:     p.GatewayID,
		Provider:      string(p.Provider),
		ProviderTxnID: p.ProviderTxnID,
		Amount:        p.Amount,
		Currency:      p.Currency,
		Status:        string(p.Status),
		RefundedTotal: p.RefundedTotal(),
		CreatedAt:     p.CreatedAt.Format(timeLayout),
	}
	if p.CompletedAt != nil {
		s := p.CompletedAt.Format(timeLayout)
		resp.CompletedAt = &s
	}
	return resp
}

// InitiationResponse couples the created payment with the redirect or form
// instruction the caller's browser must follow.
type InitiationResponse struct {
	Payment PaymentResponse         `json:"payment"`
	Result  *ports.InitiationResult `json:"result"`
}

const timeLayout = "2006-01-02T15:04:05Z07:00"
