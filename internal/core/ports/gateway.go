package ports

import (
	"context"

	"paygate/internal/core/domain"
)

// InitiationResult is what a gateway returns from payment initiation:
// either a hosted-page URL to redirect to, or a form the caller's browser
// must POST to FormAction.
type InitiationResult struct {
	ProviderTxnID string            `json:"provider_txn_id,omitempty"`
	RedirectURL   string            `json:"redirect_url,omitempty"`
	FormAction    string            `json:"form_action,omitempty"`
	FormMethod    string            `json:"form_method"`
	FormFields    map[string]string `json:"form_fields,omitempty"`
}

// VerificationResult is the outcome of inbound-notification verification.
type VerificationResult struct {
	OK       bool
	Precheck bool   // informational notification; payment stays pending
	Reason   string // populated on rejection
}

// Binding is a tokenized stored payment method.
type Binding struct {
	ID         string `json:"binding_id"`
	MaskedPAN  string `json:"masked_pan"`
	ExpiryDate string `json:"expiry_date"`
}

// Gateway is the capability contract every provider adapter implements.
// Optional capabilities (refund, reversal, deposit, pre-authorization,
// card bindings) are separate interfaces; callers must capability-probe
// with a type assertion before use.
type Gateway interface {
	Type() domain.ProviderType
	// InitiatePayment starts a payment for the given order.
	InitiatePayment(ctx context.Context, order *domain.PaymentOrder) (*InitiationResult, error)
	// VerifyWebhook checks an inbound notification's authenticity as far as
	// the provider's protocol allows.
	VerifyWebhook(ctx context.Context, event *domain.WebhookEvent) (*VerificationResult, error)
	// ProcessWebhook resolves the canonical status for a verified
	// notification. txnID is the provider transaction id known to the
	// payment record; adapters that reconcile through a status query use it
	// when the notification itself carries none.
	ProcessWebhook(ctx context.Context, event *domain.WebhookEvent, txnID string) (domain.PaymentStatus, error)
	// GetPaymentStatus queries the provider's authenticated status endpoint.
	GetPaymentStatus(ctx context.Context, txnID string) (domain.PaymentStatus, error)
}

// Refunder is the optional refund capability (full or repeated partial).
type Refunder interface {
	Refund(ctx context.Context, txnID string, amount float64, currency string) error
}

// Reverser is the optional reversal capability for not-yet-captured payments.
type Reverser interface {
	Reverse(ctx context.Context, txnID string) error
}

// Depositor is the optional capture capability for pre-authorized payments.
type Depositor interface {
	Deposit(ctx context.Context, txnID string, amount float64, currency string) error
}

// PreAuthRegistrar is the optional two-stage initiation capability.
type PreAuthRegistrar interface {
	RegisterPreAuthorized(ctx context.Context, order *domain.PaymentOrder) (*InitiationResult, error)
}

// CardBinder is the optional card-binding capability.
type CardBinder interface {
	ListBindings(ctx context.Context, clientID string) ([]Binding, error)
	Unbind(ctx context.Context, bindingID string) error
	// PayWithBinding charges a registered payment with a stored card.
	PayWithBinding(ctx context.Context, txnID, bindingID, cvc string) (domain.PaymentStatus, error)
}

// GatewayFactory builds adapters from decrypted configurations and knows how
// each provider labels identifiers in its notifications.
type GatewayFactory interface {
	// Build validates cfg for its provider type and constructs the adapter.
	// Invalid configurations fail here, not at first use.
	Build(cfg *domain.GatewayConfig) (Gateway, error)
	// Identifiers extracts the provider transaction id and order number a
	// notification carries (either may be empty).
	Identifiers(t domain.ProviderType, event *domain.WebhookEvent) (txnID, orderNumber string)
}
