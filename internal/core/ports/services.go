package ports

import (
	"context"
	"time"

	"paygate/internal/core/domain"

	"github.com/google/uuid"
)

// CredentialCipher performs envelope encryption of individual secret fields.
type CredentialCipher interface {
	// Encrypt seals plaintext into a salt:iv:tag:ciphertext hex envelope.
	// Input already matching the envelope shape is returned unchanged.
	Encrypt(plaintext string) (string, error)
	// Decrypt opens an envelope. Tampered or malformed input fails with a
	// decryption error.
	Decrypt(envelope string) (string, error)
	// IsEncrypted reports whether s has the envelope shape.
	IsEncrypted(s string) bool
}

// GatewayConfigStore is the trust boundary around provider configurations:
// secrets are encrypted on write and masked on read-out; Resolve* return
// decrypted configs for internal use only.
type GatewayConfigStore interface {
	List(ctx context.Context, filter GatewayConfigFilter) ([]domain.GatewayConfig, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.GatewayConfig, error)
	Create(ctx context.Context, cfg *domain.GatewayConfig) (*domain.GatewayConfig, error)
	Update(ctx context.Context, cfg *domain.GatewayConfig) (*domain.GatewayConfig, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// Resolve finds the first enabled config for (type, bank) by display
	// position and returns it with secrets decrypted.
	Resolve(ctx context.Context, t domain.ProviderType, bank domain.BankCode) (*domain.GatewayConfig, error)
	// ResolveByID returns one config with secrets decrypted.
	ResolveByID(ctx context.Context, id uuid.UUID) (*domain.GatewayConfig, error)
}

// InitiateParams is the input to payment initiation.
type InitiateParams struct {
	OrderID      uuid.UUID
	GatewayID    *uuid.UUID
	GatewayType  domain.ProviderType
	Bank         domain.BankCode
	ReturnURL    string
	CancelURL    string
	PreAuthorize bool
	// ActorID is the authenticated caller, when there is one; it must own
	// the order.
	ActorID *uuid.UUID
}

// InitiationOutcome couples the persisted payment with the gateway's
// redirect/form instruction.
type InitiationOutcome struct {
	Payment *domain.PaymentRecord
	Result  *InitiationResult
}

// PaymentOrchestrator drives the payment lifecycle and owns the canonical
// status state machine.
type PaymentOrchestrator interface {
	InitiatePayment(ctx context.Context, params InitiateParams) (*InitiationOutcome, error)
	Refund(ctx context.Context, paymentID uuid.UUID, amount *float64) (*domain.PaymentRecord, error)
	Reverse(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentRecord, error)
	Deposit(ctx context.Context, paymentID uuid.UUID, amount *float64) (*domain.PaymentRecord, error)
	ListBindings(ctx context.Context, gatewayID uuid.UUID, clientID string) ([]Binding, error)
	Unbind(ctx context.Context, gatewayID uuid.UUID, bindingID string) error
	PayWithBinding(ctx context.Context, paymentID uuid.UUID, bindingID, cvc string) (*domain.PaymentRecord, error)
}

// InboundNotification is one raw provider callback as received.
type InboundNotification struct {
	Provider    domain.ProviderType
	Body        []byte
	ContentType string
	Headers     map[string]string
	RemoteAddr  string
}

// Acknowledgement is the processing outcome the endpoint renders in the
// provider-mandated shape.
type Acknowledgement struct {
	Success bool
	Status  domain.PaymentStatus
}

// WebhookProcessor handles inbound notifications end to end.
type WebhookProcessor interface {
	Process(ctx context.Context, n InboundNotification) (*Acknowledgement, error)
}

// WebhookDedup is the replay fast path: Seen reports whether an identical
// payload digest was already acknowledged within ttl.
type WebhookDedup interface {
	Seen(ctx context.Context, digest string, ttl time.Duration) (bool, error)
}

// TokenService issues and validates admin tokens for the authorization gate.
type TokenService interface {
	Generate(subject uuid.UUID) (string, time.Time, error)
	Validate(token string) (uuid.UUID, error)
}
