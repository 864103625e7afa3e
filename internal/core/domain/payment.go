package domain

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus is the canonical payment state, independent of any
// provider's native status vocabulary.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// transitions is the canonical status state machine.
var transitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusCompleted:  {PaymentStatusRefunded},
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s == next {
		return false
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s admits no further transition other than the
// completed -> refunded edge.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusCancelled || s == PaymentStatusRefunded
}

// PaymentOrder is the transient input to gateway initiation. It is built
// from order data and never persisted as-is.
type PaymentOrder struct {
	OrderID       uuid.UUID
	OrderNumber   string
	Amount        float64 // major currency units; adapters convert as needed
	Currency      string
	Description   string
	CustomerEmail string
	CustomerPhone string
	ReturnURL     string
	CancelURL     string
}

// HistoryEntry is one audit record appended to a payment's provider-response
// history (refunds, deposits, reversals, binding charges).
type HistoryEntry struct {
	Operation string    `json:"operation"`
	Amount    float64   `json:"amount,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// PaymentRecord is the persisted state of one payment attempt.
type PaymentRecord struct {
	ID             uuid.UUID      `json:"id"`
	OrderID        uuid.UUID      `json:"order_id"`
	GatewayID      uuid.UUID      `json:"gateway_id"`
	Provider       ProviderType   `json:"provider"`
	ProviderTxnID  *string        `json:"provider_txn_id,omitempty"` // nil until the provider confirms
	Amount         float64        `json:"amount"`
	Currency       string         `json:"currency"`
	Status         PaymentStatus  `json:"status"`
	IdempotencyKey string         `json:"idempotency_key"`
	Attempts       int            `json:"attempts"`
	History        []HistoryEntry `json:"history,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	FailedAt       *time.Time     `json:"failed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// AppendHistory adds an audit entry.
func (p *PaymentRecord) AppendHistory(operation string, amount float64, detail string) {
	p.History = append(p.History, HistoryEntry{
		Operation: operation,
		Amount:    amount,
		Detail:    detail,
		At:        time.Now().UTC(),
	})
}

// RefundedTotal sums the refund entries in the audit history.
func (p *PaymentRecord) RefundedTotal() float64 {
	var total float64
	for _, h := range p.History {
		if h.Operation == "refund" {
			total += h.Amount
		}
	}
	return total
}

// MarshalHistory serializes the audit history for jsonb storage.
func (p *PaymentRecord) MarshalHistory() ([]byte, error) {
	if p.History == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p.History)
}

// BuildIdempotencyKey mints the unique token for one initiation attempt.
// Format: <provider>:<orderID>:<unix-nano>:<random>.
func BuildIdempotencyKey(provider ProviderType, orderID uuid.UUID) string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s:%s:%d:%s", provider, orderID, time.Now().UnixNano(), hex.EncodeToString(suffix))
}
