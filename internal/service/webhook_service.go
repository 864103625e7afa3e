package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"paygate/internal/core/domain"
	"paygate/internal/core/ports"
	"paygate/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// webhookDedupTTL bounds the replay fast path window.
const webhookDedupTTL = 24 * time.Hour

// webhookService implements ports.WebhookProcessor. Every notification is
// persisted before any processing; a notification's claimed status is never
// trusted directly, the resolved adapter decides the canonical status.
type webhookService struct {
	payments ports.PaymentRepository
	events   ports.WebhookEventRepository
	orders   ports.OrderRepository
	configs  ports.GatewayConfigStore
	factory  ports.GatewayFactory
	dedup    ports.WebhookDedup // optional; nil disables the replay fast path
	log      zerolog.Logger
}

// NewWebhookService creates the inbound notification processor.
func NewWebhookService(
	payments ports.PaymentRepository,
	events ports.WebhookEventRepository,
	orders ports.OrderRepository,
	configs ports.GatewayConfigStore,
	factory ports.GatewayFactory,
	dedup ports.WebhookDedup,
	log zerolog.Logger,
) ports.WebhookProcessor {
	return &webhookService{
		payments: payments,
		events:   events,
		orders:   orders,
		configs:  configs,
		factory:  factory,
		dedup:    dedup,
		log:      log,
	}
}

// Process handles one raw provider notification end to end.
func (s *webhookService) Process(ctx context.Context, n ports.InboundNotification) (*ports.Acknowledgement, error) {
	if !n.Provider.Valid() {
		return nil, apperror.Validationf("unknown provider %q", n.Provider)
	}

	event := &domain.WebhookEvent{
		ID:         uuid.New(),
		Provider:   n.Provider,
		Payload:    n.Body,
		Headers:    n.Headers,
		RemoteAddr: n.RemoteAddr,
		ReceivedAt: time.Now().UTC(),
		Params:     parseNotificationBody(n.Body, n.ContentType),
	}

	record := s.resolvePayment(ctx, event)
	if record != nil {
		event.PaymentID = &record.ID
	}

	// The event row is written before processing so rejected or failing
	// notifications still leave an audit trail.
	if err := s.events.Create(ctx, event); err != nil {
		return nil, apperror.InternalError(err)
	}

	if record == nil {
		s.finish(ctx, event, strPtr("payment not found for notification"))
		return &ports.Acknowledgement{Success: false}, nil
	}

	// Exact replays are acknowledged without re-running verification, but
	// only once the payment is settled. A redelivery while the payment is
	// still in flight is the provider's retry loop after a transient failure
	// and must reach verification and the status query again.
	if s.dedup != nil && record.Status.IsTerminal() {
		digest := payloadDigest(n.Provider, n.Body)
		seen, err := s.dedup.Seen(ctx, digest, webhookDedupTTL)
		if err != nil {
			s.log.Warn().Err(err).Msg("webhook dedup store error, processing anyway")
		} else if seen {
			s.log.Info().Str("payment_id", record.ID.String()).Msg("duplicate notification acknowledged")
			s.finish(ctx, event, nil)
			return &ports.Acknowledgement{Success: true, Status: record.Status}, nil
		}
	}

	ack, procErr := s.process(ctx, event, record)
	s.finish(ctx, event, procErr)
	return ack, nil
}

// process runs verification and status resolution for a notification whose
// payment is known. It returns the acknowledgement plus the processing error
// to record on the event row.
func (s *webhookService) process(ctx context.Context, event *domain.WebhookEvent, record *domain.PaymentRecord) (*ports.Acknowledgement, *string) {
	cfg, err := s.configs.ResolveByID(ctx, record.GatewayID)
	if err != nil {
		return &ports.Acknowledgement{Success: false, Status: record.Status}, strPtr(err.Error())
	}
	gw, err := s.factory.Build(cfg)
	if err != nil {
		return &ports.Acknowledgement{Success: false, Status: record.Status}, strPtr(err.Error())
	}

	ver, err := gw.VerifyWebhook(ctx, event)
	if err != nil {
		return &ports.Acknowledgement{Success: false, Status: record.Status}, strPtr(err.Error())
	}
	if !ver.OK {
		s.log.Warn().
			Str("payment_id", record.ID.String()).
			Str("provider", string(event.Provider)).
			Str("reason", ver.Reason).
			Msg("notification rejected")
		return &ports.Acknowledgement{Success: false, Status: record.Status}, strPtr("verification failed: " + ver.Reason)
	}
	if ver.Precheck {
		return &ports.Acknowledgement{Success: true, Status: record.Status}, nil
	}

	// Terminal payments are acknowledged as-is; a late or duplicate
	// notification must not move them.
	if record.Status.IsTerminal() {
		return &ports.Acknowledgement{Success: true, Status: record.Status}, nil
	}

	var knownTxn string
	if record.ProviderTxnID != nil {
		knownTxn = *record.ProviderTxnID
	}
	status, err := gw.ProcessWebhook(ctx, event, knownTxn)
	if err != nil {
		return &ports.Acknowledgement{Success: false, Status: record.Status}, strPtr(err.Error())
	}

	if status == record.Status {
		return &ports.Acknowledgement{Success: true, Status: record.Status}, nil
	}
	if !record.Status.CanTransitionTo(status) {
		s.log.Warn().
			Str("payment_id", record.ID.String()).
			Str("from", string(record.Status)).
			Str("to", string(status)).
			Msg("notification proposes illegal status transition, ignored")
		return &ports.Acknowledgement{Success: true, Status: record.Status}, nil
	}

	now := time.Now().UTC()
	record.Status = status
	switch status {
	case domain.PaymentStatusCompleted:
		record.CompletedAt = &now
	case domain.PaymentStatusFailed:
		record.FailedAt = &now
	}
	if record.ProviderTxnID == nil {
		if txnID, _ := s.factory.Identifiers(event.Provider, event); txnID != "" {
			record.ProviderTxnID = &txnID
		}
	}
	record.UpdatedAt = now
	if err := s.payments.Update(ctx, record); err != nil {
		return &ports.Acknowledgement{Success: false, Status: record.Status}, strPtr(err.Error())
	}
	if err := s.orders.SetPaymentStatus(ctx, record.OrderID, status); err != nil {
		s.log.Error().Err(err).Str("order_id", record.OrderID.String()).Msg("order status propagation failed")
	}

	s.log.Info().
		Str("payment_id", record.ID.String()).
		Str("provider", string(event.Provider)).
		Str("status", string(status)).
		Msg("notification applied")
	return &ports.Acknowledgement{Success: true, Status: status}, nil
}

// resolvePayment finds the payment a notification refers to: first by the
// provider transaction id, then by order number through the provider's most
// recent attempt.
func (s *webhookService) resolvePayment(ctx context.Context, event *domain.WebhookEvent) *domain.PaymentRecord {
	txnID, orderNumber := s.factory.Identifiers(event.Provider, event)

	if txnID != "" {
		record, err := s.payments.GetByProviderTxnID(ctx, event.Provider, txnID)
		if err != nil {
			s.log.Error().Err(err).Str("txn_id", txnID).Msg("payment lookup by transaction id failed")
		} else if record != nil {
			return record
		}
	}
	if orderNumber == "" {
		return nil
	}
	order, err := s.orders.GetByNumber(ctx, orderNumber)
	if err != nil || order == nil {
		return nil
	}
	record, err := s.payments.GetLatestByOrder(ctx, event.Provider, order.ID)
	if err != nil {
		s.log.Error().Err(err).Str("order_number", orderNumber).Msg("payment lookup by order failed")
		return nil
	}
	return record
}

// finish marks the event processed exactly once.
func (s *webhookService) finish(ctx context.Context, event *domain.WebhookEvent, procErr *string) {
	if err := s.events.MarkProcessed(ctx, event.ID, procErr); err != nil {
		s.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("marking webhook event processed failed")
	}
}

// parseNotificationBody flattens a notification body into string params.
// Form-encoded bodies map one to one; JSON bodies flatten scalar top-level
// values and keep nested values as compact JSON.
func parseNotificationBody(body []byte, contentType string) map[string]string {
	params := make(map[string]string)
	if strings.Contains(contentType, "json") {
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return params
		}
		for k, v := range raw {
			params[k] = stringifyParam(v)
		}
		return params
	}

	values, err := url.ParseQuery(string(body))
	if err != nil {
		return params
	}
	for k := range values {
		params[k] = values.Get(k)
	}
	return params
}

func stringifyParam(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// payloadDigest keys the replay fast path on the exact provider payload.
func payloadDigest(provider domain.ProviderType, body []byte) string {
	sum := sha256.Sum256(append([]byte(provider+":"), body...))
	return fmt.Sprintf("webhook:%s:%s", provider, hex.EncodeToString(sum[:]))
}

func strPtr(s string) *string { return &s }
