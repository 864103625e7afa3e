package service

import (
	"context"
	"time"

	"paygate/internal/core/domain"
	"paygate/internal/core/ports"
	"paygate/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// refundEpsilon absorbs float accumulation when comparing refund totals
// against the original amount.
const refundEpsilon = 1e-9

// orchestratorService implements ports.PaymentOrchestrator. It resolves the
// gateway for each operation, enforces the canonical status state machine,
// and propagates aggregate status back to the owning order.
type orchestratorService struct {
	configs  ports.GatewayConfigStore
	payments ports.PaymentRepository
	orders   ports.OrderRepository
	factory  ports.GatewayFactory
	log      zerolog.Logger
}

// NewOrchestratorService creates the payment orchestrator.
func NewOrchestratorService(
	configs ports.GatewayConfigStore,
	payments ports.PaymentRepository,
	orders ports.OrderRepository,
	factory ports.GatewayFactory,
	log zerolog.Logger,
) ports.PaymentOrchestrator {
	return &orchestratorService{
		configs:  configs,
		payments: payments,
		orders:   orders,
		factory:  factory,
		log:      log,
	}
}

// InitiatePayment starts a payment for an order: it resolves the gateway,
// calls the provider, and persists a pending payment record carrying a fresh
// idempotency key. Provider failure leaves nothing persisted.
func (s *orchestratorService) InitiatePayment(ctx context.Context, params ports.InitiateParams) (*ports.InitiationOutcome, error) {
	order, err := s.orders.GetByID(ctx, params.OrderID)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if order == nil {
		return nil, apperror.NotFound("order")
	}
	if params.ActorID != nil && order.UserID != nil && *order.UserID != *params.ActorID {
		return nil, apperror.Forbidden("order belongs to another user")
	}

	cfg, err := s.resolveConfig(ctx, params)
	if err != nil {
		return nil, err
	}
	gw, err := s.factory.Build(cfg)
	if err != nil {
		return nil, err
	}

	po := &domain.PaymentOrder{
		OrderID:       order.ID,
		OrderNumber:   order.Number,
		Amount:        order.Total,
		Currency:      order.Currency,
		Description:   order.Description,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
		ReturnURL:     params.ReturnURL,
		CancelURL:     params.CancelURL,
	}

	var result *ports.InitiationResult
	if params.PreAuthorize {
		registrar, ok := gw.(ports.PreAuthRegistrar)
		if !ok {
			return nil, apperror.UnsupportedOperation("pre-authorization")
		}
		result, err = registrar.RegisterPreAuthorized(ctx, po)
	} else {
		result, err = gw.InitiatePayment(ctx, po)
	}
	if err != nil {
		s.log.Warn().Err(err).
			Str("order_id", order.ID.String()).
			Str("provider", string(cfg.Type)).
			Msg("payment initiation rejected by provider")
		return nil, err
	}

	key := domain.BuildIdempotencyKey(cfg.Type, order.ID)
	// One record per idempotency key: an attempt replayed under an already
	// persisted key returns that record instead of creating a second one.
	if prior, err := s.payments.GetByIdempotencyKey(ctx, key); err != nil {
		return nil, apperror.InternalError(err)
	} else if prior != nil {
		return &ports.InitiationOutcome{Payment: prior, Result: result}, nil
	}

	now := time.Now().UTC()
	record := &domain.PaymentRecord{
		ID:             uuid.New(),
		OrderID:        order.ID,
		GatewayID:      cfg.ID,
		Provider:       cfg.Type,
		Amount:         order.Total,
		Currency:       order.Currency,
		Status:         domain.PaymentStatusPending,
		IdempotencyKey: key,
		Attempts:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if result.ProviderTxnID != "" {
		txn := result.ProviderTxnID
		record.ProviderTxnID = &txn
	}
	if err := s.payments.Create(ctx, record); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.log.Info().
		Str("payment_id", record.ID.String()).
		Str("order_id", order.ID.String()).
		Str("provider", string(cfg.Type)).
		Str("idempotency_key", record.IdempotencyKey).
		Msg("payment initiated")

	return &ports.InitiationOutcome{Payment: record, Result: result}, nil
}

// Refund refunds a completed payment, fully when amount is nil, otherwise
// partially. Validation happens before the provider is contacted; the
// payment moves to refunded only once the refunded total covers the original
// amount.
func (s *orchestratorService) Refund(ctx context.Context, paymentID uuid.UUID, amount *float64) (*domain.PaymentRecord, error) {
	record, gw, err := s.loadForOperation(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if record.Status != domain.PaymentStatusCompleted {
		return nil, apperror.Validationf("payment in status %q cannot be refunded", record.Status)
	}

	remaining := record.Amount - record.RefundedTotal()
	amt := remaining
	if amount != nil {
		amt = *amount
	}
	if amt <= 0 {
		return nil, apperror.Validation("refund amount must be positive")
	}
	if amt > remaining+refundEpsilon {
		return nil, apperror.Validation("refund amount exceeds the refundable balance")
	}

	refunder, ok := gw.(ports.Refunder)
	if !ok {
		return nil, apperror.UnsupportedOperation("refund")
	}
	if err := refunder.Refund(ctx, *record.ProviderTxnID, amt, record.Currency); err != nil {
		return nil, err
	}

	record.AppendHistory("refund", amt, "refund accepted by provider")
	if record.RefundedTotal() >= record.Amount-refundEpsilon && record.Status.CanTransitionTo(domain.PaymentStatusRefunded) {
		record.Status = domain.PaymentStatusRefunded
		if err := s.orders.SetPaymentStatus(ctx, record.OrderID, record.Status); err != nil {
			s.log.Error().Err(err).Str("order_id", record.OrderID.String()).Msg("order status propagation failed")
		}
	}
	record.UpdatedAt = time.Now().UTC()
	if err := s.payments.Update(ctx, record); err != nil {
		return nil, apperror.InternalError(err)
	}

	s.log.Info().
		Str("payment_id", record.ID.String()).
		Float64("amount", amt).
		Str("status", string(record.Status)).
		Msg("refund processed")
	return record, nil
}

// Reverse voids a registered or pre-authorized payment before capture.
func (s *orchestratorService) Reverse(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentRecord, error) {
	record, gw, err := s.loadForOperation(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !record.Status.CanTransitionTo(domain.PaymentStatusCancelled) {
		return nil, apperror.Validationf("payment in status %q cannot be reversed", record.Status)
	}

	reverser, ok := gw.(ports.Reverser)
	if !ok {
		return nil, apperror.UnsupportedOperation("reverse")
	}
	if err := reverser.Reverse(ctx, *record.ProviderTxnID); err != nil {
		return nil, err
	}

	record.AppendHistory("reverse", record.Amount, "reversal accepted by provider")
	record.Status = domain.PaymentStatusCancelled
	record.UpdatedAt = time.Now().UTC()
	if err := s.payments.Update(ctx, record); err != nil {
		return nil, apperror.InternalError(err)
	}
	if err := s.orders.SetPaymentStatus(ctx, record.OrderID, record.Status); err != nil {
		s.log.Error().Err(err).Str("order_id", record.OrderID.String()).Msg("order status propagation failed")
	}

	s.log.Info().Str("payment_id", record.ID.String()).Msg("payment reversed")
	return record, nil
}

// Deposit captures a pre-authorized payment, fully when amount is nil.
func (s *orchestratorService) Deposit(ctx context.Context, paymentID uuid.UUID, amount *float64) (*domain.PaymentRecord, error) {
	record, gw, err := s.loadForOperation(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if !record.Status.CanTransitionTo(domain.PaymentStatusCompleted) {
		return nil, apperror.Validationf("payment in status %q cannot be captured", record.Status)
	}

	amt := record.Amount
	if amount != nil {
		amt = *amount
	}
	if amt <= 0 || amt > record.Amount+refundEpsilon {
		return nil, apperror.Validation("deposit amount must be positive and within the authorized amount")
	}

	depositor, ok := gw.(ports.Depositor)
	if !ok {
		return nil, apperror.UnsupportedOperation("deposit")
	}
	if err := depositor.Deposit(ctx, *record.ProviderTxnID, amt, record.Currency); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	record.AppendHistory("deposit", amt, "capture accepted by provider")
	record.Status = domain.PaymentStatusCompleted
	record.CompletedAt = &now
	record.UpdatedAt = now
	if err := s.payments.Update(ctx, record); err != nil {
		return nil, apperror.InternalError(err)
	}
	if err := s.orders.SetPaymentStatus(ctx, record.OrderID, record.Status); err != nil {
		s.log.Error().Err(err).Str("order_id", record.OrderID.String()).Msg("order status propagation failed")
	}

	s.log.Info().Str("payment_id", record.ID.String()).Float64("amount", amt).Msg("payment captured")
	return record, nil
}

// ListBindings returns the stored cards a gateway holds for a client.
func (s *orchestratorService) ListBindings(ctx context.Context, gatewayID uuid.UUID, clientID string) ([]ports.Binding, error) {
	if clientID == "" {
		return nil, apperror.Validation("client_id is required")
	}
	gw, err := s.buildGateway(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	binder, ok := gw.(ports.CardBinder)
	if !ok {
		return nil, apperror.UnsupportedOperation("bindings")
	}
	return binder.ListBindings(ctx, clientID)
}

// Unbind deactivates one stored card.
func (s *orchestratorService) Unbind(ctx context.Context, gatewayID uuid.UUID, bindingID string) error {
	if bindingID == "" {
		return apperror.Validation("binding_id is required")
	}
	gw, err := s.buildGateway(ctx, gatewayID)
	if err != nil {
		return err
	}
	binder, ok := gw.(ports.CardBinder)
	if !ok {
		return apperror.UnsupportedOperation("bindings")
	}
	return binder.Unbind(ctx, bindingID)
}

// PayWithBinding charges a registered payment with a stored card and applies
// the resulting status through the state machine.
func (s *orchestratorService) PayWithBinding(ctx context.Context, paymentID uuid.UUID, bindingID, cvc string) (*domain.PaymentRecord, error) {
	if bindingID == "" {
		return nil, apperror.Validation("binding_id is required")
	}
	record, gw, err := s.loadForOperation(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if record.Status.IsTerminal() || record.Status == domain.PaymentStatusCompleted {
		return nil, apperror.Validationf("payment in status %q cannot be charged", record.Status)
	}

	binder, ok := gw.(ports.CardBinder)
	if !ok {
		return nil, apperror.UnsupportedOperation("bindings")
	}
	status, err := binder.PayWithBinding(ctx, *record.ProviderTxnID, bindingID, cvc)
	if err != nil {
		return nil, err
	}

	record.AppendHistory("binding_charge", record.Amount, "charged stored card "+bindingID)
	if record.Status.CanTransitionTo(status) {
		now := time.Now().UTC()
		record.Status = status
		switch status {
		case domain.PaymentStatusCompleted:
			record.CompletedAt = &now
		case domain.PaymentStatusFailed:
			record.FailedAt = &now
		}
		if err := s.orders.SetPaymentStatus(ctx, record.OrderID, status); err != nil {
			s.log.Error().Err(err).Str("order_id", record.OrderID.String()).Msg("order status propagation failed")
		}
	}
	record.UpdatedAt = time.Now().UTC()
	if err := s.payments.Update(ctx, record); err != nil {
		return nil, apperror.InternalError(err)
	}
	return record, nil
}

// resolveConfig picks the gateway configuration for initiation, by explicit
// id or by (type, bank) selector.
func (s *orchestratorService) resolveConfig(ctx context.Context, params ports.InitiateParams) (*domain.GatewayConfig, error) {
	if params.GatewayID != nil {
		cfg, err := s.configs.ResolveByID(ctx, *params.GatewayID)
		if err != nil {
			return nil, err
		}
		if !cfg.Enabled {
			return nil, apperror.NotFound("enabled gateway configuration")
		}
		return cfg, nil
	}
	if params.GatewayType == "" {
		return nil, apperror.Validation("either gateway_id or gateway_type is required")
	}
	if !params.GatewayType.Valid() {
		return nil, apperror.Validationf("unknown provider type %q", params.GatewayType)
	}
	if params.Bank != "" && !params.Bank.Valid() {
		return nil, apperror.Validationf("unknown bank %q", params.Bank)
	}
	return s.configs.Resolve(ctx, params.GatewayType, params.Bank)
}

// loadForOperation fetches a payment and rebuilds its gateway for follow-up
// operations. The payment must carry a provider transaction id.
func (s *orchestratorService) loadForOperation(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentRecord, ports.Gateway, error) {
	record, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, nil, apperror.InternalError(err)
	}
	if record == nil {
		return nil, nil, apperror.NotFound("payment")
	}
	if record.ProviderTxnID == nil || *record.ProviderTxnID == "" {
		return nil, nil, apperror.Validation("payment has no provider transaction id")
	}
	gw, err := s.buildGateway(ctx, record.GatewayID)
	if err != nil {
		return nil, nil, err
	}
	return record, gw, nil
}

func (s *orchestratorService) buildGateway(ctx context.Context, gatewayID uuid.UUID) (ports.Gateway, error) {
	cfg, err := s.configs.ResolveByID(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	return s.factory.Build(cfg)
}
