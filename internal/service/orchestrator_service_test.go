package service

import (
	"context"
	"strings"
	"testing"

	"paygate/internal/core/domain"
	"paygate/internal/core/ports"
	"paygate/internal/core/ports/mocks"
	"paygate/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// stubGateway implements the full capability surface with canned responses.
// Capability-absence cases use mocks.MockGateway, which implements only the
// base contract.
type stubGateway struct {
	typ        domain.ProviderType
	initResult *ports.InitiationResult
	initErr    error
	preAuthHit bool

	refunds    []float64
	refundErr  error
	reversed   bool
	reverseErr error
	deposits   []float64
	depositErr error

	bindings  []ports.Binding
	unbound   []string
	payStatus domain.PaymentStatus
	payErr    error
}

func (g *stubGateway) Type() domain.ProviderType { return g.typ }

func (g *stubGateway) InitiatePayment(_ context.Context, _ *domain.PaymentOrder) (*ports.InitiationResult, error) {
	return g.initResult, g.initErr
}

func (g *stubGateway) RegisterPreAuthorized(_ context.Context, _ *domain.PaymentOrder) (*ports.InitiationResult, error) {
	g.preAuthHit = true
	return g.initResult, g.initErr
}

func (g *stubGateway) VerifyWebhook(_ context.Context, _ *domain.WebhookEvent) (*ports.VerificationResult, error) {
	return &ports.VerificationResult{OK: true}, nil
}

func (g *stubGateway) ProcessWebhook(_ context.Context, _ *domain.WebhookEvent, _ string) (domain.PaymentStatus, error) {
	return g.payStatus, nil
}

func (g *stubGateway) GetPaymentStatus(_ context.Context, _ string) (domain.PaymentStatus, error) {
	return g.payStatus, nil
}

func (g *stubGateway) Refund(_ context.Context, _ string, amount float64, _ string) error {
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, amount)
	return nil
}

func (g *stubGateway) Reverse(_ context.Context, _ string) error {
	if g.reverseErr != nil {
		return g.reverseErr
	}
	g.reversed = true
	return nil
}

func (g *stubGateway) Deposit(_ context.Context, _ string, amount float64, _ string) error {
	if g.depositErr != nil {
		return g.depositErr
	}
	g.deposits = append(g.deposits, amount)
	return nil
}

func (g *stubGateway) ListBindings(_ context.Context, _ string) ([]ports.Binding, error) {
	return g.bindings, nil
}

func (g *stubGateway) Unbind(_ context.Context, bindingID string) error {
	g.unbound = append(g.unbound, bindingID)
	return nil
}

func (g *stubGateway) PayWithBinding(_ context.Context, _, _, _ string) (domain.PaymentStatus, error) {
	return g.payStatus, g.payErr
}

type orchestratorTestDeps struct {
	svc      ports.PaymentOrchestrator
	configs  *mocks.MockGatewayConfigStore
	payments *mocks.MockPaymentRepository
	orders   *mocks.MockOrderRepository
	factory  *mocks.MockGatewayFactory
	ctrl     *gomock.Controller
}

func setupOrchestrator(t *testing.T) *orchestratorTestDeps {
	ctrl := gomock.NewController(t)
	d := &orchestratorTestDeps{
		configs:  mocks.NewMockGatewayConfigStore(ctrl),
		payments: mocks.NewMockPaymentRepository(ctrl),
		orders:   mocks.NewMockOrderRepository(ctrl),
		factory:  mocks.NewMockGatewayFactory(ctrl),
		ctrl:     ctrl,
	}
	d.svc = NewOrchestratorService(d.configs, d.payments, d.orders, d.factory, zerolog.Nop())
	return d
}

func orderFixture() *ports.Order {
	return &ports.Order{
		ID:       uuid.New(),
		Number:   "ORD-1001",
		Total:    250.50,
		Currency: "RUB",
	}
}

func rbsConfigFixture() *domain.GatewayConfig {
	return &domain.GatewayConfig{
		ID:      uuid.New(),
		Type:    domain.ProviderRBS,
		Bank:    domain.BankSberbank,
		Name:    "Sberbank acquiring",
		Enabled: true,
		Config:  map[string]any{"username": "u", "password": "p"},
	}
}

func completedPayment(cfg *domain.GatewayConfig) *domain.PaymentRecord {
	txn := "TXN-42"
	return &domain.PaymentRecord{
		ID:            uuid.New(),
		OrderID:       uuid.New(),
		GatewayID:     cfg.ID,
		Provider:      cfg.Type,
		ProviderTxnID: &txn,
		Amount:        100,
		Currency:      "RUB",
		Status:        domain.PaymentStatusCompleted,
	}
}

func TestOrchestrator_InitiatePayment_Success(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	order := orderFixture()
	cfg := rbsConfigFixture()
	gw := &stubGateway{
		typ:        domain.ProviderRBS,
		initResult: &ports.InitiationResult{ProviderTxnID: "TXN-1", RedirectURL: "https://pay.example/f"},
	}

	d.orders.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	d.configs.EXPECT().Resolve(ctx, domain.ProviderRBS, domain.BankSberbank).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)
	d.payments.EXPECT().GetByIdempotencyKey(ctx, gomock.Any()).Return(nil, nil)
	var persisted *domain.PaymentRecord
	d.payments.EXPECT().Create(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, r *domain.PaymentRecord) error {
			persisted = r
			return nil
		})

	out, err := d.svc.InitiatePayment(ctx, ports.InitiateParams{
		OrderID:     order.ID,
		GatewayType: domain.ProviderRBS,
		Bank:        domain.BankSberbank,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPending, persisted.Status)
	assert.Equal(t, order.Total, persisted.Amount)
	assert.Equal(t, cfg.ID, persisted.GatewayID)
	require.NotNil(t, persisted.ProviderTxnID)
	assert.Equal(t, "TXN-1", *persisted.ProviderTxnID)
	assert.True(t, strings.HasPrefix(persisted.IdempotencyKey, "rbs:"+order.ID.String()+":"))
	assert.Equal(t, "https://pay.example/f", out.Result.RedirectURL)
}

func TestOrchestrator_InitiatePayment_ExistingIdempotencyKeyReturnsPriorRecord(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	order := orderFixture()
	cfg := rbsConfigFixture()
	gw := &stubGateway{initResult: &ports.InitiationResult{ProviderTxnID: "TXN-1"}}
	prior := &domain.PaymentRecord{
		ID:        uuid.New(),
		OrderID:   order.ID,
		GatewayID: cfg.ID,
		Provider:  cfg.Type,
		Status:    domain.PaymentStatusPending,
	}

	d.orders.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	d.configs.EXPECT().Resolve(ctx, domain.ProviderRBS, domain.BankCode("")).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)
	d.payments.EXPECT().GetByIdempotencyKey(ctx, gomock.Any()).Return(prior, nil)
	// No Create expectation: a key held by a prior record may not yield a
	// second one.

	out, err := d.svc.InitiatePayment(ctx, ports.InitiateParams{OrderID: order.ID, GatewayType: domain.ProviderRBS})
	require.NoError(t, err)
	assert.Equal(t, prior.ID, out.Payment.ID)
}

func TestOrchestrator_InitiatePayment_OrderNotFound(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	orderID := uuid.New()
	d.orders.EXPECT().GetByID(ctx, orderID).Return(nil, nil)

	_, err := d.svc.InitiatePayment(ctx, ports.InitiateParams{OrderID: orderID, GatewayType: domain.ProviderWallet})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NF_001", appErr.Code)
}

func TestOrchestrator_InitiatePayment_ForeignOrderForbidden(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	owner := uuid.New()
	actor := uuid.New()
	order := orderFixture()
	order.UserID = &owner

	d.orders.EXPECT().GetByID(ctx, order.ID).Return(order, nil)

	_, err := d.svc.InitiatePayment(ctx, ports.InitiateParams{
		OrderID:     order.ID,
		GatewayType: domain.ProviderWallet,
		ActorID:     &actor,
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "AUTH_001", appErr.Code)
}

func TestOrchestrator_InitiatePayment_ProviderFailureLeavesNothing(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	order := orderFixture()
	cfg := rbsConfigFixture()
	gw := &stubGateway{initErr: apperror.GatewayError("rbs", "5", "access denied")}

	d.orders.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	d.configs.EXPECT().Resolve(ctx, domain.ProviderRBS, domain.BankCode("")).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)
	// No payments.Create expectation: nothing may be persisted.

	_, err := d.svc.InitiatePayment(ctx, ports.InitiateParams{OrderID: order.ID, GatewayType: domain.ProviderRBS})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "GW_001", appErr.Code)
}

func TestOrchestrator_InitiatePayment_PreAuthorize(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	order := orderFixture()
	cfg := rbsConfigFixture()
	gw := &stubGateway{initResult: &ports.InitiationResult{ProviderTxnID: "TXN-PA"}}

	d.orders.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	d.configs.EXPECT().Resolve(ctx, domain.ProviderRBS, domain.BankCode("")).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)
	d.payments.EXPECT().GetByIdempotencyKey(ctx, gomock.Any()).Return(nil, nil)
	d.payments.EXPECT().Create(ctx, gomock.Any()).Return(nil)

	_, err := d.svc.InitiatePayment(ctx, ports.InitiateParams{
		OrderID:      order.ID,
		GatewayType:  domain.ProviderRBS,
		PreAuthorize: true,
	})
	require.NoError(t, err)
	assert.True(t, gw.preAuthHit)
}

func TestOrchestrator_InitiatePayment_PreAuthorizeUnsupported(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	order := orderFixture()
	cfg := rbsConfigFixture()
	gw := mocks.NewMockGateway(d.ctrl)

	d.orders.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	d.configs.EXPECT().Resolve(ctx, domain.ProviderRBS, domain.BankCode("")).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)

	_, err := d.svc.InitiatePayment(ctx, ports.InitiateParams{
		OrderID:      order.ID,
		GatewayType:  domain.ProviderRBS,
		PreAuthorize: true,
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNS_001", appErr.Code)
}

func TestOrchestrator_InitiatePayment_DisabledGatewayByID(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	order := orderFixture()
	cfg := rbsConfigFixture()
	cfg.Enabled = false

	d.orders.EXPECT().GetByID(ctx, order.ID).Return(order, nil)
	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)

	_, err := d.svc.InitiatePayment(ctx, ports.InitiateParams{OrderID: order.ID, GatewayID: &cfg.ID})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NF_001", appErr.Code)
}

func TestOrchestrator_Refund_Full(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	cfg := rbsConfigFixture()
	record := completedPayment(cfg)
	gw := &stubGateway{}

	d.payments.EXPECT().GetByID(ctx, record.ID).Return(record, nil)
	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)
	d.orders.EXPECT().SetPaymentStatus(ctx, record.OrderID, domain.PaymentStatusRefunded).Return(nil)
	d.payments.EXPECT().Update(ctx, record).Return(nil)

	out, err := d.svc.Refund(ctx, record.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusRefunded, out.Status)
	assert.Equal(t, []float64{100}, gw.refunds)
	require.Len(t, out.History, 1)
	assert.Equal(t, "refund", out.History[0].Operation)
}

func TestOrchestrator_Refund_PartialKeepsCompleted(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	cfg := rbsConfigFixture()
	record := completedPayment(cfg)
	gw := &stubGateway{}

	d.payments.EXPECT().GetByID(ctx, record.ID).Return(record, nil)
	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)
	d.payments.EXPECT().Update(ctx, record).Return(nil)
	// No order propagation for a partial refund.

	amount := 30.0
	out, err := d.svc.Refund(ctx, record.ID, &amount)
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusCompleted, out.Status)
	assert.Equal(t, []float64{30}, gw.refunds)
	assert.InDelta(t, 30, out.RefundedTotal(), 1e-9)
}

func TestOrchestrator_Refund_SecondPartialCompletesRefund(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	cfg := rbsConfigFixture()
	record := completedPayment(cfg)
	record.AppendHistory("refund", 70, "refund accepted by provider")
	gw := &stubGateway{}

	d.payments.EXPECT().GetByID(ctx, record.ID).Return(record, nil)
	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)
	d.orders.EXPECT().SetPaymentStatus(ctx, record.OrderID, domain.PaymentStatusRefunded).Return(nil)
	d.payments.EXPECT().Update(ctx, record).Return(nil)

	amount := 30.0
	out, err := d.svc.Refund(ctx, record.ID, &amount)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, out.Status)
}

func TestOrchestrator_Refund_ExceedsBalance(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	cfg := rbsConfigFixture()
	record := completedPayment(cfg)
	record.AppendHistory("refund", 80, "refund accepted by provider")
	gw := &stubGateway{}

	d.payments.EXPECT().GetByID(ctx, record.ID).Return(record, nil)
	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)

	amount := 30.0
	_, err := d.svc.Refund(ctx, record.ID, &amount)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VAL_001", appErr.Code)
	// The provider was never contacted.
	assert.Empty(t, gw.refunds)
}

func TestOrchestrator_Refund_WrongStatus(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	cfg := rbsConfigFixture()
	record := completedPayment(cfg)
	record.Status = domain.PaymentStatusPending
	gw := &stubGateway{}

	d.payments.EXPECT().GetByID(ctx, record.ID).Return(record, nil)
	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)

	_, err := d.svc.Refund(ctx, record.ID, nil)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VAL_001", appErr.Code)
	assert.Empty(t, gw.refunds)
}

func TestOrchestrator_Refund_Unsupported(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	cfg := rbsConfigFixture()
	record := completedPayment(cfg)
	gw := mocks.NewMockGateway(d.ctrl)

	d.payments.EXPECT().GetByID(ctx, record.ID).Return(record, nil)
	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)

	_, err := d.svc.Refund(ctx, record.ID, nil)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNS_001", appErr.Code)
}

func TestOrchestrator_Reverse_PendingBecomesCancelled(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	cfg := rbsConfigFixture()
	record := completedPayment(cfg)
	record.Status = domain.PaymentStatusPending
	gw := &stubGateway{}

	d.payments.EXPECT().GetByID(ctx, record.ID).Return(record, nil)
	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)
	d.payments.EXPECT().Update(ctx, record).Return(nil)
	d.orders.EXPECT().SetPaymentStatus(ctx, record.OrderID, domain.PaymentStatusCancelled).Return(nil)

	out, err := d.svc.Reverse(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, out.Status)
	assert.True(t, gw.reversed)
}

func TestOrchestrator_Reverse_CompletedRejected(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	cfg := rbsConfigFixture()
	record := completedPayment(cfg)
	gw := &stubGateway{}

	d.payments.EXPECT().GetByID(ctx, record.ID).Return(record, nil)
	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)

	_, err := d.svc.Reverse(ctx, record.ID)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VAL_001", appErr.Code)
	assert.False(t, gw.reversed)
}

func TestOrchestrator_Deposit_CompletesPayment(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	cfg := rbsConfigFixture()
	record := completedPayment(cfg)
	record.Status = domain.PaymentStatusProcessing
	gw := &stubGateway{}

	d.payments.EXPECT().GetByID(ctx, record.ID).Return(record, nil)
	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)
	d.payments.EXPECT().Update(ctx, record).Return(nil)
	d.orders.EXPECT().SetPaymentStatus(ctx, record.OrderID, domain.PaymentStatusCompleted).Return(nil)

	out, err := d.svc.Deposit(ctx, record.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, out.Status)
	assert.NotNil(t, out.CompletedAt)
	assert.Equal(t, []float64{100}, gw.deposits)
}

func TestOrchestrator_Deposit_AmountAboveAuthorizationRejected(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	cfg := rbsConfigFixture()
	record := completedPayment(cfg)
	record.Status = domain.PaymentStatusProcessing
	gw := &stubGateway{}

	d.payments.EXPECT().GetByID(ctx, record.ID).Return(record, nil)
	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)

	amount := 150.0
	_, err := d.svc.Deposit(ctx, record.ID, &amount)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VAL_001", appErr.Code)
	assert.Empty(t, gw.deposits)
}

func TestOrchestrator_ListBindings(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	cfg := rbsConfigFixture()
	gw := &stubGateway{bindings: []ports.Binding{{ID: "b-1", MaskedPAN: "4111**1111"}}}

	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)

	out, err := d.svc.ListBindings(ctx, cfg.ID, "client-7")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b-1", out[0].ID)
}

func TestOrchestrator_Bindings_Unsupported(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	cfg := rbsConfigFixture()
	gw := mocks.NewMockGateway(d.ctrl)

	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)

	_, err := d.svc.ListBindings(ctx, cfg.ID, "client-7")
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "UNS_001", appErr.Code)
}

func TestOrchestrator_PayWithBinding_AppliesStatus(t *testing.T) {
	d := setupOrchestrator(t)
	defer d.ctrl.Finish()
	ctx := context.Background()

	cfg := rbsConfigFixture()
	record := completedPayment(cfg)
	record.Status = domain.PaymentStatusPending
	gw := &stubGateway{payStatus: domain.PaymentStatusCompleted}

	d.payments.EXPECT().GetByID(ctx, record.ID).Return(record, nil)
	d.configs.EXPECT().ResolveByID(ctx, cfg.ID).Return(cfg, nil)
	d.factory.EXPECT().Build(cfg).Return(gw, nil)
	d.orders.EXPECT().SetPaymentStatus(ctx, record.OrderID, domain.PaymentStatusCompleted).Return(nil)
	d.payments.EXPECT().Update(ctx, record).Return(nil)

	out, err := d.svc.PayWithBinding(ctx, record.ID, "b-1", "123")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, out.Status)
	assert.NotNil(t, out.CompletedAt)
}
