package gateway

import (
	"context"
	"fmt"
	"strconv"

	"paygate/internal/core/domain"
	"paygate/internal/core/ports"
	"paygate/pkg/apperror"

	"github.com/go-resty/resty/v2"
)

// RBS is the acquiring platform shared by nine partner banks: the same REST
// protocol is hosted at a per-bank endpoint, selected by the configuration's
// bank code. Beyond plain register/notify it supports two-stage capture
// (registerPreAuth + deposit, reverse before deposit), full and repeated
// partial refunds, and card bindings.
type rbsConfig struct {
	UserName     string `json:"user_name"`
	Password     string `json:"password"`
	TestUserName string `json:"test_user_name"`
	TestPassword string `json:"test_password"`
	BaseURL      string `json:"base_url"`
	TestBaseURL  string `json:"test_base_url"`
}

// rbsBankBaseURL derives the default endpoint a partner bank hosts the
// platform at.
func rbsBankBaseURL(bank domain.BankCode, testMode bool) string {
	if testMode {
		return fmt.Sprintf("https://test.pay.%s.ru/payment/rest", bank)
	}
	return fmt.Sprintf("https://pay.%s.ru/payment/rest", bank)
}

// RBSGateway implements ports.Gateway plus every optional capability.
type RBSGateway struct {
	bank     domain.BankCode
	userName string
	password string
	client   *resty.Client
}

// NewRBSGateway validates the config, including the bank selector, and
// builds the adapter against the selected bank's endpoint.
func NewRBSGateway(gc *domain.GatewayConfig) (*RBSGateway, error) {
	if !gc.Bank.Valid() {
		return nil, apperror.Configuration(string(domain.ProviderRBS), "bank", fmt.Sprintf("%q is not a partner bank", gc.Bank))
	}
	var cfg rbsConfig
	if err := decodeConfig(gc.Config, &cfg); err != nil {
		return nil, apperror.Configuration(string(domain.ProviderRBS), "config", "cannot be decoded")
	}

	userName, password, base := cfg.UserName, cfg.Password, cfg.BaseURL
	if gc.TestMode {
		userName, password, base = cfg.TestUserName, cfg.TestPassword, cfg.TestBaseURL
		if userName == "" {
			return nil, apperror.Configuration(string(domain.ProviderRBS), "test_user_name", "is required in test mode")
		}
		if password == "" {
			return nil, apperror.Configuration(string(domain.ProviderRBS), "test_password", "is required in test mode")
		}
	} else {
		if userName == "" {
			return nil, apperror.Configuration(string(domain.ProviderRBS), "user_name", "is required")
		}
		if password == "" {
			return nil, apperror.Configuration(string(domain.ProviderRBS), "password", "is required")
		}
	}
	if base == "" {
		base = rbsBankBaseURL(gc.Bank, gc.TestMode)
	}

	return &RBSGateway{
		bank:     gc.Bank,
		userName: userName,
		password: password,
		client:   newClient(base),
	}, nil
}

func (g *RBSGateway) Type() domain.ProviderType { return domain.ProviderRBS }

// rbsResponse is the envelope every platform endpoint answers with.
type rbsResponse struct {
	OrderID      string `json:"orderId"`
	FormURL      string `json:"formUrl"`
	OrderStatus  *int   `json:"orderStatus"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
	Bindings     []struct {
		BindingID  string `json:"bindingId"`
		MaskedPan  string `json:"maskedPan"`
		ExpiryDate string `json:"expiryDate"`
	} `json:"bindings"`
}

// call POSTs a form-encoded request with credentials merged in.
func (g *RBSGateway) call(ctx context.Context, endpoint string, params map[string]string) (*rbsResponse, error) {
	form := map[string]string{
		"userName": g.userName,
		"password": g.password,
	}
	for k, v := range params {
		form[k] = v
	}

	var resp rbsResponse
	res, err := g.client.R().
		SetContext(ctx).
		SetFormData(form).
		SetResult(&resp).
		Post(endpoint)
	if err != nil {
		return nil, apperror.GatewayUnreachable(string(domain.ProviderRBS), err)
	}
	if res.IsError() {
		return nil, apperror.GatewayError(string(domain.ProviderRBS), res.Status(), endpoint+" rejected")
	}
	if resp.ErrorCode != "" && resp.ErrorCode != "0" {
		return nil, apperror.GatewayError(string(domain.ProviderRBS), resp.ErrorCode, resp.ErrorMessage)
	}
	return &resp, nil
}

// registerParams builds the common registration form.
func (g *RBSGateway) registerParams(order *domain.PaymentOrder) (map[string]string, error) {
	numeric, ok := NumericCode(order.Currency)
	if !ok {
		return nil, apperror.Validationf("unsupported currency %q", order.Currency)
	}
	return map[string]string{
		"orderNumber": order.OrderNumber,
		"amount":      strconv.FormatInt(ToMinorUnits(order.Amount, order.Currency), 10),
		"currency":    numeric,
		"description": order.Description,
		"email":       order.CustomerEmail,
		"returnUrl":   order.ReturnURL,
		"failUrl":     order.CancelURL,
	}, nil
}

// InitiatePayment runs single-stage registration.
func (g *RBSGateway) InitiatePayment(ctx context.Context, order *domain.PaymentOrder) (*ports.InitiationResult, error) {
	return g.register(ctx, order, "/register.do")
}

// RegisterPreAuthorized reserves funds for a later deposit.
func (g *RBSGateway) RegisterPreAuthorized(ctx context.Context, order *domain.PaymentOrder) (*ports.InitiationResult, error) {
	return g.register(ctx, order, "/registerPreAuth.do")
}

func (g *RBSGateway) register(ctx context.Context, order *domain.PaymentOrder, endpoint string) (*ports.InitiationResult, error) {
	params, err := g.registerParams(order)
	if err != nil {
		return nil, err
	}
	resp, err := g.call(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}
	if resp.OrderID == "" || resp.FormURL == "" {
		return nil, apperror.GatewayError(string(domain.ProviderRBS), "?", "register response carries no order")
	}
	return &ports.InitiationResult{
		ProviderTxnID: resp.OrderID,
		RedirectURL:   resp.FormURL,
		FormMethod:    "GET",
	}, nil
}

// VerifyWebhook always passes: notifications carry only weak identifiers and
// no signature; trust comes from the authenticated status query that follows.
func (g *RBSGateway) VerifyWebhook(context.Context, *domain.WebhookEvent) (*ports.VerificationResult, error) {
	return &ports.VerificationResult{OK: true}, nil
}

// ProcessWebhook treats the notification purely as a reconciliation trigger:
// the status query's result is canonical, never the payload's own status.
func (g *RBSGateway) ProcessWebhook(ctx context.Context, event *domain.WebhookEvent, txnID string) (domain.PaymentStatus, error) {
	if txnID == "" {
		txnID = event.Param("orderId")
	}
	if txnID == "" {
		txnID = event.Param("mdOrder")
	}
	if txnID == "" {
		return "", apperror.Validation("notification carries no order id")
	}
	return g.GetPaymentStatus(ctx, txnID)
}

// Platform order status vocabulary.
var rbsOrderStatuses = map[int]domain.PaymentStatus{
	0: domain.PaymentStatusPending,    // registered, not paid
	1: domain.PaymentStatusProcessing, // pre-authorized, awaiting deposit
	2: domain.PaymentStatusCompleted,  // deposited
	3: domain.PaymentStatusCancelled,  // authorization reversed
	4: domain.PaymentStatusRefunded,
	5: domain.PaymentStatusProcessing, // ACS authorization in progress
	6: domain.PaymentStatusFailed,     // authorization declined
}

// GetPaymentStatus queries getOrderStatusExtended with the shared secret
// used at registration.
func (g *RBSGateway) GetPaymentStatus(ctx context.Context, txnID string) (domain.PaymentStatus, error) {
	resp, err := g.call(ctx, "/getOrderStatusExtended.do", map[string]string{"orderId": txnID})
	if err != nil {
		return "", err
	}
	if resp.OrderStatus == nil {
		return "", apperror.GatewayError(string(domain.ProviderRBS), "?", "status response carries no orderStatus")
	}
	status, ok := rbsOrderStatuses[*resp.OrderStatus]
	if !ok {
		return "", apperror.GatewayError(string(domain.ProviderRBS), "?", fmt.Sprintf("unknown orderStatus %d", *resp.OrderStatus))
	}
	return status, nil
}

// Deposit captures a pre-authorized amount.
func (g *RBSGateway) Deposit(ctx context.Context, txnID string, amount float64, currency string) error {
	_, err := g.call(ctx, "/deposit.do", map[string]string{
		"orderId": txnID,
		"amount":  strconv.FormatInt(ToMinorUnits(amount, currency), 10),
	})
	return err
}

// Reverse cancels a reserved-but-not-captured transaction.
func (g *RBSGateway) Reverse(ctx context.Context, txnID string) error {
	_, err := g.call(ctx, "/reverse.do", map[string]string{"orderId": txnID})
	return err
}

// Refund returns a captured amount, full or partial.
func (g *RBSGateway) Refund(ctx context.Context, txnID string, amount float64, currency string) error {
	_, err := g.call(ctx, "/refund.do", map[string]string{
		"orderId": txnID,
		"amount":  strconv.FormatInt(ToMinorUnits(amount, currency), 10),
	})
	return err
}

// ListBindings returns the stored payment methods of a client.
func (g *RBSGateway) ListBindings(ctx context.Context, clientID string) ([]ports.Binding, error) {
	resp, err := g.call(ctx, "/getBindings.do", map[string]string{"clientId": clientID})
	if err != nil {
		return nil, err
	}
	bindings := make([]ports.Binding, 0, len(resp.Bindings))
	for _, b := range resp.Bindings {
		bindings = append(bindings, ports.Binding{
			ID:         b.BindingID,
			MaskedPAN:  b.MaskedPan,
			ExpiryDate: b.ExpiryDate,
		})
	}
	return bindings, nil
}

// Unbind deactivates a stored payment method.
func (g *RBSGateway) Unbind(ctx context.Context, bindingID string) error {
	_, err := g.call(ctx, "/unBindCard.do", map[string]string{"bindingId": bindingID})
	return err
}

// PayWithBinding charges a registered order with a stored card, then adopts
// the status query's view of the outcome.
func (g *RBSGateway) PayWithBinding(ctx context.Context, txnID, bindingID, cvc string) (domain.PaymentStatus, error) {
	params := map[string]string{
		"mdOrder":   txnID,
		"bindingId": bindingID,
	}
	if cvc != "" {
		params["cvc"] = cvc
	}
	if _, err := g.call(ctx, "/paymentOrderBinding.do", params); err != nil {
		return "", err
	}
	return g.GetPaymentStatus(ctx, txnID)
}

// Compile-time capability checks.
var (
	_ ports.Gateway          = (*RBSGateway)(nil)
	_ ports.Refunder         = (*RBSGateway)(nil)
	_ ports.Reverser         = (*RBSGateway)(nil)
	_ ports.Depositor        = (*RBSGateway)(nil)
	_ ports.PreAuthRegistrar = (*RBSGateway)(nil)
	_ ports.CardBinder       = (*RBSGateway)(nil)
)
