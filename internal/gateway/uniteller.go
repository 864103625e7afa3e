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

// Uniteller is a register/notify acquirer with per-currency merchant
// accounts: each accepted currency has its own account password, used to
// authenticate registration for orders in that currency. Notifications are
// unsigned and only trigger the authenticated results query.
const unitellerDefaultBaseURL = "https://fpay.uniteller.ru/api/v2"

type unitellerAccount struct {
	Password string `json:"password"`
}

type unitellerConfig struct {
	ShopID   string                      `json:"shop_id"`
	Password string                      `json:"password"` // results-query password
	Accounts map[string]unitellerAccount `json:"accounts"`
	BaseURL  string                      `json:"base_url"`
}

// UnitellerGateway implements ports.Gateway for the Uniteller acquirer.
type UnitellerGateway struct {
	cfg    unitellerConfig
	client *resty.Client
}

// NewUnitellerGateway validates the config and builds the adapter.
func NewUnitellerGateway(gc *domain.GatewayConfig) (*UnitellerGateway, error) {
	var cfg unitellerConfig
	if err := decodeConfig(gc.Config, &cfg); err != nil {
		return nil, apperror.Configuration(string(domain.ProviderUniteller), "config", "cannot be decoded")
	}
	if cfg.ShopID == "" {
		return nil, apperror.Configuration(string(domain.ProviderUniteller), "shop_id", "is required")
	}
	if cfg.Password == "" {
		return nil, apperror.Configuration(string(domain.ProviderUniteller), "password", "is required")
	}
	if len(cfg.Accounts) == 0 {
		return nil, apperror.Configuration(string(domain.ProviderUniteller), "accounts", "must declare at least one currency")
	}
	for cur, acc := range cfg.Accounts {
		if acc.Password == "" {
			return nil, apperror.Configuration(string(domain.ProviderUniteller), "accounts."+cur+".password", "is required")
		}
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = unitellerDefaultBaseURL
	}
	return &UnitellerGateway{cfg: cfg, client: newClient(cfg.BaseURL)}, nil
}

func (g *UnitellerGateway) Type() domain.ProviderType { return domain.ProviderUniteller }

type unitellerRegisterResponse struct {
	PaymentID   string `json:"payment_id"`
	RedirectURL string `json:"redirect_url"`
	ErrorCode   string `json:"error_code"`
	Message     string `json:"message"`
}

// InitiatePayment registers the order under the per-currency account.
func (g *UnitellerGateway) InitiatePayment(ctx context.Context, order *domain.PaymentOrder) (*ports.InitiationResult, error) {
	account, ok := g.cfg.Accounts[order.Currency]
	if !ok {
		return nil, apperror.Validationf("no %s account configured for this gateway", order.Currency)
	}
	numeric, ok := NumericCode(order.Currency)
	if !ok {
		return nil, apperror.Validationf("unsupported currency %q", order.Currency)
	}

	var resp unitellerRegisterResponse
	res, err := g.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"Shop_ID":       g.cfg.ShopID,
			"Password":      account.Password,
			"Order_ID":      order.OrderNumber,
			"Subtotal":      strconv.FormatInt(ToMinorUnits(order.Amount, order.Currency), 10),
			"Currency":      numeric,
			"Comment":       order.Description,
			"Email":         order.CustomerEmail,
			"URL_RETURN_OK": order.ReturnURL,
			"URL_RETURN_NO": order.CancelURL,
		}).
		SetResult(&resp).
		Post("/register")
	if err != nil {
		return nil, apperror.GatewayUnreachable(string(domain.ProviderUniteller), err)
	}
	if res.IsError() {
		return nil, apperror.GatewayError(string(domain.ProviderUniteller), res.Status(), "register rejected")
	}
	if resp.ErrorCode != "" && resp.ErrorCode != "0" {
		return nil, apperror.GatewayError(string(domain.ProviderUniteller), resp.ErrorCode, resp.Message)
	}
	if resp.PaymentID == "" || resp.RedirectURL == "" {
		return nil, apperror.GatewayError(string(domain.ProviderUniteller), "?", "register response carries no payment")
	}

	return &ports.InitiationResult{
		ProviderTxnID: resp.PaymentID,
		RedirectURL:   resp.RedirectURL,
		FormMethod:    "GET",
	}, nil
}

// VerifyWebhook always passes; the follow-up results query carries the trust.
func (g *UnitellerGateway) VerifyWebhook(context.Context, *domain.WebhookEvent) (*ports.VerificationResult, error) {
	return &ports.VerificationResult{OK: true}, nil
}

// ProcessWebhook reconciles through the results query, never the payload.
func (g *UnitellerGateway) ProcessWebhook(ctx context.Context, event *domain.WebhookEvent, txnID string) (domain.PaymentStatus, error) {
	if txnID == "" {
		txnID = event.Param("payment_id")
	}
	if txnID == "" {
		return "", apperror.Validation("notification carries no payment id")
	}
	return g.GetPaymentStatus(ctx, txnID)
}

type unitellerStatusResponse struct {
	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

var unitellerStates = map[string]domain.PaymentStatus{
	"waiting":    domain.PaymentStatusPending,
	"authorized": domain.PaymentStatusProcessing,
	"paid":       domain.PaymentStatusCompleted,
	"declined":   domain.PaymentStatusFailed,
	"canceled":   domain.PaymentStatusCancelled,
	"refunded":   domain.PaymentStatusRefunded,
}

// GetPaymentStatus queries the authenticated results endpoint.
func (g *UnitellerGateway) GetPaymentStatus(ctx context.Context, txnID string) (domain.PaymentStatus, error) {
	var resp unitellerStatusResponse
	res, err := g.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"Shop_ID":    g.cfg.ShopID,
			"Password":   g.cfg.Password,
			"Payment_ID": txnID,
		}).
		SetResult(&resp).
		Post("/results")
	if err != nil {
		return "", apperror.GatewayUnreachable(string(domain.ProviderUniteller), err)
	}
	if res.IsError() {
		return "", apperror.GatewayError(string(domain.ProviderUniteller), res.Status(), "results query rejected")
	}
	if resp.ErrorCode != "" && resp.ErrorCode != "0" {
		return "", apperror.GatewayError(string(domain.ProviderUniteller), resp.ErrorCode, resp.Message)
	}
	status, ok := unitellerStates[resp.Status]
	if !ok {
		return "", apperror.GatewayError(string(domain.ProviderUniteller), "?", fmt.Sprintf("unknown status %q", resp.Status))
	}
	return status, nil
}
