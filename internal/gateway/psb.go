package gateway

import (
	"context"
	"fmt"

	"paygate/internal/core/domain"
	"paygate/internal/core/ports"
	"paygate/pkg/apperror"

	"github.com/go-resty/resty/v2"
)

// PSB is a register/notify acquirer: initiation is a synchronous register
// call that yields a transaction id and a hosted-page URL. Its inbound
// notifications are unsigned; they only trigger an authenticated status
// query, whose response is the sole source of truth.
const (
	psbProdBaseURL = "https://pay.psbank.ru/merchant/api/v1"
	psbTestBaseURL = "https://test.pay.psbank.ru/merchant/api/v1"
)

type psbConfig struct {
	Login        string `json:"login"`
	Password     string `json:"password"`
	TestLogin    string `json:"test_login"`
	TestPassword string `json:"test_password"`
	BaseURL      string `json:"base_url"`
}

// PSBGateway implements ports.Gateway for the PSB acquirer.
type PSBGateway struct {
	login    string
	password string
	client   *resty.Client
}

// NewPSBGateway validates the config under the given mode and builds the
// adapter with the matching credentials and endpoint.
func NewPSBGateway(gc *domain.GatewayConfig) (*PSBGateway, error) {
	var cfg psbConfig
	if err := decodeConfig(gc.Config, &cfg); err != nil {
		return nil, apperror.Configuration(string(domain.ProviderPSB), "config", "cannot be decoded")
	}

	login, password := cfg.Login, cfg.Password
	base := cfg.BaseURL
	if gc.TestMode {
		login, password = cfg.TestLogin, cfg.TestPassword
		if base == "" {
			base = psbTestBaseURL
		}
		if login == "" {
			return nil, apperror.Configuration(string(domain.ProviderPSB), "test_login", "is required in test mode")
		}
		if password == "" {
			return nil, apperror.Configuration(string(domain.ProviderPSB), "test_password", "is required in test mode")
		}
	} else {
		if base == "" {
			base = psbProdBaseURL
		}
		if login == "" {
			return nil, apperror.Configuration(string(domain.ProviderPSB), "login", "is required")
		}
		if password == "" {
			return nil, apperror.Configuration(string(domain.ProviderPSB), "password", "is required")
		}
	}

	return &PSBGateway{login: login, password: password, client: newClient(base)}, nil
}

func (g *PSBGateway) Type() domain.ProviderType { return domain.ProviderPSB }

type psbRegisterResponse struct {
	TxnID        string `json:"txnId"`
	FormURL      string `json:"formUrl"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// InitiatePayment registers the order and returns the hosted-page redirect.
func (g *PSBGateway) InitiatePayment(ctx context.Context, order *domain.PaymentOrder) (*ports.InitiationResult, error) {
	numeric, ok := NumericCode(order.Currency)
	if !ok {
		return nil, apperror.Validationf("unsupported currency %q", order.Currency)
	}

	var resp psbRegisterResponse
	res, err := g.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"login":       g.login,
			"password":    g.password,
			"orderNumber": order.OrderNumber,
			"amount":      ToMinorUnits(order.Amount, order.Currency),
			"currency":    numeric,
			"description": order.Description,
			"email":       order.CustomerEmail,
			"returnUrl":   order.ReturnURL,
			"failUrl":     order.CancelURL,
		}).
		SetResult(&resp).
		Post("/register")
	if err != nil {
		return nil, apperror.GatewayUnreachable(string(domain.ProviderPSB), err)
	}
	if res.IsError() {
		return nil, apperror.GatewayError(string(domain.ProviderPSB), res.Status(), "register rejected")
	}
	if resp.ErrorCode != "" && resp.ErrorCode != "0" {
		return nil, apperror.GatewayError(string(domain.ProviderPSB), resp.ErrorCode, resp.ErrorMessage)
	}
	if resp.TxnID == "" || resp.FormURL == "" {
		return nil, apperror.GatewayError(string(domain.ProviderPSB), "?", "register response carries no transaction")
	}

	return &ports.InitiationResult{
		ProviderTxnID: resp.TxnID,
		RedirectURL:   resp.FormURL,
		FormMethod:    "GET",
	}, nil
}

// VerifyWebhook always passes: PSB notifications carry no signature, so they
// are treated purely as reconciliation triggers.
func (g *PSBGateway) VerifyWebhook(context.Context, *domain.WebhookEvent) (*ports.VerificationResult, error) {
	return &ports.VerificationResult{OK: true}, nil
}

// ProcessWebhook ignores the notification's own status field and adopts the
// authenticated status query's result as canonical.
func (g *PSBGateway) ProcessWebhook(ctx context.Context, event *domain.WebhookEvent, txnID string) (domain.PaymentStatus, error) {
	if txnID == "" {
		txnID = event.Param("txnId")
	}
	if txnID == "" {
		return "", apperror.Validation("notification carries no transaction id")
	}
	return g.GetPaymentStatus(ctx, txnID)
}

type psbStatusResponse struct {
	State        string `json:"state"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

var psbStates = map[string]domain.PaymentStatus{
	"CREATED":     domain.PaymentStatusPending,
	"IN_PROGRESS": domain.PaymentStatusProcessing,
	"PAID":        domain.PaymentStatusCompleted,
	"DECLINED":    domain.PaymentStatusFailed,
	"CANCELLED":   domain.PaymentStatusCancelled,
	"REFUNDED":    domain.PaymentStatusRefunded,
}

// GetPaymentStatus queries the authenticated status endpoint.
func (g *PSBGateway) GetPaymentStatus(ctx context.Context, txnID string) (domain.PaymentStatus, error) {
	var resp psbStatusResponse
	res, err := g.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"login":    g.login,
			"password": g.password,
			"txnId":    txnID,
		}).
		SetResult(&resp).
		Post("/status")
	if err != nil {
		return "", apperror.GatewayUnreachable(string(domain.ProviderPSB), err)
	}
	if res.IsError() {
		return "", apperror.GatewayError(string(domain.ProviderPSB), res.Status(), "status query rejected")
	}
	if resp.ErrorCode != "" && resp.ErrorCode != "0" {
		return "", apperror.GatewayError(string(domain.ProviderPSB), resp.ErrorCode, resp.ErrorMessage)
	}
	status, ok := psbStates[resp.State]
	if !ok {
		return "", apperror.GatewayError(string(domain.ProviderPSB), "?", fmt.Sprintf("unknown state %q", resp.State))
	}
	return status, nil
}
