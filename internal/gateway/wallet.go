package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"paygate/internal/core/domain"
	"paygate/internal/core/ports"
	"paygate/pkg/apperror"
)

// Wallet is the redirect-form wallet provider. Initiation never calls out:
// the caller's browser POSTs the returned form to the provider. State is
// known only through notifications; there is no status-query endpoint.
//
// Notifications come in two kinds: an unsigned precheck (informational) and
// a confirmation carrying a checksum over a fixed field sequence keyed with
// the shared secret.
const (
	walletDefaultFormURL = "https://pay.wallet.ru/merchant/payment"
	walletCurrency       = "RUB"
	walletChecksumSep    = ";"
)

type walletConfig struct {
	Account   string `json:"account"`
	SecretKey string `json:"secret_key"`
	FormURL   string `json:"form_url"`
}

// WalletGateway implements ports.Gateway for the wallet provider.
type WalletGateway struct {
	cfg walletConfig
}

// NewWalletGateway validates the config and builds the adapter.
func NewWalletGateway(gc *domain.GatewayConfig) (*WalletGateway, error) {
	var cfg walletConfig
	if err := decodeConfig(gc.Config, &cfg); err != nil {
		return nil, apperror.Configuration(string(domain.ProviderWallet), "config", "cannot be decoded")
	}
	if cfg.Account == "" {
		return nil, apperror.Configuration(string(domain.ProviderWallet), "account", "is required")
	}
	if cfg.SecretKey == "" {
		return nil, apperror.Configuration(string(domain.ProviderWallet), "secret_key", "is required")
	}
	if cfg.FormURL == "" {
		cfg.FormURL = walletDefaultFormURL
	}
	return &WalletGateway{cfg: cfg}, nil
}

func (g *WalletGateway) Type() domain.ProviderType { return domain.ProviderWallet }

// InitiatePayment returns the form the browser must POST to the provider.
func (g *WalletGateway) InitiatePayment(_ context.Context, order *domain.PaymentOrder) (*ports.InitiationResult, error) {
	if order.Currency != walletCurrency {
		return nil, apperror.Validationf("wallet gateway accepts %s only, got %s", walletCurrency, order.Currency)
	}
	fields := map[string]string{
		"account":     g.cfg.Account,
		"amount":      fmt.Sprintf("%.2f", order.Amount),
		"bill_number": order.OrderNumber,
		"description": order.Description,
		"success_url": order.ReturnURL,
		"fail_url":    order.CancelURL,
	}
	if order.CustomerEmail != "" {
		fields["email"] = order.CustomerEmail
	}
	return &ports.InitiationResult{
		FormAction: g.cfg.FormURL,
		FormMethod: "POST",
		FormFields: fields,
	}, nil
}

// walletChecksumFields is the exact field order the confirmation digest
// covers. The shared secret is spliced in as the keying field.
var walletChecksumFields = []string{"account", "amount", "bill_number", "payer_account", "txn_id", "txn_date"}

// checksum recomputes the confirmation digest from notification params.
func (g *WalletGateway) checksum(event *domain.WebhookEvent) (string, error) {
	values := make([]string, 0, len(walletChecksumFields)+1)
	for i, key := range walletChecksumFields {
		if !event.HasParam(key) {
			return "", fmt.Errorf("missing field %q", key)
		}
		values = append(values, event.Param(key))
		if i == 1 { // secret follows account and amount
			values = append(values, g.cfg.SecretKey)
		}
	}
	sum := sha256.Sum256([]byte(strings.Join(values, walletChecksumSep)))
	return hex.EncodeToString(sum[:]), nil
}

// VerifyWebhook accepts prechecks as informational and confirmations only
// when the recomputed digest matches, case-insensitively.
func (g *WalletGateway) VerifyWebhook(_ context.Context, event *domain.WebhookEvent) (*ports.VerificationResult, error) {
	if event.Param("precheck") == "1" {
		return &ports.VerificationResult{OK: true, Precheck: true}, nil
	}

	received := event.Param("checksum")
	if received == "" {
		return &ports.VerificationResult{OK: false, Reason: "missing checksum"}, nil
	}
	expected, err := g.checksum(event)
	if err != nil {
		return &ports.VerificationResult{OK: false, Reason: err.Error()}, nil
	}
	if !strings.EqualFold(expected, received) {
		return &ports.VerificationResult{OK: false, Reason: "checksum mismatch"}, nil
	}
	return &ports.VerificationResult{OK: true}, nil
}

// ProcessWebhook maps a verified notification to the canonical status. A
// precheck leaves the payment pending; a confirmation means the wallet has
// been charged.
func (g *WalletGateway) ProcessWebhook(_ context.Context, event *domain.WebhookEvent, _ string) (domain.PaymentStatus, error) {
	if event.Param("precheck") == "1" {
		return domain.PaymentStatusPending, nil
	}
	return domain.PaymentStatusCompleted, nil
}

// GetPaymentStatus is unavailable: the provider publishes no status-query
// endpoint, so payment state is known only through its notifications.
func (g *WalletGateway) GetPaymentStatus(context.Context, string) (domain.PaymentStatus, error) {
	return "", apperror.UnsupportedOperation("getPaymentStatus")
}
