package gateway

import (
	"fmt"

	"paygate/internal/core/domain"
	"paygate/internal/core/ports"
	"paygate/pkg/apperror"
)

// Factory builds provider adapters from decrypted configurations.
type Factory struct{}

// NewFactory creates the adapter factory.
func NewFactory() *Factory { return &Factory{} }

// Build validates cfg for its provider type and constructs the adapter.
// Misconfiguration fails here rather than at first use.
func (f *Factory) Build(cfg *domain.GatewayConfig) (ports.Gateway, error) {
	switch cfg.Type {
	case domain.ProviderWallet:
		return NewWalletGateway(cfg)
	case domain.ProviderPSB:
		return NewPSBGateway(cfg)
	case domain.ProviderUniteller:
		return NewUnitellerGateway(cfg)
	case domain.ProviderRBS:
		return NewRBSGateway(cfg)
	default:
		return nil, apperror.Configuration(string(cfg.Type), "type", fmt.Sprintf("%q is not a supported provider", cfg.Type))
	}
}

// Identifiers extracts the provider transaction id and order number a
// notification carries, using each provider's field names. Either may be
// empty; the webhook processor falls back from one to the other.
func (f *Factory) Identifiers(t domain.ProviderType, event *domain.WebhookEvent) (txnID, orderNumber string) {
	switch t {
	case domain.ProviderWallet:
		return event.Param("txn_id"), event.Param("bill_number")
	case domain.ProviderPSB:
		return event.Param("txnId"), event.Param("orderNumber")
	case domain.ProviderUniteller:
		return event.Param("payment_id"), event.Param("order_id")
	case domain.ProviderRBS:
		txnID = event.Param("orderId")
		if txnID == "" {
			txnID = event.Param("mdOrder")
		}
		return txnID, event.Param("orderNumber")
	}
	return "", ""
}

var _ ports.GatewayFactory = (*Factory)(nil)
