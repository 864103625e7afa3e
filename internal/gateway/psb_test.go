package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"paygate/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPSBServer(t *testing.T, handler func(path string, body map[string]any) any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handler(r.URL.Path, body))
	}))
}

func newPSBGatewayAt(t *testing.T, baseURL string, testMode bool) *PSBGateway {
	t.Helper()
	g, err := NewPSBGateway(&domain.GatewayConfig{
		Type:     domain.ProviderPSB,
		TestMode: testMode,
		Config: map[string]any{
			"login":         "merchant",
			"password":      "prod-pass",
			"test_login":    "merchant-test",
			"test_password": "test-pass",
			"base_url":      baseURL,
		},
	})
	require.NoError(t, err)
	return g
}

func TestPSBGateway_Register(t *testing.T) {
	var got map[string]any
	srv := newPSBServer(t, func(path string, body map[string]any) any {
		assert.Equal(t, "/register", path)
		got = body
		return map[string]any{"txnId": "t-100", "formUrl": "https://psb.test/pay/t-100"}
	})
	defer srv.Close()

	g := newPSBGatewayAt(t, srv.URL, false)
	res, err := g.InitiatePayment(context.Background(), &domain.PaymentOrder{
		OrderNumber: "ORD-5",
		Amount:      99.99,
		Currency:    "RUB",
	})
	require.NoError(t, err)

	assert.Equal(t, "t-100", res.ProviderTxnID)
	assert.Equal(t, "https://psb.test/pay/t-100", res.RedirectURL)
	assert.Equal(t, "merchant", got["login"])
	assert.Equal(t, float64(9999), got["amount"])
	assert.Equal(t, "643", got["currency"])
}

func TestPSBGateway_TestModeCredentials(t *testing.T) {
	var got map[string]any
	srv := newPSBServer(t, func(_ string, body map[string]any) any {
		got = body
		return map[string]any{"txnId": "t-1", "formUrl": "https://psb.test/pay/t-1"}
	})
	defer srv.Close()

	g := newPSBGatewayAt(t, srv.URL, true)
	_, err := g.InitiatePayment(context.Background(), &domain.PaymentOrder{
		OrderNumber: "ORD-6", Amount: 1, Currency: "RUB",
	})
	require.NoError(t, err)
	assert.Equal(t, "merchant-test", got["login"])
	assert.Equal(t, "test-pass", got["password"])
}

func TestPSBGateway_RegisterRejected(t *testing.T) {
	srv := newPSBServer(t, func(string, map[string]any) any {
		return map[string]any{"errorCode": "12", "errorMessage": "duplicate order"}
	})
	defer srv.Close()

	g := newPSBGatewayAt(t, srv.URL, false)
	_, err := g.InitiatePayment(context.Background(), &domain.PaymentOrder{
		OrderNumber: "ORD-7", Amount: 1, Currency: "RUB",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate order")
}

func TestPSBGateway_ProcessWebhookTrustsQuery(t *testing.T) {
	srv := newPSBServer(t, func(path string, body map[string]any) any {
		assert.Equal(t, "/status", path)
		assert.Equal(t, "t-100", body["txnId"])
		assert.Equal(t, "prod-pass", body["password"])
		return map[string]any{"state": "PAID"}
	})
	defer srv.Close()

	g := newPSBGatewayAt(t, srv.URL, false)
	event := &domain.WebhookEvent{
		Provider: domain.ProviderPSB,
		Params:   map[string]string{"txnId": "t-100", "state": "DECLINED"},
	}
	status, err := g.ProcessWebhook(context.Background(), event, "")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, status)
}

func TestPSBGateway_StatusMapping(t *testing.T) {
	states := map[string]domain.PaymentStatus{
		"CREATED":     domain.PaymentStatusPending,
		"IN_PROGRESS": domain.PaymentStatusProcessing,
		"PAID":        domain.PaymentStatusCompleted,
		"DECLINED":    domain.PaymentStatusFailed,
		"CANCELLED":   domain.PaymentStatusCancelled,
		"REFUNDED":    domain.PaymentStatusRefunded,
	}
	for state, want := range states {
		srv := newPSBServer(t, func(string, map[string]any) any {
			return map[string]any{"state": state}
		})
		g := newPSBGatewayAt(t, srv.URL, false)
		got, err := g.GetPaymentStatus(context.Background(), "t-1")
		srv.Close()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestPSBGateway_UnknownState(t *testing.T) {
	srv := newPSBServer(t, func(string, map[string]any) any {
		return map[string]any{"state": "LIMBO"}
	})
	defer srv.Close()

	g := newPSBGatewayAt(t, srv.URL, false)
	_, err := g.GetPaymentStatus(context.Background(), "t-1")
	assert.Error(t, err)
}
