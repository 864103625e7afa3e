package integration

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"paygate/internal/adapter/http/handler"
	redisStorage "paygate/internal/adapter/storage/redis"
	"paygate/internal/core/domain"
	"paygate/internal/core/ports"
	"paygate/internal/gateway"
	"paygate/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// env wires the full service stack over in-memory repositories and a
// miniredis-backed dedup store, exposed through the real router.
type env struct {
	router   *gin.Engine
	configs  *inMemoryConfigRepo
	payments *inMemoryPaymentRepo
	events   *inMemoryEventRepo
	orders   *inMemoryOrderRepo
	tokenSvc *service.JWTTokenService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := &env{
		configs:  newInMemoryConfigRepo(),
		payments: newInMemoryPaymentRepo(),
		events:   newInMemoryEventRepo(),
		orders:   newInMemoryOrderRepo(),
		tokenSvc: service.NewJWTTokenService("integration-secret", time.Hour, "paygate"),
	}

	cipher, err := service.NewEnvelopeCipher("integration-master-key-0123456789")
	require.NoError(t, err)
	factory := gateway.NewFactory()
	log := zerolog.Nop()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	dedup := redisStorage.NewDedupStore(rdb)

	configStore := service.NewGatewayConfigService(e.configs, e.payments, cipher, factory, log)
	orchestrator := service.NewOrchestratorService(configStore, e.payments, e.orders, factory, log)
	webhookSvc := service.NewWebhookService(e.payments, e.events, e.orders, configStore, factory, dedup, log)

	e.router = handler.SetupRouter(handler.RouterDeps{
		Orchestrator: orchestrator,
		ConfigStore:  configStore,
		WebhookSvc:   webhookSvc,
		TokenSvc:     e.tokenSvc,
		Logger:       log,
	})
	return e
}

func (e *env) adminToken(t *testing.T) string {
	t.Helper()
	token, _, err := e.tokenSvc.Generate(uuid.New())
	require.NoError(t, err)
	return token
}

func (e *env) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) createGateway(t *testing.T, token string, payload gin.H) uuid.UUID {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/gateways", token, payload)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Data struct {
			ID uuid.UUID `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data.ID
}

func (e *env) seedOrder(number string, total float64) *ports.Order {
	order := &ports.Order{
		ID:       uuid.New(),
		Number:   number,
		Total:    total,
		Currency: "RUB",
	}
	e.orders.seed(order)
	return order
}

// walletChecksum mirrors the confirmation digest the provider sends: the
// shared secret is spliced in after account and amount.
func walletChecksum(secret string, fields map[string]string) string {
	values := []string{
		fields["account"], fields["amount"], secret,
		fields["bill_number"], fields["payer_account"], fields["txn_id"], fields["txn_date"],
	}
	sum := sha256.Sum256([]byte(strings.Join(values, ";")))
	return hex.EncodeToString(sum[:])
}

func TestGatewayConfigLifecycle(t *testing.T) {
	e := newEnv(t)
	token := e.adminToken(t)

	id := e.createGateway(t, token, gin.H{
		"type":    "wallet",
		"name":    "Wallet main",
		"enabled": true,
		"config":  gin.H{"account": "shop-1", "secret_key": "wallet-secret"},
	})

	// Secrets never leave the store in the clear.
	w := e.do(t, http.MethodGet, "/api/v1/gateways/"+id.String(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"secret_key":"********"`)
	assert.NotContains(t, w.Body.String(), "wallet-secret")

	// Update with the masked value keeps the stored secret intact.
	w = e.do(t, http.MethodPut, "/api/v1/gateways/"+id.String(), token, gin.H{
		"type":    "wallet",
		"name":    "Wallet renamed",
		"enabled": true,
		"config":  gin.H{"account": "shop-1", "secret_key": "********"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Wallet renamed")

	// Stored rows hold ciphertext, not plaintext.
	stored, err := e.configs.GetByID(context.Background(), id)
	require.NoError(t, err)
	secret, _ := stored.Config["secret_key"].(string)
	assert.NotEqual(t, "wallet-secret", secret)
	assert.NotEqual(t, "********", secret)

	// Unreferenced configs delete cleanly.
	w = e.do(t, http.MethodDelete, "/api/v1/gateways/"+id.String(), token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = e.do(t, http.MethodGet, "/api/v1/gateways/"+id.String(), token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWalletPaymentFlow(t *testing.T) {
	e := newEnv(t)
	token := e.adminToken(t)
	gatewayID := e.createGateway(t, token, gin.H{
		"type":    "wallet",
		"name":    "Wallet main",
		"enabled": true,
		"config":  gin.H{"account": "shop-1", "secret_key": "wallet-secret"},
	})
	order := e.seedOrder("ORD-1001", 100.50)

	// Initiation returns the provider form and persists a pending payment.
	w := e.do(t, http.MethodPost, "/api/v1/payments", "", gin.H{
		"order_id":   order.ID,
		"gateway_id": gatewayID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"amount":"100.50"`)
	assert.Contains(t, w.Body.String(), `"status":"pending"`)

	payment, err := e.payments.GetLatestByOrder(context.Background(), domain.ProviderWallet, order.ID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)
	assert.Nil(t, payment.ProviderTxnID)

	// The unsigned precheck is acknowledged but changes nothing.
	resp := e.postForm(t, "/webhooks/wallet", url.Values{
		"precheck":    {"1"},
		"bill_number": {"ORD-1001"},
		"amount":      {"100.50"},
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "OK", resp.Body.String())

	payment, _ = e.payments.GetByID(context.Background(), payment.ID)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)

	// The signed confirmation completes the payment.
	fields := map[string]string{
		"account":       "shop-1",
		"amount":        "100.50",
		"bill_number":   "ORD-1001",
		"payer_account": "79990001122",
		"txn_id":        "W-555",
		"txn_date":      "20260831120000",
	}
	form := url.Values{}
	for k, v := range fields {
		form.Set(k, v)
	}
	form.Set("checksum", walletChecksum("wallet-secret", fields))

	resp = e.postForm(t, "/webhooks/wallet", form)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "OK", resp.Body.String())

	payment, _ = e.payments.GetByID(context.Background(), payment.ID)
	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.ProviderTxnID)
	assert.Equal(t, "W-555", *payment.ProviderTxnID)
	assert.NotNil(t, payment.CompletedAt)

	// Status propagates to the owning order.
	got, _ := e.orders.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.PaymentStatusCompleted, got.PaymentStatus)

	// A replay after settlement is acknowledged with no further effect.
	resp = e.postForm(t, "/webhooks/wallet", form)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "OK", resp.Body.String())

	for id, calls := range e.events.processedCalls {
		assert.Equal(t, 1, calls, "event %s must be marked processed exactly once", id)
	}
	assert.Len(t, e.events.all(), 3)
}

func TestWalletWebhook_BadChecksumRejected(t *testing.T) {
	e := newEnv(t)
	token := e.adminToken(t)
	e.createGateway(t, token, gin.H{
		"type":    "wallet",
		"name":    "Wallet main",
		"enabled": true,
		"config":  gin.H{"account": "shop-1", "secret_key": "wallet-secret"},
	})
	order := e.seedOrder("ORD-2002", 50)

	w := e.do(t, http.MethodPost, "/api/v1/payments", "", gin.H{
		"order_id":     order.ID,
		"gateway_type": "wallet",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := e.postForm(t, "/webhooks/wallet", url.Values{
		"account":       {"shop-1"},
		"amount":        {"50.00"},
		"bill_number":   {"ORD-2002"},
		"payer_account": {"7999"},
		"txn_id":        {"W-1"},
		"txn_date":      {"20260831"},
		"checksum":      {"deadbeef"},
	})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ERR", resp.Body.String())

	payment, _ := e.payments.GetLatestByOrder(context.Background(), domain.ProviderWallet, order.ID)
	assert.Equal(t, domain.PaymentStatusPending, payment.Status)

	events := e.events.all()
	require.Len(t, events, 1)
	require.NotNil(t, events[0].Error)
	assert.Contains(t, *events[0].Error, "checksum mismatch")
}

// rbsStub fakes the acquiring platform endpoints the adapter calls.
func rbsStub(t *testing.T, orderStatus *int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/register.do", func(rw http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "api-user", r.Form.Get("userName"))
		assert.Equal(t, "api-pass", r.Form.Get("password"))
		_ = json.NewEncoder(rw).Encode(map[string]any{
			"orderId": "RBS-900",
			"formUrl": "https://pay.example/form/RBS-900",
		})
	})
	mux.HandleFunc("/getOrderStatusExtended.do", func(rw http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(rw).Encode(map[string]any{"orderStatus": *orderStatus})
	})
	mux.HandleFunc("/refund.do", func(rw http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "RBS-900", r.Form.Get("orderId"))
		_ = json.NewEncoder(rw).Encode(map[string]any{"errorCode": "0"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRBSPaymentAndRefundFlow(t *testing.T) {
	e := newEnv(t)
	token := e.adminToken(t)

	orderStatus := 0
	stub := rbsStub(t, &orderStatus)

	e.createGateway(t, token, gin.H{
		"type":    "rbs",
		"bank":    "alfabank",
		"name":    "Alfabank acquiring",
		"enabled": true,
		"config": gin.H{
			"user_name": "api-user",
			"password":  "api-pass",
			"base_url":  stub.URL,
		},
	})
	order := e.seedOrder("ORD-3003", 250)

	w := e.do(t, http.MethodPost, "/api/v1/payments", "", gin.H{
		"order_id":     order.ID,
		"gateway_type": "rbs",
		"bank":         "alfabank",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "https://pay.example/form/RBS-900")

	payment, err := e.payments.GetByProviderTxnID(context.Background(), domain.ProviderRBS, "RBS-900")
	require.NoError(t, err)
	require.NotNil(t, payment)

	// Notification triggers the authenticated status query; the deposited
	// state completes the payment regardless of what the notification claims.
	orderStatus = 2
	resp := e.postForm(t, "/webhooks/rbs", url.Values{
		"orderId": {"RBS-900"},
		"status":  {"0"},
	})
	require.Equal(t, http.StatusOK, resp.Code)
	var ack map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &ack))
	assert.Equal(t, true, ack["success"])
	assert.Equal(t, "completed", ack["status"])

	payment, _ = e.payments.GetByID(context.Background(), payment.ID)
	require.Equal(t, domain.PaymentStatusCompleted, payment.Status)

	// Partial refund keeps the payment completed.
	w = e.do(t, http.MethodPost, "/api/v1/payments/"+payment.ID.String()+"/refund", token, gin.H{"amount": 100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	payment, _ = e.payments.GetByID(context.Background(), payment.ID)
	assert.Equal(t, domain.PaymentStatusCompleted, payment.Status)
	assert.Equal(t, 100.0, payment.RefundedTotal())

	// Refunding the remainder flips it to refunded and propagates.
	w = e.do(t, http.MethodPost, "/api/v1/payments/"+payment.ID.String()+"/refund", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	payment, _ = e.payments.GetByID(context.Background(), payment.ID)
	assert.Equal(t, domain.PaymentStatusRefunded, payment.Status)
	assert.Equal(t, 250.0, payment.RefundedTotal())

	got, _ := e.orders.GetByID(context.Background(), order.ID)
	assert.Equal(t, domain.PaymentStatusRefunded, got.PaymentStatus)

	// Over-refunding is rejected before the provider is called.
	w = e.do(t, http.MethodPost, "/api/v1/payments/"+payment.ID.String()+"/refund", token, gin.H{"amount": 10})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteGatewayInUseConflicts(t *testing.T) {
	e := newEnv(t)
	token := e.adminToken(t)
	gatewayID := e.createGateway(t, token, gin.H{
		"type":    "wallet",
		"name":    "Wallet main",
		"enabled": true,
		"config":  gin.H{"account": "shop-1", "secret_key": "wallet-secret"},
	})
	order := e.seedOrder("ORD-4004", 10)

	w := e.do(t, http.MethodPost, "/api/v1/payments", "", gin.H{
		"order_id":   order.ID,
		"gateway_id": gatewayID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodDelete, "/api/v1/gateways/"+gatewayID.String(), token, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONFLICT_001")
}

func TestDisabledGatewayNotResolvable(t *testing.T) {
	e := newEnv(t)
	token := e.adminToken(t)
	e.createGateway(t, token, gin.H{
		"type":    "wallet",
		"name":    "Wallet disabled",
		"enabled": false,
		"config":  gin.H{"account": "shop-1", "secret_key": "wallet-secret"},
	})
	order := e.seedOrder("ORD-5005", 10)

	w := e.do(t, http.MethodPost, "/api/v1/payments", "", gin.H{
		"order_id":     order.ID,
		"gateway_type": "wallet",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
