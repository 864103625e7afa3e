package handler

import (
	"errors"
	"io"
	"net/http"

	"paygate/internal/core/domain"
	"paygate/internal/core/ports"
	"paygate/pkg/apperror"
	"paygate/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// WebhookHandler receives provider notifications and renders the
// acknowledgement in each provider's mandated shape.
type WebhookHandler struct {
	processor ports.WebhookProcessor
	log       zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(processor ports.WebhookProcessor, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, log: log}
}

// Receive handles POST /webhooks/:provider.
func (h *WebhookHandler) Receive(c *gin.Context) {
	provider := domain.ProviderType(c.Param("provider"))
	if !provider.Valid() {
		response.Error(c, apperror.NotFound("provider"))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.renderAck(c, provider, nil, apperror.Validation("cannot read request body"))
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for k := range c.Request.Header {
		headers[k] = c.Request.Header.Get(k)
	}

	ack, err := h.processor.Process(c.Request.Context(), ports.InboundNotification{
		Provider:    provider,
		Body:        body,
		ContentType: c.ContentType(),
		Headers:     headers,
		RemoteAddr:  c.ClientIP(),
	})
	h.renderAck(c, provider, ack, err)
}

// renderAck answers in the shape the provider retries against. Internal
// failures stay non-200 so the provider redelivers; everything else is
// acknowledged to stop redelivery.
func (h *WebhookHandler) renderAck(c *gin.Context, provider domain.ProviderType, ack *ports.Acknowledgement, err error) {
	status := http.StatusOK
	success := err == nil && ack != nil && ack.Success
	var canonical domain.PaymentStatus
	if ack != nil {
		canonical = ack.Status
	}

	if err != nil {
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) || appErr.Code == "SYS_001" {
			h.log.Error().Err(err).Str("provider", string(provider)).Msg("webhook processing failed")
			status = http.StatusInternalServerError
		} else {
			h.log.Warn().Err(err).Str("provider", string(provider)).Msg("webhook rejected")
		}
	}

	if provider == domain.ProviderWallet {
		answer := "ERR"
		if success {
			answer = "OK"
		}
		c.String(status, answer)
		return
	}

	payload := gin.H{"success": success}
	if canonical != "" {
		payload["status"] = string(canonical)
	}
	c.JSON(status, payload)
}
