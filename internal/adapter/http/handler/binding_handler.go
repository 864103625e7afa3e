package handler

import (
	"paygate/internal/adapter/http/dto"
	"paygate/internal/core/ports"
	"paygate/pkg/apperror"
	"paygate/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BindingHandler exposes stored-card binding operations.
type BindingHandler struct {
	orchestrator ports.PaymentOrchestrator
}

// NewBindingHandler creates a new BindingHandler.
func NewBindingHandler(orchestrator ports.PaymentOrchestrator) *BindingHandler {
	return &BindingHandler{orchestrator: orchestrator}
}

// List handles GET /api/v1/bindings?gateway_id=&client_id=.
func (h *BindingHandler) List(c *gin.Context) {
	gatewayID, err := uuid.Parse(c.Query("gateway_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid gateway_id"))
		return
	}
	clientID := c.Query("client_id")
	if clientID == "" {
		response.Error(c, apperror.Validation("client_id is required"))
		return
	}

	bindings, err := h.orchestrator.ListBindings(c.Request.Context(), gatewayID, clientID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"bindings": bindings})
}

// Unbind handles DELETE /api/v1/bindings/:binding_id?gateway_id=.
func (h *BindingHandler) Unbind(c *gin.Context) {
	gatewayID, err := uuid.Parse(c.Query("gateway_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid gateway_id"))
		return
	}

	if err := h.orchestrator.Unbind(c.Request.Context(), gatewayID, c.Param("binding_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": true})
}

// Pay handles POST /api/v1/bindings/pay.
func (h *BindingHandler) Pay(c *gin.Context) {
	var req dto.PayWithBindingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	record, err := h.orchestrator.PayWithBinding(c.Request.Context(), req.PaymentID, req.BindingID, req.CVC)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromPayment(record))
}
