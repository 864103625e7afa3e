package handler

import (
	"context"
	"errors"
	"io"

	"paygate/internal/adapter/http/dto"
	"paygate/internal/adapter/http/middleware"
	"paygate/internal/core/domain"
	"paygate/internal/core/ports"
	"paygate/pkg/apperror"
	"paygate/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentHandler exposes payment initiation and the post-payment operations.
type PaymentHandler struct {
	orchestrator ports.PaymentOrchestrator
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(orchestrator ports.PaymentOrchestrator) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator}
}

// Initiate handles POST /api/v1/payments.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req dto.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	outcome, err := h.orchestrator.InitiatePayment(c.Request.Context(), req.ToParams(middleware.AdminID(c)))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.InitiationResponse{
		Payment: dto.FromPayment(outcome.Payment),
		Result:  outcome.Result,
	})
}

// Refund handles POST /api/v1/payments/:id/refund.
func (h *PaymentHandler) Refund(c *gin.Context) {
	h.amountOperation(c, h.orchestrator.Refund)
}

// Deposit handles POST /api/v1/payments/:id/deposit.
func (h *PaymentHandler) Deposit(c *gin.Context) {
	h.amountOperation(c, h.orchestrator.Deposit)
}

// Reverse handles POST /api/v1/payments/:id/reverse.
func (h *PaymentHandler) Reverse(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	record, err := h.orchestrator.Reverse(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromPayment(record))
}

type amountOp func(ctx context.Context, paymentID uuid.UUID, amount *float64) (*domain.PaymentRecord, error)

// amountOperation is the shared body of refund and deposit: both take an
// optional amount and default to the full remaining/authorized amount.
func (h *PaymentHandler) amountOperation(c *gin.Context, op amountOp) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	var req dto.AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	record, err := op(c.Request.Context(), id, req.Amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromPayment(record))
}
