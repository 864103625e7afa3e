package handler

import (
	"strconv"

	"paygate/internal/adapter/http/dto"
	"paygate/internal/core/domain"
	"paygate/internal/core/ports"
	"paygate/pkg/apperror"
	"paygate/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GatewayConfigHandler exposes CRUD over provider configurations. All
// responses carry masked secrets.
type GatewayConfigHandler struct {
	store ports.GatewayConfigStore
}

// NewGatewayConfigHandler creates a new GatewayConfigHandler.
func NewGatewayConfigHandler(store ports.GatewayConfigStore) *GatewayConfigHandler {
	return &GatewayConfigHandler{store: store}
}

// List handles GET /api/v1/gateways?type=&enabled=&test_mode=.
func (h *GatewayConfigHandler) List(c *gin.Context) {
	var filter ports.GatewayConfigFilter
	if t := c.Query("type"); t != "" {
		pt := domain.ProviderType(t)
		filter.Type = &pt
	}
	if v, ok := parseBoolQuery(c, "enabled"); ok {
		filter.Enabled = &v
	}
	if v, ok := parseBoolQuery(c, "test_mode"); ok {
		filter.TestMode = &v
	}

	configs, err := h.store.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"gateways": configs})
}

// Get handles GET /api/v1/gateways/:id.
func (h *GatewayConfigHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid gateway id"))
		return
	}

	cfg, err := h.store.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, cfg)
}

// Create handles POST /api/v1/gateways.
func (h *GatewayConfigHandler) Create(c *gin.Context) {
	var req dto.GatewayConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	created, err := h.store.Create(c.Request.Context(), req.ToDomain())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Update handles PUT /api/v1/gateways/:id.
func (h *GatewayConfigHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid gateway id"))
		return
	}

	var req dto.GatewayConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	cfg := req.ToDomain()
	cfg.ID = id
	updated, err := h.store.Update(c.Request.Context(), cfg)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, updated)
}

// Delete handles DELETE /api/v1/gateways/:id.
func (h *GatewayConfigHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid gateway id"))
		return
	}

	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"deleted": true})
}

func parseBoolQuery(c *gin.Context, name string) (bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
