package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/middleware"
	"github.com/lalith-99/linegate/internal/models"
	"github.com/lalith-99/linegate/internal/platform/line"
	"github.com/lalith-99/linegate/internal/repository"
	"github.com/lalith-99/linegate/internal/service"
	"github.com/lalith-99/linegate/internal/vault"
	"go.uber.org/zap"
)

type ChannelConfigurator interface {
	SetChannelConfig(ctx context.Context, tenantID uuid.UUID, in service.ChannelConfigInput) (*service.SetChannelConfigResult, error)
	GetPublicChannelConfig(ctx context.Context, tenantID uuid.UUID) (models.PublicChannelConfig, error)
	TestConnection(ctx context.Context, tenantID uuid.UUID) service.ConnectionResult
	DeleteChannelConfig(ctx context.Context, tenantID uuid.UUID) error
}

type MessageSender interface {
	Execute(ctx context.Context, tenantID uuid.UUID, recipientID, text string) error
}

// IntegrationHandler serves the tenant admin routes under
// /v1/integrations/line. The tenant always comes from the JWT.
type IntegrationHandler struct {
	configs ChannelConfigurator
	sender  MessageSender
	logger  *zap.Logger
}

func NewIntegrationHandler(configs ChannelConfigurator, sender MessageSender, logger *zap.Logger) *IntegrationHandler {
	return &IntegrationHandler{configs: configs, sender: sender, logger: logger}
}

// Put handles PUT /v1/integrations/line
func (h *IntegrationHandler) Put(c *gin.Context) {
	var req service.ChannelConfigInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	tenantID := middleware.GetTenantID(c)
	res, err := h.configs.SetChannelConfig(c.Request.Context(), tenantID, req)
	if err != nil {
		var v *service.ValidationError
		switch {
		case errors.As(err, &v):
			c.JSON(http.StatusBadRequest, gin.H{"error": v.Error()})
		case errors.Is(err, vault.ErrBotAlreadyLinked):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusConflict, gin.H{"error": "channel config was removed while saving"})
		default:
			h.logger.Error("failed to save channel config", zap.String("tenant_id", tenantID.String()), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save channel config"})
		}
		return
	}

	c.JSON(http.StatusOK, res)
}

// Get handles GET /v1/integrations/line
func (h *IntegrationHandler) Get(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	cfg, err := h.configs.GetPublicChannelConfig(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("failed to get channel config", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get channel config"})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// Delete handles DELETE /v1/integrations/line
func (h *IntegrationHandler) Delete(c *gin.Context) {
	tenantID := middleware.GetTenantID(c)

	if err := h.configs.DeleteChannelConfig(c.Request.Context(), tenantID); err != nil {
		h.logger.Error("failed to delete channel config", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete channel config"})
		return
	}

	c.Status(http.StatusNoContent)
}

// Test handles POST /v1/integrations/line/test. Failures are reported in the
// body with 200.
func (h *IntegrationHandler) Test(c *gin.Context) {
	c.JSON(http.StatusOK, h.configs.TestConnection(c.Request.Context(), middleware.GetTenantID(c)))
}

type sendMessageRequest struct {
	To   string `json:"to" binding:"required"`
	Text string `json:"text" binding:"required"`
}

// SendMessage handles POST /v1/integrations/line/messages
func (h *IntegrationHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to and text are required"})
		return
	}

	tenantID := middleware.GetTenantID(c)
	err := h.sender.Execute(c.Request.Context(), tenantID, req.To, req.Text)
	if err == nil {
		c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
		return
	}

	var v *service.ValidationError
	var upErr *line.UpstreamError
	switch {
	case errors.As(err, &v):
		c.JSON(http.StatusBadRequest, gin.H{"error": v.Error()})
	case errors.Is(err, line.ErrConfigurationMissing):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, line.ErrRateLimitExhausted):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "platform rate limit exceeded"})
	case errors.As(err, &upErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": upErr.Error()})
	default:
		h.logger.Error("failed to send message", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to send message"})
	}
}
