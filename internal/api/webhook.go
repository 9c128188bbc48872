package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/models"
	"github.com/lalith-99/linegate/internal/vault"
	"github.com/lalith-99/linegate/internal/webhook"
	"go.uber.org/zap"
)

// PlatformLINE is the only platform with a registered intake.
const PlatformLINE = "line"

type TenantResolver interface {
	Resolve(ctx context.Context, botID string) (uuid.UUID, bool, error)
}

type SecretSource interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*models.ChannelSecrets, error)
}

type EventClaimer interface {
	ClaimEvents(ctx context.Context, events []models.WebhookEvent, ttl time.Duration) []models.WebhookEvent
}

type EventSubmitter interface {
	Submit(tenantID uuid.UUID, events []models.WebhookEvent)
}

type WebhookOptions struct {
	IdempotencyTTL time.Duration
	MaxBodyBytes   int64
}

// WebhookHandler is the inbound endpoint the platform POSTs to.
//
// The platform retries any non-2xx response, so the handler answers 200 for
// every condition a retry cannot fix: unknown destinations, missing or
// unreadable credentials, duplicates. Only requests that fail authentication
// or cannot be parsed get 4xx. Side effects happen after the response, on
// the dispatcher.
type WebhookHandler struct {
	router     TenantResolver
	secrets    SecretSource
	claimer    EventClaimer
	dispatcher EventSubmitter
	opts       WebhookOptions
	logger     *zap.Logger
}

func NewWebhookHandler(router TenantResolver, secrets SecretSource, claimer EventClaimer, dispatcher EventSubmitter, opts WebhookOptions, logger *zap.Logger) *WebhookHandler {
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 60 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}
	return &WebhookHandler{
		router:     router,
		secrets:    secrets,
		claimer:    claimer,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger.With(zap.String("component", "webhook")),
	}
}

func ok(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Receive handles POST /webhooks/:platform
func (h *WebhookHandler) Receive(c *gin.Context) {
	if c.Param("platform") != PlatformLINE {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown platform"})
		return
	}

	// The signature covers these exact bytes; nothing below may re-encode them.
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	signature := webhook.SignatureFromHeader(c.Request.Header)
	if signature == "" {
		h.logger.Warn("webhook without signature", zap.String("remote_addr", c.ClientIP()))
		c.JSON(http.StatusForbidden, gin.H{"error": webhook.ErrMissingSignature.Error()})
		return
	}

	var env models.WebhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Destination == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	ctx := c.Request.Context()
	log := h.logger.With(zap.String("destination", env.Destination))

	// Routing precedes verification since the secret is per tenant. Nothing
	// is written on any path until Verify succeeds.
	tenantID, found, err := h.router.Resolve(ctx, env.Destination)
	if err != nil {
		log.Error("tenant lookup failed", zap.Error(err))
		ok(c)
		return
	}
	if !found {
		log.Error("webhook for unknown destination",
			zap.String("severity", "critical"),
			zap.Int("events", len(env.Events)),
		)
		ok(c)
		return
	}
	log = log.With(zap.String("tenant_id", tenantID.String()))

	secrets, err := h.secrets.Get(ctx, tenantID)
	switch {
	case errors.Is(err, vault.ErrDecryptionFailure):
		log.Error("channel secret cannot be decrypted", zap.Error(err))
		ok(c)
		return
	case err != nil:
		log.Error("channel secret lookup failed", zap.Error(err))
		ok(c)
		return
	case secrets == nil:
		log.Error("routed tenant has no channel configuration")
		ok(c)
		return
	}

	if err := webhook.Verify(signature, raw, secrets.ChannelSecret); err != nil {
		log.Warn("webhook signature rejected", zap.String("remote_addr", c.ClientIP()))
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		return
	}

	if len(env.Events) == 0 {
		// The console's "Verify" button sends an empty envelope.
		log.Debug("empty webhook envelope")
		ok(c)
		return
	}

	fresh := h.claimer.ClaimEvents(ctx, env.Events, h.opts.IdempotencyTTL)
	if len(fresh) == 0 {
		log.Info("all events already processed", zap.Int("events", len(env.Events)))
		ok(c)
		return
	}

	ok(c)
	c.Writer.Flush()
	h.dispatcher.Submit(tenantID, fresh)
	log.Debug("events accepted",
		zap.Int("received", len(env.Events)),
		zap.Int("accepted", len(fresh)),
	)
}
