// Package service holds the admin-facing operations on a tenant's LINE
// integration and the outbound send action used by workflows.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/models"
	"go.uber.org/zap"
)

// ValidationError is returned for caller input that can never succeed.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// CredentialStore is the part of the vault the admin operations need.
type CredentialStore interface {
	Set(ctx context.Context, tenantID uuid.UUID, secret, token, channelID string) error
	GetPublic(ctx context.Context, tenantID uuid.UUID) (models.PublicChannelConfig, error)
	SetBotIdentifier(ctx context.Context, tenantID uuid.UUID, botID string) error
	Delete(ctx context.Context, tenantID uuid.UUID) error
}

type BotInfoFetcher interface {
	GetBotInfo(ctx context.Context, tenantID uuid.UUID) (*models.BotInfo, error)
}

type ChannelConfigInput struct {
	ChannelID     string `json:"channel_id"`
	ChannelSecret string `json:"channel_secret"`
	AccessToken   string `json:"access_token"`
}

func (in ChannelConfigInput) validate() error {
	switch {
	case strings.TrimSpace(in.ChannelID) == "":
		return &ValidationError{Field: "channel_id", Message: "is required"}
	case strings.TrimSpace(in.ChannelSecret) == "":
		return &ValidationError{Field: "channel_secret", Message: "is required"}
	case strings.TrimSpace(in.AccessToken) == "":
		return &ValidationError{Field: "access_token", Message: "is required"}
	}
	return nil
}

// SetChannelConfigResult reports the stored configuration. Warning is set
// when the credential was stored but the bot identifier could not be
// resolved, which leaves inbound webhooks unroutable until the next save.
type SetChannelConfigResult struct {
	Config  models.PublicChannelConfig `json:"config"`
	Warning string                     `json:"warning,omitempty"`
}

// ConnectionResult is what TestConnection reports to the admin UI.
type ConnectionResult struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Bot     *models.BotInfo `json:"bot,omitempty"`
}

type ChannelConfigService struct {
	creds  CredentialStore
	bots   BotInfoFetcher
	logger *zap.Logger
}

func NewChannelConfigService(creds CredentialStore, bots BotInfoFetcher, logger *zap.Logger) *ChannelConfigService {
	return &ChannelConfigService{
		creds:  creds,
		bots:   bots,
		logger: logger.With(zap.String("component", "channel_config")),
	}
}

// SetChannelConfig stores the credential, then asks the platform which bot it
// belongs to so inbound webhooks can be routed. A bot already linked to a
// different tenant is returned as an error; the credential stays stored.
func (s *ChannelConfigService) SetChannelConfig(ctx context.Context, tenantID uuid.UUID, in ChannelConfigInput) (*SetChannelConfigResult, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	channelID := strings.TrimSpace(in.ChannelID)
	if err := s.creds.Set(ctx, tenantID, strings.TrimSpace(in.ChannelSecret), strings.TrimSpace(in.AccessToken), channelID); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}

	log := s.logger.With(zap.String("tenant_id", tenantID.String()), zap.String("channel_id", channelID))
	result := &SetChannelConfigResult{}

	info, err := s.bots.GetBotInfo(ctx, tenantID)
	if err != nil {
		log.Warn("bot info lookup failed, bot identifier left empty", zap.Error(err))
		result.Warning = "credential saved but the bot could not be identified; webhooks will not be routed until the configuration is saved again"
	} else {
		if err := s.creds.SetBotIdentifier(ctx, tenantID, info.UserID); err != nil {
			log.Error("bot identifier not recorded", zap.String("bot_id", info.UserID), zap.Error(err))
			return nil, err
		}
		log.Info("channel configured", zap.String("bot_id", info.UserID))
	}

	pub, err := s.creds.GetPublic(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("read back config: %w", err)
	}
	result.Config = pub
	return result, nil
}

func (s *ChannelConfigService) GetPublicChannelConfig(ctx context.Context, tenantID uuid.UUID) (models.PublicChannelConfig, error) {
	return s.creds.GetPublic(ctx, tenantID)
}

// TestConnection never returns an error: every failure, including an
// undecryptable credential, is reported in the result.
func (s *ChannelConfigService) TestConnection(ctx context.Context, tenantID uuid.UUID) ConnectionResult {
	info, err := s.bots.GetBotInfo(ctx, tenantID)
	if err != nil {
		s.logger.Warn("connection test failed",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		return ConnectionResult{Success: false, Error: describe(err)}
	}
	return ConnectionResult{Success: true, Bot: info}
}

func (s *ChannelConfigService) DeleteChannelConfig(ctx context.Context, tenantID uuid.UUID) error {
	if err := s.creds.Delete(ctx, tenantID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	s.logger.Info("channel unlinked", zap.String("tenant_id", tenantID.String()))
	return nil
}
