// Package vault stores each tenant's channel secret and access token
// encrypted at rest and hands out decrypted copies on demand.
//
// Nothing decrypted is cached: every Get opens the stored values again, so a
// rotated credential takes effect on the next call.
package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/models"
	"github.com/lalith-99/linegate/internal/repository"
)

// ErrBotAlreadyLinked is returned when a bot identifier is already owned by
// another tenant. Two tenants cannot share one channel.
var ErrBotAlreadyLinked = errors.New("bot is already linked to another tenant")

type Vault struct {
	repo   repository.CredentialRepository
	cipher *Cipher
}

func New(repo repository.CredentialRepository, cipher *Cipher) *Vault {
	return &Vault{repo: repo, cipher: cipher}
}

// Set encrypts secret and token and stores them with the public channel id.
// An existing configuration is overwritten and its bot identifier cleared.
func (v *Vault) Set(ctx context.Context, tenantID uuid.UUID, secret, token, channelID string) error {
	encSecret, err := v.cipher.Encrypt(secret)
	if err != nil {
		return fmt.Errorf("encrypt channel secret: %w", err)
	}
	encToken, err := v.cipher.Encrypt(token)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}

	return v.repo.Upsert(ctx, models.ChannelCredential{
		TenantID:               tenantID,
		ChannelIdentifier:      channelID,
		ChannelSecretEncrypted: encSecret,
		AccessTokenEncrypted:   encToken,
	})
}

// Get returns the decrypted credential, or nil, nil when the tenant has not
// configured the integration. Corrupted values return an error wrapping
// ErrDecryptionFailure.
func (v *Vault) Get(ctx context.Context, tenantID uuid.UUID) (*models.ChannelSecrets, error) {
	cred, err := v.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, nil
	}

	secret, err := v.cipher.Decrypt(cred.ChannelSecretEncrypted)
	if err != nil {
		return nil, fmt.Errorf("tenant %s channel secret: %w", tenantID, err)
	}
	token, err := v.cipher.Decrypt(cred.AccessTokenEncrypted)
	if err != nil {
		return nil, fmt.Errorf("tenant %s access token: %w", tenantID, err)
	}

	return &models.ChannelSecrets{
		TenantID:          cred.TenantID,
		ChannelIdentifier: cred.ChannelIdentifier,
		ChannelSecret:     secret,
		AccessToken:       token,
		BotIdentifier:     cred.BotIdentifier,
	}, nil
}

// GetPublic reports what the admin UI may see. It never decrypts.
func (v *Vault) GetPublic(ctx context.Context, tenantID uuid.UUID) (models.PublicChannelConfig, error) {
	cred, err := v.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		return models.PublicChannelConfig{}, err
	}
	if cred == nil {
		return models.PublicChannelConfig{IsConfigured: false}, nil
	}

	updatedAt := cred.UpdatedAt
	return models.PublicChannelConfig{
		ChannelIdentifier: cred.ChannelIdentifier,
		BotIdentifier:     cred.BotIdentifier,
		IsConfigured:      true,
		UpdatedAt:         &updatedAt,
	}, nil
}

func (v *Vault) SetBotIdentifier(ctx context.Context, tenantID uuid.UUID, botID string) error {
	err := v.repo.SetBotIdentifier(ctx, tenantID, botID)
	if errors.Is(err, repository.ErrUniqueViolation) {
		return ErrBotAlreadyLinked
	}
	return err
}

// TenantForBot looks up the owner of a bot identifier via the plaintext
// index column.
func (v *Vault) TenantForBot(ctx context.Context, botID string) (uuid.UUID, bool, error) {
	return v.repo.FindTenantByBot(ctx, botID)
}

func (v *Vault) Delete(ctx context.Context, tenantID uuid.UUID) error {
	return v.repo.Delete(ctx, tenantID)
}
