package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/linegate/internal/models"
	"github.com/lalith-99/linegate/internal/repository"
)

var _ repository.CredentialRepository = (*CredentialStore)(nil)

type CredentialStore struct {
	db DBTX
}

func NewCredentialStore(db DBTX) *CredentialStore {
	return &CredentialStore{db: db}
}

// Upsert writes the tenant's credential row. On overwrite the bot identifier
// is reset to NULL: the new token may belong to a different bot, and the
// caller repopulates it from the bot-info API.
func (s *CredentialStore) Upsert(ctx context.Context, cred models.ChannelCredential) error {
	query := `
		INSERT INTO tenant_channel_credentials
			(tenant_id, channel_identifier, channel_secret_encrypted, access_token_encrypted, bot_identifier, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULL, now(), now())
		ON CONFLICT (tenant_id) DO UPDATE SET
			channel_identifier       = EXCLUDED.channel_identifier,
			channel_secret_encrypted = EXCLUDED.channel_secret_encrypted,
			access_token_encrypted   = EXCLUDED.access_token_encrypted,
			bot_identifier           = NULL,
			updated_at               = now()`

	_, err := s.db.Exec(ctx, query,
		cred.TenantID,
		cred.ChannelIdentifier,
		cred.ChannelSecretEncrypted,
		cred.AccessTokenEncrypted,
	)
	if err != nil {
		return fmt.Errorf("upsert channel credential: %w", err)
	}
	return nil
}

func (s *CredentialStore) GetByTenant(ctx context.Context, tenantID uuid.UUID) (*models.ChannelCredential, error) {
	query := `
		SELECT tenant_id, channel_identifier, channel_secret_encrypted, access_token_encrypted,
		       COALESCE(bot_identifier, ''), created_at, updated_at
		FROM tenant_channel_credentials
		WHERE tenant_id = $1`

	var c models.ChannelCredential
	err := s.db.QueryRow(ctx, query, tenantID).Scan(
		&c.TenantID,
		&c.ChannelIdentifier,
		&c.ChannelSecretEncrypted,
		&c.AccessTokenEncrypted,
		&c.BotIdentifier,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel credential: %w", err)
	}
	return &c, nil
}

// FindTenantByBot hits the unique index on bot_identifier.
func (s *CredentialStore) FindTenantByBot(ctx context.Context, botID string) (uuid.UUID, bool, error) {
	if botID == "" {
		return uuid.Nil, false, nil
	}

	query := `
		SELECT tenant_id
		FROM tenant_channel_credentials
		WHERE bot_identifier = $1`

	var tenantID uuid.UUID
	err := s.db.QueryRow(ctx, query, botID).Scan(&tenantID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, fmt.Errorf("find tenant by bot: %w", err)
	}
	return tenantID, true, nil
}

func (s *CredentialStore) SetBotIdentifier(ctx context.Context, tenantID uuid.UUID, botID string) error {
	query := `
		UPDATE tenant_channel_credentials
		SET bot_identifier = $2, updated_at = now()
		WHERE tenant_id = $1`

	tag, err := s.db.Exec(ctx, query, tenantID, botID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("set bot identifier: %w", repository.ErrUniqueViolation)
		}
		return fmt.Errorf("set bot identifier: %w", err)
	}
	// The row can vanish between Set and here if the config is deleted.
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("set bot identifier: %w", repository.ErrNotFound)
	}
	return nil
}

// Delete is a hard delete so a later re-link does not trip the unique index.
func (s *CredentialStore) Delete(ctx context.Context, tenantID uuid.UUID) error {
	query := `
		DELETE FROM tenant_channel_credentials
		WHERE tenant_id = $1`

	_, err := s.db.Exec(ctx, query, tenantID)
	if err != nil {
		return fmt.Errorf("delete channel credential: %w", err)
	}
	return nil
}
