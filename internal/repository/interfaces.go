package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/models"
)

// Every method takes ctx first and is scoped by tenantID wherever a tenant is
// known. FindTenantByBot is the one lookup that runs before a tenant is known:
// it is how an inbound webhook gets routed.

// CredentialRepository stores encrypted channel credentials. It never sees
// plaintext secrets; encryption happens in the vault.
type CredentialRepository interface {
	// Upsert creates or overwrites the tenant's credential row. Overwriting
	// clears the bot identifier.
	Upsert(ctx context.Context, cred models.ChannelCredential) error

	// GetByTenant returns the tenant's row. Returns nil, nil if not configured.
	GetByTenant(ctx context.Context, tenantID uuid.UUID) (*models.ChannelCredential, error)

	// FindTenantByBot returns the tenant owning botID. Returns uuid.Nil, false,
	// nil when no tenant owns it.
	FindTenantByBot(ctx context.Context, botID string) (uuid.UUID, bool, error)

	// SetBotIdentifier records the bot user id. Returns ErrUniqueViolation
	// (wrapped) when another tenant already owns botID.
	SetBotIdentifier(ctx context.Context, tenantID uuid.UUID, botID string) error

	// Delete hard-deletes the row. No-op if absent.
	Delete(ctx context.Context, tenantID uuid.UUID) error
}

// ContactSync is the boundary into the CRM's contact store.
type ContactSync interface {
	// UpsertByExternalID creates or refreshes the contact linked to the
	// platform user and returns its id.
	UpsertByExternalID(ctx context.Context, tenantID uuid.UUID, externalUserID, displayName, pictureURL string, status models.LinkStatus) (uuid.UUID, error)

	// SetLinkStatus updates the link status of an existing contact. Returns
	// false when no contact is linked to externalUserID.
	SetLinkStatus(ctx context.Context, tenantID uuid.UUID, externalUserID string, status models.LinkStatus) (bool, error)
}
