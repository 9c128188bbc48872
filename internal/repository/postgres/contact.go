package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/models"
	"github.com/lalith-99/linegate/internal/repository"
)

var _ repository.ContactSync = (*ContactStore)(nil)

// ContactStore implements the contact sync contract against the CRM's
// line_contacts table.
type ContactStore struct {
	db DBTX
}

func NewContactStore(db DBTX) *ContactStore {
	return &ContactStore{db: db}
}

// UpsertByExternalID keys on (tenant_id, external_user_id). An empty picture
// URL never overwrites one already stored.
func (s *ContactStore) UpsertByExternalID(ctx context.Context, tenantID uuid.UUID, externalUserID, displayName, pictureURL string, status models.LinkStatus) (uuid.UUID, error) {
	query := `
		INSERT INTO line_contacts
			(id, tenant_id, external_user_id, external_display_name, external_profile_picture_url, link_status, last_external_interaction_at)
		VALUES (gen_random_uuid(), $1, $2, $3, NULLIF($4, ''), $5, now())
		ON CONFLICT (tenant_id, external_user_id) DO UPDATE SET
			external_display_name        = EXCLUDED.external_display_name,
			external_profile_picture_url = COALESCE(EXCLUDED.external_profile_picture_url, line_contacts.external_profile_picture_url),
			link_status                  = EXCLUDED.link_status,
			last_external_interaction_at = now()
		RETURNING id`

	var id uuid.UUID
	err := s.db.QueryRow(ctx, query, tenantID, externalUserID, displayName, pictureURL, string(status)).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("upsert contact: %w", err)
	}
	return id, nil
}

func (s *ContactStore) SetLinkStatus(ctx context.Context, tenantID uuid.UUID, externalUserID string, status models.LinkStatus) (bool, error) {
	query := `
		UPDATE line_contacts
		SET link_status = $3, last_external_interaction_at = now()
		WHERE tenant_id = $1 AND external_user_id = $2`

	tag, err := s.db.Exec(ctx, query, tenantID, externalUserID, string(status))
	if err != nil {
		return false, fmt.Errorf("set link status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
