// Package memstore is an in-memory implementation of the repository
// interfaces with the same uniqueness rules as the Postgres schema. It backs
// tests that exercise the vault and handlers without a database.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/models"
	"github.com/lalith-99/linegate/internal/repository"
)

var (
	_ repository.CredentialRepository = (*Credentials)(nil)
	_ repository.ContactSync          = (*Contacts)(nil)
)

type Credentials struct {
	mu   sync.Mutex
	rows map[uuid.UUID]models.ChannelCredential
}

func NewCredentials() *Credentials {
	return &Credentials{rows: make(map[uuid.UUID]models.ChannelCredential)}
}

func (s *Credentials) Upsert(_ context.Context, cred models.ChannelCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.rows[cred.TenantID]; ok {
		cred.CreatedAt = existing.CreatedAt
	} else {
		cred.CreatedAt = now
	}
	cred.BotIdentifier = ""
	cred.UpdatedAt = now
	s.rows[cred.TenantID] = cred
	return nil
}

func (s *Credentials) GetByTenant(_ context.Context, tenantID uuid.UUID) (*models.ChannelCredential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.rows[tenantID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *Credentials) FindTenantByBot(_ context.Context, botID string) (uuid.UUID, bool, error) {
	if botID == "" {
		return uuid.Nil, false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.rows {
		if c.BotIdentifier == botID {
			return id, true, nil
		}
	}
	return uuid.Nil, false, nil
}

func (s *Credentials) SetBotIdentifier(_ context.Context, tenantID uuid.UUID, botID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.rows {
		if id != tenantID && c.BotIdentifier == botID {
			return fmt.Errorf("set bot identifier: %w", repository.ErrUniqueViolation)
		}
	}
	c, ok := s.rows[tenantID]
	if !ok {
		return fmt.Errorf("set bot identifier: %w", repository.ErrNotFound)
	}
	c.BotIdentifier = botID
	c.UpdatedAt = time.Now().UTC()
	s.rows[tenantID] = c
	return nil
}

func (s *Credentials) Delete(_ context.Context, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, tenantID)
	return nil
}

// Mutate applies fn to a stored row in place. Tests use it to simulate
// corruption at rest.
func (s *Credentials) Mutate(tenantID uuid.UUID, fn func(*models.ChannelCredential)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.rows[tenantID]
	if !ok {
		return false
	}
	fn(&c)
	s.rows[tenantID] = c
	return true
}

// Len reports how many tenants are configured.
func (s *Credentials) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type contactKey struct {
	tenantID       uuid.UUID
	externalUserID string
}

type Contacts struct {
	mu      sync.Mutex
	rows    map[contactKey]models.Contact
	upserts int
}

func NewContacts() *Contacts {
	return &Contacts{rows: make(map[contactKey]models.Contact)}
}

func (s *Contacts) UpsertByExternalID(_ context.Context, tenantID uuid.UUID, externalUserID, displayName, pictureURL string, status models.LinkStatus) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := contactKey{tenantID: tenantID, externalUserID: externalUserID}
	c, ok := s.rows[key]
	if !ok {
		c = models.Contact{ID: uuid.New(), TenantID: tenantID, ExternalUserID: externalUserID}
	}
	c.ExternalDisplayName = displayName
	c.ExternalProfilePictureURL = pictureURL
	c.LinkStatus = status
	c.LastExternalInteractionAt = time.Now().UTC()
	s.rows[key] = c
	s.upserts++
	return c.ID, nil
}

func (s *Contacts) SetLinkStatus(_ context.Context, tenantID uuid.UUID, externalUserID string, status models.LinkStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := contactKey{tenantID: tenantID, externalUserID: externalUserID}
	c, ok := s.rows[key]
	if !ok {
		return false, nil
	}
	c.LinkStatus = status
	c.LastExternalInteractionAt = time.Now().UTC()
	s.rows[key] = c
	return true, nil
}

// Get returns a copy of the contact, if any.
func (s *Contacts) Get(tenantID uuid.UUID, externalUserID string) (models.Contact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.rows[contactKey{tenantID: tenantID, externalUserID: externalUserID}]
	return c, ok
}

// Upserts counts UpsertByExternalID calls.
func (s *Contacts) Upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}
