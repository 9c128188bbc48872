package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lalith-99/linegate/internal/models"
	"github.com/lalith-99/linegate/internal/repository"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestCredentialStore_Upsert(t *testing.T) {
	mock := newMock(t)
	store := NewCredentialStore(mock)
	tenantID := uuid.New()

	mock.ExpectExec(`INSERT INTO tenant_channel_credentials`).
		WithArgs(tenantID, "1650000000", "enc-secret", "enc-token").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.Upsert(context.Background(), models.ChannelCredential{
		TenantID:               tenantID,
		ChannelIdentifier:      "1650000000",
		ChannelSecretEncrypted: "enc-secret",
		AccessTokenEncrypted:   "enc-token",
	})
	require.NoError(t, err)
}

func TestCredentialStore_GetByTenant(t *testing.T) {
	mock := newMock(t)
	store := NewCredentialStore(mock)
	tenantID := uuid.New()
	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"tenant_id", "channel_identifier", "channel_secret_encrypted", "access_token_encrypted",
		"bot_identifier", "created_at", "updated_at",
	}).AddRow(tenantID.String(), "1650000000", "enc-secret", "enc-token", "Ubot", now, now)

	mock.ExpectQuery(`SELECT .+ FROM tenant_channel_credentials`).
		WithArgs(tenantID).
		WillReturnRows(rows)

	cred, err := store.GetByTenant(context.Background(), tenantID)
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, tenantID, cred.TenantID)
	assert.Equal(t, "1650000000", cred.ChannelIdentifier)
	assert.Equal(t, "enc-secret", cred.ChannelSecretEncrypted)
	assert.Equal(t, "Ubot", cred.BotIdentifier)
}

func TestCredentialStore_GetByTenantMissing(t *testing.T) {
	mock := newMock(t)
	store := NewCredentialStore(mock)
	tenantID := uuid.New()

	mock.ExpectQuery(`FROM tenant_channel_credentials`).
		WithArgs(tenantID).
		WillReturnError(pgx.ErrNoRows)

	cred, err := store.GetByTenant(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestCredentialStore_FindTenantByBot(t *testing.T) {
	mock := newMock(t)
	store := NewCredentialStore(mock)
	tenantID := uuid.New()

	mock.ExpectQuery(`WHERE bot_identifier = \$1`).
		WithArgs("Ubot").
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id"}).AddRow(tenantID.String()))

	got, found, err := store.FindTenantByBot(context.Background(), "Ubot")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, tenantID, got)
}

func TestCredentialStore_FindTenantByBotUnknown(t *testing.T) {
	mock := newMock(t)
	store := NewCredentialStore(mock)

	mock.ExpectQuery(`WHERE bot_identifier = \$1`).
		WithArgs("Unknown").
		WillReturnError(pgx.ErrNoRows)

	got, found, err := store.FindTenantByBot(context.Background(), "Unknown")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, uuid.Nil, got)
}

func TestCredentialStore_FindTenantByBotEmptySkipsQuery(t *testing.T) {
	mock := newMock(t)
	store := NewCredentialStore(mock)

	_, found, err := store.FindTenantByBot(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCredentialStore_SetBotIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "configured tenant", affected: 1},
		{name: "config deleted concurrently", affected: 0, wantErr: repository.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMock(t)
			store := NewCredentialStore(mock)
			tenantID := uuid.New()

			mock.ExpectExec(`UPDATE tenant_channel_credentials`).
				WithArgs(tenantID, "Ubot").
				WillReturnResult(pgxmock.NewResult("UPDATE", tt.affected))

			err := store.SetBotIdentifier(context.Background(), tenantID, "Ubot")
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCredentialStore_SetBotIdentifierConflict(t *testing.T) {
	mock := newMock(t)
	store := NewCredentialStore(mock)
	tenantID := uuid.New()

	mock.ExpectExec(`UPDATE tenant_channel_credentials`).
		WithArgs(tenantID, "Ubot").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := store.SetBotIdentifier(context.Background(), tenantID, "Ubot")
	require.Error(t, err)
	assert.True(t, errors.Is(err, repository.ErrUniqueViolation))
}

func TestCredentialStore_Delete(t *testing.T) {
	mock := newMock(t)
	store := NewCredentialStore(mock)
	tenantID := uuid.New()

	mock.ExpectExec(`DELETE FROM tenant_channel_credentials`).
		WithArgs(tenantID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, store.Delete(context.Background(), tenantID))
}
