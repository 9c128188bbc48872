package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "jwt-test-secret"

func TestGenerateAndParse(t *testing.T) {
	userID, tenantID := uuid.New(), uuid.New()

	token, err := GenerateToken(userID, tenantID, testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, "linegate", claims.Issuer)
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := GenerateToken(uuid.New(), uuid.New(), testSecret, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(uuid.New(), uuid.New(), testSecret, -time.Minute)
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		TenantID:         uuid.New(),
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{TenantID: uuid.New()}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{name: "wrong secret", token: valid, secret: "other"},
		{name: "expired", token: expired, secret: testSecret},
		{name: "alg none", token: none, secret: testSecret},
		{name: "no expiry", token: noExpiry, secret: testSecret},
		{name: "garbage", token: "not.a.jwt", secret: testSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, tt.secret)
			assert.Error(t, err)
		})
	}
}
