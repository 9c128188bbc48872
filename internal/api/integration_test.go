package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lalith-99/linegate/internal/models"
	"github.com/lalith-99/linegate/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntegration_GetDoesNotLeakSecrets(t *testing.T) {
	s := newTestServer(t)

	w := s.adminRequest(t, http.MethodGet, "/v1/integrations/line", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), channelSecret)
	assert.NotContains(t, w.Body.String(), "access-token")

	var cfg models.PublicChannelConfig
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cfg))
	assert.True(t, cfg.IsConfigured)
	assert.Equal(t, "1650000000", cfg.ChannelIdentifier)
	assert.Equal(t, botID, cfg.BotIdentifier)
}

func TestIntegration_PutValidation(t *testing.T) {
	s := newTestServer(t)

	w := s.adminRequest(t, http.MethodPut, "/v1/integrations/line", map[string]string{"channel_id": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "channel_secret")
}

func TestIntegration_PutRotatesCredential(t *testing.T) {
	s := newTestServer(t)

	w := s.adminRequest(t, http.MethodPut, "/v1/integrations/line", service.ChannelConfigInput{
		ChannelID:     "1650000000",
		ChannelSecret: "rotated-secret",
		AccessToken:   "rotated-token",
	})
	require.Equal(t, http.StatusOK, w.Code)

	secrets, err := s.vault.Get(t.Context(), s.tenantID)
	require.NoError(t, err)
	assert.Equal(t, "rotated-secret", secrets.ChannelSecret)
	assert.Equal(t, botID, secrets.BotIdentifier)
}

func TestIntegration_TestConnection(t *testing.T) {
	s := newTestServer(t)

	w := s.adminRequest(t, http.MethodPost, "/v1/integrations/line/test", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var res service.ConnectionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)

	require.True(t, s.creds.Mutate(s.tenantID, func(c *models.ChannelCredential) {
		c.AccessTokenEncrypted = "not:valid:ciphertext"
	}))
	w = s.adminRequest(t, http.MethodPost, "/v1/integrations/line/test", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.Error)
}

func TestIntegration_SendMessage(t *testing.T) {
	s := newTestServer(t)

	w := s.adminRequest(t, http.MethodPost, "/v1/integrations/line/messages", map[string]string{"to": "U1", "text": "hello"})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, int32(1), s.platform.pushCalls.Load())

	w = s.adminRequest(t, http.MethodPost, "/v1/integrations/line/messages", map[string]string{"to": "U1", "text": strings.Repeat("a", service.MaxTextLength+1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.platform.pushStatus.Store(http.StatusTooManyRequests)
	w = s.adminRequest(t, http.MethodPost, "/v1/integrations/line/messages", map[string]string{"to": "U1", "text": "hello"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	s.platform.pushStatus.Store(http.StatusBadRequest)
	w = s.adminRequest(t, http.MethodPost, "/v1/integrations/line/messages", map[string]string{"to": "U1", "text": "hello"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestIntegration_DeleteUnroutesWebhooks(t *testing.T) {
	s := newTestServer(t)

	w := s.adminRequest(t, http.MethodDelete, "/v1/integrations/line", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.adminRequest(t, http.MethodPost, "/v1/integrations/line/messages", map[string]string{"to": "U1", "text": "hello"})
	assert.Equal(t, http.StatusConflict, w.Code)

	_, found, err := s.vault.TenantForBot(t.Context(), botID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIntegration_RequiresToken(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/integrations/line", nil)
	assert.Equal(t, http.StatusUnauthorized, s.serve(req).Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)

	w := s.serve(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","dependencies":{"redis":"up"}}`, w.Body.String())

	s.redis.Close()
	w = s.serve(httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
