package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/auth"
	"github.com/lalith-99/linegate/internal/dispatch"
	"github.com/lalith-99/linegate/internal/events"
	"github.com/lalith-99/linegate/internal/idempotency"
	"github.com/lalith-99/linegate/internal/platform/line"
	"github.com/lalith-99/linegate/internal/repository/memstore"
	"github.com/lalith-99/linegate/internal/routing"
	"github.com/lalith-99/linegate/internal/service"
	"github.com/lalith-99/linegate/internal/vault"
	"github.com/lalith-99/linegate/internal/webhook"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const (
	jwtSecret     = "api-test-jwt"
	channelSecret = "channel-secret-abc"
	botID         = "Ubot0000000000000000000000000001"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakePlatform stands in for the Messaging API.
type fakePlatform struct {
	profileCalls atomic.Int32
	pushCalls    atomic.Int32
	pushStatus   atomic.Int32
}

func (p *fakePlatform) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v2/bot/info":
		_, _ = fmt.Fprintf(w, `{"userId":%q,"basicId":"@shop","displayName":"Shop"}`, botID)
	case strings.HasPrefix(r.URL.Path, "/v2/bot/profile/"):
		p.profileCalls.Add(1)
		userID := strings.TrimPrefix(r.URL.Path, "/v2/bot/profile/")
		_, _ = fmt.Fprintf(w, `{"userId":%q,"displayName":"User %s"}`, userID, userID)
	case r.URL.Path == "/v2/bot/message/push":
		p.pushCalls.Add(1)
		if s := p.pushStatus.Load(); s != 0 {
			w.WriteHeader(int(s))
			_, _ = w.Write([]byte(`{"message":"rejected"}`))
			return
		}
		_, _ = w.Write([]byte(`{}`))
	default:
		http.NotFound(w, r)
	}
}

type testServer struct {
	engine     *gin.Engine
	creds      *memstore.Credentials
	contacts   *memstore.Contacts
	vault      *vault.Vault
	platform   *fakePlatform
	redis      *miniredis.Miniredis
	dispatcher *dispatch.Dispatcher
	logs       *observer.ObservedLogs
	tenantID   uuid.UUID
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)

	cipher, err := vault.NewCipher("api-test-master-key")
	require.NoError(t, err)
	creds := memstore.NewCredentials()
	v := vault.New(creds, cipher)

	platform := &fakePlatform{}
	upstream := httptest.NewServer(platform)
	t.Cleanup(upstream.Close)
	client := line.NewClient(v, line.Options{
		BaseURL:        upstream.URL,
		RequestTimeout: time.Second,
		Retry:          line.RetryPolicy{InitialDelay: time.Millisecond, MaxRetries: 1},
	}, logger)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	contacts := memstore.NewContacts()
	d := dispatch.New(client, contacts, events.NewFallback(logger), dispatch.Options{Workers: 2, QueueSize: 8, EventTimeout: time.Second}, logger)
	d.Start()
	t.Cleanup(func() { _ = d.Shutdown(context.Background()) })

	configs := service.NewChannelConfigService(v, client, logger)
	engine := NewRouter(RouterConfig{
		Webhook: NewWebhookHandler(
			routing.NewRouter(v, logger),
			v,
			idempotency.NewGuard(rdb, logger),
			d,
			WebhookOptions{IdempotencyTTL: time.Minute, MaxBodyBytes: 4096},
			logger,
		),
		Integration: NewIntegrationHandler(configs, service.NewSendMessageAction(client, logger), logger),
		Health:      NewHealthHandler(map[string]Pinger{"redis": redisPinger{rdb}}),
		JWTSecret:   jwtSecret,
		Logger:      logger,
	})

	tenantID := uuid.New()
	_, err = configs.SetChannelConfig(context.Background(), tenantID, service.ChannelConfigInput{
		ChannelID:     "1650000000",
		ChannelSecret: channelSecret,
		AccessToken:   "access-token",
	})
	require.NoError(t, err)

	return &testServer{
		engine:     engine,
		creds:      creds,
		contacts:   contacts,
		vault:      v,
		platform:   platform,
		redis:      mr,
		dispatcher: d,
		logs:       logs,
		tenantID:   tenantID,
	}
}

type redisPinger struct{ rdb *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.rdb.Ping(ctx).Err() }

// drain waits for every submitted envelope to finish.
func (s *testServer) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.dispatcher.Shutdown(ctx))
}

func (s *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func (s *testServer) postWebhook(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/line", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}
	return s.serve(req)
}

func (s *testServer) adminRequest(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.GenerateToken(uuid.New(), s.tenantID, jwtSecret, time.Hour)
	require.NoError(t, err)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return s.serve(req)
}

func envelope(destination string, evs ...string) []byte {
	return []byte(fmt.Sprintf(`{"destination":%q,"events":[%s]}`, destination, strings.Join(evs, ",")))
}

func followEvent(id, user string) string {
	return fmt.Sprintf(`{"type":"follow","mode":"active","timestamp":1700000000000,"webhookEventId":%q,"replyToken":"rt","source":{"type":"user","userId":%q},"deliveryContext":{"isRedelivery":false}}`, id, user)
}

func unfollowEvent(id, user string) string {
	return fmt.Sprintf(`{"type":"unfollow","mode":"active","timestamp":1700000000000,"webhookEventId":%q,"source":{"type":"user","userId":%q}}`, id, user)
}

func messageEvent(id, user string) string {
	return fmt.Sprintf(`{"type":"message","mode":"active","timestamp":1700000000000,"webhookEventId":%q,"replyToken":"rt","source":{"type":"user","userId":%q},"message":{"id":"m1","type":"text","text":"hello"}}`, id, user)
}
