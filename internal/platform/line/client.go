// Package line is the outbound client for the LINE Messaging API. Every call
// fetches the tenant's credential from the vault right before use.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/models"
	"go.uber.org/zap"
)

const (
	pushPath    = "/v2/bot/message/push"
	replyPath   = "/v2/bot/message/reply"
	profilePath = "/v2/bot/profile/"
	botInfoPath = "/v2/bot/info"

	requestIDHeader = "X-Line-Request-Id"
	retryKeyHeader  = "X-Line-Retry-Key"

	// errorBodyLimit caps how much of an error response is read.
	errorBodyLimit = 4 << 10
)

// CredentialSource returns a tenant's decrypted credential, or nil when the
// tenant has none. The vault satisfies it.
type CredentialSource interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*models.ChannelSecrets, error)
}

// RetryPolicy controls how 429 responses are retried. Delays grow as
// InitialDelay * 2^(attempt-1) with no jitter.
type RetryPolicy struct {
	InitialDelay time.Duration
	MaxRetries   int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{InitialDelay: time.Second, MaxRetries: 3}
}

type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	Retry          RetryPolicy
	HTTPClient     *http.Client
}

type Client struct {
	baseURL string
	timeout time.Duration
	retry   RetryPolicy
	http    *http.Client
	creds   CredentialSource
	logger  *zap.Logger

	// onRetry is called with each computed delay before sleeping.
	onRetry func(attempt int, delay time.Duration)
}

func NewClient(creds CredentialSource, opts Options, logger *zap.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.line.me"
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Second
	}
	if opts.Retry.InitialDelay <= 0 {
		opts.Retry.InitialDelay = time.Second
	}
	if opts.Retry.MaxRetries < 0 {
		opts.Retry.MaxRetries = 0
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: opts.RequestTimeout,
		retry:   opts.Retry,
		http:    opts.HTTPClient,
		creds:   creds,
		logger:  logger.With(zap.String("component", "line_client")),
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

// PushText sends a text message to a user. The same retry key is sent on
// every attempt so the platform drops duplicates of a retried push.
func (c *Client) PushText(ctx context.Context, tenantID uuid.UUID, to, text string) error {
	body := pushRequest{To: to, Messages: []textMessage{{Type: "text", Text: text}}}
	headers := http.Header{retryKeyHeader: []string{uuid.NewString()}}
	return c.do(ctx, tenantID, "push", http.MethodPost, pushPath, headers, body, nil)
}

// ReplyText answers an event using its reply token.
func (c *Client) ReplyText(ctx context.Context, tenantID uuid.UUID, replyToken, text string) error {
	body := replyRequest{ReplyToken: replyToken, Messages: []textMessage{{Type: "text", Text: text}}}
	return c.do(ctx, tenantID, "reply", http.MethodPost, replyPath, nil, body, nil)
}

func (c *Client) GetProfile(ctx context.Context, tenantID uuid.UUID, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := c.do(ctx, tenantID, "get_profile", http.MethodGet, profilePath+url.PathEscape(userID), nil, nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetBotInfo returns the bot behind the tenant's access token. A successful
// call proves the stored token works.
func (c *Client) GetBotInfo(ctx context.Context, tenantID uuid.UUID) (*models.BotInfo, error) {
	var info models.BotInfo
	if err := c.do(ctx, tenantID, "get_bot_info", http.MethodGet, botInfoPath, nil, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) do(ctx context.Context, tenantID uuid.UUID, op, method, path string, headers http.Header, in, out any) error {
	cred, err := c.creds.Get(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("line %s: load credential: %w", op, err)
	}
	if cred == nil || cred.AccessToken == "" {
		return ErrConfigurationMissing
	}

	var payload []byte
	if in != nil {
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("line %s: encode request: %w", op, err)
		}
	}

	log := c.logger.With(
		zap.String("op", op),
		zap.String("tenant_id", tenantID.String()),
	)

	attempt := 0
	operation := func() error {
		attempt++
		err := c.attempt(ctx, op, method, path, cred.AccessToken, headers, payload, out)
		if err == nil {
			return nil
		}
		var upErr *UpstreamError
		if errors.As(err, &upErr) && upErr.RateLimited() {
			return err
		}
		return backoff.Permanent(err)
	}

	notify := func(err error, delay time.Duration) {
		log.Warn("rate limited, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if c.onRetry != nil {
			c.onRetry(attempt, delay)
		}
	}

	err = backoff.RetryNotify(operation, c.backOff(ctx), notify)
	if err == nil {
		log.Debug("line call succeeded", zap.Int("attempts", attempt))
		return nil
	}

	var upErr *UpstreamError
	if errors.As(err, &upErr) && upErr.RateLimited() {
		log.Error("rate limit retries exhausted", zap.Int("attempts", attempt), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrRateLimitExhausted, err)
	}

	log.Error("line call failed", zap.Int("attempts", attempt), zap.Error(err))
	return err
}

func (c *Client) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.InitialDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = c.retry.InitialDelay << c.retry.MaxRetries
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.retry.MaxRetries)), ctx)
}

// attempt performs one HTTP round trip under its own timeout.
func (c *Client) attempt(ctx context.Context, op, method, path, token string, headers http.Header, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("line %s: build request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("line %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newUpstreamError(op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("line %s: decode response: %w", op, err)
	}
	return nil
}

func newUpstreamError(op string, resp *http.Response) *UpstreamError {
	upErr := &UpstreamError{
		Op:        op,
		Status:    resp.StatusCode,
		RequestID: resp.Header.Get(requestIDHeader),
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		upErr.Message = body.Message
	}
	return upErr
}
