package models

import (
	"time"

	"github.com/google/uuid"
)

// ChannelCredential is one tenant's stored LINE channel configuration, exactly
// as it sits in tenant_channel_credentials. The secret and token columns hold
// vault ciphertext, never plaintext.
//
// BotIdentifier is stored in the clear so the webhook router can look a tenant
// up by the "destination" field. It is empty until the bot-info call succeeds.
type ChannelCredential struct {
	TenantID               uuid.UUID
	ChannelIdentifier      string
	ChannelSecretEncrypted string
	AccessTokenEncrypted   string
	BotIdentifier          string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ChannelSecrets is the decrypted form handed to callers that need to talk
// to the platform or verify a signature. It is built fresh on every vault read.
type ChannelSecrets struct {
	TenantID          uuid.UUID `json:"-"`
	ChannelIdentifier string    `json:"channel_id"`
	ChannelSecret     string    `json:"-"`
	AccessToken       string    `json:"-"`
	BotIdentifier     string    `json:"bot_id,omitempty"`
}

// PublicChannelConfig is safe to return to the admin UI. It is produced
// without decrypting anything.
type PublicChannelConfig struct {
	ChannelIdentifier string     `json:"channel_id,omitempty"`
	BotIdentifier     string     `json:"bot_id,omitempty"`
	IsConfigured      bool       `json:"is_configured"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// LinkStatus tracks whether a platform user can currently be reached.
type LinkStatus string

const (
	LinkStatusActive   LinkStatus = "active"
	LinkStatusBlocked  LinkStatus = "blocked"
	LinkStatusUnlinked LinkStatus = "unlinked"
)

// Contact is the CRM-side view of a linked platform user. The CRM owns the
// table; this service only upserts and updates link fields.
type Contact struct {
	ID                        uuid.UUID  `json:"id"`
	TenantID                  uuid.UUID  `json:"tenant_id"`
	ExternalUserID            string     `json:"external_user_id"`
	ExternalDisplayName       string     `json:"external_display_name"`
	ExternalProfilePictureURL string     `json:"external_profile_picture_url,omitempty"`
	LinkStatus                LinkStatus `json:"link_status"`
	LastExternalInteractionAt time.Time  `json:"last_external_interaction_at"`
}

// Event types delivered by the platform that this service understands.
const (
	EventTypeFollow   = "follow"
	EventTypeUnfollow = "unfollow"
	EventTypeMessage  = "message"
)

// WebhookEnvelope is the JSON body the platform POSTs. Destination is the bot
// user id of the channel that received the events.
type WebhookEnvelope struct {
	Destination string         `json:"destination"`
	Events      []WebhookEvent `json:"events"`
}

// WebhookEvent is a single entry in an envelope. Only the fields the
// dispatcher acts on are decoded.
type WebhookEvent struct {
	Type            string           `json:"type"`
	Mode            string           `json:"mode,omitempty"`
	WebhookEventID  string           `json:"webhookEventId"`
	Timestamp       int64            `json:"timestamp"`
	ReplyToken      string           `json:"replyToken,omitempty"`
	Source          EventSource      `json:"source"`
	Message         *EventMessage    `json:"message,omitempty"`
	DeliveryContext *DeliveryContext `json:"deliveryContext,omitempty"`
}

// OccurredAt converts the platform's millisecond timestamp. Zero timestamps
// fall back to the current time.
func (e WebhookEvent) OccurredAt() time.Time {
	if e.Timestamp <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(e.Timestamp).UTC()
}

// IsRedelivery reports whether the platform flagged the event as a retry.
func (e WebhookEvent) IsRedelivery() bool {
	return e.DeliveryContext != nil && e.DeliveryContext.IsRedelivery
}

type EventSource struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type EventMessage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type DeliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

// Profile is a platform user's public profile.
type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl,omitempty"`
	StatusMessage string `json:"statusMessage,omitempty"`
	Language      string `json:"language,omitempty"`
}

// BotInfo describes the bot behind a channel access token.
type BotInfo struct {
	UserID         string `json:"userId"`
	BasicID        string `json:"basicId"`
	PremiumID      string `json:"premiumId,omitempty"`
	DisplayName    string `json:"displayName"`
	PictureURL     string `json:"pictureUrl,omitempty"`
	ChatMode       string `json:"chatMode,omitempty"`
	MarkAsReadMode string `json:"markAsReadMode,omitempty"`
}
