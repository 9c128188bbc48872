// Package events publishes contact link changes to the CRM's message bus.
package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/models"
)

const (
	Producer = "linegate"

	TypeContactLinked  = "line.contact.linked.v1"
	TypeContactBlocked = "line.contact.blocked.v1"
)

type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      *string   `json:"producer,omitempty"`
	Time          time.Time `json:"time"`
	// Type is the event name and version, e.g. line.contact.linked.v1.
	Type string `json:"type"`
}

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// ContactLink is the payload of both link event types.
type ContactLink struct {
	TenantID       uuid.UUID         `json:"tenant_id"`
	ContactID      *uuid.UUID        `json:"contact_id,omitempty"`
	ExternalUserID string            `json:"external_user_id"`
	LinkStatus     models.LinkStatus `json:"link_status"`
	WebhookEventID string            `json:"webhook_event_id,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

// NewContactLinkEvent wraps data in an envelope. The webhook event id, when
// present, doubles as the correlation id so consumers can trace a change
// back to the delivery that caused it.
func NewContactLinkEvent(eventType string, data ContactLink) Envelope {
	producer := Producer
	meta := Meta{
		ID:       uuid.NewString(),
		Producer: &producer,
		Time:     time.Now().UTC(),
		Type:     eventType,
	}
	if data.WebhookEventID != "" {
		cid := data.WebhookEventID
		meta.CorrelationID = &cid
	}
	return Envelope{Meta: meta, Data: data}
}

// RoutingKey maps a tenant-scoped event onto the topic exchange.
func RoutingKey(msg Envelope) string {
	return msg.Meta.Type
}
