package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/linegate/internal/events"
	"github.com/lalith-99/linegate/internal/models"
	"go.uber.org/zap"
)

var errNoSourceUser = errors.New("event has no source user")

// handleFollow links the user: fetch the profile, upsert the contact as
// active, then announce the link.
func (d *Dispatcher) handleFollow(ctx context.Context, tenantID uuid.UUID, ev models.WebhookEvent) error {
	userID := ev.Source.UserID
	if userID == "" {
		return errNoSourceUser
	}

	profile, err := d.profiles.GetProfile(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("fetch profile: %w", err)
	}

	contactID, err := d.contacts.UpsertByExternalID(ctx, tenantID, userID, profile.DisplayName, profile.PictureURL, models.LinkStatusActive)
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}

	d.publish(ctx, events.NewContactLinkEvent(events.TypeContactLinked, events.ContactLink{
		TenantID:       tenantID,
		ContactID:      &contactID,
		ExternalUserID: userID,
		LinkStatus:     models.LinkStatusActive,
		WebhookEventID: ev.WebhookEventID,
		OccurredAt:     ev.OccurredAt(),
	}))
	return nil
}

// handleUnfollow marks the linked contact blocked. A user with no linked
// contact is not an error.
func (d *Dispatcher) handleUnfollow(ctx context.Context, tenantID uuid.UUID, ev models.WebhookEvent) error {
	userID := ev.Source.UserID
	if userID == "" {
		return errNoSourceUser
	}

	found, err := d.contacts.SetLinkStatus(ctx, tenantID, userID, models.LinkStatusBlocked)
	if err != nil {
		return fmt.Errorf("set link status: %w", err)
	}
	if !found {
		d.logger.Info("unfollow for unknown contact",
			zap.String("tenant_id", tenantID.String()),
			zap.String("user_id", userID),
		)
		return nil
	}

	d.publish(ctx, events.NewContactLinkEvent(events.TypeContactBlocked, events.ContactLink{
		TenantID:       tenantID,
		ExternalUserID: userID,
		LinkStatus:     models.LinkStatusBlocked,
		WebhookEventID: ev.WebhookEventID,
		OccurredAt:     ev.OccurredAt(),
	}))
	return nil
}

// publish is best effort: the contact write already happened.
func (d *Dispatcher) publish(ctx context.Context, msg events.Envelope) {
	if err := d.publisher.Publish(ctx, events.RoutingKey(msg), msg); err != nil {
		d.logger.Error("publish link event failed",
			zap.String("type", msg.Meta.Type),
			zap.String("message_id", msg.Meta.ID),
			zap.Error(err),
		)
	}
}
