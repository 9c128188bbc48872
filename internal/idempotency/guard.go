// Package idempotency makes each platform event take effect at most once
// across retries, redeliveries, and gateway instances.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/lalith-99/linegate/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "webhook-event:"

// Guard claims event ids with an atomic SET NX. Claims are never released;
// they expire after the TTL.
type Guard struct {
	rdb    redis.Cmdable
	logger *zap.Logger
}

func NewGuard(rdb redis.Cmdable, logger *zap.Logger) *Guard {
	return &Guard{rdb: rdb, logger: logger.With(zap.String("component", "idempotency"))}
}

// TryClaim returns true for exactly one caller per eventID within ttl.
func (g *Guard) TryClaim(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, keyPrefix+eventID, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", eventID, err)
	}
	return ok, nil
}

// ClaimEvents returns the events this caller won the claim for, in input
// order. Events without an id cannot be deduplicated and are always kept.
//
// Why fail open when Redis is down?
//   - The platform has already been told 200 by the time events run, so an
//     event dropped here is never redelivered.
//   - Every handler is an upsert or a status write keyed on the external
//     user, so running a duplicate converges to the same row.
func (g *Guard) ClaimEvents(ctx context.Context, events []models.WebhookEvent, ttl time.Duration) []models.WebhookEvent {
	fresh := make([]models.WebhookEvent, 0, len(events))

	for _, ev := range events {
		if ev.WebhookEventID == "" {
			g.logger.Warn("event without webhookEventId, cannot deduplicate",
				zap.String("event_type", ev.Type),
			)
			fresh = append(fresh, ev)
			continue
		}

		claimed, err := g.TryClaim(ctx, ev.WebhookEventID, ttl)
		if err != nil {
			g.logger.Error("idempotency claim failed, processing anyway",
				zap.String("event_id", ev.WebhookEventID),
				zap.Error(err),
			)
			fresh = append(fresh, ev)
			continue
		}
		if !claimed {
			g.logger.Info("duplicate event skipped",
				zap.String("event_id", ev.WebhookEventID),
				zap.String("event_type", ev.Type),
				zap.Bool("redelivery", ev.IsRedelivery()),
			)
			continue
		}
		fresh = append(fresh, ev)
	}

	return fresh
}
