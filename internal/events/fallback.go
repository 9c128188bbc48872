package events

import (
	"context"

	"go.uber.org/zap"
)

// FallbackPublisher drops every message. It is used when no broker is
// configured so link changes still land in the contact store.
type FallbackPublisher struct {
	logger *zap.Logger
}

func NewFallback(logger *zap.Logger) Publisher {
	return &FallbackPublisher{logger: logger.With(zap.String("component", "publisher"))}
}

func (p *FallbackPublisher) Publish(_ context.Context, key string, msg Envelope) error {
	p.logger.Warn("no broker configured, skipped publish",
		zap.String("key", key),
		zap.String("message_id", msg.Meta.ID),
	)
	return nil
}

func (p *FallbackPublisher) Close() error {
	return nil
}
