// Package routing maps the opaque bot identifier in an inbound webhook to the
// tenant that owns the channel.
package routing

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TenantLookup finds the tenant that owns a bot identifier. The vault
// satisfies it.
type TenantLookup interface {
	TenantForBot(ctx context.Context, botID string) (uuid.UUID, bool, error)
}

type Router struct {
	lookup TenantLookup
	logger *zap.Logger
}

func NewRouter(lookup TenantLookup, logger *zap.Logger) *Router {
	return &Router{lookup: lookup, logger: logger.With(zap.String("component", "router"))}
}

// Resolve returns the tenant for botID. Unknown or empty ids resolve to
// uuid.Nil, false with no error; only store failures return an error.
func (r *Router) Resolve(ctx context.Context, botID string) (uuid.UUID, bool, error) {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return uuid.Nil, false, nil
	}

	tenantID, found, err := r.lookup.TenantForBot(ctx, botID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("resolve destination: %w", err)
	}
	if !found {
		r.logger.Debug("no tenant for destination", zap.String("destination", botID))
		return uuid.Nil, false, nil
	}
	return tenantID, true, nil
}
