package service

import (
	"errors"

	"github.com/lalith-99/linegate/internal/platform/line"
	"github.com/lalith-99/linegate/internal/vault"
)

// describe turns an outbound failure into text safe for the admin UI.
func describe(err error) string {
	var upErr *line.UpstreamError
	switch {
	case errors.Is(err, line.ErrConfigurationMissing):
		return "channel is not configured"
	case errors.Is(err, vault.ErrDecryptionFailure):
		return "stored credential could not be decrypted"
	case errors.Is(err, line.ErrRateLimitExhausted):
		return "platform rate limit exceeded"
	case errors.As(err, &upErr):
		return upErr.Error()
	default:
		return "platform request failed"
	}
}
