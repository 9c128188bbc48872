package line

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationMissing means the tenant has no stored credential.
	ErrConfigurationMissing = errors.New("line channel is not configured")

	// ErrRateLimitExhausted means every attempt, retries included, got 429.
	ErrRateLimitExhausted = errors.New("line rate limit: retries exhausted")
)

// UpstreamError is a non-2xx response from the Messaging API.
type UpstreamError struct {
	Op        string
	Status    int
	RequestID string
	Message   string
}

func (e *UpstreamError) Error() string {
	msg := fmt.Sprintf("line %s: status %d", e.Op, e.Status)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += " (request id " + e.RequestID + ")"
	}
	return msg
}

// RateLimited reports whether the response was a 429.
func (e *UpstreamError) RateLimited() bool {
	return e.Status == 429
}
