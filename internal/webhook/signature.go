// Package webhook authenticates inbound platform deliveries.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
)

// Header names the platform may use for the body signature.
const (
	SignatureHeader         = "X-Line-Signature"
	FallbackSignatureHeader = "X-Signature"
)

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// SignatureFromHeader returns the signature header value, preferring the
// platform-specific name.
func SignatureFromHeader(h http.Header) string {
	if v := h.Get(SignatureHeader); v != "" {
		return v
	}
	return h.Get(FallbackSignatureHeader)
}

// Sign returns base64(HMAC-SHA256(secret, body)), the value the platform puts
// in the signature header.
func Sign(body []byte, secret string) string {
	return base64.StdEncoding.EncodeToString(mac(body, secret))
}

// Verify checks signature against the exact bytes received. The body must not
// have been re-encoded: a parsed-and-reserialized JSON document will not match.
func Verify(signature string, body []byte, secret string) error {
	if signature == "" {
		return ErrMissingSignature
	}

	// Strict rejects non-zero padding bits, so only the canonical encoding
	// of the MAC is accepted.
	got, err := base64.StdEncoding.Strict().DecodeString(signature)
	if err != nil || len(got) != sha256.Size {
		return ErrInvalidSignature
	}

	if !hmac.Equal(got, mac(body, secret)) {
		return ErrInvalidSignature
	}
	return nil
}

func mac(body []byte, secret string) []byte {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return h.Sum(nil)
}
