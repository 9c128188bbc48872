package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 12
	tagSize   = 16

	// keyInfo binds derived keys to this use. Changing it invalidates every
	// stored credential.
	keyInfo = "linegate/credential-vault/v1"
)

var (
	// ErrDecryptionFailure means a stored value could not be opened: it was
	// tampered with, corrupted, or sealed under a different master key.
	ErrDecryptionFailure = errors.New("credential decryption failed")

	ErrEmptyMasterKey = errors.New("credential master key is empty")
)

var encoding = base64.RawStdEncoding

// Cipher seals and opens credential values with AES-256-GCM. It is immutable
// after construction and safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the AES key from the operator-supplied master secret with
// HKDF-SHA256.
//
// Why HKDF instead of using CREDENTIAL_MASTER_KEY directly?
//   - Operators supply a passphrase of any length; AES-256 needs exactly 32
//     bytes, and truncating or zero-padding would waste or weaken entropy.
//   - The info string binds the key to credential storage, so reusing the
//     same master secret elsewhere does not yield the same AES key.
//   - A v2 info string lets a future format derive a fresh key from the
//     same secret.
func NewCipher(masterSecret string) (*Cipher, error) {
	if masterSecret == "" {
		return nil, ErrEmptyMasterKey
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(masterSecret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns
// "iv:tag:ciphertext", each part raw standard base64.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal returns ciphertext || tag.
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		encoding.EncodeToString(nonce),
		encoding.EncodeToString(tag),
		encoding.EncodeToString(ct),
	}, ":"), nil
}

// Decrypt opens a value produced by Encrypt. Every failure wraps
// ErrDecryptionFailure; no partial plaintext is ever returned.
func (c *Cipher) Decrypt(stored string) (string, error) {
	parts := strings.Split(stored, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: malformed value", ErrDecryptionFailure)
	}

	nonce, err := encoding.DecodeString(parts[0])
	if err != nil || len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: bad iv", ErrDecryptionFailure)
	}
	tag, err := encoding.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: bad tag", ErrDecryptionFailure)
	}
	ct, err := encoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext", ErrDecryptionFailure)
	}

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailure, err)
	}
	return string(plaintext), nil
}
