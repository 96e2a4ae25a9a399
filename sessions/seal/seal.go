// Package seal encrypts session tokens before a durable store writes them.
package seal

import (
	"crypto/rand"
	"encoding/base64"
	"io"

	ierrors "github.com/jrsteele09/go-highlevel-auth/internal/errors"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize   = 32
	nonceSize = 24
	prefix    = "sb1:"
)

// Sealer protects token values at rest.
type Sealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

// SecretBox seals values with NaCl secretbox under a 32-byte key.
// Sealed values are "sb1:" followed by base64(nonce || box).
type SecretBox struct {
	key [KeySize]byte
}

var _ Sealer = (*SecretBox)(nil)

func NewSecretBox(key []byte) (*SecretBox, error) {
	if len(key) != KeySize {
		return nil, ierrors.Wrapf(ierrors.ErrInvalidSealKey, "seal key must be %d bytes, got %d", KeySize, len(key))
	}
	sb := &SecretBox{}
	copy(sb.key[:], key)
	return sb, nil
}

// NewSecretBoxFromBase64 decodes a standard base64 key, as produced by `openssl rand -base64 32`.
func NewSecretBoxFromBase64(encoded string) (*SecretBox, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ierrors.Wrapf(ierrors.ErrInvalidSealKey, "decode seal key: %v", err)
	}
	return NewSecretBox(key)
}

func (s *SecretBox) Seal(plain string) (string, error) {
	if plain == "" {
		return "", nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", ierrors.Wrapf(err, "seal nonce")
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return prefix + base64.StdEncoding.EncodeToString(box), nil
}

func (s *SecretBox) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	if len(sealed) < len(prefix) || sealed[:len(prefix)] != prefix {
		return "", ierrors.Wrapf(ierrors.ErrUnsealFailed, "missing %q prefix", prefix)
	}
	raw, err := base64.StdEncoding.DecodeString(sealed[len(prefix):])
	if err != nil {
		return "", ierrors.Wrapf(ierrors.ErrUnsealFailed, "decode: %v", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", ierrors.Wrapf(ierrors.ErrUnsealFailed, "sealed value too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ierrors.ErrUnsealFailed
	}
	return string(plain), nil
}

// Plain is the identity Sealer used when no key is configured.
type Plain struct{}

var _ Sealer = Plain{}

func (Plain) Seal(plain string) (string, error)  { return plain, nil }
func (Plain) Open(sealed string) (string, error) { return sealed, nil }
