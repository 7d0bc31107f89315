package account

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
)

var errUnseal = errors.New("unseal credential: authentication failed")

// Sealer encrypts API keys at rest with NaCl secretbox. Each sealed value is
// the random nonce followed by the box.
type Sealer struct {
	key [keySize]byte
}

// ParseKey decodes a 32-byte key given as hex or standard base64.
func ParseKey(s string) ([keySize]byte, error) {
	var key [keySize]byte
	s = strings.TrimSpace(s)

	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != keySize {
		raw, err = base64.StdEncoding.DecodeString(s)
		if err != nil || len(raw) != keySize {
			return key, fmt.Errorf("secret key must be %d bytes, hex or base64 encoded", keySize)
		}
	}
	copy(key[:], raw)
	return key, nil
}

// RandomKey returns a fresh key. Values sealed with it do not survive a restart.
func RandomKey() ([keySize]byte, error) {
	var key [keySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		return key, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// NewSealer creates a sealer for the given key.
func NewSealer(key [keySize]byte) *Sealer {
	return &Sealer{key: key}
}

// Seal encrypts plaintext.
func (s *Sealer) Seal(plaintext string) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &s.key), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed []byte) (string, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", errUnseal
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", errUnseal
	}
	return string(out), nil
}
