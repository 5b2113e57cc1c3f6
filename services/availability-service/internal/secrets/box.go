// Package secrets seals calendar provider tokens before they are written to the database.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keySize   = 32
	nonceSize = 24
	// minSecretLen guards against deploying with a placeholder passphrase.
	minSecretLen = 16
)

var (
	ErrWeakSecret = errors.New("token secret must be at least 16 characters")
	ErrOpen       = errors.New("sealed token could not be opened")
)

// Box seals and opens short secrets with XSalsa20-Poly1305. The output is nonce || ciphertext.
type Box struct {
	key [keySize]byte
}

// NewBox derives the sealing key from secret with HKDF-SHA256.
func NewBox(secret string) (*Box, error) {
	if len(secret) < minSecretLen {
		return nil, ErrWeakSecret
	}
	b := &Box{}
	kdf := hkdf.New(sha256.New, []byte(secret), nil, []byte("calendar-account-tokens"))
	if _, err := io.ReadFull(kdf, b.key[:]); err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	return b, nil
}

// Seal returns nil for an empty plaintext so absent tokens stay NULL.
func (b *Box) Seal(plaintext string) ([]byte, error) {
	if plaintext == "" {
		return nil, nil
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("token nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key), nil
}

func (b *Box) Open(sealed []byte) (string, error) {
	if len(sealed) == 0 {
		return "", nil
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return "", ErrOpen
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrOpen
	}
	return string(out), nil
}
