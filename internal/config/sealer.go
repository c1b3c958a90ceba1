// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var (
	ErrEmptySecret     = errors.New("encryption secret cannot be empty")
	ErrEmptyPlaintext  = errors.New("plaintext cannot be empty")
	ErrEmptyCiphertext = errors.New("ciphertext cannot be empty")

	// ErrOpenFailed covers both corrupted ciphertext and a wrong key;
	// GCM cannot distinguish the two.
	ErrOpenFailed = errors.New("unseal failed: invalid ciphertext or authentication tag")

	ErrInvalidCiphertext  = errors.New("invalid ciphertext format")
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// hkdfContext fixes the HKDF salt/info pair. Changing either invalidates
// every sealed credential in the store, hence the version suffix.
var hkdfContext = struct{ salt, info string }{
	salt: "cloudsync-account-credentials",
	info: "credential-sealing-v1",
}

// Sealer seals account credentials for storage with AES-256-GCM, so the
// plaintext never reaches the record store or the logs. One instance is
// shared process-wide; the AEAD is safe for concurrent use. Display
// paths go through MaskCredential instead.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives a 256-bit key from the configured encryption secret
// via HKDF-SHA256 and prepares the AES-GCM cipher.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}

	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(hkdfContext.salt), []byte(hkdfContext.info))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive sealing key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts a credential. The result is base64 over the random nonce
// followed by the ciphertext and authentication tag.
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	buf := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	buf = s.aead.Seal(buf, buf[:s.aead.NonceSize()], []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Open reverses Seal. Any tampering with the stored value surfaces as
// ErrOpenFailed.
func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", ErrEmptyCiphertext
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed: %s", ErrInvalidCiphertext, err.Error())
	}
	if len(raw) <= s.aead.NonceSize()+s.aead.Overhead() {
		return "", ErrCiphertextTooShort
	}

	plaintext, err := s.aead.Open(nil, raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():], nil)
	if err != nil {
		return "", ErrOpenFailed
	}
	return string(plaintext), nil
}

// Validate round-trips a known value, confirming the configured secret
// yields a working cipher before the server starts taking traffic.
func (s *Sealer) Validate() error {
	const sample = "sealing-validation-test"

	sealed, err := s.Seal(sample)
	if err != nil {
		return fmt.Errorf("seal test failed: %w", err)
	}
	opened, err := s.Open(sealed)
	if err != nil {
		return fmt.Errorf("open test failed: %w", err)
	}
	if opened != sample {
		return errors.New("round-trip validation failed: data mismatch")
	}
	return nil
}

// MaskCredential renders a credential for display, keeping only the last
// four characters.
func MaskCredential(credential string) string {
	switch {
	case credential == "":
		return ""
	case len(credential) <= 4:
		return "****"
	default:
		return "****..." + credential[len(credential)-4:]
	}
}
