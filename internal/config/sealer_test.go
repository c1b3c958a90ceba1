// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package config

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func TestSealerRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := NewSealer("test-encryption-secret")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	plaintext := "oauth-refresh-token-value"
	sealed, err := s.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed == plaintext {
		t.Fatal("sealed output equals plaintext")
	}
	if strings.Contains(sealed, plaintext) {
		t.Fatal("sealed output contains plaintext")
	}

	opened, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if opened != plaintext {
		t.Errorf("Open = %q, want %q", opened, plaintext)
	}
}

func TestSealerNonceUniqueness(t *testing.T) {
	t.Parallel()

	s, err := NewSealer("test-encryption-secret")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	a, err := s.Seal("same-input")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := s.Seal("same-input")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if a == b {
		t.Error("two seals of the same input produced identical ciphertext")
	}
}

func TestSealerRejectsEmptyInputs(t *testing.T) {
	t.Parallel()

	if _, err := NewSealer(""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("NewSealer(\"\") = %v, want ErrEmptySecret", err)
	}

	s, err := NewSealer("test-encryption-secret")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	if _, err := s.Seal(""); !errors.Is(err, ErrEmptyPlaintext) {
		t.Errorf("Seal(\"\") = %v, want ErrEmptyPlaintext", err)
	}
	if _, err := s.Open(""); !errors.Is(err, ErrEmptyCiphertext) {
		t.Errorf("Open(\"\") = %v, want ErrEmptyCiphertext", err)
	}
}

func TestSealerTamperDetection(t *testing.T) {
	t.Parallel()

	s, err := NewSealer("test-encryption-secret")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := s.Seal("secret-value")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw[len(raw)-1] ^= 0x01
	tampered := base64.StdEncoding.EncodeToString(raw)

	if _, err := s.Open(tampered); !errors.Is(err, ErrOpenFailed) {
		t.Errorf("Open(tampered) = %v, want ErrOpenFailed", err)
	}
}

func TestSealerWrongKey(t *testing.T) {
	t.Parallel()

	s1, err := NewSealer("secret-one-aaaaaa")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	s2, err := NewSealer("secret-two-bbbbbb")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	sealed, err := s1.Seal("credential")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if _, err := s2.Open(sealed); !errors.Is(err, ErrOpenFailed) {
		t.Errorf("Open with wrong key = %v, want ErrOpenFailed", err)
	}
}

func TestSealerInvalidCiphertext(t *testing.T) {
	t.Parallel()

	s, err := NewSealer("test-encryption-secret")
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	if _, err := s.Open("not-base64!!!"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("Open(garbage) = %v, want ErrInvalidCiphertext", err)
	}

	short := base64.StdEncoding.EncodeToString([]byte("tiny"))
	if _, err := s.Open(short); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("Open(short) = %v, want ErrCiphertextTooShort", err)
	}
}

func TestMaskCredential(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"ab", "****"},
		{"abcd", "****"},
		{"abcdefgh", "****...efgh"},
	}

	for _, tt := range tests {
		if got := MaskCredential(tt.in); got != tt.want {
			t.Errorf("MaskCredential(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
