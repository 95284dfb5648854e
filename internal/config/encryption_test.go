// Watchhook - Media Server Scrobble Relay
// Copyright 2026 Watchhook Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/watchhook/watchhook

package config

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

const testSecret = "test-secret-for-credential-encryption"

func newTestEncryptor(t *testing.T) *CredentialEncryptor {
	t.Helper()
	e, err := NewCredentialEncryptor(testSecret)
	if err != nil {
		t.Fatalf("NewCredentialEncryptor: %v", err)
	}
	return e
}

func TestNewCredentialEncryptorEmptySecret(t *testing.T) {
	if _, err := NewCredentialEncryptor(""); !errors.Is(err, ErrEmptySecret) {
		t.Errorf("expected ErrEmptySecret, got %v", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	e := newTestEncryptor(t)

	plaintexts := []string{
		"a",
		"trakt-access-token-value",
		"refresh:" + strings.Repeat("x", 512),
		"pässwörd with ünïcode",
	}

	for _, plaintext := range plaintexts {
		ciphertext, err := e.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		if ciphertext == plaintext {
			t.Error("ciphertext equals plaintext")
		}

		decrypted, err := e.Decrypt(ciphertext)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if decrypted != plaintext {
			t.Errorf("round trip mismatch: got %q, want %q", decrypted, plaintext)
		}
	}
}

func TestEncryptProducesUniqueCiphertexts(t *testing.T) {
	e := newTestEncryptor(t)

	first, err := e.Encrypt("same-input")
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Encrypt("same-input")
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("two encryptions of the same plaintext produced identical ciphertexts (nonce reuse?)")
	}
}

func TestDecryptErrors(t *testing.T) {
	e := newTestEncryptor(t)

	if _, err := e.Decrypt(""); !errors.Is(err, ErrEmptyCiphertext) {
		t.Errorf("expected ErrEmptyCiphertext, got %v", err)
	}

	if _, err := e.Decrypt("!!!not-base64!!!"); !errors.Is(err, ErrInvalidCiphertext) {
		t.Errorf("expected ErrInvalidCiphertext, got %v", err)
	}

	if _, err := e.Decrypt("c2hvcnQ="); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("expected ErrCiphertextTooShort, got %v", err)
	}

	// Tampered ciphertext must fail authentication.
	ciphertext, err := e.Encrypt("credential")
	if err != nil {
		t.Fatal(err)
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-1] ^= 0x01
	if _, err := e.Decrypt(base64.StdEncoding.EncodeToString(raw)); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("tampered ciphertext: expected ErrDecryptionFailed, got %v", err)
	}
}

func TestDecryptWithDifferentSecretFails(t *testing.T) {
	e1 := newTestEncryptor(t)
	e2, err := NewCredentialEncryptor("a-completely-different-secret-value")
	if err != nil {
		t.Fatal(err)
	}

	ciphertext, err := e1.Encrypt("token")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := e2.Decrypt(ciphertext); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed with wrong secret, got %v", err)
	}
}

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", ""},
		{"ab", "****"},
		{"abcd", "****"},
		{"secret-token-1234", "****...1234"},
	}

	for _, tt := range tests {
		if got := MaskCredential(tt.input); got != tt.want {
			t.Errorf("MaskCredential(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
