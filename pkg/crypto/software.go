// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Software is the reference Suite: AES-256-GCM, X25519, Ed25519, SHA-256 and
// HKDF-SHA256, with DER certificates parsed by crypto/x509.
type Software struct {
	rand io.Reader
}

var _ Suite = (*Software)(nil)

// NewSoftware creates a software suite drawing randomness from r. A nil r
// selects crypto/rand.
func NewSoftware(r io.Reader) *Software {
	if r == nil {
		r = rand.Reader
	}
	return &Software{rand: r}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrInvalidKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}
	return aead, nil
}

// Seal implements Suite.
func (*Software) Seal(key, nonce, plaintext, ad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonceSize
	}
	return aead.Seal(nil, nonce, plaintext, ad), nil
}

// Open implements Suite.
func (*Software) Open(key, nonce, ciphertext, ad []byte) ([]byte, error) {
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonceSize
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, ad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// GenerateX25519 implements Suite. The private scalar is clamped per RFC 7748.
func (s *Software) GenerateX25519() (priv, pub []byte, err error) {
	priv = make([]byte, X25519KeySize)
	if err := s.Random(priv); err != nil {
		return nil, nil, err
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		Wipe(priv)
		return nil, nil, fmt.Errorf("x25519 public key: %w", err)
	}
	return priv, pub, nil
}

// X25519 implements Suite. An all-zero result is rejected.
func (*Software) X25519(priv, peerPub []byte) ([]byte, error) {
	if len(priv) != X25519KeySize || len(peerPub) != X25519KeySize {
		return nil, ErrInvalidKeySize
	}
	shared, err := curve25519.X25519(priv, peerPub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLowOrderPoint, err)
	}
	return shared, nil
}

// VerifyEd25519 implements Suite.
func (*Software) VerifyEd25519(pub, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), msg, sig)
}

// Hash implements Suite.
func (*Software) Hash(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return h.Sum(nil)
}

// DeriveKeys implements Suite. Each label is a separate HKDF-SHA256 expansion
// of the same extracted PRK, so keys for distinct labels are independent.
func (*Software) DeriveKeys(secret, salt []byte, labels ...string) ([][]byte, error) {
	prk := hkdf.Extract(sha256.New, secret, salt)
	defer Wipe(prk)

	keys := make([][]byte, 0, len(labels))
	for _, label := range labels {
		key := make([]byte, KeySize)
		if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, []byte(label)), key); err != nil {
			for _, k := range keys {
				Wipe(k)
			}
			return nil, fmt.Errorf("hkdf expand %q: %w", label, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// ParseCertificate implements Suite.
func (*Software) ParseCertificate(der []byte) (*Certificate, error) {
	return ParseCertificate(der)
}

// Random implements Suite.
func (s *Software) Random(b []byte) error {
	if _, err := io.ReadFull(s.rand, b); err != nil {
		return fmt.Errorf("%w: %v", ErrRandom, err)
	}
	return nil
}
