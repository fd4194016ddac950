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

// Package crypto defines the primitives the secure channel is built from and
// provides the reference software implementation.
//
// The handshake and the secure command layer only ever talk to a Suite, so an
// accelerated or hardware-backed implementation can be substituted without
// touching protocol code.
package crypto

import "errors"

// Primitive sizes fixed by the channel protocol.
const (
	KeySize          = 32 // AES-256 and X25519 key length
	NonceSize        = 12 // AES-GCM nonce length
	TagSize          = 16 // AES-GCM tag length
	X25519KeySize    = 32
	Ed25519SigSize   = 64
	Ed25519KeySize   = 32
	HashSize         = 32 // SHA-256
	MaxCertificateSz = 1024
)

// Errors returned by Suite implementations.
var (
	ErrAuthFailed       = errors.New("crypto: message authentication failed")
	ErrInvalidKeySize   = errors.New("crypto: invalid key size")
	ErrInvalidNonceSize = errors.New("crypto: invalid nonce size")
	ErrLowOrderPoint    = errors.New("crypto: key exchange produced low-order point")
	ErrCertParse        = errors.New("crypto: certificate parse failed")
	ErrCertKeyType      = errors.New("crypto: certificate key is not Ed25519")
	ErrCertTooLarge     = errors.New("crypto: certificate too large")
	ErrCertNotTrusted   = errors.New("crypto: certificate not signed by a trust anchor")
	ErrCertExpired      = errors.New("crypto: certificate outside its validity window")
	ErrRandom           = errors.New("crypto: random source failed")
)

// Suite is the capability set consumed by the protocol layers.
type Suite interface {
	// Seal encrypts and authenticates plaintext, returning ciphertext||tag.
	Seal(key, nonce, plaintext, ad []byte) ([]byte, error)

	// Open verifies and decrypts ciphertext||tag. On any verification failure
	// it returns ErrAuthFailed and no plaintext.
	Open(key, nonce, ciphertext, ad []byte) ([]byte, error)

	// GenerateX25519 returns a fresh ephemeral key pair drawn from the
	// suite's random source.
	GenerateX25519() (priv, pub []byte, err error)

	// X25519 computes the shared secret between priv and peerPub.
	X25519(priv, peerPub []byte) ([]byte, error)

	// VerifyEd25519 reports whether sig is a valid signature of msg by pub.
	VerifyEd25519(pub, msg, sig []byte) bool

	// Hash returns the digest of the concatenation of parts.
	Hash(parts ...[]byte) []byte

	// DeriveKeys expands secret into one KeySize key per label.
	DeriveKeys(secret, salt []byte, labels ...string) ([][]byte, error)

	// ParseCertificate parses a DER encoded device certificate.
	ParseCertificate(der []byte) (*Certificate, error)

	// Random fills b with cryptographically secure bytes.
	Random(b []byte) error
}

// Wipe zeroes b.
//
//go:noinline
func Wipe(b []byte) {
	clear(b)
}
