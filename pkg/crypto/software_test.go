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
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(b byte) []byte {
	return bytes.Repeat([]byte{b}, KeySize)
}

func testNonce(counter byte) []byte {
	nonce := make([]byte, NonceSize)
	nonce[0] = counter
	return nonce
}

func TestSoftware_SealOpen(t *testing.T) {
	t.Parallel()

	suite := NewSoftware(nil)
	key := testKey(0x11)
	nonce := testNonce(7)
	plaintext := []byte{0x63, 0x01, 0x00}
	ad := []byte("header")

	sealed, err := suite.Seal(key, nonce, plaintext, ad)
	require.NoError(t, err)
	assert.Len(t, sealed, len(plaintext)+TagSize)

	opened, err := suite.Open(key, nonce, sealed, ad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestSoftware_OpenRejectsEveryBitFlip(t *testing.T) {
	t.Parallel()

	suite := NewSoftware(nil)
	key := testKey(0x22)
	nonce := testNonce(1)
	sealed, err := suite.Seal(key, nonce, []byte("ecc key erase"), nil)
	require.NoError(t, err)

	for i := range sealed {
		for bit := range 8 {
			tampered := append([]byte(nil), sealed...)
			tampered[i] ^= 1 << bit
			plaintext, err := suite.Open(key, nonce, tampered, nil)
			require.ErrorIs(t, err, ErrAuthFailed, "byte %d bit %d", i, bit)
			assert.Nil(t, plaintext)
		}
	}
}

func TestSoftware_OpenWrongContext(t *testing.T) {
	t.Parallel()

	suite := NewSoftware(nil)
	sealed, err := suite.Seal(testKey(0x33), testNonce(0), []byte("ping"), nil)
	require.NoError(t, err)

	_, err = suite.Open(testKey(0x34), testNonce(0), sealed, nil)
	require.ErrorIs(t, err, ErrAuthFailed)

	_, err = suite.Open(testKey(0x33), testNonce(1), sealed, nil)
	require.ErrorIs(t, err, ErrAuthFailed)

	_, err = suite.Open(testKey(0x33), testNonce(0), sealed, []byte{0x01})
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestSoftware_InvalidSizes(t *testing.T) {
	t.Parallel()

	suite := NewSoftware(nil)
	_, err := suite.Seal(make([]byte, 16), testNonce(0), nil, nil)
	require.ErrorIs(t, err, ErrInvalidKeySize)

	_, err = suite.Seal(testKey(1), make([]byte, 8), nil, nil)
	require.ErrorIs(t, err, ErrInvalidNonceSize)

	_, err = suite.X25519(make([]byte, 31), make([]byte, 32))
	require.ErrorIs(t, err, ErrInvalidKeySize)
}

func TestSoftware_X25519Agreement(t *testing.T) {
	t.Parallel()

	suite := NewSoftware(nil)
	aPriv, aPub, err := suite.GenerateX25519()
	require.NoError(t, err)
	bPriv, bPub, err := suite.GenerateX25519()
	require.NoError(t, err)

	ab, err := suite.X25519(aPriv, bPub)
	require.NoError(t, err)
	ba, err := suite.X25519(bPriv, aPub)
	require.NoError(t, err)
	assert.Equal(t, ab, ba)

	// All-zero peer key is a low-order point
	_, err = suite.X25519(aPriv, make([]byte, X25519KeySize))
	require.ErrorIs(t, err, ErrLowOrderPoint)
}

func TestSoftware_DeterministicWithFixedRandom(t *testing.T) {
	t.Parallel()

	seed := bytes.Repeat([]byte{0x5A}, 64)
	_, pub1, err := NewSoftware(bytes.NewReader(seed)).GenerateX25519()
	require.NoError(t, err)
	_, pub2, err := NewSoftware(bytes.NewReader(seed)).GenerateX25519()
	require.NoError(t, err)
	assert.Equal(t, pub1, pub2)
}

func TestSoftware_RandomFailure(t *testing.T) {
	t.Parallel()

	suite := NewSoftware(bytes.NewReader([]byte{0x01, 0x02}))
	err := suite.Random(make([]byte, 4))
	require.ErrorIs(t, err, ErrRandom)
}

func TestSoftware_DeriveKeys(t *testing.T) {
	t.Parallel()

	suite := NewSoftware(nil)
	secret := testKey(0x44)
	salt := []byte("transcript")

	keys, err := suite.DeriveKeys(secret, salt, "a", "b")
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Len(t, keys[0], KeySize)
	assert.NotEqual(t, keys[0], keys[1])

	again, err := suite.DeriveKeys(secret, salt, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, keys, again)

	other, err := suite.DeriveKeys(secret, []byte("other"), "a")
	require.NoError(t, err)
	assert.NotEqual(t, keys[0], other[0])
}

func TestSoftware_HashAndVerify(t *testing.T) {
	t.Parallel()

	suite := NewSoftware(nil)
	assert.Equal(t, suite.Hash([]byte("ab"), []byte("c")), suite.Hash([]byte("abc")))
	assert.Len(t, suite.Hash(), HashSize)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	msg := []byte("transcript")
	sig := ed25519.Sign(priv, msg)

	assert.True(t, suite.VerifyEd25519(pub, msg, sig))
	assert.False(t, suite.VerifyEd25519(pub, []byte("other"), sig))
	assert.False(t, suite.VerifyEd25519(pub[:16], msg, sig))
	sig[0] ^= 0x80
	assert.False(t, suite.VerifyEd25519(pub, msg, sig))
}

func makeCert(t *testing.T, parent *x509.Certificate, parentKey ed25519.PrivateKey, isCA bool) (*x509.Certificate, ed25519.PrivateKey) {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}
	if isCA {
		tmpl.KeyUsage = x509.KeyUsageCertSign
	}
	if parent == nil {
		parent, parentKey = tmpl, priv
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, pub, parentKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, priv
}

func TestParseCertificate(t *testing.T) {
	t.Parallel()

	root, rootKey := makeCert(t, nil, nil, true)
	leaf, _ := makeCert(t, root, rootKey, false)

	cert, err := ParseCertificate(leaf.Raw)
	require.NoError(t, err)
	assert.Equal(t, leaf.PublicKey, cert.PublicKey)
	assert.Equal(t, leaf.Raw, cert.Raw)
	assert.NotEmpty(t, cert.Signature)
	assert.True(t, cert.ValidAt(time.Now()))

	require.NoError(t, cert.VerifyAgainst([]*x509.Certificate{root}, time.Now()))

	otherRoot, _ := makeCert(t, nil, nil, true)
	require.ErrorIs(t, cert.VerifyAgainst([]*x509.Certificate{otherRoot}, time.Now()), ErrCertNotTrusted)
	require.ErrorIs(t, cert.VerifyAgainst(nil, time.Now()), ErrCertNotTrusted)
	require.ErrorIs(t, cert.VerifyAgainst([]*x509.Certificate{root}, time.Now().Add(48*time.Hour)), ErrCertExpired)
}

func TestParseCertificate_Errors(t *testing.T) {
	t.Parallel()

	_, err := ParseCertificate([]byte{0x30, 0x03, 0x01, 0x02})
	require.ErrorIs(t, err, ErrCertParse)

	_, err = ParseCertificate(make([]byte, MaxCertificateSz+1))
	require.ErrorIs(t, err, ErrCertTooLarge)
}
