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

package testing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// Certificate validity window used by every fixture identity
var (
	CertNotBefore = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	CertNotAfter  = time.Date(2049, time.December, 31, 23, 59, 59, 0, time.UTC)
)

// Identity is a provisioning authority plus one device it has certified.
// Identities built from the same seed are byte-identical.
type Identity struct {
	Root      *x509.Certificate
	RootKey   ed25519.PrivateKey
	DeviceKey ed25519.PrivateKey
	RootDER   []byte
	CertDER   []byte
}

func seededKey(seed byte, role string) ed25519.PrivateKey {
	sum := sha256.Sum256([]byte(fmt.Sprintf("go-tropic fixture %s %d", role, seed)))
	return ed25519.NewKeyFromSeed(sum[:])
}

// NewIdentity creates a root CA and a device certificate signed by it.
func NewIdentity(seed byte) (*Identity, error) {
	rootKey := seededKey(seed, "root")
	deviceKey := seededKey(seed, "device")

	rootTmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(int64(seed) + 1),
		Subject:               pkix.Name{CommonName: fmt.Sprintf("Fixture Root CA %d", seed)},
		NotBefore:             CertNotBefore,
		NotAfter:              CertNotAfter,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	rootDER, err := x509.CreateCertificate(rand.Reader, rootTmpl, rootTmpl, rootKey.Public(), rootKey)
	if err != nil {
		return nil, fmt.Errorf("create root certificate: %w", err)
	}
	root, err := x509.ParseCertificate(rootDER)
	if err != nil {
		return nil, fmt.Errorf("parse root certificate: %w", err)
	}

	deviceTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(0x1000 + int64(seed)),
		Subject:      pkix.Name{CommonName: fmt.Sprintf("Fixture Chip %d", seed)},
		NotBefore:    CertNotBefore,
		NotAfter:     CertNotAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, deviceTmpl, root, deviceKey.Public(), rootKey)
	if err != nil {
		return nil, fmt.Errorf("create device certificate: %w", err)
	}

	return &Identity{
		Root:      root,
		RootKey:   rootKey,
		DeviceKey: deviceKey,
		RootDER:   rootDER,
		CertDER:   certDER,
	}, nil
}

// RootPEM returns the root certificate in PEM form
func (id *Identity) RootPEM() []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: id.RootDER})
}

// certificateStore lays the device certificate out the way GET_INFO serves
// it: a big-endian length prefix, the DER, zero padding to whole blocks.
func (id *Identity) certificateStore(blockSize int) []byte {
	n := 2 + len(id.CertDER)
	if rem := n % blockSize; rem != 0 {
		n += blockSize - rem
	}
	store := make([]byte, n)
	store[0] = byte(len(id.CertDER) >> 8)
	store[1] = byte(len(id.CertDER))
	copy(store[2:], id.CertDER)
	return store
}
