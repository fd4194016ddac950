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
	"crypto/ed25519"
	"crypto/x509"
	"fmt"
	"math/big"
	"time"
)

// Certificate holds the fields of a device certificate the handshake needs.
type Certificate struct {
	NotBefore    time.Time
	NotAfter     time.Time
	SerialNumber *big.Int
	parsed       *x509.Certificate
	Subject      string
	Raw          []byte
	PublicKey    ed25519.PublicKey
	Signature    []byte
}

// ParseCertificate parses a DER certificate carrying an Ed25519 subject key.
func ParseCertificate(der []byte) (*Certificate, error) {
	if len(der) > MaxCertificateSz {
		return nil, fmt.Errorf("%w: %d bytes", ErrCertTooLarge, len(der))
	}
	parsed, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCertParse, err)
	}
	pub, ok := parsed.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrCertKeyType, parsed.PublicKey)
	}
	return &Certificate{
		Raw:          parsed.Raw,
		PublicKey:    pub,
		Signature:    parsed.Signature,
		SerialNumber: parsed.SerialNumber,
		Subject:      parsed.Subject.String(),
		NotBefore:    parsed.NotBefore,
		NotAfter:     parsed.NotAfter,
		parsed:       parsed,
	}, nil
}

// ValidAt reports whether t falls inside the certificate validity window.
func (c *Certificate) ValidAt(t time.Time) bool {
	return !t.Before(c.NotBefore) && !t.After(c.NotAfter)
}

// VerifyAgainst checks that the certificate was signed by one of anchors and
// is valid at now. An empty anchor list always fails.
func (c *Certificate) VerifyAgainst(anchors []*x509.Certificate, now time.Time) error {
	if !c.ValidAt(now) {
		return ErrCertExpired
	}
	for _, anchor := range anchors {
		if anchor == nil {
			continue
		}
		if err := c.parsed.CheckSignatureFrom(anchor); err == nil {
			return nil
		}
	}
	return ErrCertNotTrusted
}
