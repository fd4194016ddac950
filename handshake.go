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

package tropic

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/ZaparooProject/go-tropic/internal/frame"
	"github.com/ZaparooProject/go-tropic/pkg/crypto"
)

// Handshake transcript and key schedule constants
const (
	ProtocolName  = "TROPIC_X25519_AESGCM_SHA256_ED25519"
	labelCmdKey   = "tropic host->device"
	labelResKey   = "tropic device->host"
	handshakeResp = crypto.X25519KeySize + crypto.Ed25519SigSize
)

// StartSession runs the handshake and installs a fresh secure session. A live
// session is dropped first. On failure the handle is left in NoSession with
// every intermediate secret wiped.
func (h *Handle) StartSession(ctx context.Context) error {
	if h == nil {
		return ErrParam
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	h.endSession()
	h.state = Handshaking
	s, err := h.handshake(ctx)
	if err != nil {
		h.state = NoSession
		Debugf("handshake failed: %v", err)
		return err
	}
	h.session = s
	h.state = SessionOn
	Debugln("secure session established")
	return nil
}

func (h *Handle) handshake(ctx context.Context) (*session, error) {
	suite := h.config.Suite

	cert, err := h.deviceCertificate(ctx)
	if err != nil {
		return nil, err
	}

	ehpriv, ehpub, err := suite.GenerateX25519()
	if err != nil {
		return nil, fmt.Errorf("%w: ephemeral key: %w", ErrHandshakeFailed, err)
	}
	defer crypto.Wipe(ehpriv)

	rsp, err := h.transceive(ctx, "Handshake", frame.ReqHandshake, ehpub)
	if err != nil {
		return nil, err
	}
	if len(rsp) != handshakeResp {
		return nil, fmt.Errorf("%w: handshake response is %d bytes, expected %d", ErrFail, len(rsp), handshakeResp)
	}
	etpub := rsp[:crypto.X25519KeySize]
	sig := rsp[crypto.X25519KeySize:]

	transcript := suite.Hash([]byte(ProtocolName), ehpub, etpub, suite.Hash(cert.Raw))
	if !suite.VerifyEd25519(cert.PublicKey, transcript, sig) {
		return nil, ErrSignature
	}

	shared, err := suite.X25519(ehpriv, etpub)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	defer crypto.Wipe(shared)

	keys, err := suite.DeriveKeys(shared, transcript, labelCmdKey, labelResKey)
	if err != nil {
		return nil, fmt.Errorf("%w: key derivation: %w", ErrHandshakeFailed, err)
	}
	if len(keys) != 2 {
		for _, k := range keys {
			crypto.Wipe(k)
		}
		return nil, fmt.Errorf("%w: key derivation returned %d keys", ErrHandshakeFailed, len(keys))
	}
	return newSession(keys[0], keys[1]), nil
}

// deviceCertificate returns the cached certificate or reads, parses and
// verifies it from the chip.
func (h *Handle) deviceCertificate(ctx context.Context) (*crypto.Certificate, error) {
	if h.cert != nil {
		return h.cert, nil
	}
	der, err := h.readCertificateDER(ctx)
	if err != nil {
		return nil, err
	}
	cert, err := h.config.Suite.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	if len(h.config.TrustAnchors) > 0 {
		if err := cert.VerifyAgainst(h.config.TrustAnchors, h.config.Now()); err != nil {
			return nil, err
		}
	}
	Debugf("device certificate: subject=%q serial=%s", cert.Subject, cert.SerialNumber)
	h.cert = cert
	return cert, nil
}

// readCertificateDER reads the certificate store block by block. Block 0
// starts with the big-endian DER length.
func (h *Handle) readCertificateDER(ctx context.Context) ([]byte, error) {
	first, err := h.getInfoBlock(ctx, frame.InfoObjectX509Certificate, 0)
	if err != nil {
		return nil, err
	}
	size := int(binary.BigEndian.Uint16(first))
	if size == 0 {
		return nil, fmt.Errorf("%w: empty certificate store", ErrCertParse)
	}
	if size > crypto.MaxCertificateSz {
		return nil, fmt.Errorf("%w: %d bytes", crypto.ErrCertTooLarge, size)
	}

	blob := make([]byte, 0, 2+size+frame.InfoBlockSize)
	blob = append(blob, first...)
	for block := byte(1); len(blob) < 2+size; block++ {
		data, err := h.getInfoBlock(ctx, frame.InfoObjectX509Certificate, block)
		if err != nil {
			return nil, err
		}
		blob = append(blob, data...)
	}
	return blob[2 : 2+size], nil
}

func (h *Handle) getInfoBlock(ctx context.Context, object, block byte) ([]byte, error) {
	data, err := h.transceive(ctx, "GetInfo", frame.ReqGetInfo, []byte{object, block})
	if err != nil {
		return nil, err
	}
	if len(data) != frame.InfoBlockSize {
		return nil, fmt.Errorf("%w: info block %d is %d bytes, expected %d",
			ErrFail, block, len(data), frame.InfoBlockSize)
	}
	return data, nil
}

// GetCertificate returns the device certificate, reading it from the chip on
// first use. No session is required.
func (h *Handle) GetCertificate(ctx context.Context) (*crypto.Certificate, error) {
	if h == nil {
		return nil, ErrParam
	}
	return h.deviceCertificate(ctx)
}

// ChipID reads the chip identification block. No session is required.
func (h *Handle) ChipID(ctx context.Context) ([]byte, error) {
	if h == nil {
		return nil, ErrParam
	}
	return h.getInfoBlock(ctx, frame.InfoObjectChipID, 0)
}
