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
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/ZaparooProject/go-tropic/pkg/crypto"
)

// L3 command identifiers (first plaintext byte of a command)
const (
	cmdPing           = 0x01
	cmdRandomValueGet = 0x50
	cmdECCKeyGenerate = 0x60
	cmdECCKeyStore    = 0x61
	cmdECCKeyRead     = 0x62
	cmdECCKeyErase    = 0x63
	cmdECDSASign      = 0x70
	cmdEdDSASign      = 0x71
	cmdMCounterInit   = 0x80
	cmdMCounterUpdate = 0x81
	cmdMCounterGet    = 0x82
)

// L3 result codes (first plaintext byte of a result)
const (
	resultOK                = 0xC3
	resultFail              = 0x3C
	resultUnauthorized      = 0x01
	resultInvalidCmd        = 0x02
	resultECCInvalidKey     = 0x12
	resultMCounterUpdateErr = 0x13
	resultCounterInvalid    = 0x14
)

// Exported result codes for IsDeviceResult
const (
	ResultECCInvalidKey     byte = resultECCInvalidKey
	ResultMCounterUpdateErr byte = resultMCounterUpdateErr
	ResultCounterInvalid    byte = resultCounterInvalid
)

// L3 packet geometry
const (
	L3SizeFieldSize = 2
	// L3MaxPayloadSize is the largest plaintext command or result: an EdDSA
	// sign request carrying a maximal message.
	L3MaxPayloadSize = 1 + 2 + 13 + MaxSignMessageSize
	// L3PacketMaxSize is SIZE || ciphertext || tag for the largest payload.
	L3PacketMaxSize = L3SizeFieldSize + L3MaxPayloadSize + crypto.TagSize
)

// direction is one half of the secure channel: a key and the counter the
// next nonce is built from.
type direction struct {
	key   []byte
	nonce uint32
}

// session holds both directional contexts. It exists only while the handle
// is in SessionOn.
type session struct {
	tx direction // host -> device
	rx direction // device -> host
}

func newSession(cmdKey, resKey []byte) *session {
	return &session{
		tx: direction{key: cmdKey},
		rx: direction{key: resKey},
	}
}

func (s *session) wipe() {
	crypto.Wipe(s.tx.key)
	crypto.Wipe(s.rx.key)
	s.tx = direction{}
	s.rx = direction{}
}

// nonceBytes encodes counter n as a 12 byte AES-GCM nonce
func nonceBytes(n uint32) []byte {
	nonce := make([]byte, crypto.NonceSize)
	binary.LittleEndian.PutUint32(nonce, n)
	return nonce
}

// exhausted reports whether the counter can no longer produce a fresh nonce.
// The last value is never used so the counter never wraps.
func (d *direction) exhausted() bool {
	return d.nonce == math.MaxUint32
}

// l3Command seals cmd, sends it, and returns the decrypted result starting
// with the OK result byte. Any result other than OK is a DeviceError.
func (h *Handle) l3Command(ctx context.Context, command string, cmd []byte) ([]byte, error) {
	if err := h.requireSession(); err != nil {
		return nil, err
	}
	if len(cmd) == 0 || len(cmd) > L3MaxPayloadSize {
		return nil, fmt.Errorf("%w: %s command size %d", ErrParam, command, len(cmd))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := h.session
	if s.tx.exhausted() || s.rx.exhausted() {
		h.endSession()
		return nil, ErrNonceExhausted
	}

	suite := h.config.Suite
	sealed, err := suite.Seal(s.tx.key, nonceBytes(s.tx.nonce), cmd, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: seal: %w", command, err)
	}
	// The nonce is spent once a ciphertext exists, whether or not it reaches
	// the chip.
	s.tx.nonce++

	packet := h.l3Buf[:L3SizeFieldSize+len(sealed)]
	binary.LittleEndian.PutUint16(packet, uint16(len(cmd)))
	copy(packet[L3SizeFieldSize:], sealed)
	crypto.Wipe(sealed)

	res, err := h.l3Transact(ctx, command, packet)
	if err != nil {
		return nil, err
	}
	if h.session != s {
		return nil, ErrNoSession
	}

	if len(res) < L3SizeFieldSize+crypto.TagSize {
		return nil, fmt.Errorf("%w: %s: encrypted response too short (%d bytes)", ErrFail, command, len(res))
	}
	size := int(binary.LittleEndian.Uint16(res))
	if len(res) != L3SizeFieldSize+size+crypto.TagSize {
		return nil, fmt.Errorf("%w: %s: encrypted response size %d does not match packet length %d",
			ErrFail, command, size, len(res))
	}

	plain, err := suite.Open(s.rx.key, nonceBytes(s.rx.nonce), res[L3SizeFieldSize:], nil)
	if err != nil {
		Debugf("L3 %s: response failed authentication, closing session", command)
		h.endSession()
		if errors.Is(err, crypto.ErrAuthFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: open: %w", command, err)
	}
	s.rx.nonce++

	if len(plain) == 0 {
		return nil, fmt.Errorf("%w: %s: empty result", ErrFail, command)
	}
	if plain[0] != resultOK {
		return nil, l3ResultError(command, plain[0])
	}
	return plain, nil
}

// l3Transact sends a sealed packet and receives the sealed response inside
// one L1 transaction. The response overwrites the request in l3Buf.
func (h *Handle) l3Transact(ctx context.Context, command string, packet []byte) ([]byte, error) {
	done := h.link.begin()
	defer done()

	Debugf("L3 %s: sending %d byte packet", command, len(packet))
	if err := h.sendEncrypted(ctx, command, packet); err != nil {
		return nil, err
	}
	res, err := h.receiveEncrypted(ctx, command, h.l3Buf[:])
	if err != nil {
		return nil, err
	}
	return slices.Clone(res), nil
}

// checkResultSize enforces the fixed result structure of a command
func checkResultSize(command string, res []byte, want int) error {
	if len(res) != want {
		return fmt.Errorf("%w: %s: result size %d, expected %d", ErrFail, command, len(res), want)
	}
	return nil
}
