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
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"encoding/binary"
	"io"
	"math/big"
)

// L3 command identifiers
const (
	CmdPing           = 0x01
	CmdRandomValueGet = 0x50
	CmdECCKeyGenerate = 0x60
	CmdECCKeyStore    = 0x61
	CmdECCKeyRead     = 0x62
	CmdECCKeyErase    = 0x63
	CmdECDSASign      = 0x70
	CmdEdDSASign      = 0x71
	CmdMCounterInit   = 0x80
	CmdMCounterUpdate = 0x81
	CmdMCounterGet    = 0x82
)

// L3 result codes
const (
	ResultOK                = 0xC3
	ResultFail              = 0x3C
	ResultUnauthorized      = 0x01
	ResultInvalidCmd        = 0x02
	ResultECCInvalidKey     = 0x12
	ResultMCounterUpdateErr = 0x13
	ResultCounterInvalid    = 0x14
)

// Curves and key origins as encoded on the wire
const (
	CurveP256    = 0x01
	CurveEd25519 = 0x02

	OriginGenerated = 0x01
	OriginStored    = 0x02
)

const (
	numSlots     = 32
	numCounters  = 16
	slotHdrSize  = 3  // CMD | SLOT u16
	signPadding  = 13 // between the slot and the payload of sign requests
	storePadding = 12
)

// VirtualSlot is one ECC key slot
type VirtualSlot struct {
	ed25519Key ed25519.PrivateKey
	p256Key    *ecdsa.PrivateKey
	Curve      byte
	Origin     byte
}

// PublicKey returns the raw public key: 32 bytes for Ed25519, X || Y for P-256
func (s *VirtualSlot) PublicKey() []byte {
	if s.Curve == CurveEd25519 {
		return []byte(s.ed25519Key.Public().(ed25519.PublicKey))
	}
	pub, err := s.p256Key.PublicKey.ECDH()
	if err != nil {
		return nil
	}
	return pub.Bytes()[1:]
}

func newEd25519Slot(seed []byte, origin byte) *VirtualSlot {
	return &VirtualSlot{
		Curve:      CurveEd25519,
		Origin:     origin,
		ed25519Key: ed25519.NewKeyFromSeed(seed),
	}
}

func newP256Slot(scalar []byte, origin byte) (*VirtualSlot, bool) {
	priv, err := ecdh.P256().NewPrivateKey(scalar)
	if err != nil {
		return nil, false
	}
	pub := priv.PublicKey().Bytes() // 0x04 || X || Y
	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(pub[1:33]),
			Y:     new(big.Int).SetBytes(pub[33:]),
		},
		D: new(big.Int).SetBytes(scalar),
	}
	return &VirtualSlot{Curve: CurveP256, Origin: origin, p256Key: key}, true
}

func status(code byte) []byte {
	return []byte{code}
}

// execute runs one decrypted command and returns the plaintext result.
//
//nolint:gocyclo,revive // Command dispatch is a flat switch
func (c *VirtualChip) execute(cmd []byte) []byte {
	id := cmd[0]
	if c.unauthorized[id] {
		return status(ResultUnauthorized)
	}

	switch id {
	case CmdPing:
		return append([]byte{ResultOK}, cmd[1:]...)
	case CmdRandomValueGet:
		if len(cmd) != 2 {
			return status(ResultFail)
		}
		out := make([]byte, 4+int(cmd[1]))
		if _, err := io.ReadFull(c.rand, out[4:]); err != nil {
			return status(ResultFail)
		}
		out[0] = ResultOK
		return out
	case CmdECCKeyGenerate:
		return c.eccKeyGenerate(cmd)
	case CmdECCKeyStore:
		return c.eccKeyStore(cmd)
	case CmdECCKeyRead:
		return c.eccKeyRead(cmd)
	case CmdECCKeyErase:
		slot, ok := slotIndex(cmd, slotHdrSize)
		if !ok {
			return status(ResultFail)
		}
		c.slots[slot] = nil
		return status(ResultOK)
	case CmdECDSASign:
		return c.ecdsaSign(cmd)
	case CmdEdDSASign:
		return c.eddsaSign(cmd)
	case CmdMCounterInit, CmdMCounterUpdate, CmdMCounterGet:
		return c.mcounter(cmd)
	default:
		return status(ResultInvalidCmd)
	}
}

// slotIndex validates the request length and decodes the slot field
func slotIndex(cmd []byte, wantLen int) (int, bool) {
	if len(cmd) != wantLen || len(cmd) < slotHdrSize {
		return 0, false
	}
	slot := int(binary.LittleEndian.Uint16(cmd[1:]))
	return slot, slot < numSlots
}

func (c *VirtualChip) eccKeyGenerate(cmd []byte) []byte {
	slot, ok := slotIndex(cmd, slotHdrSize+1)
	if !ok || c.slots[slot] != nil {
		return status(ResultFail)
	}
	seed := make([]byte, 32)
	if _, err := io.ReadFull(c.rand, seed); err != nil {
		return status(ResultFail)
	}

	switch cmd[3] {
	case CurveEd25519:
		c.slots[slot] = newEd25519Slot(seed, OriginGenerated)
	case CurveP256:
		s, ok := newP256Slot(seed, OriginGenerated)
		if !ok {
			return status(ResultFail)
		}
		c.slots[slot] = s
	default:
		return status(ResultFail)
	}
	return status(ResultOK)
}

func (c *VirtualChip) eccKeyStore(cmd []byte) []byte {
	slot, ok := slotIndex(cmd, slotHdrSize+1+storePadding+32)
	if !ok || c.slots[slot] != nil {
		return status(ResultFail)
	}
	key := cmd[slotHdrSize+1+storePadding:]

	switch cmd[3] {
	case CurveEd25519:
		c.slots[slot] = newEd25519Slot(key, OriginStored)
	case CurveP256:
		s, ok := newP256Slot(key, OriginStored)
		if !ok {
			return status(ResultECCInvalidKey)
		}
		c.slots[slot] = s
	default:
		return status(ResultFail)
	}
	return status(ResultOK)
}

func (c *VirtualChip) eccKeyRead(cmd []byte) []byte {
	slot, ok := slotIndex(cmd, slotHdrSize)
	if !ok {
		return status(ResultFail)
	}
	s := c.slots[slot]
	if s == nil {
		return status(ResultECCInvalidKey)
	}
	out := make([]byte, 16, 16+64)
	out[0] = ResultOK
	out[1] = s.Curve
	out[2] = s.Origin
	return append(out, s.PublicKey()...)
}

func (c *VirtualChip) ecdsaSign(cmd []byte) []byte {
	slot, ok := slotIndex(cmd, slotHdrSize+signPadding+32)
	if !ok {
		return status(ResultFail)
	}
	s := c.slots[slot]
	if s == nil || s.Curve != CurveP256 {
		return status(ResultECCInvalidKey)
	}
	r, sv, err := ecdsa.Sign(c.rand, s.p256Key, cmd[slotHdrSize+signPadding:])
	if err != nil {
		return status(ResultFail)
	}
	out := make([]byte, 16+64)
	out[0] = ResultOK
	r.FillBytes(out[16:48])
	sv.FillBytes(out[48:])
	return out
}

func (c *VirtualChip) eddsaSign(cmd []byte) []byte {
	if len(cmd) <= slotHdrSize+signPadding {
		return status(ResultFail)
	}
	slot, ok := slotIndex(cmd, len(cmd))
	if !ok {
		return status(ResultFail)
	}
	s := c.slots[slot]
	if s == nil || s.Curve != CurveEd25519 {
		return status(ResultECCInvalidKey)
	}
	sig := ed25519.Sign(s.ed25519Key, cmd[slotHdrSize+signPadding:])
	out := make([]byte, 16, 16+len(sig))
	out[0] = ResultOK
	return append(out, sig...)
}

// mcounter handles init, update and get. Counters count down; updating a
// counter at zero fails.
func (c *VirtualChip) mcounter(cmd []byte) []byte {
	want := slotHdrSize
	if cmd[0] == CmdMCounterInit {
		want = slotHdrSize + 1 + 4
	}
	if len(cmd) != want {
		return status(ResultFail)
	}
	index := int(binary.LittleEndian.Uint16(cmd[1:]))
	if index >= numCounters {
		return status(ResultFail)
	}

	value, initialised := c.counters[index]
	switch cmd[0] {
	case CmdMCounterInit:
		c.counters[index] = binary.LittleEndian.Uint32(cmd[4:])
		return status(ResultOK)
	case CmdMCounterUpdate:
		if !initialised {
			return status(ResultCounterInvalid)
		}
		if value == 0 {
			return status(ResultMCounterUpdateErr)
		}
		c.counters[index] = value - 1
		return status(ResultOK)
	default:
		if !initialised {
			return status(ResultCounterInvalid)
		}
		out := make([]byte, 8)
		out[0] = ResultOK
		binary.LittleEndian.PutUint32(out[4:], value)
		return out
	}
}

// Slot returns a copy of slot i, or nil when it is empty
func (c *VirtualChip) Slot(i int) *VirtualSlot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.slots) || c.slots[i] == nil {
		return nil
	}
	s := *c.slots[i]
	return &s
}

// Counter returns the value of counter i and whether it has been initialised
func (c *VirtualChip) Counter(i int) (uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.counters[i]
	return v, ok
}
