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
	"fmt"

	"github.com/ZaparooProject/go-tropic/internal/frame"
)

// ECCSlot addresses one of the chip's ECC key slots.
type ECCSlot int

// ECC slot bounds
const (
	ECCSlotMin ECCSlot = 0
	ECCSlotMax ECCSlot = 31
)

// NewECCSlot validates n and returns it as a slot.
func NewECCSlot(n int) (ECCSlot, error) {
	s := ECCSlot(n)
	if !s.Valid() {
		return 0, fmt.Errorf("%w: ECC slot %d out of range", ErrParam, n)
	}
	return s, nil
}

// Valid reports whether s is an addressable slot
func (s ECCSlot) Valid() bool {
	return s >= ECCSlotMin && s <= ECCSlotMax
}

// MCounterIndex addresses one of the chip's monotonic counters.
type MCounterIndex int

// Monotonic counter bounds
const (
	MCounterIndexMin MCounterIndex = 0
	MCounterIndexMax MCounterIndex = 15
)

// NewMCounterIndex validates n and returns it as a counter index.
func NewMCounterIndex(n int) (MCounterIndex, error) {
	i := MCounterIndex(n)
	if !i.Valid() {
		return 0, fmt.Errorf("%w: counter index %d out of range", ErrParam, n)
	}
	return i, nil
}

// Valid reports whether i is an addressable counter
func (i MCounterIndex) Valid() bool {
	return i >= MCounterIndexMin && i <= MCounterIndexMax
}

// SleepKind selects the low-power mode entered by Sleep.
type SleepKind byte

// Sleep kinds
const (
	SleepKindSleep     SleepKind = frame.SleepKindSleep
	SleepKindDeepSleep SleepKind = frame.SleepKindDeepSleep
)

// Valid reports whether k is one of the two accepted kinds. Every other
// byte, including 0 and the neighbours of each kind, is rejected.
func (k SleepKind) Valid() bool {
	return k == SleepKindSleep || k == SleepKindDeepSleep
}

func (k SleepKind) String() string {
	switch k {
	case SleepKindSleep:
		return "sleep"
	case SleepKindDeepSleep:
		return "deep-sleep"
	default:
		return fmt.Sprintf("SleepKind(0x%02X)", byte(k))
	}
}

// StartupMode selects how the chip restarts.
type StartupMode byte

// Startup modes
const (
	StartupReboot      StartupMode = frame.StartupReboot
	StartupMaintenance StartupMode = frame.StartupMaintReboot
)

// Valid reports whether m is a known restart mode
func (m StartupMode) Valid() bool {
	return m == StartupReboot || m == StartupMaintenance
}

// ECCCurve identifies the curve of a key slot.
type ECCCurve byte

// Supported curves
const (
	CurveP256    ECCCurve = 0x01
	CurveEd25519 ECCCurve = 0x02
)

// Valid reports whether c is a supported curve
func (c ECCCurve) Valid() bool {
	return c == CurveP256 || c == CurveEd25519
}

func (c ECCCurve) String() string {
	switch c {
	case CurveP256:
		return "P-256"
	case CurveEd25519:
		return "Ed25519"
	default:
		return fmt.Sprintf("ECCCurve(0x%02X)", byte(c))
	}
}

// PublicKeySize returns the length of a raw public key on c
func (c ECCCurve) PublicKeySize() int {
	switch c {
	case CurveP256:
		return 64 // X || Y
	case CurveEd25519:
		return 32
	default:
		return 0
	}
}

// KeyOrigin reports how a slot's key came to exist.
type KeyOrigin byte

// Key origins
const (
	KeyOriginGenerated KeyOrigin = 0x01
	KeyOriginStored    KeyOrigin = 0x02
)

// ECCKey is the public half of a slot as returned by ECCKeyRead.
type ECCKey struct {
	PublicKey []byte
	Curve     ECCCurve
	Origin    KeyOrigin
}

// SessionState is the handle's position in the secure session lifecycle.
type SessionState int

// Session states
const (
	NoSession SessionState = iota
	Handshaking
	SessionOn
)

func (s SessionState) String() string {
	switch s {
	case NoSession:
		return "no-session"
	case Handshaking:
		return "handshaking"
	case SessionOn:
		return "session-on"
	default:
		return "unknown"
	}
}
