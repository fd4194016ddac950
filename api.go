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
	"slices"

	"github.com/ZaparooProject/go-tropic/internal/frame"
)

// Argument limits
const (
	MaxPingMessageSize = 4096
	MaxSignMessageSize = 4096
	MaxRandomValueSize = 255
	ECDSAHashSize      = 32
	ECCPrivateKeySize  = 32
	SignatureSize      = 64 // R || S
)

// Result structure sizes, including the result byte
const (
	eccKeyEd25519ResSize = 16 + 32
	eccKeyP256ResSize    = 16 + 64
	signResSize          = 16 + SignatureSize
	statusResSize        = 1
	mcounterGetResSize   = 4 + 4
	randomResHeaderSize  = 4
)

// Every operation checks, in order: a non-nil handle, its arguments, then
// the session. All three happen before any I/O.

// Sleep puts the chip into kind. The chip forgets the session on the way
// down, so the local session is dropped once the request has been attempted.
func (h *Handle) Sleep(ctx context.Context, kind SleepKind) error {
	if h == nil {
		return ErrParam
	}
	if !kind.Valid() {
		return ErrParam
	}
	if err := h.requireSession(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	defer h.endSession()

	rsp, err := h.transceive(ctx, "Sleep", frame.ReqSleep, []byte{byte(kind)})
	if err != nil {
		return err
	}
	if len(rsp) != 0 {
		return fmt.Errorf("%w: Sleep: response length %d, expected 0", ErrFail, len(rsp))
	}
	return nil
}

// SessionAbort asks the chip to drop its session. The local session is
// dropped regardless of the outcome, and no session is required.
func (h *Handle) SessionAbort(ctx context.Context) error {
	if h == nil {
		return ErrParam
	}
	defer h.endSession()

	rsp, err := h.transceive(ctx, "SessionAbort", frame.ReqEncryptedSessionAbt, nil)
	if err != nil {
		return err
	}
	if len(rsp) != 0 {
		return fmt.Errorf("%w: SessionAbort: response length %d, expected 0", ErrFail, len(rsp))
	}
	return nil
}

// Reboot restarts the chip in mode and waits for it to come back. Any
// session is lost.
func (h *Handle) Reboot(ctx context.Context, mode StartupMode) error {
	if h == nil {
		return ErrParam
	}
	if !mode.Valid() {
		return ErrParam
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	defer h.endSession()

	rsp, err := h.transceive(ctx, "Startup", frame.ReqStartup, []byte{byte(mode)})
	if err != nil {
		return err
	}
	if len(rsp) != 0 {
		return fmt.Errorf("%w: Startup: response length %d, expected 0", ErrFail, len(rsp))
	}
	h.cert = nil
	return sleepCtx(ctx, h.config.StartupDelay)
}

// Ping sends msg through the secure channel and returns the echo.
func (h *Handle) Ping(ctx context.Context, msg []byte) ([]byte, error) {
	if h == nil {
		return nil, ErrParam
	}
	if len(msg) > MaxPingMessageSize {
		return nil, ErrParam
	}
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	cmd := make([]byte, 0, 1+len(msg))
	cmd = append(cmd, cmdPing)
	cmd = append(cmd, msg...)
	res, err := h.l3Command(ctx, "Ping", cmd)
	if err != nil {
		return nil, err
	}
	if err := checkResultSize("Ping", res, 1+len(msg)); err != nil {
		return nil, err
	}
	return slices.Clone(res[1:]), nil
}

// RandomValueGet returns n bytes from the chip's random generator.
func (h *Handle) RandomValueGet(ctx context.Context, n int) ([]byte, error) {
	if h == nil {
		return nil, ErrParam
	}
	if n < 0 || n > MaxRandomValueSize {
		return nil, ErrParam
	}
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	res, err := h.l3Command(ctx, "RandomValueGet", []byte{cmdRandomValueGet, byte(n)})
	if err != nil {
		return nil, err
	}
	if err := checkResultSize("RandomValueGet", res, randomResHeaderSize+n); err != nil {
		return nil, err
	}
	return slices.Clone(res[randomResHeaderSize:]), nil
}

func slotCommand(id byte, slot ECCSlot, extra int) []byte {
	cmd := make([]byte, 3, 3+extra)
	cmd[0] = id
	binary.LittleEndian.PutUint16(cmd[1:], uint16(slot))
	return cmd
}

// ECCKeyGenerate creates a new key on curve in slot.
func (h *Handle) ECCKeyGenerate(ctx context.Context, slot ECCSlot, curve ECCCurve) error {
	if h == nil {
		return ErrParam
	}
	if !slot.Valid() || !curve.Valid() {
		return ErrParam
	}
	if err := h.requireSession(); err != nil {
		return err
	}

	cmd := append(slotCommand(cmdECCKeyGenerate, slot, 1), byte(curve))
	res, err := h.l3Command(ctx, "ECCKeyGenerate", cmd)
	if err != nil {
		return err
	}
	return checkResultSize("ECCKeyGenerate", res, statusResSize)
}

// ECCKeyStore writes a 32 byte private key on curve into slot.
func (h *Handle) ECCKeyStore(ctx context.Context, slot ECCSlot, curve ECCCurve, key []byte) error {
	if h == nil {
		return ErrParam
	}
	if !slot.Valid() || !curve.Valid() || len(key) != ECCPrivateKeySize {
		return ErrParam
	}
	if err := h.requireSession(); err != nil {
		return err
	}

	cmd := slotCommand(cmdECCKeyStore, slot, 1+12+ECCPrivateKeySize)
	cmd = append(cmd, byte(curve))
	cmd = append(cmd, make([]byte, 12)...)
	cmd = append(cmd, key...)
	res, err := h.l3Command(ctx, "ECCKeyStore", cmd)
	clear(cmd)
	if err != nil {
		return err
	}
	return checkResultSize("ECCKeyStore", res, statusResSize)
}

// ECCKeyRead returns the public key held in slot.
func (h *Handle) ECCKeyRead(ctx context.Context, slot ECCSlot) (*ECCKey, error) {
	if h == nil {
		return nil, ErrParam
	}
	if !slot.Valid() {
		return nil, ErrParam
	}
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	res, err := h.l3Command(ctx, "ECCKeyRead", slotCommand(cmdECCKeyRead, slot, 0))
	if err != nil {
		return nil, err
	}
	// RESULT | CURVE | ORIGIN | padding[13] | public key
	if len(res) < 3 {
		return nil, checkResultSize("ECCKeyRead", res, eccKeyEd25519ResSize)
	}
	curve := ECCCurve(res[1])
	want := eccKeyP256ResSize
	if curve == CurveEd25519 {
		want = eccKeyEd25519ResSize
	}
	if err := checkResultSize("ECCKeyRead", res, want); err != nil {
		return nil, err
	}
	if !curve.Valid() {
		return nil, fmt.Errorf("%w: ECCKeyRead: unknown curve 0x%02X", ErrFail, byte(curve))
	}
	return &ECCKey{
		Curve:     curve,
		Origin:    KeyOrigin(res[2]),
		PublicKey: slices.Clone(res[16:]),
	}, nil
}

// ECCKeyErase clears slot.
func (h *Handle) ECCKeyErase(ctx context.Context, slot ECCSlot) error {
	if h == nil {
		return ErrParam
	}
	if !slot.Valid() {
		return ErrParam
	}
	if err := h.requireSession(); err != nil {
		return err
	}

	res, err := h.l3Command(ctx, "ECCKeyErase", slotCommand(cmdECCKeyErase, slot, 0))
	if err != nil {
		return err
	}
	return checkResultSize("ECCKeyErase", res, statusResSize)
}

// ECDSASign signs a 32 byte message hash with the P-256 key in slot and
// returns R || S.
func (h *Handle) ECDSASign(ctx context.Context, slot ECCSlot, hash []byte) ([]byte, error) {
	if h == nil {
		return nil, ErrParam
	}
	if !slot.Valid() || len(hash) != ECDSAHashSize {
		return nil, ErrParam
	}
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	cmd := slotCommand(cmdECDSASign, slot, 13+len(hash))
	cmd = append(cmd, make([]byte, 13)...)
	cmd = append(cmd, hash...)
	return h.sign(ctx, "ECDSASign", cmd)
}

// EdDSASign signs msg with the Ed25519 key in slot and returns R || S.
func (h *Handle) EdDSASign(ctx context.Context, slot ECCSlot, msg []byte) ([]byte, error) {
	if h == nil {
		return nil, ErrParam
	}
	if !slot.Valid() || len(msg) == 0 || len(msg) > MaxSignMessageSize {
		return nil, ErrParam
	}
	if err := h.requireSession(); err != nil {
		return nil, err
	}

	cmd := slotCommand(cmdEdDSASign, slot, 13+len(msg))
	cmd = append(cmd, make([]byte, 13)...)
	cmd = append(cmd, msg...)
	return h.sign(ctx, "EdDSASign", cmd)
}

func (h *Handle) sign(ctx context.Context, command string, cmd []byte) ([]byte, error) {
	res, err := h.l3Command(ctx, command, cmd)
	if err != nil {
		return nil, err
	}
	// RESULT | padding[15] | R | S
	if err := checkResultSize(command, res, signResSize); err != nil {
		return nil, err
	}
	return slices.Clone(res[16:]), nil
}

func counterCommand(id byte, index MCounterIndex, extra int) []byte {
	cmd := make([]byte, 3, 3+extra)
	cmd[0] = id
	binary.LittleEndian.PutUint16(cmd[1:], uint16(index))
	return cmd
}

// MCounterInit sets counter index to value.
func (h *Handle) MCounterInit(ctx context.Context, index MCounterIndex, value uint32) error {
	if h == nil {
		return ErrParam
	}
	if !index.Valid() {
		return ErrParam
	}
	if err := h.requireSession(); err != nil {
		return err
	}

	cmd := counterCommand(cmdMCounterInit, index, 5)
	cmd = append(cmd, 0)
	cmd = binary.LittleEndian.AppendUint32(cmd, value)
	res, err := h.l3Command(ctx, "MCounterInit", cmd)
	if err != nil {
		return err
	}
	return checkResultSize("MCounterInit", res, statusResSize)
}

// MCounterUpdate decrements counter index. A counter at zero reports
// ResultMCounterUpdateErr.
func (h *Handle) MCounterUpdate(ctx context.Context, index MCounterIndex) error {
	if h == nil {
		return ErrParam
	}
	if !index.Valid() {
		return ErrParam
	}
	if err := h.requireSession(); err != nil {
		return err
	}

	res, err := h.l3Command(ctx, "MCounterUpdate", counterCommand(cmdMCounterUpdate, index, 0))
	if err != nil {
		return err
	}
	return checkResultSize("MCounterUpdate", res, statusResSize)
}

// MCounterGet returns the current value of counter index.
func (h *Handle) MCounterGet(ctx context.Context, index MCounterIndex) (uint32, error) {
	if h == nil {
		return 0, ErrParam
	}
	if !index.Valid() {
		return 0, ErrParam
	}
	if err := h.requireSession(); err != nil {
		return 0, err
	}

	res, err := h.l3Command(ctx, "MCounterGet", counterCommand(cmdMCounterGet, index, 0))
	if err != nil {
		return 0, err
	}
	// RESULT | padding[3] | value
	if err := checkResultSize("MCounterGet", res, mcounterGetResSize); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(res[4:]), nil
}
