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
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ZaparooProject/go-tropic/internal/frame"
)

func newTestChip(t *testing.T) *VirtualChip {
	t.Helper()
	id, err := NewIdentity(1)
	if err != nil {
		t.Fatalf("NewIdentity failed: %v", err)
	}
	return NewVirtualChip(id)
}

// roundTrip writes req and clocks out the chip's answer
func roundTrip(t *testing.T, c *VirtualChip, req frame.Request) frame.Response {
	t.Helper()
	tx, err := req.Encode(make([]byte, frame.MaxRequestSize))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if err := c.Transfer(tx, make([]byte, len(tx))); err != nil {
		t.Fatalf("request Transfer failed: %v", err)
	}
	return poll(t, c)
}

func poll(t *testing.T, c *VirtualChip) frame.Response {
	t.Helper()
	tx := make([]byte, frame.MaxResponseSize)
	tx[0] = frame.ReqGetResponse
	rx := make([]byte, len(tx))
	if err := c.Transfer(tx, rx); err != nil {
		t.Fatalf("poll Transfer failed: %v", err)
	}
	resp, err := frame.DecodeResponse(rx)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v (rx % X)", err, rx[:4])
	}
	return resp
}

func TestVirtualChip_GetInfoCertificate(t *testing.T) {
	t.Parallel()

	c := newTestChip(t)
	resp := roundTrip(t, c, frame.Request{ID: frame.ReqGetInfo, Data: []byte{frame.InfoObjectX509Certificate, 0}})

	if resp.Status != frame.StatusRequestOK {
		t.Fatalf("status = 0x%02X, want REQ_OK", resp.Status)
	}
	if len(resp.Data) != frame.InfoBlockSize {
		t.Fatalf("block length = %d, want %d", len(resp.Data), frame.InfoBlockSize)
	}
	size := int(binary.BigEndian.Uint16(resp.Data))
	if size != len(c.identity.CertDER) {
		t.Errorf("certificate length prefix = %d, want %d", size, len(c.identity.CertDER))
	}
	if !bytes.Equal(resp.Data[2:], c.identity.CertDER[:frame.InfoBlockSize-2]) {
		t.Error("block 0 does not carry the start of the certificate")
	}

	resp = roundTrip(t, c, frame.Request{ID: frame.ReqGetInfo, Data: []byte{frame.InfoObjectX509Certificate, 40}})
	if resp.Status != frame.StatusGenErr {
		t.Errorf("block past the store: status = 0x%02X, want GEN_ERR", resp.Status)
	}
}

func TestVirtualChip_RequestErrors(t *testing.T) {
	t.Parallel()

	c := newTestChip(t)

	resp := roundTrip(t, c, frame.Request{ID: 0x55})
	if resp.Status != frame.StatusUnknownReq {
		t.Errorf("unknown request: status = 0x%02X, want UNKNOWN_REQ", resp.Status)
	}

	resp = roundTrip(t, c, frame.Request{ID: frame.ReqEncryptedCmd, Data: []byte{1, 2, 3}})
	if resp.Status != frame.StatusNoSession {
		t.Errorf("encrypted command without session: status = 0x%02X, want NO_SESSION", resp.Status)
	}

	tx, err := (&frame.Request{ID: frame.ReqGetInfo, Data: []byte{1, 0}}).Encode(make([]byte, frame.MaxRequestSize))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	tx[len(tx)-1] ^= 0xFF
	if err := c.Transfer(tx, make([]byte, len(tx))); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if resp := poll(t, c); resp.Status != frame.StatusCRCErr {
		t.Errorf("corrupt request: status = 0x%02X, want CRC_ERR", resp.Status)
	}
}

func TestVirtualChip_Resend(t *testing.T) {
	t.Parallel()

	c := newTestChip(t)
	first := roundTrip(t, c, frame.Request{ID: frame.ReqGetInfo, Data: []byte{frame.InfoObjectChipID, 0}})
	again := roundTrip(t, c, frame.Request{ID: frame.ReqResend})

	if again.Status != first.Status || !bytes.Equal(again.Data, first.Data) {
		t.Error("RESEND did not repeat the last response")
	}
}

func TestVirtualChip_ChipStatus(t *testing.T) {
	t.Parallel()

	c := newTestChip(t)
	tx := make([]byte, frame.MaxResponseSize)
	tx[0] = frame.ReqGetResponse
	rx := make([]byte, len(tx))

	c.SetBusy(2)
	for i := range 2 {
		if err := c.Transfer(tx, rx); err != nil {
			t.Fatalf("Transfer failed: %v", err)
		}
		if rx[0] != 0 {
			t.Errorf("poll %d: chip status = 0x%02X, want not ready", i, rx[0])
		}
	}
	if err := c.Transfer(tx, rx); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if rx[0] != frame.ChipStatusReady || rx[1] != frame.StatusNoResponse {
		t.Errorf("idle poll = % X, want ready with no response", rx[:2])
	}

	c.SetAlarm(true)
	if err := c.Transfer(tx, rx); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if rx[0] != frame.ChipStatusAlarm {
		t.Errorf("chip status = 0x%02X, want ALARM", rx[0])
	}
	c.SetAlarm(false)
	c.SetStartup(true)
	if err := c.Transfer(tx, rx); err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if rx[0] != frame.ChipStatusStartup {
		t.Errorf("chip status = 0x%02X, want STARTUP", rx[0])
	}
}

func TestVirtualChip_BusFaults(t *testing.T) {
	t.Parallel()

	c := newTestChip(t)
	broken := errors.New("wire cut")
	c.SetBusError(broken)
	if err := c.Transfer([]byte{frame.ReqGetResponse}, make([]byte, 1)); !errors.Is(err, broken) {
		t.Errorf("Transfer error = %v, want %v", err, broken)
	}

	c.SetBusError(nil)
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Transfer([]byte{frame.ReqGetResponse}, make([]byte, 1)); !errors.Is(err, ErrBusClosed) {
		t.Errorf("Transfer after Close = %v, want ErrBusClosed", err)
	}
	if got := c.TransferCount(); got != 1 {
		t.Errorf("TransferCount = %d, want 1", got)
	}
}

func TestVirtualChip_MonotonicCounters(t *testing.T) {
	t.Parallel()

	c := newTestChip(t)
	counter := func(cmd byte, extra ...byte) byte {
		return c.execute(append([]byte{cmd, 4, 0}, extra...))[0]
	}

	if got := counter(CmdMCounterUpdate); got != ResultCounterInvalid {
		t.Errorf("update before init = 0x%02X, want COUNTER_INVALID", got)
	}
	if got := counter(CmdMCounterInit, 0, 1, 0, 0, 0); got != ResultOK {
		t.Fatalf("init = 0x%02X, want OK", got)
	}
	if got := counter(CmdMCounterUpdate); got != ResultOK {
		t.Errorf("first update = 0x%02X, want OK", got)
	}
	if got := counter(CmdMCounterUpdate); got != ResultMCounterUpdateErr {
		t.Errorf("update at zero = 0x%02X, want UPDATE_ERR", got)
	}
	if v, ok := c.Counter(4); !ok || v != 0 {
		t.Errorf("Counter(4) = %d, %v; want 0, true", v, ok)
	}
	if got := c.execute([]byte{CmdMCounterGet, 16, 0})[0]; got != ResultFail {
		t.Errorf("out of range index = 0x%02X, want FAIL", got)
	}
}

func TestVirtualChip_SlotCommands(t *testing.T) {
	t.Parallel()

	c := newTestChip(t)
	c.SetRandom(NewSeededReader(4))

	if got := c.execute([]byte{CmdECCKeyGenerate, 3, 0, CurveEd25519})[0]; got != ResultOK {
		t.Fatalf("generate = 0x%02X, want OK", got)
	}
	if got := c.execute([]byte{CmdECCKeyGenerate, 3, 0, CurveEd25519})[0]; got != ResultFail {
		t.Errorf("generate into occupied slot = 0x%02X, want FAIL", got)
	}
	read := c.execute([]byte{CmdECCKeyRead, 3, 0})
	if len(read) != 16+32 || read[1] != CurveEd25519 || read[2] != OriginGenerated {
		t.Errorf("read = % X", read[:3])
	}
	if got := c.execute([]byte{CmdECCKeyErase, 3, 0})[0]; got != ResultOK {
		t.Errorf("erase = 0x%02X, want OK", got)
	}
	if c.Slot(3) != nil {
		t.Error("slot 3 still populated after erase")
	}
	if got := c.execute([]byte{CmdECCKeyRead, 32, 0})[0]; got != ResultFail {
		t.Errorf("read slot 32 = 0x%02X, want FAIL", got)
	}
	if got := c.execute([]byte{0x99})[0]; got != ResultInvalidCmd {
		t.Errorf("unknown command = 0x%02X, want INVALID_CMD", got)
	}
}

func TestNewIdentity_Deterministic(t *testing.T) {
	t.Parallel()

	a, err := NewIdentity(9)
	if err != nil {
		t.Fatalf("NewIdentity failed: %v", err)
	}
	b, err := NewIdentity(9)
	if err != nil {
		t.Fatalf("NewIdentity failed: %v", err)
	}
	if !bytes.Equal(a.CertDER, b.CertDER) {
		t.Error("identities from the same seed differ")
	}
	if err := a.Root.CheckSignature(a.Root.SignatureAlgorithm, a.Root.RawTBSCertificate, a.Root.Signature); err != nil {
		t.Errorf("root is not self-signed: %v", err)
	}

	store := a.certificateStore(frame.InfoBlockSize)
	if len(store)%frame.InfoBlockSize != 0 {
		t.Errorf("store length %d is not a whole number of blocks", len(store))
	}
}
